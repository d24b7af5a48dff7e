package model

// TransferStatus is the state of a StockTransfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferCancelled TransferStatus = "cancelled"
)

// CanTransition reports whether a transfer may move from s to next.
// Only pending transfers move, and only once.
func (s TransferStatus) CanTransition(next TransferStatus) bool {
	return s == TransferPending && (next == TransferConfirmed || next == TransferCancelled)
}

// ChangeType is the kind of stock movement a PendingChange requests.
type ChangeType string

const (
	ChangeAdd           ChangeType = "add"
	ChangeRemove        ChangeType = "remove"
	ChangeAdjust        ChangeType = "adjust"
	ChangeReturn        ChangeType = "return"
	ChangeRemoveProduct ChangeType = "remove_product"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeAdd, ChangeRemove, ChangeAdjust, ChangeReturn, ChangeRemoveProduct:
		return true
	}
	return false
}

// ChangeStatus is the state of a PendingChange.
type ChangeStatus string

const (
	ChangePending   ChangeStatus = "pending"
	ChangeApproved  ChangeStatus = "approved"
	ChangeRejected  ChangeStatus = "rejected"
	ChangeCompleted ChangeStatus = "completed"
)

// CanTransition reports whether a change of type t may move from s to next.
//
//	pending  -> approved | rejected
//	approved -> completed   (returns only)
func (s ChangeStatus) CanTransition(t ChangeType, next ChangeStatus) bool {
	switch s {
	case ChangePending:
		return next == ChangeApproved || next == ChangeRejected
	case ChangeApproved:
		return t == ChangeReturn && next == ChangeCompleted
	}
	return false
}

// QueueStatus is the state of a QueueEntry.
type QueueStatus string

const (
	// QueueQueued entries are sent on the next drain.
	QueueQueued QueueStatus = "queued"
	// QueueAttention entries were rejected by the server and are held until
	// an operator retries or discards them.
	QueueAttention QueueStatus = "attention"
)

// Sync queue table names. These are the server-facing collection names,
// not SQL table names.
const (
	QueueProducts           = "products"
	QueueInventoryAdditions = "inventoryAdditions"
	QueueStockTransfers     = "stockTransfers"
	QueuePendingChanges     = "pendingChanges"
	QueueTransactions       = "transactions"
)

// Sync queue actions.
const (
	ActionCreate   = "create"
	ActionImport   = "import"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionConfirm  = "confirm"
	ActionCancel   = "cancel"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionComplete = "complete"
)
