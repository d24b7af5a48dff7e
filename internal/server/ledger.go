package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/stock"
)

// Ledger errors map onto HTTP statuses: ErrInvalid is 422, ErrNotFound is
// 404 and ErrConflict is 409.
var (
	ErrInvalid  = errors.New("invalid request")
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

type invKey struct{ store, product string }

type transfer struct {
	id     string
	status model.TransferStatus
	to     string
	// items carry canonical product ids.
	items []model.TransferItem
	reply model.SyncResponse
}

type change struct {
	id      string
	status  model.ChangeStatus
	payload model.ChangePayload
	product string
	reply   model.SyncResponse
}

// Ledger is the authoritative system of record. Every device mutation names
// its record by the device's local id, and handling is idempotent per local
// id: a mutation seen before returns its first answer without applying
// again.
type Ledger struct {
	mu      sync.Mutex
	taxRate *decimal.Decimal

	stores    map[string]model.Store
	products  map[string]*model.SnapshotProduct
	aliases   map[string]string
	inventory map[invKey]int64
	transfers map[string]*transfer
	changes   map[string]*change
	replies   map[string]model.SyncResponse
	seq       map[string]int
	nextItem  int64
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithTaxRate makes sales whose tax does not match rate on the subtotal a
// validation failure. Without it the device's tax is taken as sent.
func WithTaxRate(rate decimal.Decimal) LedgerOption {
	return func(l *Ledger) { l.taxRate = &rate }
}

// NewLedger returns a ledger holding only the warehouse.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		stores:    map[string]model.Store{},
		products:  map[string]*model.SnapshotProduct{},
		aliases:   map[string]string{},
		inventory: map[invKey]int64{},
		transfers: map[string]*transfer{},
		changes:   map[string]*change{},
		replies:   map[string]model.SyncResponse{},
		seq:       map[string]int{},
		nextItem:  1,
	}
	l.stores[model.WarehouseID] = model.Store{ID: model.WarehouseID, Name: "Warehouse", IsWarehouse: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seed loads catalog stores and products. Seeded products keep their ids,
// which devices seeded from the same catalog share. Existing ids are left
// alone.
func (l *Ledger) Seed(cat *catalog.Catalog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, st := range cat.Stores {
		l.stores[st.ID] = st
	}
	for _, cp := range cat.Products {
		if _, ok := l.products[cp.ID]; ok {
			continue
		}
		l.products[cp.ID] = &model.SnapshotProduct{
			ID:             cp.ID,
			ItemNo:         cp.ItemNo,
			Name:           cp.Name,
			Cost:           cp.Cost,
			Price:          cp.Price,
			WarehouseStock: cp.WarehouseStock,
			RestockLevel:   cp.RestockLevel,
		}
		if cp.ItemNo >= l.nextItem {
			l.nextItem = cp.ItemNo + 1
		}
		for storeID, qty := range cp.Stock {
			l.inventory[invKey{storeID, cp.ID}] = qty
		}
	}
}

func (l *Ledger) nextID(prefix string) string {
	l.seq[prefix]++
	return fmt.Sprintf("%s-%06d", prefix, l.seq[prefix])
}

func replyKey(collection, localID string) string { return collection + "/" + localID }

// product resolves a canonical or device-local product id.
func (l *Ledger) product(id string) (*model.SnapshotProduct, bool) {
	if p, ok := l.products[id]; ok {
		return p, true
	}
	if canonical, ok := l.aliases[id]; ok {
		return l.products[canonical], true
	}
	return nil, false
}

func (l *Ledger) liveProduct(field, id string) (*model.SnapshotProduct, error) {
	p, ok := l.product(id)
	if !ok {
		return nil, invalidf("%s: unknown product %q", field, id)
	}
	if p.Deleted {
		return nil, invalidf("%s: product %q is deleted", field, id)
	}
	return p, nil
}

func (l *Ledger) shop(field, id string) (model.Store, error) {
	st, ok := l.stores[id]
	if !ok {
		return st, invalidf("%s: unknown store %q", field, id)
	}
	return st, nil
}

func (l *Ledger) productByName(name string) *model.SnapshotProduct {
	for _, p := range l.products {
		if !p.Deleted && p.Name == name {
			return p
		}
	}
	return nil
}

func validateProduct(field string, p model.ProductPayload) error {
	switch {
	case p.LocalID == "":
		return invalidf("%slocalId is required", field)
	case strings.TrimSpace(p.Name) == "":
		return invalidf("%sname is required", field)
	case p.Cost.IsNegative():
		return invalidf("%scost must not be negative", field)
	case p.Price.IsNegative():
		return invalidf("%sprice must not be negative", field)
	case p.WarehouseStock < 0:
		return invalidf("%swarehouseStock must not be negative", field)
	case p.RestockLevel < 0:
		return invalidf("%srestockLevel must not be negative", field)
	}
	return nil
}

// upsertProduct creates a product or, when a live product has the same
// name, folds the request into it: prices are replaced and the stock is
// added to the warehouse.
func (l *Ledger) upsertProduct(in model.ProductPayload) model.ProductAck {
	name := strings.TrimSpace(in.Name)
	p := l.productByName(name)
	if p == nil {
		p = &model.SnapshotProduct{ID: l.nextID("PRD"), ItemNo: l.nextItem, Name: name}
		l.nextItem++
		l.products[p.ID] = p
	}
	p.Cost, p.Price, p.RestockLevel = in.Cost, in.Price, in.RestockLevel
	p.WarehouseStock += in.WarehouseStock
	l.aliases[in.LocalID] = p.ID
	return model.ProductAck{LocalID: in.LocalID, ID: p.ID, ItemNo: p.ItemNo}
}

// CreateProduct handles POST /api/products.
func (l *Ledger) CreateProduct(in model.ProductPayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := replyKey(model.QueueProducts, in.LocalID)
	if reply, ok := l.replies[key]; ok {
		return reply, nil
	}
	if err := validateProduct("", in); err != nil {
		return model.SyncResponse{}, err
	}
	ack := l.upsertProduct(in)
	reply := model.SyncResponse{ID: ack.ID, ItemNo: &ack.ItemNo}
	l.replies[key] = reply
	return reply, nil
}

// ImportProducts handles POST /api/products/bulk. The batch is validated as
// a whole before anything is applied.
func (l *Ledger) ImportProducts(in model.ProductBulkPayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(in.Products) == 0 {
		return model.SyncResponse{}, invalidf("products must not be empty")
	}
	for i, p := range in.Products {
		if err := validateProduct(fmt.Sprintf("products[%d].", i), p); err != nil {
			return model.SyncResponse{}, err
		}
	}

	if in.BatchID != "" {
		key := replyKey("products/bulk", in.BatchID)
		if reply, ok := l.replies[key]; ok {
			return reply, nil
		}
		reply := model.SyncResponse{Products: make([]model.ProductAck, 0, len(in.Products))}
		for _, p := range in.Products {
			reply.Products = append(reply.Products, l.upsertProduct(p))
		}
		l.replies[key] = reply
		return reply, nil
	}

	reply := model.SyncResponse{Products: make([]model.ProductAck, 0, len(in.Products))}
	for _, p := range in.Products {
		key := replyKey(model.QueueProducts, p.LocalID)
		if prev, ok := l.replies[key]; ok {
			reply.Products = append(reply.Products, model.ProductAck{LocalID: p.LocalID, ID: prev.ID, ItemNo: *prev.ItemNo})
			continue
		}
		ack := l.upsertProduct(p)
		itemNo := ack.ItemNo
		l.replies[key] = model.SyncResponse{ID: ack.ID, ItemNo: &itemNo}
		reply.Products = append(reply.Products, ack)
	}
	return reply, nil
}

// UpdatePricing handles PUT /api/products/{id}.
func (l *Ledger) UpdatePricing(id string, in model.PricingPayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.product(id)
	if !ok {
		return model.SyncResponse{}, notFoundf("product %q", id)
	}
	if p.Deleted {
		return model.SyncResponse{}, conflictf("product %q is deleted", id)
	}
	if in.Cost.IsNegative() || in.Price.IsNegative() {
		return model.SyncResponse{}, invalidf("cost and price must not be negative")
	}
	p.Cost, p.Price = in.Cost, in.Price
	return model.SyncResponse{ID: p.ID}, nil
}

// DeleteProduct handles DELETE /api/products/{id}. Deleting twice is fine.
func (l *Ledger) DeleteProduct(id string) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.product(id)
	if !ok {
		return model.SyncResponse{}, notFoundf("product %q", id)
	}
	p.Deleted = true
	return model.SyncResponse{ID: p.ID}, nil
}

// AddInventory handles POST /api/inventory/addition. The booked quantities
// are echoed back under the product ids the device sent.
func (l *Ledger) AddInventory(in model.AdditionPayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := replyKey(model.QueueInventoryAdditions, in.LocalID)
	if reply, ok := l.replies[key]; ok {
		return reply, nil
	}
	if in.LocalID == "" {
		return model.SyncResponse{}, invalidf("localId is required")
	}
	if len(in.Items) == 0 {
		return model.SyncResponse{}, invalidf("items must not be empty")
	}
	targets := make([]*model.SnapshotProduct, len(in.Items))
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Qty <= 0 {
			return model.SyncResponse{}, invalidf("%s.qty must be positive", field)
		}
		p, err := l.liveProduct(field+".productId", item.ProductID)
		if err != nil {
			return model.SyncResponse{}, err
		}
		targets[i] = p
	}

	reply := model.SyncResponse{ID: l.nextID("ADD"), Items: make([]model.ConfirmedItem, 0, len(in.Items))}
	for i, item := range in.Items {
		targets[i].WarehouseStock += item.Qty
		reply.Items = append(reply.Items, model.ConfirmedItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	l.replies[key] = reply
	return reply, nil
}

// CreateTransfer handles POST /api/transfer. Stock is reserved from the
// warehouse for every line or for none.
func (l *Ledger) CreateTransfer(in model.TransferPayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.transfers[in.LocalID]; ok {
		return t.reply, nil
	}
	if in.LocalID == "" {
		return model.SyncResponse{}, invalidf("localId is required")
	}
	if in.FromStoreID != model.WarehouseID {
		return model.SyncResponse{}, invalidf("fromStoreId: transfers leave from the warehouse")
	}
	to, err := l.shop("toStoreId", in.ToStoreID)
	if err != nil {
		return model.SyncResponse{}, err
	}
	if to.IsWarehouse {
		return model.SyncResponse{}, invalidf("toStoreId: cannot transfer to the warehouse")
	}
	if len(in.Items) == 0 {
		return model.SyncResponse{}, invalidf("items must not be empty")
	}

	t := &transfer{id: l.nextID("TRF"), status: model.TransferPending, to: to.ID}
	reserved := map[string]int64{}
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		p, err := l.liveProduct(field+".productId", item.ProductID)
		if err != nil {
			return model.SyncResponse{}, err
		}
		if _, dup := reserved[p.ID]; dup {
			return model.SyncResponse{}, invalidf("%s: product %q listed twice", field, item.ProductID)
		}
		left, err := stock.Reserve(p.WarehouseStock, item.Qty)
		if errors.Is(err, stock.ErrInsufficientStock) {
			return model.SyncResponse{}, conflictf("%s: %v", field, err)
		}
		if err != nil {
			return model.SyncResponse{}, invalidf("%s: %v", field, err)
		}
		reserved[p.ID] = left
		t.items = append(t.items, model.TransferItem{ProductID: p.ID, ItemName: p.Name, Qty: item.Qty})
	}
	for id, left := range reserved {
		l.products[id].WarehouseStock = left
	}

	t.reply = model.SyncResponse{ID: t.id}
	l.transfers[in.LocalID] = t
	l.transfers[t.id] = t
	return t.reply, nil
}

// ConfirmTransfer handles POST /api/transfer/{id}/confirm.
func (l *Ledger) ConfirmTransfer(id string) (model.SyncResponse, error) {
	return l.finishTransfer(id, model.TransferConfirmed)
}

// CancelTransfer handles POST /api/transfer/{id}/cancel.
func (l *Ledger) CancelTransfer(id string) (model.SyncResponse, error) {
	return l.finishTransfer(id, model.TransferCancelled)
}

func (l *Ledger) finishTransfer(id string, next model.TransferStatus) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.transfers[id]
	if !ok {
		return model.SyncResponse{}, notFoundf("transfer %q", id)
	}
	if t.status == next {
		return t.reply, nil
	}
	if !t.status.CanTransition(next) {
		return model.SyncResponse{}, conflictf("transfer %q is %s", id, t.status)
	}
	for _, item := range t.items {
		if next == model.TransferConfirmed {
			l.inventory[invKey{t.to, item.ProductID}] += item.Qty
		} else {
			l.products[item.ProductID].WarehouseStock += item.Qty
		}
	}
	t.status = next
	return t.reply, nil
}

// RequestChange handles POST /api/inventory/pending-changes.
func (l *Ledger) RequestChange(in model.ChangePayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.changes[in.LocalID]; ok {
		return c.reply, nil
	}
	if in.LocalID == "" {
		return model.SyncResponse{}, invalidf("localId is required")
	}
	if _, err := l.shop("storeId", in.StoreID); err != nil {
		return model.SyncResponse{}, err
	}
	p, err := l.liveProduct("productId", in.ProductID)
	if err != nil {
		return model.SyncResponse{}, err
	}
	if !in.ChangeType.Valid() {
		return model.SyncResponse{}, invalidf("changeType: unknown type %q", in.ChangeType)
	}
	if err := stock.ValidateQty(in.ChangeType, in.Qty); err != nil {
		return model.SyncResponse{}, invalidf("qty: %v", err)
	}

	c := &change{id: l.nextID("CHG"), status: model.ChangePending, payload: in, product: p.ID}
	c.reply = model.SyncResponse{ID: c.id}
	l.changes[in.LocalID] = c
	l.changes[c.id] = c
	return c.reply, nil
}

// ApproveChange handles POST /api/inventory/pending-changes/{id}/approve.
func (l *Ledger) ApproveChange(id string) (model.SyncResponse, error) {
	return l.decide(id, model.ChangeApproved, l.applyChange)
}

// RejectChange handles POST /api/inventory/pending-changes/{id}/reject.
func (l *Ledger) RejectChange(id string) (model.SyncResponse, error) {
	return l.decide(id, model.ChangeRejected, nil)
}

// CompleteReturn handles POST /api/inventory/pending-changes/{id}/complete.
func (l *Ledger) CompleteReturn(id string) (model.SyncResponse, error) {
	return l.decide(id, model.ChangeCompleted, nil)
}

func (l *Ledger) decide(id string, next model.ChangeStatus, apply func(*change) error) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.changes[id]
	if !ok {
		return model.SyncResponse{}, notFoundf("change %q", id)
	}
	if c.status == next {
		return c.reply, nil
	}
	if !c.status.CanTransition(c.payload.ChangeType, next) {
		return model.SyncResponse{}, conflictf("%s change %q is %s", c.payload.ChangeType, id, c.status)
	}
	if apply != nil {
		if err := apply(c); err != nil {
			return model.SyncResponse{}, err
		}
	}
	c.status = next
	return c.reply, nil
}

func (l *Ledger) applyChange(c *change) error {
	p := l.products[c.product]
	if p.Deleted {
		return conflictf("product %q is deleted", p.ID)
	}
	key := invKey{c.payload.StoreID, p.ID}
	current, exists := l.inventory[key]

	out, err := stock.ApplyChange(c.payload.ChangeType, c.payload.Qty, stock.Levels{
		Store: current, Warehouse: p.WarehouseStock, Exists: exists,
	})
	if err != nil {
		return invalidf("qty: %v", err)
	}

	if c.payload.ChangeType == model.ChangeAdjust {
		if c.payload.NewCost != nil {
			p.Cost = *c.payload.NewCost
		}
		if c.payload.NewPrice != nil {
			p.Price = *c.payload.NewPrice
		}
	}
	p.WarehouseStock = out.Warehouse
	switch {
	case out.DeleteRow:
		delete(l.inventory, key)
	case !exists && out.Store == 0:
		// No row and nothing to put in one.
	default:
		l.inventory[key] = out.Store
	}
	return nil
}

// RecordSale handles POST /api/transactions. Store stock is decremented,
// floored at zero, for every line the store holds a row for. Sales of
// products deleted since are still accepted.
func (l *Ledger) RecordSale(in model.SalePayload) (model.SyncResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := replyKey(model.QueueTransactions, in.LocalID)
	if reply, ok := l.replies[key]; ok {
		return reply, nil
	}
	if in.LocalID == "" {
		return model.SyncResponse{}, invalidf("localId is required")
	}
	st, err := l.shop("storeId", in.StoreID)
	if err != nil {
		return model.SyncResponse{}, err
	}
	if st.IsWarehouse {
		return model.SyncResponse{}, invalidf("storeId: the warehouse does not sell")
	}
	if len(in.Items) == 0 {
		return model.SyncResponse{}, invalidf("items must not be empty")
	}

	subtotal := decimal.Zero
	ids := make([]string, len(in.Items))
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.Qty <= 0 {
			return model.SyncResponse{}, invalidf("%s.qty must be positive", field)
		}
		p, ok := l.product(item.ProductID)
		if !ok {
			return model.SyncResponse{}, invalidf("%s.productId: unknown product %q", field, item.ProductID)
		}
		ids[i] = p.ID
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(item.Qty)))
	}
	if !subtotal.Equal(in.Subtotal) {
		return model.SyncResponse{}, invalidf("subtotal %s does not match items (%s)", in.Subtotal, subtotal)
	}
	if l.taxRate != nil {
		if want := subtotal.Mul(*l.taxRate).Round(2); !want.Equal(in.Tax) {
			return model.SyncResponse{}, invalidf("tax %s, expected %s", in.Tax, want)
		}
	}
	if !in.Subtotal.Add(in.Tax).Equal(in.Total) {
		return model.SyncResponse{}, invalidf("total %s is not subtotal plus tax", in.Total)
	}

	for i, item := range in.Items {
		k := invKey{in.StoreID, ids[i]}
		current, ok := l.inventory[k]
		if !ok {
			continue
		}
		l.inventory[k], _ = stock.Decrement(current, item.Qty)
	}

	reply := model.SyncResponse{ID: l.nextID("TXN")}
	l.replies[key] = reply
	return reply, nil
}

// Snapshot returns the current state, ordered for stable output.
func (l *Ledger) Snapshot() model.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := model.Snapshot{
		Stores:    make([]model.Store, 0, len(l.stores)),
		Products:  make([]model.SnapshotProduct, 0, len(l.products)),
		Inventory: make([]model.SnapshotInventory, 0, len(l.inventory)),
	}
	for _, st := range l.stores {
		snap.Stores = append(snap.Stores, st)
	}
	for _, p := range l.products {
		snap.Products = append(snap.Products, *p)
	}
	for k, qty := range l.inventory {
		snap.Inventory = append(snap.Inventory, model.SnapshotInventory{StoreID: k.store, ProductID: k.product, Stock: qty})
	}
	sort.Slice(snap.Stores, func(i, j int) bool { return snap.Stores[i].ID < snap.Stores[j].ID })
	sort.Slice(snap.Products, func(i, j int) bool { return snap.Products[i].ItemNo < snap.Products[j].ItemNo })
	sort.Slice(snap.Inventory, func(i, j int) bool {
		a, b := snap.Inventory[i], snap.Inventory[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		return a.ProductID < b.ProductID
	})
	return snap
}
