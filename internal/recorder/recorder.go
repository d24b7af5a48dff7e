// Package recorder is the device's write path. Each operation validates its
// input, then applies the entity changes and appends exactly one sync queue
// entry inside a single local transaction.
//
// Operations never touch the network and never depend on connectivity. Every
// call names its store explicitly; there is no ambient "current store".
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/canonical"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// DefaultTaxRate is the sales tax applied to every sale (12.5%).
var DefaultTaxRate = decimal.RequireFromString("0.125")

// Recorder records user actions into the local store.
type Recorder struct {
	st       *store.Store
	clock    Clock
	ids      IDGenerator
	taxRate  decimal.Decimal
	deviceID string
	log      *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithClock(c Clock) Option { return func(r *Recorder) { r.clock = c } }

func WithIDs(g IDGenerator) Option { return func(r *Recorder) { r.ids = g } }

func WithTaxRate(rate decimal.Decimal) Option { return func(r *Recorder) { r.taxRate = rate } }

// WithDeviceID sets the device id mixed into idempotency keys.
func WithDeviceID(id string) Option { return func(r *Recorder) { r.deviceID = id } }

func WithLogger(log *zap.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a Recorder over st.
func New(st *store.Store, opts ...Option) *Recorder {
	r := &Recorder{
		st:      st,
		clock:   systemClock{},
		ids:     UUIDv7Generator{},
		taxRate: DefaultTaxRate,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// commit runs fn in one transaction. Validation errors raised inside fn are
// returned as is; anything else is a storage failure.
func (r *Recorder) commit(ctx context.Context, op string, fn func(*store.Tx) error) error {
	err := r.st.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	if IsValidation(err) {
		return err
	}
	r.log.Error("local write failed", zap.String("op", op), zap.Error(err))
	return &StorageError{Op: op, Err: err}
}

// enqueue appends the queue entry that carries a mutation to the server.
func (r *Recorder) enqueue(ctx context.Context, tx *store.Tx, table, action, recordID string, payload any, at time.Time) error {
	body, err := canonical.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s/%s payload: %w", table, action, err)
	}
	entryID := r.ids.NewID()
	key, err := canonical.IdempotencyKey(r.deviceID, entryID, table, action, body)
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, model.QueueEntry{
		ID:             entryID,
		Table:          table,
		Action:         action,
		RecordID:       recordID,
		Payload:        string(body),
		IdempotencyKey: key,
		EnqueuedAt:     at,
		Status:         model.QueueQueued,
	})
}

// shop resolves a store id that must name a shop, not the warehouse.
func shop(ctx context.Context, tx *store.Tx, field, id string) (model.Store, error) {
	if id == "" {
		return model.Store{}, invalidf(field, ErrUnknownStore, "store is required")
	}
	st, err := tx.Store(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return st, invalidf(field, ErrUnknownStore, "unknown store %q", id)
	}
	if err != nil {
		return st, err
	}
	if st.IsWarehouse {
		return st, invalidf(field, ErrUnknownStore, "%q is the warehouse, not a shop", id)
	}
	return st, nil
}

// liveProduct resolves a product that has not been deleted.
func liveProduct(ctx context.Context, tx *store.Tx, field, id string) (model.Product, error) {
	p, err := tx.Product(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.Deleted) {
		return p, invalidf(field, ErrUnknownProduct, "unknown product %q", id)
	}
	return p, err
}

// setWarehouse writes a product's new warehouse level and its audit row.
func (r *Recorder) setWarehouse(ctx context.Context, tx *store.Tx, p *model.Product, next int64, kind, refTable, refID string, at time.Time) error {
	if next == p.WarehouseStock {
		return nil
	}
	if next < 0 {
		return fmt.Errorf("warehouse stock of %s would go negative", p.ID)
	}
	before := p.WarehouseStock
	p.WarehouseStock = next
	p.UpdatedAt = at
	if err := tx.UpdateProduct(ctx, *p); err != nil {
		return err
	}
	return r.movement(ctx, tx, model.WarehouseID, p.ID, kind, before, next, refTable, refID, at)
}

// setShopStock writes a store's new level for a product and its audit row.
// A missing row is created.
func (r *Recorder) setShopStock(ctx context.Context, tx *store.Tx, row model.InventoryRow, found bool, next int64, kind, refTable, refID string, at time.Time) error {
	if found && next == row.Stock {
		return nil
	}
	if next < 0 {
		return fmt.Errorf("stock of %s in %s would go negative", row.ProductID, row.StoreID)
	}
	before := row.Stock
	if !found {
		row.ID = r.ids.NewID()
		before = 0
	}
	row.Stock = next
	row.UpdatedAt = at
	if err := tx.SetInventory(ctx, row); err != nil {
		return err
	}
	return r.movement(ctx, tx, row.StoreID, row.ProductID, kind, before, next, refTable, refID, at)
}

func (r *Recorder) movement(ctx context.Context, tx *store.Tx, storeID, productID, kind string, before, after int64, refTable, refID string, at time.Time) error {
	if before == after {
		return nil
	}
	return tx.InsertMovement(ctx, model.StockMovement{
		ID:        r.ids.NewID(),
		StoreID:   storeID,
		ProductID: productID,
		Kind:      kind,
		Delta:     after - before,
		BeforeQty: before,
		AfterQty:  after,
		RefTable:  refTable,
		RefID:     refID,
		CreatedAt: at,
	})
}

func checkMoney(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return invalidf(field, ErrInvalidValue, "must not be negative")
	}
	return nil
}
