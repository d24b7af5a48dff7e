package live

import (
	"context"
	"sort"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// Products lists live products by item number.
func Products() Query[[]model.Product] {
	return Query[[]model.Product]{
		Name:   "products",
		Tables: []string{"products"},
		Run: func(ctx context.Context, st *store.Store) ([]model.Product, error) {
			return st.Products(ctx)
		},
	}
}

// Inventory lists a store's stock joined with product details.
func Inventory(storeID string) Query[[]model.InventoryView] {
	return Query[[]model.InventoryView]{
		Name:   "inventory",
		Tables: []string{"inventory", "products"},
		Run: func(ctx context.Context, st *store.Store) ([]model.InventoryView, error) {
			return st.InventoryView(ctx, storeID)
		},
	}
}

// Transactions lists a store's sales, newest first. An empty storeID lists
// every store.
func Transactions(storeID string) Query[[]model.Transaction] {
	return Query[[]model.Transaction]{
		Name:   "transactions",
		Tables: []string{"transactions", "transaction_items"},
		Run: func(ctx context.Context, st *store.Store) ([]model.Transaction, error) {
			return st.Transactions(ctx, storeID)
		},
	}
}

// Transfers lists stock transfers, newest first.
func Transfers() Query[[]model.StockTransfer] {
	return Query[[]model.StockTransfer]{
		Name:   "transfers",
		Tables: []string{"stock_transfers", "stock_transfer_items"},
		Run: func(ctx context.Context, st *store.Store) ([]model.StockTransfer, error) {
			return st.Transfers(ctx)
		},
	}
}

// PendingChanges lists a store's change requests in every status.
func PendingChanges(storeID string) Query[[]model.PendingChange] {
	return Query[[]model.PendingChange]{
		Name:   "pending-changes",
		Tables: []string{"pending_changes"},
		Run: func(ctx context.Context, st *store.Store) ([]model.PendingChange, error) {
			return st.PendingChanges(ctx, storeID, "")
		},
	}
}

// Stores lists the warehouse and the shops.
func Stores() Query[[]model.Store] {
	return Query[[]model.Store]{
		Name:   "stores",
		Tables: []string{"stores"},
		Run: func(ctx context.Context, st *store.Store) ([]model.Store, error) {
			return st.Stores(ctx)
		},
	}
}

// UnsyncedCount counts queue entries the server has not confirmed,
// including those held for attention.
func UnsyncedCount() Query[int64] {
	return Query[int64]{
		Name:   "unsynced",
		Tables: []string{"sync_queue"},
		Run: func(ctx context.Context, st *store.Store) (int64, error) {
			return st.QueueCount(ctx)
		},
	}
}

// erase turns a typed query into one the websocket handler can serve.
func erase[T any](q Query[T]) Query[any] {
	return Query[any]{
		Name:   q.Name,
		Tables: q.Tables,
		Run: func(ctx context.Context, st *store.Store) (any, error) {
			return q.Run(ctx, st)
		},
	}
}

var builtins = map[string]func(storeID string) Query[any]{
	"products":        func(string) Query[any] { return erase(Products()) },
	"inventory":       func(id string) Query[any] { return erase(Inventory(id)) },
	"transactions":    func(id string) Query[any] { return erase(Transactions(id)) },
	"transfers":       func(string) Query[any] { return erase(Transfers()) },
	"pending-changes": func(id string) Query[any] { return erase(PendingChanges(id)) },
	"stores":          func(string) Query[any] { return erase(Stores()) },
	"unsynced":        func(string) Query[any] { return erase(UnsyncedCount()) },
}

// Lookup returns the built-in query with the given name, parameterised by
// storeID where the query takes one.
func Lookup(name, storeID string) (Query[any], bool) {
	build, ok := builtins[name]
	if !ok {
		return Query[any]{}, false
	}
	return build(storeID), true
}

// Names returns the built-in query names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
