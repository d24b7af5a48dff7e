// Package store is the device's local database: an embedded SQLite file
// holding mirrored copies of server entities plus the sync queue.
//
// # Atomic writes
//
// Every write goes through WithTx. A user action writes its entity rows and
// exactly one sync_queue row inside the same transaction, so the queue is a
// complete log of what the server has not seen yet. After commit, listeners
// registered with OnCommit receive the set of tables the transaction wrote;
// the live query layer uses this to re-evaluate subscribers.
//
// # Identity
//
// Rows are keyed by client-generated ids. Server-assigned identity lives in
// the nullable canonical_id column and is filled in by reconciliation.
//
// # Non-negative stock
//
// inventory.stock and products.warehouse_stock carry CHECK (>= 0)
// constraints. Callers clamp before writing; the constraint is the backstop.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one connection: a single writer per device
package store
