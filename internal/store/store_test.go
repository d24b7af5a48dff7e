package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"stores", "products", "inventory", "transactions", "transaction_items",
		"inventory_additions", "inventory_addition_items", "stock_transfers",
		"stock_transfer_items", "pending_changes", "stock_movements", "sync_queue", "sync_runs",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	seedBasics(t, s)
	products, err := s.Products(t.Context())
	if err != nil {
		t.Fatalf("Products() failed: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("len(products) = %d, want 1", len(products))
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_SyncQueueColumns(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "sync_queue")
	expected := []string{
		"seq", "id", "table_name", "action", "record_id", "payload",
		"idempotency_key", "enqueued_at", "attempts", "last_error", "status",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("sync_queue table missing column %q", col)
		}
	}
}

func TestSchema_CanonicalIDColumns(t *testing.T) {
	s := createTestStore(t)

	for table := range canonicalTables {
		if !contains(getTableColumns(t, s.db, table), "canonical_id") {
			t.Errorf("%s missing canonical_id", table)
		}
	}
}

func TestMigration_QueueStatusIndex(t *testing.T) {
	s := createTestStore(t)

	if !contains(getTableIndexes(t, s.db, "sync_queue"), "idx_sync_queue_status") {
		t.Error("sync_queue missing index idx_sync_queue_status")
	}
}

func TestConstraint_NegativeStockRejected(t *testing.T) {
	s := createTestStore(t)
	seedBasics(t, s)

	_, err := s.db.Exec(`UPDATE products SET warehouse_stock = -1 WHERE id = 'p1'`)
	if err == nil {
		t.Error("expected CHECK constraint violation for negative warehouse stock")
	}

	_, err = s.db.Exec(`
		INSERT INTO inventory (id, store_id, product_id, stock, updated_at)
		VALUES ('i1', 'store-a', 'p1', -3, '2026-03-01 09:00:00')
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for negative store stock")
	}
}

func TestConstraint_UniqueLiveProductName(t *testing.T) {
	s := createTestStore(t)
	seedBasics(t, s)

	_, err := s.db.Exec(`
		INSERT INTO products (id, item_no, name, cost, price, created_at, updated_at)
		VALUES ('p2', 2, 'Soap', '1', '1', '2026-03-01 09:00:00', '2026-03-01 09:00:00')
	`)
	if err == nil {
		t.Fatal("expected unique violation for duplicate live name")
	}

	if _, err := s.db.Exec(`UPDATE products SET deleted = 1 WHERE id = 'p1'`); err != nil {
		t.Fatal(err)
	}
	_, err = s.db.Exec(`
		INSERT INTO products (id, item_no, name, cost, price, created_at, updated_at)
		VALUES ('p2', 2, 'Soap', '1', '1', '2026-03-01 09:00:00', '2026-03-01 09:00:00')
	`)
	if err != nil {
		t.Errorf("name of a deleted product should be reusable: %v", err)
	}
}

func getTableColumns(t *testing.T, db *sqlx.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sqlx.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
