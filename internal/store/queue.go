package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

const queueColumns = `seq, id, table_name, action, record_id, payload, idempotency_key,
	enqueued_at, attempts, last_error, status`

// QueueEntries returns every queue entry in drain order (oldest first),
// including entries held for attention.
func (s *Store) QueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	entries := []model.QueueEntry{}
	err := sqlx.SelectContext(ctx, s.db, &entries,
		`SELECT `+queueColumns+` FROM sync_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	return entries, nil
}

// QueueEntry returns one entry by id.
func (s *Store) QueueEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	return getQueueEntry(ctx, s.db, id)
}

// QueueCount returns the number of unsynced entries, including those held
// for attention.
func (s *Store) QueueCount(ctx context.Context) (int64, error) {
	return queueCount(ctx, s.db)
}

// AttentionCount returns the number of entries the server rejected.
func (s *Store) AttentionCount(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, s.db, &n,
		`SELECT COUNT(*) FROM sync_queue WHERE status = ?`, model.QueueAttention)
	if err != nil {
		return 0, fmt.Errorf("count attention entries: %w", err)
	}
	return n, nil
}

func getQueueEntry(ctx context.Context, q sqlx.QueryerContext, id string) (model.QueueEntry, error) {
	var e model.QueueEntry
	err := sqlx.GetContext(ctx, q, &e, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return e, notFound(err, "queue entry", id)
	}
	return e, nil
}

func queueCount(ctx context.Context, q sqlx.QueryerContext) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM sync_queue`); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}
