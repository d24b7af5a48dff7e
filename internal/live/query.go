package live

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// Query is a named read over the local store. Tables are the SQL tables the
// result depends on.
type Query[T any] struct {
	Name   string
	Tables []string
	Run    func(ctx context.Context, st *store.Store) (T, error)
}

// Subscription delivers a query's results as the store changes.
type Subscription[T any] struct {
	hub *Hub
	q   Query[T]
	id  int64
	ctx context.Context

	mu      sync.Mutex
	current T
	err     error
	version int64
	updates chan T
	closed  bool
	done    chan struct{}
}

// Watch evaluates q and subscribes to changes of its tables. The first
// result is available from Current and as the first value on Updates.
//
// The subscription ends when ctx is cancelled or Close is called.
func Watch[T any](ctx context.Context, hub *Hub, q Query[T]) (*Subscription[T], error) {
	if q.Run == nil {
		return nil, fmt.Errorf("live query %q has no Run function", q.Name)
	}
	s := &Subscription[T]{
		hub:     hub,
		q:       q,
		ctx:     context.WithoutCancel(ctx),
		updates: make(chan T, 1),
		done:    make(chan struct{}),
	}

	// Register before the first evaluation so a commit landing in between
	// is not lost; it waits on s.mu and re-evaluates afterwards.
	s.mu.Lock()
	s.id = hub.add(s)
	first, err := q.Run(ctx, hub.st)
	if err != nil {
		s.closed = true
		s.mu.Unlock()
		hub.remove(s.id)
		return nil, fmt.Errorf("live query %s: %w", q.Name, err)
	}
	s.current, s.version = first, 1
	s.updates <- first
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Subscription[T]) dependsOn(tables []string) bool {
	for _, t := range tables {
		if slices.Contains(s.q.Tables, t) {
			return true
		}
	}
	return false
}

func (s *Subscription[T]) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	v, err := s.q.Run(s.ctx, s.hub.st)
	if err != nil {
		// Keep serving the last good value.
		s.err = err
		s.hub.log.Warn("live query failed", zap.String("query", s.q.Name), zap.Error(err))
		return
	}
	s.current, s.err = v, nil
	s.version++

	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}

// Updates returns the channel of results. It holds at most one value, the
// newest, and is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T { return s.updates }

// Current returns the latest result.
func (s *Subscription[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the error of the last re-evaluation, or nil if it succeeded.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Version counts successful evaluations, starting at 1.
func (s *Subscription[T]) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Name returns the query name.
func (s *Subscription[T]) Name() string { return s.q.Name }

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	close(s.done)
	s.mu.Unlock()

	s.hub.remove(s.id)
}
