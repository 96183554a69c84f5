package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pawnchain/core/events"
	"pawnchain/storage"
)

// Store runs units of work against a backend. Units are serialized: a unit
// either commits every write it buffered in one atomic batch or leaves the
// backend untouched.
type Store struct {
	db      storage.Database
	mu      sync.Mutex
	emitter events.Emitter
	logger  *slog.Logger
}

// NewStore wraps the backend. Events are discarded until SetEmitter is called.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:      db,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetEmitter configures the receiver of committed events. Passing nil resets
// the emitter to a no-op implementation.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SetLogger overrides the logger used for commit diagnostics.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Update runs fn as one indivisible unit. Any error returned by fn, by a
// BeforeCommit check, by the context or by the backend discards every buffered
// write and event and runs the registered compensations.
//
// fn must not call Update on the same store.
func (s *Store) Update(ctx context.Context, fn func(*Manager) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: store not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := newManager(s.db, false)
	committed := false
	defer func() {
		if committed {
			return
		}
		m.abort()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(m); err != nil {
		return err
	}
	if err := m.runChecks(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Pending() > 0 {
		if err := s.db.Write(m.batch()); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	committed = true
	s.logger.Debug("state unit committed", "writes", m.Pending(), "events", len(m.events))
	for _, evt := range m.events {
		s.emitter.Emit(events.Typed{Evt: evt})
	}
	return nil
}

// View runs fn against committed state. Writes are rejected.
func (s *Store) View(ctx context.Context, fn func(*Manager) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state: store not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(newManager(s.db, true))
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
