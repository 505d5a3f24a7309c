// Package unitwork coordinates one unit of work: a single database
// transaction plus an in-memory buffer of outbound notifications. The
// buffer is flushed to the bus collaborator only after the transaction
// durably commits, which removes the dual-write hazard — the bus never
// hears about data that was never written.
//
// The cost is at-most-once delivery: a crash strictly between commit
// success and flush silently drops the buffered notifications. That gap
// is documented, not closed.
package unitwork

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
)

// Coordinator creates units of work against one database and one
// publisher. Safe for concurrent use; each Work is not.
type Coordinator struct {
	db  *storage.DB
	pub bus.Publisher
	log *zap.Logger
	now func() time.Time
}

// Option adjusts coordinator construction.
type Option func(*Coordinator)

// WithClock replaces the wall clock that stamps writes made through a
// unit of work, such as history events.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires a coordinator. logger may be nil.
func NewCoordinator(db *storage.DB, pub bus.Publisher, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		db:  db,
		pub: pub,
		log: logger,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin opens a transaction and returns the work context every store
// operation in this unit must run through.
func (c *Coordinator) Begin(ctx context.Context) (*Work, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, si.Storage("begin unit of work", err)
	}
	return &Work{coord: c, tx: tx}, nil
}

// Run executes fn inside one unit of work: begin, fn, commit. Any error
// from fn rolls back the transaction and discards buffered notifications.
func (c *Coordinator) Run(ctx context.Context, fn func(w *Work) error) error {
	w, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	defer w.Rollback()

	if err := fn(w); err != nil {
		return err
	}
	return w.Commit(ctx)
}

// Work is one in-flight unit of work. All writes made through its
// transaction and all enqueued notifications share one fate: commit
// publishes both, rollback discards both.
type Work struct {
	coord   *Coordinator
	tx      *sql.Tx
	pending []bus.Envelope
	done    bool
}

// Tx returns the underlying transaction for store operations.
func (w *Work) Tx() *sql.Tx { return w.tx }

// DB returns the database handle, which carries dialect helpers.
func (w *Work) DB() *storage.DB { return w.coord.db }

// Now returns the coordinator's current time.
func (w *Work) Now() time.Time { return w.coord.now() }

// Enqueue buffers an outbound notification. No I/O happens here; the
// envelope is held in memory until Commit succeeds.
func (w *Work) Enqueue(env bus.Envelope) {
	w.pending = append(w.pending, env)
}

// Pending returns how many notifications are buffered. Used by tests and
// instrumentation.
func (w *Work) Pending() int { return len(w.pending) }

// Commit commits the transaction, then flushes buffered notifications in
// enqueue order. A commit failure discards the buffer and returns a
// StorageError; nothing was published. A flush failure after a successful
// commit is logged and reported as a DeliveryError — the data is durable,
// the remaining notifications are dropped, nothing is retried.
func (w *Work) Commit(ctx context.Context) error {
	if w.done {
		return fmt.Errorf("unit of work already finished")
	}
	w.done = true

	if err := w.tx.Commit(); err != nil {
		w.pending = nil
		return si.Storage("commit unit of work", err)
	}

	for i, env := range w.pending {
		if err := w.coord.pub.Publish(ctx, env); err != nil {
			w.coord.log.Error("notification delivery failed after commit",
				zap.String("kind", env.Kind),
				zap.String("key", env.Key),
				zap.Int("delivered", i),
				zap.Int("buffered", len(w.pending)),
				zap.Error(err),
			)
			return &si.DeliveryError{Kind: env.Kind, Delivered: i, Err: err}
		}
	}
	w.pending = nil
	return nil
}

// Rollback discards the transaction and the notification buffer. Safe to
// defer: after a successful Commit it is a no-op.
func (w *Work) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	w.pending = nil
	if err := w.tx.Rollback(); err != nil {
		return si.Storage("rollback unit of work", err)
	}
	return nil
}
