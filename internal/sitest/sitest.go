// Package sitest provides shared test fixtures: a temp SQLite database
// with the schema applied, a commit coordinator with an in-memory
// publisher, and deterministic ids and time so tests produce stable
// output.
package sitest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/changeset"
	"github.com/sandalwing/si/internal/entitydef"
	"github.com/sandalwing/si/internal/model"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/unitwork"
)

// Epoch is the fixed start time fixtures tick from.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a deterministic time source. Every call to Now returns the
// current instant and advances it by one millisecond, so consecutive
// writes get distinct, ordered timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(time.Millisecond)
	return now
}

// Fixture bundles everything a storage-backed test needs.
type Fixture struct {
	DB      *storage.DB
	Pub     *bus.MemoryPublisher
	Coord   *unitwork.Coordinator
	Engine  *model.Engine
	Manager *changeset.Manager
	Clock   *Clock
}

type options struct {
	reg *entitydef.Registry
	ids model.IDGenerator
}

// Option adjusts fixture construction.
type Option func(*options)

// WithRegistry replaces the builtin entity-kind registry.
func WithRegistry(reg *entitydef.Registry) Option {
	return func(o *options) { o.reg = reg }
}

// WithIDs replaces the default sequence generator, typically with a
// FixedGenerator for golden tests.
func WithIDs(g model.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// New opens a temp SQLite database, applies the schema for the registry,
// and wires an engine, lifecycle manager and commit coordinator over it.
// Everything is cleaned up with the test.
func New(t *testing.T, opts ...Option) *Fixture {
	t.Helper()
	o := options{
		reg: entitydef.Builtin(),
		ids: model.NewSequenceGenerator("obj"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "si.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.EnsureSchema(context.Background(), db, o.reg))

	clock := NewClock(Epoch)
	eng := model.NewEngine(o.reg,
		model.WithIDGenerator(o.ids),
		model.WithClock(clock.Now),
	)
	pub := &bus.MemoryPublisher{}
	return &Fixture{
		DB:      db,
		Pub:     pub,
		Coord:   unitwork.NewCoordinator(db, pub, zap.NewNop(), unitwork.WithClock(clock.Now)),
		Engine:  eng,
		Manager: changeset.NewManager(eng),
		Clock:   clock,
	}
}

// Run executes fn inside a unit of work and requires it to commit.
func (f *Fixture) Run(t *testing.T, fn func(w *unitwork.Work) error) {
	t.Helper()
	require.NoError(t, f.Coord.Run(context.Background(), fn))
}

// Read executes fn inside a unit of work that is always rolled back.
// For read-only assertions against committed state.
func (f *Fixture) Read(t *testing.T, fn func(w *unitwork.Work)) {
	t.Helper()
	w, err := f.Coord.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = w.Rollback() }()
	fn(w)
}
