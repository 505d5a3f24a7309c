// Package model implements the versioned record store: the single generic
// create/read/update/soft-delete engine every domain entity kind is built
// from. One implementation, parameterized by the entity-kind registry,
// replaces per-entity CRUD duplication.
//
// Rows are never mutated in place. Every write inserts a new version
// carrying the same logical id; every read filters through the caller's
// tenancy scope and then resolves the visibility overlay (edit session
// over change set over head). Ties within a tier go to the highest
// surrogate key: last write wins, by design, for concurrent edit sessions
// inside one change set.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandalwing/si/internal/canonical"
	"github.com/sandalwing/si/internal/entitydef"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/visibility"
)

// Row is the physical storage unit for one version of one object.
type Row struct {
	Pk            int64           `json:"pk"`
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Tenancy       tenancy.Tenancy `json:"tenancy"`
	ChangeSetPk   int64           `json:"change_set_pk"`
	EditSessionPk int64           `json:"edit_session_pk"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
	Name          string          `json:"name,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	BaseHeadHash  string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Deleted reports whether this version is a tombstone.
func (r Row) Deleted() bool { return r.DeletedAt != nil }

// Visibility returns the persisted visibility triple of this version.
func (r Row) Visibility() visibility.Visibility {
	return visibility.Visibility{ChangeSetPk: r.ChangeSetPk, EditSessionPk: r.EditSessionPk}
}

func (r Row) snapshot() json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		// Row contains only marshalable fields.
		panic(err)
	}
	return b
}

// ContentHash computes the content identity of a row version: name,
// canonical payload and tombstone state. Two versions with equal content
// hashes are indistinguishable to readers. The apply conflict check
// compares head's current hash against the hash recorded when a change
// set first drafted the object.
func ContentHash(name string, payload json.RawMessage, deleted bool) (string, error) {
	c, err := canonical.Marshal(map[string]any{
		"name":    name,
		"deleted": deleted,
	})
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	normalized, err := canonical.Normalize(payload)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	// Payload is appended as pre-normalized bytes to avoid re-encoding
	// the full document into the envelope object.
	data := make([]byte, 0, len(c)+len(normalized)+1)
	data = append(data, c...)
	data = append(data, 0x00)
	data = append(data, normalized...)
	return canonical.HashWithDomain(canonical.DomainRow, data), nil
}

func rowContentHash(r Row) (string, error) {
	return ContentHash(r.Name, r.Payload, r.Deleted())
}

// Engine is the generic record store, instantiated once per database and
// shared by all entity kinds. Safe for concurrent use: it holds no
// mutable state, only configuration.
type Engine struct {
	reg *entitydef.Registry
	ids IDGenerator
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides logical id generation. Tests use a
// FixedGenerator for deterministic ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine over the given registry.
func NewEngine(reg *entitydef.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg: reg,
		ids: UUIDv7Generator{},
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the entity-kind registry the engine runs against.
func (e *Engine) Registry() *entitydef.Registry { return e.reg }

// NewID issues a fresh logical id from the engine's generator.
func (e *Engine) NewID() string { return e.ids.Generate() }

// Now returns the engine's current time, millisecond truncated.
func (e *Engine) Now() time.Time { return e.now() }

// Kind returns the per-kind store view. The view is a thin handle; all
// kinds share the one generic implementation.
func (e *Engine) Kind(kind string) (*Store, error) {
	def, ok := e.reg.Def(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return &Store{eng: e, def: def}, nil
}

// MustKind is Kind for statically known kinds.
func (e *Engine) MustKind(kind string) *Store {
	s, err := e.Kind(kind)
	if err != nil {
		panic(err)
	}
	return s
}

// Store is the record store scoped to one entity kind.
type Store struct {
	eng *Engine
	def entitydef.Def
}

// Def returns the entity kind definition this store is bound to.
func (s *Store) Def() entitydef.Def { return s.def }
