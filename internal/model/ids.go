package model

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces logical object ids. Versions of the same object
// share one id; the generator is only consulted at create time.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered UUIDs so that freshly created ids
// sort roughly by creation time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does, which is fatal
		// for id generation anyway.
		panic(fmt.Sprintf("uuid v7: %v", err))
	}
	return id.String()
}

// FixedGenerator issues ids from a fixed list, then panics when
// exhausted. For tests that need stable golden output.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	pos int
}

// NewFixedGenerator returns a generator that yields the given ids in
// order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pos >= len(g.ids) {
		panic(fmt.Sprintf("fixed id generator exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.pos]
	g.pos++
	return id
}

// SequenceGenerator issues "prefix-1", "prefix-2", ... ids. Useful in
// tests that create an unbounded number of objects.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
