// Package bus defines the narrow interface the commit coordinator flushes
// notifications through, plus the adapters shipped with the core: an
// in-memory publisher for tests and a Kafka-backed publisher for
// deployments. The transport's own delivery semantics are the
// collaborator's business; this core only guarantees that nothing is
// published before the originating transaction durably commits.
package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is one outbound notification. Kind tags the event
// ("change_set.applied", "schema.create"); Key groups related events for
// partitioning; Payload is JSON-serializable event data.
type Envelope struct {
	Kind    string          `json:"kind"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher delivers committed envelopes to the outside world.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// MemoryPublisher records published envelopes in order. Used by tests and
// as the default when no broker is configured.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Envelope
}

// NewMemoryPublisher returns an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the envelope to the in-memory record.
func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env)
	return nil
}

// Published returns a copy of everything published so far, in order.
func (p *MemoryPublisher) Published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.published))
	copy(out, p.published)
	return out
}

// Close is a no-op for the in-memory publisher.
func (p *MemoryPublisher) Close() error { return nil }
