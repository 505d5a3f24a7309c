// Package entitydef holds the configuration the generic record store is
// instantiated from: the set of entity kinds with their table mappings,
// the relation kinds with their structural rules, and the injected default
// payloads used when a caller creates an object without one.
//
// Definitions are authored in YAML and validated against an embedded CUE
// schema before the registry accepts them. The built-in definitions cover
// the core domain kinds (schema, component, prop, func, workflow).
package entitydef

import (
	"encoding/json"
	"fmt"
)

// Def describes one entity kind backed by one table with the standard
// column layout.
type Def struct {
	// Kind is the registry key, e.g. "schema".
	Kind string

	// Table is the backing table name, e.g. "schemas".
	Table string

	// Label is the human form used in history messages, e.g. "Schema".
	Label string

	// UniqueNames enforces, at create time, that no other live object of
	// this kind resolves with the same name under the same tenancy and
	// visibility.
	UniqueNames bool
}

// ValidateFunc checks a structural invariant of a relation kind against
// the resolved parent and child payloads.
type ValidateFunc func(parentPayload, childPayload json.RawMessage) error

// Relation describes one relation kind backed by one join table.
type Relation struct {
	Kind       string
	Table      string
	ParentKind string
	ChildKind  string

	// Validate is nil when the relation has no structural rule beyond
	// kind matching.
	Validate ValidateFunc
}

// Registry is the immutable set of definitions the store engine runs
// against. Iteration order is the declaration order of the source file,
// which keeps schema bootstrap and apply promotion deterministic.
type Registry struct {
	defs     map[string]Def
	defOrder []string

	rels     map[string]Relation
	relOrder []string

	// defaults are keyed by "kind" or "kind/variant".
	defaults map[string]json.RawMessage
}

// Def returns the definition for an entity kind.
func (r *Registry) Def(kind string) (Def, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// Defs returns all entity kind definitions in declaration order.
func (r *Registry) Defs() []Def {
	out := make([]Def, 0, len(r.defOrder))
	for _, k := range r.defOrder {
		out = append(out, r.defs[k])
	}
	return out
}

// Relation returns the definition for a relation kind.
func (r *Registry) Relation(kind string) (Relation, bool) {
	rel, ok := r.rels[kind]
	return rel, ok
}

// Relations returns all relation kind definitions in declaration order.
func (r *Registry) Relations() []Relation {
	out := make([]Relation, 0, len(r.relOrder))
	for _, k := range r.relOrder {
		out = append(out, r.rels[k])
	}
	return out
}

// DefaultPayload returns the injected default payload for a kind, or for a
// kind variant when variant is non-empty. The bytes are canonical JSON and
// must not be mutated by callers.
func (r *Registry) DefaultPayload(kind, variant string) (json.RawMessage, bool) {
	key := kind
	if variant != "" {
		key = kind + "/" + variant
	}
	p, ok := r.defaults[key]
	return p, ok
}

func (r *Registry) addDef(d Def) error {
	if _, dup := r.defs[d.Kind]; dup {
		return fmt.Errorf("duplicate entity kind %q", d.Kind)
	}
	r.defs[d.Kind] = d
	r.defOrder = append(r.defOrder, d.Kind)
	return nil
}

func (r *Registry) addRelation(rel Relation) error {
	if _, dup := r.rels[rel.Kind]; dup {
		return fmt.Errorf("duplicate relation kind %q", rel.Kind)
	}
	if _, ok := r.defs[rel.ParentKind]; !ok {
		return fmt.Errorf("relation %q: unknown parent kind %q", rel.Kind, rel.ParentKind)
	}
	if _, ok := r.defs[rel.ChildKind]; !ok {
		return fmt.Errorf("relation %q: unknown child kind %q", rel.Kind, rel.ChildKind)
	}
	r.rels[rel.Kind] = rel
	r.relOrder = append(r.relOrder, rel.Kind)
	return nil
}

func newRegistry() *Registry {
	return &Registry{
		defs:     map[string]Def{},
		rels:     map[string]Relation{},
		defaults: map[string]json.RawMessage{},
	}
}
