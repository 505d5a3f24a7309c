package entitydef

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/sandalwing/si/internal/canonical"
)

//go:embed entitydef.cue defs.yaml
var embedded embed.FS

// rule names that relations may reference from definition files.
const ruleContainerParent = "container_parent"

// Prop payload kinds that may own child props.
var containerPropKinds = map[string]bool{
	"object": true,
	"array":  true,
	"map":    true,
}

type kindDoc struct {
	Kind        string `yaml:"kind"`
	Table       string `yaml:"table"`
	Label       string `yaml:"label"`
	UniqueNames bool   `yaml:"unique_names"`
}

type relationDoc struct {
	Kind       string `yaml:"kind"`
	Table      string `yaml:"table"`
	ParentKind string `yaml:"parent_kind"`
	ChildKind  string `yaml:"child_kind"`
	Rule       string `yaml:"rule"`
}

type defaultDoc struct {
	Kind    string         `yaml:"kind"`
	Variant string         `yaml:"variant"`
	Payload map[string]any `yaml:"payload"`
}

type defsDoc struct {
	Kinds     []kindDoc     `yaml:"kinds"`
	Relations []relationDoc `yaml:"relations"`
	Defaults  []defaultDoc  `yaml:"defaults"`
}

// Builtin returns the registry built from the embedded definitions.
// Panics on error: the embedded file is validated by tests, so a failure
// here is a build defect, not a runtime condition.
func Builtin() *Registry {
	data, err := embedded.ReadFile("defs.yaml")
	if err != nil {
		panic(fmt.Sprintf("entitydef: read embedded defs: %v", err))
	}
	reg, err := Load(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("entitydef: embedded defs invalid: %v", err))
	}
	return reg
}

// LoadFile reads and validates a definitions file from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads YAML definitions, validates them against the embedded CUE
// schema, and builds a registry.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	var doc defsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	if len(doc.Kinds) == 0 {
		return nil, fmt.Errorf("definitions declare no entity kinds")
	}

	reg := newRegistry()
	for _, k := range doc.Kinds {
		if err := reg.addDef(Def{
			Kind:        k.Kind,
			Table:       k.Table,
			Label:       k.Label,
			UniqueNames: k.UniqueNames,
		}); err != nil {
			return nil, err
		}
	}
	for _, rel := range doc.Relations {
		validate, err := ruleValidator(rel.Rule)
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", rel.Kind, err)
		}
		if err := reg.addRelation(Relation{
			Kind:       rel.Kind,
			Table:      rel.Table,
			ParentKind: rel.ParentKind,
			ChildKind:  rel.ChildKind,
			Validate:   validate,
		}); err != nil {
			return nil, err
		}
	}
	for _, d := range doc.Defaults {
		if _, ok := reg.defs[d.Kind]; !ok {
			return nil, fmt.Errorf("default payload for unknown kind %q", d.Kind)
		}
		raw, err := json.Marshal(d.Payload)
		if err != nil {
			return nil, fmt.Errorf("default payload for %q: %w", d.Kind, err)
		}
		normalized, err := canonical.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("default payload for %q: %w", d.Kind, err)
		}
		key := d.Kind
		if d.Variant != "" {
			key = d.Kind + "/" + d.Variant
		}
		if _, dup := reg.defaults[key]; dup {
			return nil, fmt.Errorf("duplicate default payload %q", key)
		}
		reg.defaults[key] = normalized
	}

	return reg, nil
}

// validateAgainstSchema unifies the decoded YAML with the embedded CUE
// schema and reports structural violations before any Go-side decoding
// relies on the shape.
func validateAgainstSchema(data []byte) error {
	schemaSrc, err := embedded.ReadFile("entitydef.cue")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode definitions: %w", err)
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileBytes(schemaSrc)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile entitydef schema: %w", err)
	}

	value := cuectx.Encode(generic)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode definitions: %w", err)
	}

	if err := schema.Unify(value).Validate(); err != nil {
		return fmt.Errorf("definitions do not match schema: %w", err)
	}
	return nil
}

// ruleValidator maps a rule name from a definition file to its validator.
func ruleValidator(rule string) (ValidateFunc, error) {
	switch rule {
	case "":
		return nil, nil
	case ruleContainerParent:
		return validateContainerParent, nil
	default:
		return nil, fmt.Errorf("unknown relation rule %q", rule)
	}
}

// validateContainerParent enforces that the parent prop of a prop_parent
// relation is a container kind. A leaf prop (string, number, boolean)
// cannot own children.
func validateContainerParent(parentPayload, _ json.RawMessage) error {
	var parent struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(parentPayload, &parent); err != nil {
		return fmt.Errorf("decode parent payload: %w", err)
	}
	if !containerPropKinds[parent.Kind] {
		return fmt.Errorf("parent prop kind %q is not a container", parent.Kind)
	}
	return nil
}
