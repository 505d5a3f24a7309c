package entitydef

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinKinds(t *testing.T) {
	reg := Builtin()

	tests := []struct {
		kind        string
		table       string
		uniqueNames bool
	}{
		{"schema", "schemas", true},
		{"component", "components", false},
		{"prop", "props", false},
		{"func", "funcs", true},
		{"workflow", "workflows", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			def, ok := reg.Def(tt.kind)
			require.True(t, ok)
			assert.Equal(t, tt.table, def.Table)
			assert.Equal(t, tt.uniqueNames, def.UniqueNames)
			assert.NotEmpty(t, def.Label)
		})
	}

	_, ok := reg.Def("nope")
	assert.False(t, ok)
}

func TestBuiltinRelations(t *testing.T) {
	reg := Builtin()

	rel, ok := reg.Relation("component_schema")
	require.True(t, ok)
	assert.Equal(t, "component", rel.ParentKind)
	assert.Equal(t, "schema", rel.ChildKind)
	assert.Nil(t, rel.Validate)

	rel, ok = reg.Relation("prop_parent")
	require.True(t, ok)
	require.NotNil(t, rel.Validate)
}

func TestContainerParentRule(t *testing.T) {
	reg := Builtin()
	rel, ok := reg.Relation("prop_parent")
	require.True(t, ok)

	tests := []struct {
		name    string
		parent  string
		wantErr bool
	}{
		{"object parent", `{"kind":"object"}`, false},
		{"array parent", `{"kind":"array"}`, false},
		{"map parent", `{"kind":"map"}`, false},
		{"string parent", `{"kind":"string"}`, true},
		{"missing kind", `{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rel.Validate([]byte(tt.parent), []byte(`{"kind":"string"}`))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPayloads(t *testing.T) {
	reg := Builtin()

	payload, ok := reg.DefaultPayload("prop", "")
	require.True(t, ok)
	assert.JSONEq(t, `{"kind":"string"}`, string(payload))

	payload, ok = reg.DefaultPayload("func", "")
	require.True(t, ok)
	assert.Contains(t, string(payload), "jsAttribute")

	payload, ok = reg.DefaultPayload("func", "jsWorkflow")
	require.True(t, ok)
	assert.Contains(t, string(payload), "jsWorkflow")

	_, ok = reg.DefaultPayload("schema", "")
	assert.False(t, ok)
}

func TestLoadRejectsInvalidDocs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing table", "kinds:\n  - kind: widget\n    label: Widget\n"},
		{"unknown rule", `
kinds:
  - kind: widget
    table: widgets
    label: Widget
relations:
  - kind: widget_widget
    table: widget_widgets
    parent_kind: widget
    child_kind: widget
    rule: no_such_rule
`},
		{"duplicate kind", `
kinds:
  - kind: widget
    table: widgets
    label: Widget
  - kind: widget
    table: widgets2
    label: Widget
`},
		{"relation to unknown kind", `
kinds:
  - kind: widget
    table: widgets
    label: Widget
relations:
  - kind: widget_gadget
    table: widget_gadgets
    parent_kind: widget
    child_kind: gadget
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestLoadCustomRegistry(t *testing.T) {
	doc := `
kinds:
  - kind: widget
    table: widgets
    label: Widget
    unique_names: true
defaults:
  - kind: widget
    payload:
      size: 1
`
	reg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	def, ok := reg.Def("widget")
	require.True(t, ok)
	assert.True(t, def.UniqueNames)

	payload, ok := reg.DefaultPayload("widget", "")
	require.True(t, ok)
	assert.JSONEq(t, `{"size":1}`, string(payload))
}
