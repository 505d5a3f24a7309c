package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, "null"},
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", int64(42), "42"},
		{"negative int", int64(-100), "-100"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{int64(1), int64(2), int64(3)}, "[1,2,3]"},
		{"simple object", map[string]any{"a": int64(1)}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": int64(1),
		"alpha": int64(2),
		"beta":  int64(3),
	}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00 in UTF-16, which
	// sorts before U+FB33; a byte-wise UTF-8 comparison would order them
	// the other way around.
	obj := map[string]any{
		"דּ":     int64(1),
		"\U0001F600": int64(2),
	}
	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"דּ\":1}", string(result))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	result, err := Marshal("<a> & </a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a> & </a>"`, string(result))
}

func TestNormalizeReordersKeys(t *testing.T) {
	out, err := Normalize([]byte(`{"b": 2, "a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize([]byte(`{"z":[1,2,{"b":true,"a":null}],"a":"x"}`))
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestNormalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Normalize([]byte(`{"a":`))
	require.Error(t, err)
}

func TestHashPayloadIgnoresKeyOrder(t *testing.T) {
	h1, err := HashPayload([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	h2, err := HashPayload([]byte(`{"b": 2, "a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, HashWithDomain(DomainRow, data), HashWithDomain(DomainRelation, data))
}

func TestHashWithDomainStable(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.Equal(t, HashWithDomain(DomainRow, data), HashWithDomain(DomainRow, data))
	assert.Len(t, HashWithDomain(DomainRow, data), 64)
}
