package actor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	assert.Equal(t, "system", System.String())
	assert.Equal(t, "user:alice", User("alice").String())
}

func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		act  Actor
		want string
	}{
		{"system", System, `"system"`},
		{"user", User("alice"), `"user:alice"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.act.JSON()
			assert.Equal(t, tt.want, string(b))

			var back Actor
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.act, back)
		})
	}
}

func TestUnmarshalTextRejectsMalformed(t *testing.T) {
	var a Actor
	err := json.Unmarshal([]byte(`"admin:alice"`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin:alice")
}
