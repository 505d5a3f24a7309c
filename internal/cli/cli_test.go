package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/visibility"
)

func TestRootOptionsScope(t *testing.T) {
	opts := &RootOptions{}
	assert.True(t, opts.Scope().Universal)

	opts.Workspace = "w1"
	scope := opts.Scope()
	assert.False(t, scope.Universal)
	assert.Equal(t, "w1", scope.WorkspaceID)
}

func TestRootOptionsVis(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, visibility.ForHead(), opts.Vis())

	opts.ChangeSet = 7
	assert.Equal(t, visibility.ForChangeSet(7), opts.Vis())

	opts.EditSession = 9
	assert.Equal(t, visibility.ForEditSession(7, 9), opts.Vis())

	opts.IncludeDeleted = true
	assert.True(t, opts.Vis().IncludeDeleted)
}

func TestRootOptionsAct(t *testing.T) {
	opts := &RootOptions{}
	assert.Equal(t, actor.System, opts.Act())

	opts.Actor = "alice"
	assert.Equal(t, actor.User("alice"), opts.Act())
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"not found", fmt.Errorf("widget: %w", si.ErrNotFound), ExitFailure},
		{"conflict", &si.ApplyConflictError{ChangeSetPk: 1}, ExitFailure},
		{"storage", si.Storage("insert", errors.New("disk full")), ExitCommandError},
		{"exit error", &ExitError{Code: ExitCommandError, Message: "bad config"}, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestFormatterJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]string{"id": "obj-1"}))
	assert.Contains(t, buf.String(), `"status": "ok"`)
	assert.Contains(t, buf.String(), `"obj-1"`)

	buf.Reset()
	err := f.Failure(errors.New("boom"))
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"status": "error"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestFormatterText(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success("schema ready"))
	assert.Equal(t, "schema ready\n", buf.String())

	buf.Reset()
	err := f.Failure(errors.New("boom"))
	require.Error(t, err)
	assert.Equal(t, "error: boom\n", buf.String())
}

func TestRootCommandWiring(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"init", "object", "relation", "changeset", "session", "history"} {
		assert.Contains(t, names, want)
	}

	flag := cmd.PersistentFlags().Lookup("change-set")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}
