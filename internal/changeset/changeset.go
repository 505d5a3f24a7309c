// Package changeset implements the branching lifecycle on top of the
// record store: change sets group draft versions away from head, edit
// sessions group uncommitted work inside a change set, and apply merges
// a change set's content back to head or rejects it on conflict.
package changeset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandalwing/si/internal/model"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

// Status is the lifecycle state of a change set. Open accepts writes and
// is the only state that can transition; Applied and Abandoned are
// terminal.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusApplied   Status = "Applied"
	StatusAbandoned Status = "Abandoned"
)

// SessionStatus is the lifecycle state of an edit session. Saved content
// becomes part of the change set; Canceled content is orphaned forever.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "Open"
	SessionSaved    SessionStatus = "Saved"
	SessionCanceled SessionStatus = "Canceled"
)

// ChangeSet is a named branch of draft versions.
type ChangeSet struct {
	Pk         int64           `json:"pk"`
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Note       string          `json:"note,omitempty"`
	Status     Status          `json:"status"`
	Tenancy    tenancy.Tenancy `json:"tenancy"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Visibility returns the change set's read/write view.
func (c ChangeSet) Visibility() visibility.Visibility {
	return visibility.ForChangeSet(c.Pk)
}

func (c ChangeSet) snapshot() json.RawMessage {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	return b
}

// EditSession is one person's uncommitted draft inside a change set.
type EditSession struct {
	Pk          int64           `json:"pk"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Note        string          `json:"note,omitempty"`
	Status      SessionStatus   `json:"status"`
	ChangeSetPk int64           `json:"change_set_pk"`
	Tenancy     tenancy.Tenancy `json:"tenancy"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Visibility returns the edit session's read/write view.
func (s EditSession) Visibility() visibility.Visibility {
	return visibility.ForEditSession(s.ChangeSetPk, s.Pk)
}

func (s EditSession) snapshot() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Manager drives the change-set lifecycle. It shares the record store
// engine's id generator and clock so one configuration governs the whole
// write path.
type Manager struct {
	eng *model.Engine
}

// NewManager builds a lifecycle manager over the engine.
func NewManager(eng *model.Engine) *Manager {
	return &Manager{eng: eng}
}

const changeSetColumns = "pk, id, name, note, status, tenancy_universal, tenancy_workspace_id, started_at, finished_at, created_at, updated_at"

func scanChangeSet(scan func(dest ...any) error) (ChangeSet, error) {
	var (
		c          ChangeSet
		universal  int
		startedAt  int64
		finishedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := scan(
		&c.Pk, &c.ID, &c.Name, &c.Note, &c.Status,
		&universal, &c.Tenancy.WorkspaceID,
		&startedAt, &finishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return ChangeSet{}, err
	}
	c.Tenancy.Universal = universal != 0
	c.StartedAt = storage.FromMillis(startedAt)
	c.FinishedAt = storage.FromNullMillis(finishedAt)
	c.CreatedAt = storage.FromMillis(createdAt)
	c.UpdatedAt = storage.FromMillis(updatedAt)
	return c, nil
}

// Get loads a change set by pk. Change sets outside the caller's read
// scope surface as not found rather than as a tenancy error, so a scoped
// caller cannot probe for their existence.
func (m *Manager) Get(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, pk int64) (ChangeSet, error) {
	if !scope.Valid() {
		return ChangeSet{}, fmt.Errorf("get change set: invalid tenancy scope")
	}
	q := w.DB().Rebind("SELECT " + changeSetColumns + " FROM change_sets WHERE pk = ?")
	c, err := scanChangeSet(w.Tx().QueryRowContext(ctx, q, pk).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ChangeSet{}, fmt.Errorf("change set %d: %w", pk, si.ErrNotFound)
	}
	if err != nil {
		return ChangeSet{}, si.Storage("get change set", err)
	}
	if !scope.AppliesToRead(c.Tenancy) {
		return ChangeSet{}, fmt.Errorf("change set %d: %w", pk, si.ErrNotFound)
	}
	return c, nil
}

// ByID loads a change set by logical id.
func (m *Manager) ByID(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, id string) (ChangeSet, error) {
	if !scope.Valid() {
		return ChangeSet{}, fmt.Errorf("get change set: invalid tenancy scope")
	}
	q := w.DB().Rebind("SELECT " + changeSetColumns + " FROM change_sets WHERE id = ? ORDER BY pk DESC LIMIT 1")
	c, err := scanChangeSet(w.Tx().QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ChangeSet{}, fmt.Errorf("change set %s: %w", id, si.ErrNotFound)
	}
	if err != nil {
		return ChangeSet{}, si.Storage("get change set", err)
	}
	if !scope.AppliesToRead(c.Tenancy) {
		return ChangeSet{}, fmt.Errorf("change set %s: %w", id, si.ErrNotFound)
	}
	return c, nil
}

// List returns the caller's visible change sets, optionally filtered by
// status, newest first.
func (m *Manager) List(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, status Status) ([]ChangeSet, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("list change sets: invalid tenancy scope")
	}
	q := "SELECT " + changeSetColumns + " FROM change_sets"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY pk DESC"
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), args...)
	if err != nil {
		return nil, si.Storage("list change sets", err)
	}
	defer rows.Close()
	var out []ChangeSet
	for rows.Next() {
		c, err := scanChangeSet(rows.Scan)
		if err != nil {
			return nil, si.Storage("list change sets", err)
		}
		if !scope.AppliesToRead(c.Tenancy) {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, si.Storage("list change sets", err)
	}
	return out, nil
}
