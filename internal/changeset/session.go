package changeset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
)

const editSessionColumns = "pk, id, name, note, status, change_set_pk, tenancy_universal, tenancy_workspace_id, created_at, updated_at"

func scanEditSession(scan func(dest ...any) error) (EditSession, error) {
	var (
		s         EditSession
		universal int
		createdAt int64
		updatedAt int64
	)
	err := scan(
		&s.Pk, &s.ID, &s.Name, &s.Note, &s.Status, &s.ChangeSetPk,
		&universal, &s.Tenancy.WorkspaceID, &createdAt, &updatedAt,
	)
	if err != nil {
		return EditSession{}, err
	}
	s.Tenancy.Universal = universal != 0
	s.CreatedAt = storage.FromMillis(createdAt)
	s.UpdatedAt = storage.FromMillis(updatedAt)
	return s, nil
}

// OpenSession starts a new edit session inside an open change set.
func (m *Manager) OpenSession(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, changeSetPk int64, name, note string) (EditSession, error) {
	c, err := m.Get(ctx, w, scope, changeSetPk)
	if err != nil {
		return EditSession{}, err
	}
	if !scope.AppliesToWrite(c.Tenancy) {
		return EditSession{}, fmt.Errorf("open edit session: change set %d: %w",
			changeSetPk, si.ErrTenancyViolation)
	}
	if c.Status != StatusOpen {
		return EditSession{}, fmt.Errorf("open edit session: change set %d is %s: %w",
			changeSetPk, c.Status, si.ErrInvalidTransition)
	}

	now := m.eng.Now()
	s := EditSession{
		ID:          m.eng.NewID(),
		Name:        name,
		Note:        note,
		Status:      SessionOpen,
		ChangeSetPk: changeSetPk,
		Tenancy:     scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	universal := 0
	if scope.Universal {
		universal = 1
	}
	q := `INSERT INTO edit_sessions
    (id, name, note, status, change_set_pk, tenancy_universal, tenancy_workspace_id,
     created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	pk, err := w.DB().InsertReturningPk(ctx, w.Tx(), q,
		s.ID, s.Name, s.Note, string(s.Status), s.ChangeSetPk, universal, scope.WorkspaceID,
		storage.ToMillis(s.CreatedAt), storage.ToMillis(s.UpdatedAt))
	if err != nil {
		return EditSession{}, si.Storage("open edit session", err)
	}
	s.Pk = pk
	return m.recordSession(ctx, w, act, s, "edit_session.create", "Edit Session created")
}

// GetSession loads an edit session by pk, with the same hide-on-tenancy
// behavior as Get.
func (m *Manager) GetSession(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, pk int64) (EditSession, error) {
	if !scope.Valid() {
		return EditSession{}, fmt.Errorf("get edit session: invalid tenancy scope")
	}
	q := w.DB().Rebind("SELECT " + editSessionColumns + " FROM edit_sessions WHERE pk = ?")
	s, err := scanEditSession(w.Tx().QueryRowContext(ctx, q, pk).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return EditSession{}, fmt.Errorf("edit session %d: %w", pk, si.ErrNotFound)
	}
	if err != nil {
		return EditSession{}, si.Storage("get edit session", err)
	}
	if !scope.AppliesToRead(s.Tenancy) {
		return EditSession{}, fmt.Errorf("edit session %d: %w", pk, si.ErrNotFound)
	}
	return s, nil
}

// ListSessions returns a change set's edit sessions in creation order.
func (m *Manager) ListSessions(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, changeSetPk int64) ([]EditSession, error) {
	if _, err := m.Get(ctx, w, scope, changeSetPk); err != nil {
		return nil, err
	}
	q := w.DB().Rebind("SELECT " + editSessionColumns + " FROM edit_sessions WHERE change_set_pk = ? ORDER BY pk")
	rows, err := w.Tx().QueryContext(ctx, q, changeSetPk)
	if err != nil {
		return nil, si.Storage("list edit sessions", err)
	}
	defer rows.Close()
	var out []EditSession
	for rows.Next() {
		s, err := scanEditSession(rows.Scan)
		if err != nil {
			return nil, si.Storage("list edit sessions", err)
		}
		if !scope.AppliesToRead(s.Tenancy) {
			continue
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, si.Storage("list edit sessions", err)
	}
	return out, nil
}

// SaveSession marks an open edit session Saved. Saving moves no rows:
// the session's drafts become part of the change set purely because
// change-set resolution includes rows from saved sessions. The parent
// change set must still be open; a closed change set can never gain
// content.
func (m *Manager) SaveSession(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, pk int64) (EditSession, error) {
	return m.transitionSession(ctx, w, act, scope, pk, SessionSaved,
		"edit_session.save", "Edit Session saved")
}

// CancelSession marks an open edit session Canceled. Its draft rows stay
// on disk but no visibility tier ever includes them again.
func (m *Manager) CancelSession(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, pk int64) (EditSession, error) {
	return m.transitionSession(ctx, w, act, scope, pk, SessionCanceled,
		"edit_session.cancel", "Edit Session canceled")
}

func (m *Manager) transitionSession(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, pk int64, to SessionStatus, label, message string) (EditSession, error) {
	s, err := m.GetSession(ctx, w, scope, pk)
	if err != nil {
		return EditSession{}, err
	}
	if !scope.AppliesToWrite(s.Tenancy) {
		return EditSession{}, fmt.Errorf("edit session %d: %w", pk, si.ErrTenancyViolation)
	}
	if s.Status != SessionOpen {
		return EditSession{}, fmt.Errorf("edit session %d is %s: %w", pk, s.Status, si.ErrInvalidTransition)
	}
	if to == SessionSaved {
		c, err := m.Get(ctx, w, scope, s.ChangeSetPk)
		if err != nil {
			return EditSession{}, err
		}
		if c.Status != StatusOpen {
			return EditSession{}, fmt.Errorf("save edit session %d: change set %d is %s: %w",
				pk, c.Pk, c.Status, si.ErrInvalidTransition)
		}
	}

	now := m.eng.Now()
	q := w.DB().Rebind("UPDATE edit_sessions SET status = ?, updated_at = ? WHERE pk = ?")
	if _, err := w.Tx().ExecContext(ctx, q, string(to), storage.ToMillis(now), pk); err != nil {
		return EditSession{}, si.Storage("transition edit session", err)
	}
	s.Status = to
	s.UpdatedAt = now
	return m.recordSession(ctx, w, act, s, label, message)
}

func (m *Manager) recordSession(ctx context.Context, w *unitwork.Work, act actor.Actor, s EditSession, label, message string) (EditSession, error) {
	snapshot := s.snapshot()
	if _, err := history.Record(ctx, w, label, message, act, snapshot, s.Tenancy); err != nil {
		return EditSession{}, err
	}
	w.Enqueue(bus.Envelope{Kind: label, Key: s.ID, Payload: snapshot})
	return s, nil
}
