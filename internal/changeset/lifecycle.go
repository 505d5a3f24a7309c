package changeset

import (
	"context"
	"fmt"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
)

// Create opens a new change set in the caller's scope.
func (m *Manager) Create(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, name, note string) (ChangeSet, error) {
	if !scope.Valid() {
		return ChangeSet{}, fmt.Errorf("create change set: invalid tenancy scope")
	}
	if name == "" {
		return ChangeSet{}, fmt.Errorf("create change set: name is required")
	}

	now := m.eng.Now()
	c := ChangeSet{
		ID:        m.eng.NewID(),
		Name:      name,
		Note:      note,
		Status:    StatusOpen,
		Tenancy:   scope,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	universal := 0
	if scope.Universal {
		universal = 1
	}
	q := `INSERT INTO change_sets
    (id, name, note, status, tenancy_universal, tenancy_workspace_id,
     started_at, finished_at, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`
	pk, err := w.DB().InsertReturningPk(ctx, w.Tx(), q,
		c.ID, c.Name, c.Note, string(c.Status), universal, scope.WorkspaceID,
		storage.ToMillis(c.StartedAt), storage.ToMillis(c.CreatedAt), storage.ToMillis(c.UpdatedAt))
	if err != nil {
		return ChangeSet{}, si.Storage("create change set", err)
	}
	c.Pk = pk
	return m.recordChangeSet(ctx, w, act, c, "change_set.create", "Change Set created")
}

// Apply merges the change set's content into head and marks it Applied.
// Every drafted object is checked against head's current content first;
// any object head moved underneath comes back as an ApplyConflictError
// and the caller's transaction must be rolled back, leaving the change
// set Open for rebasing or abandonment.
//
// Open edit sessions do not block apply. Their unsaved drafts are simply
// orphaned: the change set closes and the sessions can never save.
//
// The returned count is the number of versions promoted to head.
func (m *Manager) Apply(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, pk int64) (ChangeSet, int, error) {
	c, err := m.Get(ctx, w, scope, pk)
	if err != nil {
		return ChangeSet{}, 0, err
	}
	if !scope.AppliesToWrite(c.Tenancy) {
		return ChangeSet{}, 0, fmt.Errorf("apply change set %d: %w", pk, si.ErrTenancyViolation)
	}
	if c.Status != StatusOpen {
		return ChangeSet{}, 0, fmt.Errorf("apply change set %d: status is %s: %w",
			pk, c.Status, si.ErrInvalidTransition)
	}

	promoted, err := m.eng.PromoteChangeSet(ctx, w, pk)
	if err != nil {
		return ChangeSet{}, 0, err
	}
	c, err = m.finish(ctx, w, c, StatusApplied)
	if err != nil {
		return ChangeSet{}, 0, err
	}
	c, err = m.recordChangeSet(ctx, w, act, c, "change_set.apply", "Change Set applied")
	if err != nil {
		return ChangeSet{}, 0, err
	}
	return c, promoted, nil
}

// Abandon marks an open change set Abandoned. Its drafts stay on disk,
// invisible to everyone, and its edit sessions can never save.
func (m *Manager) Abandon(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, pk int64) (ChangeSet, error) {
	c, err := m.Get(ctx, w, scope, pk)
	if err != nil {
		return ChangeSet{}, err
	}
	if !scope.AppliesToWrite(c.Tenancy) {
		return ChangeSet{}, fmt.Errorf("abandon change set %d: %w", pk, si.ErrTenancyViolation)
	}
	if c.Status != StatusOpen {
		return ChangeSet{}, fmt.Errorf("abandon change set %d: status is %s: %w",
			pk, c.Status, si.ErrInvalidTransition)
	}
	c, err = m.finish(ctx, w, c, StatusAbandoned)
	if err != nil {
		return ChangeSet{}, err
	}
	return m.recordChangeSet(ctx, w, act, c, "change_set.abandon", "Change Set abandoned")
}

// finish moves a change set to a terminal status and stamps finished_at.
func (m *Manager) finish(ctx context.Context, w *unitwork.Work, c ChangeSet, status Status) (ChangeSet, error) {
	now := m.eng.Now()
	q := w.DB().Rebind("UPDATE change_sets SET status = ?, finished_at = ?, updated_at = ? WHERE pk = ?")
	if _, err := w.Tx().ExecContext(ctx, q, string(status), storage.ToMillis(now), storage.ToMillis(now), c.Pk); err != nil {
		return ChangeSet{}, si.Storage("finish change set", err)
	}
	c.Status = status
	c.FinishedAt = &now
	c.UpdatedAt = now
	return c, nil
}

func (m *Manager) recordChangeSet(ctx context.Context, w *unitwork.Work, act actor.Actor, c ChangeSet, label, message string) (ChangeSet, error) {
	snapshot := c.snapshot()
	if _, err := history.Record(ctx, w, label, message, act, snapshot, c.Tenancy); err != nil {
		return ChangeSet{}, err
	}
	w.Enqueue(bus.Envelope{Kind: label, Key: c.ID, Payload: snapshot})
	return c, nil
}
