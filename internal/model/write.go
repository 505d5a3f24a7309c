package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/canonical"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

// Status strings shared with the change-set tables. Kept as literals here
// so the record store can validate write targets without depending on the
// lifecycle package.
const (
	statusOpen = "Open"
)

// checkWriteTarget verifies that the visibility a write lands at refers
// to an existing, still-open change set and edit session. Writes against
// a closed container are rejected before any row is touched.
func checkWriteTarget(ctx context.Context, w *unitwork.Work, vis visibility.Visibility) error {
	if vis.InEditSession() && !vis.InChangeSet() {
		return fmt.Errorf("edit session visibility requires a change set")
	}
	if vis.InChangeSet() {
		var status string
		q := w.DB().Rebind("SELECT status FROM change_sets WHERE pk = ?")
		err := w.Tx().QueryRowContext(ctx, q, vis.ChangeSetPk).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("change set %d: %w", vis.ChangeSetPk, si.ErrNotFound)
		}
		if err != nil {
			return si.Storage("check change set", err)
		}
		if status != statusOpen {
			return fmt.Errorf("change set %d is %s: %w", vis.ChangeSetPk, status, si.ErrInvalidTransition)
		}
	}
	if vis.InEditSession() {
		var (
			status      string
			changeSetPk int64
		)
		q := w.DB().Rebind("SELECT status, change_set_pk FROM edit_sessions WHERE pk = ?")
		err := w.Tx().QueryRowContext(ctx, q, vis.EditSessionPk).Scan(&status, &changeSetPk)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("edit session %d: %w", vis.EditSessionPk, si.ErrNotFound)
		}
		if err != nil {
			return si.Storage("check edit session", err)
		}
		if changeSetPk != vis.ChangeSetPk {
			return fmt.Errorf("edit session %d belongs to change set %d, not %d",
				vis.EditSessionPk, changeSetPk, vis.ChangeSetPk)
		}
		if status != statusOpen {
			return fmt.Errorf("edit session %d is %s: %w", vis.EditSessionPk, status, si.ErrInvalidTransition)
		}
	}
	return nil
}

func (s *Store) insertRow(ctx context.Context, w *unitwork.Work, r Row) (int64, error) {
	q := fmt.Sprintf(`INSERT INTO %s
    (id, tenancy_universal, tenancy_workspace_id, change_set_pk, edit_session_pk,
     deleted_at, name, payload, base_head_hash, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.def.Table)
	universal := 0
	if r.Tenancy.Universal {
		universal = 1
	}
	pk, err := w.DB().InsertReturningPk(ctx, w.Tx(), q,
		r.ID, universal, r.Tenancy.WorkspaceID, r.ChangeSetPk, r.EditSessionPk,
		storage.ToNullMillis(r.DeletedAt), r.Name, string(r.Payload), r.BaseHeadHash,
		storage.ToMillis(r.CreatedAt), storage.ToMillis(r.UpdatedAt))
	if err != nil {
		return 0, si.Storage("insert "+s.def.Kind, err)
	}
	return pk, nil
}

// nameTaken reports whether another live object of this kind already
// resolves to the given name under the same scope and visibility. Names
// are checked inside the transaction; a unique index cannot serve here
// because old versions of a renamed object keep their old name.
func (s *Store) nameTaken(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility, name, excludeID string) (bool, error) {
	tiers := vis.Tiers()
	clauses := make([]string, 0, len(tiers))
	var args []any
	args = append(args, name)
	for _, tier := range tiers {
		tc, targs := tierClause(tier)
		clauses = append(clauses, "("+tc+")")
		args = append(args, targs...)
	}
	tierOr := clauses[0]
	for _, c := range clauses[1:] {
		tierOr += " OR " + c
	}
	sc, sargs := tenancyReadClause(scope)
	args = append(args, sargs...)
	q := fmt.Sprintf("SELECT DISTINCT id FROM %s WHERE name = ? AND (%s) AND %s",
		s.def.Table, tierOr, sc)
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), args...)
	if err != nil {
		return false, si.Storage("check name "+s.def.Kind, err)
	}
	defer rows.Close()
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return false, si.Storage("check name "+s.def.Kind, err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		return false, si.Storage("check name "+s.def.Kind, err)
	}

	// An old version may carry the name while the resolved version has
	// been renamed, so re-check each candidate after resolution.
	for _, id := range candidates {
		if id == excludeID {
			continue
		}
		r, err := s.resolve(ctx, w, scope, vis, id)
		if errors.Is(err, si.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// baseHash determines the base_head_hash for a new version written at
// vis, given the version it was resolved from. The hash records what head
// looked like when the change set first drafted the object and rides
// along on every subsequent draft so apply can detect that head moved.
func baseHash(cur Row, vis visibility.Visibility) (string, error) {
	if !vis.InChangeSet() {
		return "", nil
	}
	if cur.ChangeSetPk == vis.ChangeSetPk {
		return cur.BaseHeadHash, nil
	}
	return rowContentHash(cur)
}

// Create inserts the first version of a new object. The row's tenancy is
// the caller's scope. A nil payload takes the registered default for the
// kind; kinds without a default require an explicit payload.
func (s *Store) Create(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, name string, payload json.RawMessage) (Row, error) {
	return s.CreateVariant(ctx, w, act, scope, vis, name, "", payload)
}

// CreateVariant is Create with a named default-payload variant, for kinds
// that register more than one default (e.g. workflow functions next to
// attribute functions). The variant only matters when payload is nil; an
// empty variant selects the kind's base default.
func (s *Store) CreateVariant(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, name, variant string, payload json.RawMessage) (Row, error) {
	if !scope.Valid() {
		return Row{}, fmt.Errorf("create %s: invalid tenancy scope", s.def.Kind)
	}
	if err := checkWriteTarget(ctx, w, vis); err != nil {
		return Row{}, fmt.Errorf("create %s: %w", s.def.Kind, err)
	}
	if payload == nil {
		def, ok := s.eng.reg.DefaultPayload(s.def.Kind, variant)
		if !ok {
			if variant != "" {
				return Row{}, fmt.Errorf("create %s: no default payload for variant %q", s.def.Kind, variant)
			}
			return Row{}, fmt.Errorf("create %s: payload is required", s.def.Kind)
		}
		payload = def
	}
	normalized, err := canonical.Normalize(payload)
	if err != nil {
		return Row{}, fmt.Errorf("create %s: %w", s.def.Kind, err)
	}
	if s.def.UniqueNames && name != "" {
		taken, err := s.nameTaken(ctx, w, scope, vis, name, "")
		if err != nil {
			return Row{}, err
		}
		if taken {
			return Row{}, si.Storage("create "+s.def.Kind,
				fmt.Errorf("%s named %q already exists", s.def.Kind, name))
		}
	}

	now := s.eng.now()
	r := Row{
		ID:            s.eng.ids.Generate(),
		Kind:          s.def.Kind,
		Tenancy:       scope,
		ChangeSetPk:   vis.ChangeSetPk,
		EditSessionPk: vis.EditSessionPk,
		Name:          name,
		Payload:       normalized,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if r.Pk, err = s.insertRow(ctx, w, r); err != nil {
		return Row{}, err
	}
	return s.recordMutation(ctx, w, act, r, "create", s.def.Label+" created")
}

// Update resolves the object, hands a copy to mutate, and persists the
// result as a new version at the caller's visibility. Only Name and
// Payload changes survive; identity and lifecycle fields are fixed.
func (s *Store) Update(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, id string, mutate func(r *Row) error) (Row, error) {
	if err := checkWriteTarget(ctx, w, vis); err != nil {
		return Row{}, fmt.Errorf("update %s: %w", s.def.Kind, err)
	}
	cur, err := s.resolve(ctx, w, scope, vis, id)
	if err != nil {
		return Row{}, err
	}
	if !scope.AppliesToWrite(cur.Tenancy) {
		return Row{}, fmt.Errorf("update %s %s: %w", s.def.Kind, id, si.ErrTenancyViolation)
	}

	next := cur
	if err := mutate(&next); err != nil {
		return Row{}, fmt.Errorf("update %s %s: %w", s.def.Kind, id, err)
	}
	normalized, err := canonical.Normalize(next.Payload)
	if err != nil {
		return Row{}, fmt.Errorf("update %s %s: %w", s.def.Kind, id, err)
	}
	if s.def.UniqueNames && next.Name != cur.Name && next.Name != "" {
		taken, err := s.nameTaken(ctx, w, scope, vis, next.Name, id)
		if err != nil {
			return Row{}, err
		}
		if taken {
			return Row{}, si.Storage("update "+s.def.Kind,
				fmt.Errorf("%s named %q already exists", s.def.Kind, next.Name))
		}
	}
	hash, err := baseHash(cur, vis)
	if err != nil {
		return Row{}, fmt.Errorf("update %s %s: %w", s.def.Kind, id, err)
	}

	now := s.eng.now()
	r := Row{
		ID:            cur.ID,
		Kind:          s.def.Kind,
		Tenancy:       cur.Tenancy,
		ChangeSetPk:   vis.ChangeSetPk,
		EditSessionPk: vis.EditSessionPk,
		DeletedAt:     cur.DeletedAt,
		Name:          next.Name,
		Payload:       normalized,
		BaseHeadHash:  hash,
		CreatedAt:     cur.CreatedAt,
		UpdatedAt:     now,
	}
	if r.Pk, err = s.insertRow(ctx, w, r); err != nil {
		return Row{}, err
	}
	return s.recordMutation(ctx, w, act, r, "update", s.def.Label+" updated")
}

// SoftDelete writes a tombstone version at the caller's visibility. The
// object's history stays intact; readers at this visibility stop seeing
// it. Deleting a draft does not touch head until the change set applies.
func (s *Store) SoftDelete(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, id string) (Row, error) {
	if err := checkWriteTarget(ctx, w, vis); err != nil {
		return Row{}, fmt.Errorf("delete %s: %w", s.def.Kind, err)
	}
	cur, err := s.resolve(ctx, w, scope, vis, id)
	if err != nil {
		return Row{}, err
	}
	if !scope.AppliesToWrite(cur.Tenancy) {
		return Row{}, fmt.Errorf("delete %s %s: %w", s.def.Kind, id, si.ErrTenancyViolation)
	}
	hash, err := baseHash(cur, vis)
	if err != nil {
		return Row{}, fmt.Errorf("delete %s %s: %w", s.def.Kind, id, err)
	}

	now := s.eng.now()
	r := Row{
		ID:            cur.ID,
		Kind:          s.def.Kind,
		Tenancy:       cur.Tenancy,
		ChangeSetPk:   vis.ChangeSetPk,
		EditSessionPk: vis.EditSessionPk,
		DeletedAt:     &now,
		Name:          cur.Name,
		Payload:       cur.Payload,
		BaseHeadHash:  hash,
		CreatedAt:     cur.CreatedAt,
		UpdatedAt:     now,
	}
	if r.Pk, err = s.insertRow(ctx, w, r); err != nil {
		return Row{}, err
	}
	return s.recordMutation(ctx, w, act, r, "delete", s.def.Label+" deleted")
}

// recordMutation appends the history event and buffers the notification
// for the just-written version. Both ride the caller's transaction: the
// event commits with the row, the notification flushes only after commit.
func (s *Store) recordMutation(ctx context.Context, w *unitwork.Work, act actor.Actor, r Row, verb, message string) (Row, error) {
	snapshot := r.snapshot()
	label := s.def.Kind + "." + verb
	if _, err := history.Record(ctx, w, label, message, act, snapshot, r.Tenancy); err != nil {
		return Row{}, err
	}
	w.Enqueue(bus.Envelope{Kind: label, Key: r.ID, Payload: snapshot})
	return r, nil
}
