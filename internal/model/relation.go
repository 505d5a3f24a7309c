package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/entitydef"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

// RelRow is one version of a typed edge between two objects. Its logical
// identity is (parent_id, child_id); it versions and tombstones exactly
// like a primary row.
type RelRow struct {
	Pk            int64           `json:"pk"`
	Kind          string          `json:"kind"`
	ParentID      string          `json:"parent_id"`
	ChildID       string          `json:"child_id"`
	Tenancy       tenancy.Tenancy `json:"tenancy"`
	ChangeSetPk   int64           `json:"change_set_pk"`
	EditSessionPk int64           `json:"edit_session_pk"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Deleted reports whether this version is a tombstone.
func (r RelRow) Deleted() bool { return r.DeletedAt != nil }

func (r RelRow) snapshot() json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return b
}

const relColumns = "pk, parent_id, child_id, tenancy_universal, tenancy_workspace_id, change_set_pk, edit_session_pk, deleted_at, created_at, updated_at"

func scanRelRow(kind string, scan func(dest ...any) error) (RelRow, error) {
	var (
		r         RelRow
		universal int
		deletedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := scan(
		&r.Pk, &r.ParentID, &r.ChildID, &universal, &r.Tenancy.WorkspaceID,
		&r.ChangeSetPk, &r.EditSessionPk, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return RelRow{}, err
	}
	r.Kind = kind
	r.Tenancy.Universal = universal != 0
	r.DeletedAt = storage.FromNullMillis(deletedAt)
	r.CreatedAt = storage.FromMillis(createdAt)
	r.UpdatedAt = storage.FromMillis(updatedAt)
	return r, nil
}

// resolveRelation walks the visibility tiers for one edge, with the same
// tombstone-shadowing rule as primary rows.
func (e *Engine) resolveRelation(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility, rel entitydef.Relation, parentID, childID string) (RelRow, error) {
	for _, tier := range vis.Tiers() {
		tc, targs := tierClause(tier)
		sc, sargs := tenancyReadClause(scope)
		q := fmt.Sprintf(
			"SELECT %s FROM %s WHERE parent_id = ? AND child_id = ? AND %s AND %s ORDER BY pk DESC LIMIT 1",
			relColumns, rel.Table, tc, sc,
		)
		args := append(append([]any{parentID, childID}, targs...), sargs...)
		res := w.Tx().QueryRowContext(ctx, w.DB().Rebind(q), args...)
		r, err := scanRelRow(rel.Kind, res.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return RelRow{}, si.Storage("resolve "+rel.Kind, err)
		}
		if r.Deleted() && !vis.IncludeDeleted {
			return RelRow{}, fmt.Errorf("%s %s -> %s: %w", rel.Kind, parentID, childID, si.ErrNotFound)
		}
		return r, nil
	}
	return RelRow{}, fmt.Errorf("%s %s -> %s: %w", rel.Kind, parentID, childID, si.ErrNotFound)
}

func (e *Engine) insertRelRow(ctx context.Context, w *unitwork.Work, rel entitydef.Relation, r RelRow) (int64, error) {
	q := fmt.Sprintf(`INSERT INTO %s
    (parent_id, child_id, tenancy_universal, tenancy_workspace_id,
     change_set_pk, edit_session_pk, deleted_at, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, rel.Table)
	universal := 0
	if r.Tenancy.Universal {
		universal = 1
	}
	pk, err := w.DB().InsertReturningPk(ctx, w.Tx(), q,
		r.ParentID, r.ChildID, universal, r.Tenancy.WorkspaceID,
		r.ChangeSetPk, r.EditSessionPk, storage.ToNullMillis(r.DeletedAt),
		storage.ToMillis(r.CreatedAt), storage.ToMillis(r.UpdatedAt))
	if err != nil {
		return 0, si.Storage("insert "+rel.Kind, err)
	}
	return pk, nil
}

// Relate links parent to child under the given relation kind. Both
// endpoints must resolve at the caller's visibility; the relation's
// validator, if any, runs against their resolved payloads. Relating an
// already-related pair is a no-op and returns the existing edge.
//
// The edge row takes the caller's scope as its tenancy, so a workspace
// may relate its own objects to universal ones. Writing requires write
// access to the parent; the child only needs to be readable.
func (e *Engine) Relate(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, relKind, parentID, childID string) (RelRow, error) {
	rel, ok := e.reg.Relation(relKind)
	if !ok {
		return RelRow{}, fmt.Errorf("unknown relation kind %q", relKind)
	}
	if !scope.Valid() {
		return RelRow{}, fmt.Errorf("relate %s: invalid tenancy scope", relKind)
	}
	if err := checkWriteTarget(ctx, w, vis); err != nil {
		return RelRow{}, fmt.Errorf("relate %s: %w", relKind, err)
	}

	parentStore, err := e.Kind(rel.ParentKind)
	if err != nil {
		return RelRow{}, err
	}
	childStore, err := e.Kind(rel.ChildKind)
	if err != nil {
		return RelRow{}, err
	}
	parent, err := parentStore.resolve(ctx, w, scope, vis, parentID)
	if err != nil {
		return RelRow{}, err
	}
	child, err := childStore.resolve(ctx, w, scope, vis, childID)
	if err != nil {
		return RelRow{}, err
	}
	if !scope.AppliesToWrite(parent.Tenancy) {
		return RelRow{}, fmt.Errorf("relate %s %s: %w", relKind, parentID, si.ErrTenancyViolation)
	}
	if rel.Validate != nil {
		if verr := rel.Validate(parent.Payload, child.Payload); verr != nil {
			return RelRow{}, fmt.Errorf("relate %s %s -> %s: %w: %v",
				relKind, parentID, childID, si.ErrInvalidRelation, verr)
		}
	}

	existing, err := e.resolveRelation(ctx, w, scope, vis, rel, parentID, childID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, si.ErrNotFound) {
		return RelRow{}, err
	}

	now := e.now()
	r := RelRow{
		Kind:          rel.Kind,
		ParentID:      parentID,
		ChildID:       childID,
		Tenancy:       scope,
		ChangeSetPk:   vis.ChangeSetPk,
		EditSessionPk: vis.EditSessionPk,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if r.Pk, err = e.insertRelRow(ctx, w, rel, r); err != nil {
		return RelRow{}, err
	}
	return e.recordRelMutation(ctx, w, act, r, "relate", "Relation created")
}

// Unrelate tombstones the edge at the caller's visibility. The edge must
// currently resolve; unrelating an absent pair is ErrNotFound.
func (e *Engine) Unrelate(ctx context.Context, w *unitwork.Work, act actor.Actor, scope tenancy.Tenancy, vis visibility.Visibility, relKind, parentID, childID string) (RelRow, error) {
	rel, ok := e.reg.Relation(relKind)
	if !ok {
		return RelRow{}, fmt.Errorf("unknown relation kind %q", relKind)
	}
	if !scope.Valid() {
		return RelRow{}, fmt.Errorf("unrelate %s: invalid tenancy scope", relKind)
	}
	if err := checkWriteTarget(ctx, w, vis); err != nil {
		return RelRow{}, fmt.Errorf("unrelate %s: %w", relKind, err)
	}
	cur, err := e.resolveRelation(ctx, w, scope, vis, rel, parentID, childID)
	if err != nil {
		return RelRow{}, err
	}
	if !scope.AppliesToWrite(cur.Tenancy) {
		return RelRow{}, fmt.Errorf("unrelate %s %s: %w", relKind, parentID, si.ErrTenancyViolation)
	}

	now := e.now()
	r := RelRow{
		Kind:          rel.Kind,
		ParentID:      parentID,
		ChildID:       childID,
		Tenancy:       cur.Tenancy,
		ChangeSetPk:   vis.ChangeSetPk,
		EditSessionPk: vis.EditSessionPk,
		DeletedAt:     &now,
		CreatedAt:     cur.CreatedAt,
		UpdatedAt:     now,
	}
	if r.Pk, err = e.insertRelRow(ctx, w, rel, r); err != nil {
		return RelRow{}, err
	}
	return e.recordRelMutation(ctx, w, act, r, "unrelate", "Relation removed")
}

// ListRelated resolves the children currently related to parent under the
// relation kind, ordered by when each edge was first created. Children
// whose own resolved version is gone are skipped.
func (e *Engine) ListRelated(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility, relKind, parentID string) ([]Row, error) {
	rel, ok := e.reg.Relation(relKind)
	if !ok {
		return nil, fmt.Errorf("unknown relation kind %q", relKind)
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("list %s: invalid tenancy scope", relKind)
	}
	childStore, err := e.Kind(rel.ChildKind)
	if err != nil {
		return nil, err
	}

	tiers := vis.Tiers()
	clauses := make([]string, 0, len(tiers))
	args := []any{parentID}
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
	q := fmt.Sprintf(
		"SELECT child_id FROM %s WHERE parent_id = ? AND (%s) AND %s GROUP BY child_id ORDER BY MIN(pk)",
		rel.Table, tierOr, sc)
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), args...)
	if err != nil {
		return nil, si.Storage("list "+rel.Kind, err)
	}
	defer rows.Close()
	var childIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, si.Storage("list "+rel.Kind, err)
		}
		childIDs = append(childIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, si.Storage("list "+rel.Kind, err)
	}

	out := make([]Row, 0, len(childIDs))
	for _, childID := range childIDs {
		if _, err := e.resolveRelation(ctx, w, scope, vis, rel, parentID, childID); err != nil {
			if errors.Is(err, si.ErrNotFound) {
				continue
			}
			return nil, err
		}
		child, err := childStore.resolve(ctx, w, scope, vis, childID)
		if errors.Is(err, si.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func (e *Engine) recordRelMutation(ctx context.Context, w *unitwork.Work, act actor.Actor, r RelRow, verb, message string) (RelRow, error) {
	snapshot := r.snapshot()
	label := r.Kind + "." + verb
	if _, err := history.Record(ctx, w, label, message, act, snapshot, r.Tenancy); err != nil {
		return RelRow{}, err
	}
	w.Enqueue(bus.Envelope{Kind: label, Key: r.ParentID, Payload: snapshot})
	return r, nil
}
