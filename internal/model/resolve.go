package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

const rowColumns = "pk, id, tenancy_universal, tenancy_workspace_id, change_set_pk, edit_session_pk, deleted_at, name, payload, base_head_hash, created_at, updated_at"

// tierClause returns the WHERE fragment selecting rows persisted at
// exactly the given visibility tier.
//
// The change-set tier includes rows written directly against the change
// set and rows from its saved edit sessions. Canceled sessions never
// match: their rows stay orphaned forever.
func tierClause(v visibility.Visibility) (string, []any) {
	switch {
	case v.InEditSession():
		return "change_set_pk = ? AND edit_session_pk = ?",
			[]any{v.ChangeSetPk, v.EditSessionPk}
	case v.InChangeSet():
		return "change_set_pk = ? AND (edit_session_pk = -1 OR edit_session_pk IN (SELECT pk FROM edit_sessions WHERE change_set_pk = ? AND status = 'Saved'))",
			[]any{v.ChangeSetPk, v.ChangeSetPk}
	default:
		return "change_set_pk = -1 AND edit_session_pk = -1", nil
	}
}

// tenancyReadClause returns the WHERE fragment enforcing read access for
// the scope. Universal rows are readable from every scope; workspace rows
// only from their own workspace.
func tenancyReadClause(scope tenancy.Tenancy) (string, []any) {
	if scope.Universal {
		return "tenancy_universal = 1", nil
	}
	return "(tenancy_universal = 1 OR tenancy_workspace_id = ?)", []any{scope.WorkspaceID}
}

func scanRow(kind string, scan func(dest ...any) error) (Row, error) {
	var (
		r         Row
		universal int
		deletedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := scan(
		&r.Pk, &r.ID, &universal, &r.Tenancy.WorkspaceID,
		&r.ChangeSetPk, &r.EditSessionPk, &deletedAt,
		&r.Name, &r.Payload, &r.BaseHeadHash, &createdAt, &updatedAt,
	)
	if err != nil {
		return Row{}, err
	}
	r.Kind = kind
	r.Tenancy.Universal = universal != 0
	r.DeletedAt = storage.FromNullMillis(deletedAt)
	r.CreatedAt = storage.FromMillis(createdAt)
	r.UpdatedAt = storage.FromMillis(updatedAt)
	return r, nil
}

// latestInTier returns the newest version of id persisted at the tier,
// tombstones included. ok is false when the tier holds no version at all.
func (s *Store) latestInTier(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, tier visibility.Visibility, id string) (Row, bool, error) {
	tc, targs := tierClause(tier)
	sc, sargs := tenancyReadClause(scope)
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = ? AND %s AND %s ORDER BY pk DESC LIMIT 1",
		rowColumns, s.def.Table, tc, sc,
	)
	args := append(append([]any{id}, targs...), sargs...)
	row := w.DB().Rebind(q)
	res := w.Tx().QueryRowContext(ctx, row, args...)
	r, err := scanRow(s.def.Kind, res.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, si.Storage("resolve "+s.def.Kind, err)
	}
	return r, true, nil
}

// resolve walks the visibility tiers most specific first. The first tier
// holding any version of the object terminates the walk: a tombstone in
// an upper tier shadows live content below it, so a draft delete hides
// the head row without touching it.
func (s *Store) resolve(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility, id string) (Row, error) {
	if !scope.Valid() {
		return Row{}, fmt.Errorf("resolve %s: invalid tenancy scope", s.def.Kind)
	}
	for _, tier := range vis.Tiers() {
		r, ok, err := s.latestInTier(ctx, w, scope, tier, id)
		if err != nil {
			return Row{}, err
		}
		if !ok {
			continue
		}
		if r.Deleted() && !vis.IncludeDeleted {
			return Row{}, fmt.Errorf("%s %s: %w", s.def.Kind, id, si.ErrNotFound)
		}
		return r, nil
	}
	return Row{}, fmt.Errorf("%s %s: %w", s.def.Kind, id, si.ErrNotFound)
}

// Find resolves one object by logical id under the caller's scope and
// visibility.
func (s *Store) Find(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility, id string) (Row, error) {
	return s.resolve(ctx, w, scope, vis, id)
}

// List resolves every object of this kind visible under the scope and
// visibility, ordered by first creation. Objects whose resolved version
// is a tombstone are omitted unless vis includes deleted rows.
func (s *Store) List(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility) ([]Row, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("list %s: invalid tenancy scope", s.def.Kind)
	}
	ids, err := s.candidateIDs(ctx, w, scope, vis)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		r, err := s.resolve(ctx, w, scope, vis, id)
		if errors.Is(err, si.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// candidateIDs returns the distinct logical ids that have at least one
// version in any tier of the visibility chain, ordered by oldest
// version.
func (s *Store) candidateIDs(ctx context.Context, w *unitwork.Work, scope tenancy.Tenancy, vis visibility.Visibility) ([]string, error) {
	tiers := vis.Tiers()
	clauses := make([]string, 0, len(tiers))
	var args []any
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
		"SELECT id FROM %s WHERE (%s) AND %s GROUP BY id ORDER BY MIN(pk)",
		s.def.Table, tierOr, sc,
	)
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), args...)
	if err != nil {
		return nil, si.Storage("list "+s.def.Kind, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, si.Storage("list "+s.def.Kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, si.Storage("list "+s.def.Kind, err)
	}
	return ids, nil
}
