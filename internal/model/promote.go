package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandalwing/si/internal/entitydef"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

// PromoteChangeSet copies the change set's content to head: for every
// logical id the change set drafted (directly or through a saved edit
// session), the latest draft version is re-inserted as a new head
// version. Drafted deletions promote as head tombstones.
//
// Before any id is promoted its recorded base head hash is compared to
// head's current content hash. A mismatch means another change set
// touched the same object at head since this one drafted it; promotion
// stops with an ApplyConflictError and the caller's transaction rolls
// everything back. First conflict wins, deterministically, in id order.
//
// Promotion runs across all tenancies present in the change set. The
// lifecycle layer has already verified the caller may apply the change
// set itself.
func (e *Engine) PromoteChangeSet(ctx context.Context, w *unitwork.Work, changeSetPk int64) (int, error) {
	vis := visibility.ForChangeSet(changeSetPk)
	promoted := 0

	for _, def := range e.reg.Defs() {
		s := &Store{eng: e, def: def}
		ids, err := s.draftedIDs(ctx, w, vis)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			n, err := s.promoteOne(ctx, w, vis, id)
			if err != nil {
				return 0, err
			}
			promoted += n
		}
	}

	for _, rel := range e.reg.Relations() {
		n, err := e.promoteRelations(ctx, w, rel, vis)
		if err != nil {
			return 0, err
		}
		promoted += n
	}
	return promoted, nil
}

// draftedIDs returns the logical ids with at least one version at the
// change-set tier, tombstones included, in draft order.
func (s *Store) draftedIDs(ctx context.Context, w *unitwork.Work, vis visibility.Visibility) ([]string, error) {
	tc, targs := tierClause(vis)
	q := fmt.Sprintf("SELECT id FROM %s WHERE %s GROUP BY id ORDER BY MIN(pk)", s.def.Table, tc)
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), targs...)
	if err != nil {
		return nil, si.Storage("promote "+s.def.Kind, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, si.Storage("promote "+s.def.Kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, si.Storage("promote "+s.def.Kind, err)
	}
	return ids, nil
}

// latestAnyTenancy returns the newest version of id at exactly the given
// tier without tenancy filtering. Promotion operates below the tenancy
// read path.
func (s *Store) latestAnyTenancy(ctx context.Context, w *unitwork.Work, tier visibility.Visibility, id string) (Row, bool, error) {
	tc, targs := tierClause(tier)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND %s ORDER BY pk DESC LIMIT 1",
		rowColumns, s.def.Table, tc)
	args := append([]any{id}, targs...)
	res := w.Tx().QueryRowContext(ctx, w.DB().Rebind(q), args...)
	r, err := scanRow(s.def.Kind, res.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, si.Storage("promote "+s.def.Kind, err)
	}
	return r, true, nil
}

func (s *Store) promoteOne(ctx context.Context, w *unitwork.Work, vis visibility.Visibility, id string) (int, error) {
	draft, ok, err := s.latestAnyTenancy(ctx, w, vis, id)
	if err != nil || !ok {
		return 0, err
	}
	head, hasHead, err := s.latestAnyTenancy(ctx, w, visibility.ForHead(), id)
	if err != nil {
		return 0, err
	}

	headHash := ""
	if hasHead {
		if headHash, err = rowContentHash(head); err != nil {
			return 0, fmt.Errorf("promote %s %s: %w", s.def.Kind, id, err)
		}
	}
	if draft.BaseHeadHash != headHash {
		return 0, &si.ApplyConflictError{
			ChangeSetPk: vis.ChangeSetPk,
			Kind:        s.def.Kind,
			LogicalID:   id,
			BaseHash:    draft.BaseHeadHash,
			HeadHash:    headHash,
		}
	}

	// Deleting an object that only ever existed as a draft leaves
	// nothing to tombstone at head.
	if draft.Deleted() && !hasHead {
		return 0, nil
	}

	// The draft's name was only checked against its own visibility chain
	// when it was written. Another change set may have promoted the same
	// name to head since, so unique kinds re-check at head before landing.
	if s.def.UniqueNames && !draft.Deleted() && draft.Name != "" {
		taken, err := s.nameTaken(ctx, w, draft.Tenancy, visibility.ForHead(), draft.Name, id)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, si.Storage("promote "+s.def.Kind,
				fmt.Errorf("%s named %q already exists at head", s.def.Kind, draft.Name))
		}
	}

	now := s.eng.now()
	r := Row{
		ID:            draft.ID,
		Kind:          s.def.Kind,
		Tenancy:       draft.Tenancy,
		ChangeSetPk:   visibility.NoChangeSet,
		EditSessionPk: visibility.NoEditSession,
		DeletedAt:     draft.DeletedAt,
		Name:          draft.Name,
		Payload:       draft.Payload,
		CreatedAt:     draft.CreatedAt,
		UpdatedAt:     now,
	}
	if _, err := s.insertRow(ctx, w, r); err != nil {
		return 0, err
	}
	return 1, nil
}

// promoteRelations promotes the change set's edges to head. Relations
// carry no base hash: an edge is only ever present or tombstoned, so the
// latest draft state wins without a conflict check.
func (e *Engine) promoteRelations(ctx context.Context, w *unitwork.Work, rel entitydef.Relation, vis visibility.Visibility) (int, error) {
	tc, targs := tierClause(vis)
	q := fmt.Sprintf(
		"SELECT parent_id, child_id FROM %s WHERE %s GROUP BY parent_id, child_id ORDER BY MIN(pk)",
		rel.Table, tc)
	rows, err := w.Tx().QueryContext(ctx, w.DB().Rebind(q), targs...)
	if err != nil {
		return 0, si.Storage("promote "+rel.Kind, err)
	}
	defer rows.Close()
	type pair struct{ parent, child string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.parent, &p.child); err != nil {
			return 0, si.Storage("promote "+rel.Kind, err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return 0, si.Storage("promote "+rel.Kind, err)
	}

	promoted := 0
	for _, p := range pairs {
		draft, ok, err := e.latestRelAnyTenancy(ctx, w, rel, vis, p.parent, p.child)
		if err != nil || !ok {
			if err != nil {
				return 0, err
			}
			continue
		}
		_, hasHead, err := e.latestRelAnyTenancy(ctx, w, rel, visibility.ForHead(), p.parent, p.child)
		if err != nil {
			return 0, err
		}
		if draft.Deleted() && !hasHead {
			continue
		}

		now := e.now()
		r := RelRow{
			Kind:          rel.Kind,
			ParentID:      p.parent,
			ChildID:       p.child,
			Tenancy:       draft.Tenancy,
			ChangeSetPk:   visibility.NoChangeSet,
			EditSessionPk: visibility.NoEditSession,
			DeletedAt:     draft.DeletedAt,
			CreatedAt:     draft.CreatedAt,
			UpdatedAt:     now,
		}
		if _, err := e.insertRelRow(ctx, w, rel, r); err != nil {
			return 0, err
		}
		promoted++
	}
	return promoted, nil
}

func (e *Engine) latestRelAnyTenancy(ctx context.Context, w *unitwork.Work, rel entitydef.Relation, tier visibility.Visibility, parentID, childID string) (RelRow, bool, error) {
	tc, targs := tierClause(tier)
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE parent_id = ? AND child_id = ? AND %s ORDER BY pk DESC LIMIT 1",
		relColumns, rel.Table, tc)
	args := append([]any{parentID, childID}, targs...)
	res := w.Tx().QueryRowContext(ctx, w.DB().Rebind(q), args...)
	r, err := scanRelRow(rel.Kind, res.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return RelRow{}, false, nil
	}
	if err != nil {
		return RelRow{}, false, si.Storage("promote "+rel.Kind, err)
	}
	return r, true, nil
}
