// Package visibility identifies which version of an object is in view:
// head, a change-set draft, or an edit-session draft.
//
// Resolution walks at most three tiers, most-specific first:
//
//  1. (change set, edit session) - the caller's own uncommitted draft
//  2. (change set, no session)   - content saved into the change set
//  3. (head, no session)         - the shared baseline
//
// The first tier holding any version of the logical id terminates the
// walk. A tombstone found there shadows everything beneath it: a draft
// that deletes a head object really does hide it, without mutating head.
package visibility

// Sentinel pks marking "no change set" (head) and "no edit session".
// Persisted as-is in the visibility columns of every row.
const (
	NoChangeSet   int64 = -1
	NoEditSession int64 = -1
)

// Visibility is the (change set, edit session, include deleted) triple
// carried by every read and stamped onto every written row.
type Visibility struct {
	ChangeSetPk    int64 `json:"change_set_pk"`
	EditSessionPk  int64 `json:"edit_session_pk"`
	IncludeDeleted bool  `json:"include_deleted,omitempty"`
}

// ForHead returns the baseline view: no change set, no edit session.
func ForHead() Visibility {
	return Visibility{ChangeSetPk: NoChangeSet, EditSessionPk: NoEditSession}
}

// ForChangeSet returns the view of a change set's saved content overlaid
// on head.
func ForChangeSet(changeSetPk int64) Visibility {
	return Visibility{ChangeSetPk: changeSetPk, EditSessionPk: NoEditSession}
}

// ForEditSession returns the view of an edit session's draft overlaid on
// its change set and head.
func ForEditSession(changeSetPk, editSessionPk int64) Visibility {
	return Visibility{ChangeSetPk: changeSetPk, EditSessionPk: editSessionPk}
}

// WithDeleted returns a copy of v that also resolves tombstoned rows.
func (v Visibility) WithDeleted() Visibility {
	v.IncludeDeleted = true
	return v
}

// InChangeSet reports whether the view is scoped to a change set draft.
func (v Visibility) InChangeSet() bool {
	return v.ChangeSetPk != NoChangeSet
}

// InEditSession reports whether the view is scoped to an edit session
// draft.
func (v Visibility) InEditSession() bool {
	return v.EditSessionPk != NoEditSession
}

// Tiers returns the resolution fallback chain for this view, most
// specific first. Head resolution is a single tier; an edit session view
// yields all three.
func (v Visibility) Tiers() []Visibility {
	var tiers []Visibility
	if v.InEditSession() {
		tiers = append(tiers, Visibility{
			ChangeSetPk:    v.ChangeSetPk,
			EditSessionPk:  v.EditSessionPk,
			IncludeDeleted: v.IncludeDeleted,
		})
	}
	if v.InChangeSet() {
		tiers = append(tiers, Visibility{
			ChangeSetPk:    v.ChangeSetPk,
			EditSessionPk:  NoEditSession,
			IncludeDeleted: v.IncludeDeleted,
		})
	}
	tiers = append(tiers, Visibility{
		ChangeSetPk:    NoChangeSet,
		EditSessionPk:  NoEditSession,
		IncludeDeleted: v.IncludeDeleted,
	})
	return tiers
}
