// Package si defines the shared error taxonomy for the versioned record
// model. Every component reports failures through these types so callers
// can branch on category without string matching.
package si

import (
	"errors"
	"fmt"
)

// Sentinel errors for the common failure categories. Components wrap these
// with fmt.Errorf("...: %w", ...) to add context; callers test with
// errors.Is.
var (
	// ErrNotFound indicates no live row resolved for the requested
	// logical id under the caller's tenancy and visibility.
	ErrNotFound = errors.New("not found")

	// ErrTenancyViolation indicates a read or write outside the caller's
	// configured tenancy scope.
	ErrTenancyViolation = errors.New("tenancy violation")

	// ErrInvalidRelation indicates a relation write that violates a
	// structural invariant of the relation kind (e.g. parenting a prop
	// under a non-container prop).
	ErrInvalidRelation = errors.New("invalid relation")

	// ErrInvalidTransition indicates a lifecycle operation on a change
	// set or edit session that is not in the Open status.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// ApplyConflictError reports that a change set could not be applied because
// head moved underneath it: some logical id promoted by this change set was
// mutated at head by a different, already-applied change set after this one
// first drafted it.
//
// The whole apply transaction is rolled back; no partial merges occur.
type ApplyConflictError struct {
	// ChangeSetPk identifies the change set whose apply was rejected.
	ChangeSetPk int64

	// Kind is the entity kind of the conflicting row.
	Kind string

	// LogicalID is the stable identity of the conflicting object.
	LogicalID string

	// BaseHash is the head content hash recorded when the change set
	// first drafted the object ("" when it was drafted as a new object).
	BaseHash string

	// HeadHash is the head content hash observed at apply time.
	HeadHash string
}

func (e *ApplyConflictError) Error() string {
	return fmt.Sprintf("apply conflict: change set %d: %s %q changed at head since drafting",
		e.ChangeSetPk, e.Kind, e.LogicalID)
}

// StorageError wraps an underlying database failure. A StorageError always
// aborts the whole unit of work; nothing written before it survives.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for operation op. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// DeliveryError reports a post-commit notification flush failure. The
// transaction has already durably committed when this is returned: the data
// is safe, the notification was dropped. It is logged, never retried, and
// never rolls anything back.
type DeliveryError struct {
	Kind      string
	Delivered int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification delivery failed after commit: %s (delivered %d before failure): %v",
		e.Kind, e.Delivered, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
