// Package tenancy determines which rows an actor or workspace may read or
// write. Every persisted row carries a tenancy, and every store operation
// is filtered through the caller's scope before visibility resolution runs.
//
// Read scope is deliberately broader than write scope: universal rows are
// readable from any workspace scope but writable only from the universal
// scope, and a workspace scope never touches another workspace's rows.
package tenancy

import "fmt"

// Tenancy identifies either the universal (global) scope or a single
// workspace. The zero value is not a valid scope; use Universal or
// ForWorkspace.
type Tenancy struct {
	Universal   bool   `json:"universal"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Universal returns the global scope. Universal rows are shared baseline
// content (builtin schemas, intrinsic funcs) visible to every workspace.
func Universal() Tenancy {
	return Tenancy{Universal: true}
}

// ForWorkspace returns the scope bound to a single workspace.
func ForWorkspace(id string) Tenancy {
	return Tenancy{WorkspaceID: id}
}

// Valid reports whether the scope names exactly one of universal or a
// workspace.
func (t Tenancy) Valid() bool {
	if t.Universal {
		return t.WorkspaceID == ""
	}
	return t.WorkspaceID != ""
}

// AppliesToRead reports whether a row with tenancy row is readable from
// this scope.
//
// Workspace scopes read universal rows plus their own workspace's rows.
// The universal scope reads only universal rows.
func (t Tenancy) AppliesToRead(row Tenancy) bool {
	if row.Universal {
		return true
	}
	if t.Universal {
		return false
	}
	return t.WorkspaceID == row.WorkspaceID
}

// AppliesToWrite reports whether a row with tenancy row is writable from
// this scope. Write scope is exact: universal writes universal, a
// workspace writes only itself.
func (t Tenancy) AppliesToWrite(row Tenancy) bool {
	if t.Universal {
		return row.Universal
	}
	return !row.Universal && t.WorkspaceID == row.WorkspaceID
}

func (t Tenancy) String() string {
	if t.Universal {
		return "universal"
	}
	return fmt.Sprintf("workspace:%s", t.WorkspaceID)
}
