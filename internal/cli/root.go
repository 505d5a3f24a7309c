// Package cli implements the si command line: schema bootstrap, object
// CRUD, relations, change-set and edit-session lifecycle, and the
// history ledger.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/visibility"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Config  string
	Verbose bool
	Format  string // "json" | "text"

	// Workspace scopes every operation; empty means the universal
	// scope.
	Workspace string

	// Actor attributes mutations in the history ledger; empty means
	// the system actor.
	Actor string

	// ChangeSet and EditSession select the visibility drafts are read
	// and written at. Zero means head.
	ChangeSet      int64
	EditSession    int64
	IncludeDeleted bool
}

// Scope returns the tenancy scope selected by the flags.
func (o *RootOptions) Scope() tenancy.Tenancy {
	if o.Workspace == "" {
		return tenancy.Universal()
	}
	return tenancy.ForWorkspace(o.Workspace)
}

// Vis returns the visibility selected by the flags.
func (o *RootOptions) Vis() visibility.Visibility {
	v := visibility.ForHead()
	if o.ChangeSet != 0 {
		v = visibility.ForChangeSet(o.ChangeSet)
	}
	if o.EditSession != 0 {
		v = visibility.ForEditSession(o.ChangeSet, o.EditSession)
	}
	if o.IncludeDeleted {
		v = v.WithDeleted()
	}
	return v
}

// Act returns the acting identity selected by the flags.
func (o *RootOptions) Act() actor.Actor {
	if o.Actor == "" {
		return actor.System
	}
	return actor.User(o.Actor)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the si CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "si",
		Short: "si - versioned record store",
		Long: `si manages versioned objects behind change sets and edit sessions.

Every mutation writes a new version; head only moves when a change set
is applied. Reads resolve through the edit session, then the change set,
then head.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.EditSession != 0 && opts.ChangeSet == 0 {
				return fmt.Errorf("--edit-session requires --change-set")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Workspace, "workspace", "", "workspace scope (empty for universal)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "acting user id (empty for system)")
	cmd.PersistentFlags().Int64Var(&opts.ChangeSet, "change-set", 0, "change set pk to work in")
	cmd.PersistentFlags().Int64Var(&opts.EditSession, "edit-session", 0, "edit session pk to work in")
	cmd.PersistentFlags().BoolVar(&opts.IncludeDeleted, "include-deleted", false, "resolve tombstoned objects too")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewObjectCommand(opts))
	cmd.AddCommand(NewRelationCommand(opts))
	cmd.AddCommand(NewChangeSetCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
