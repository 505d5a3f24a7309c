package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/unitwork"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage edit sessions inside a change set",
	}
	cmd.AddCommand(newSessionOpenCommand(rootOpts))
	cmd.AddCommand(newSessionListCommand(rootOpts))
	cmd.AddCommand(newSessionSaveCommand(rootOpts))
	cmd.AddCommand(newSessionCancelCommand(rootOpts))
	return cmd
}

func newSessionOpenCommand(rootOpts *RootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:           "open <name>",
		Short:         "Open an edit session in the current change set",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.OpenSession(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.ChangeSet, args[0], note)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func newSessionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the current change set's edit sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.ListSessions(cmd.Context(), w, rootOpts.Scope(), rootOpts.ChangeSet)
			})
		},
	}
}

func newSessionSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "save <pk>",
		Short:         "Save an edit session into its change set",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := parsePk(args[0])
			if err != nil {
				return err
			}
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.SaveSession(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), pk)
			})
		},
	}
}

func newSessionCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cancel <pk>",
		Short:         "Cancel an edit session, orphaning its drafts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := parsePk(args[0])
			if err != nil {
				return err
			}
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.CancelSession(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), pk)
			})
		},
	}
}
