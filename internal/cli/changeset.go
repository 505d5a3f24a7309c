package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/changeset"
	"github.com/sandalwing/si/internal/unitwork"
)

// NewChangeSetCommand creates the changeset command group.
func NewChangeSetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changeset",
		Short: "Manage change sets",
	}
	cmd.AddCommand(newChangeSetCreateCommand(rootOpts))
	cmd.AddCommand(newChangeSetListCommand(rootOpts))
	cmd.AddCommand(newChangeSetApplyCommand(rootOpts))
	cmd.AddCommand(newChangeSetAbandonCommand(rootOpts))
	return cmd
}

func parsePk(arg string) (int64, error) {
	pk, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pk %q", arg)
	}
	return pk, nil
}

func newChangeSetCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:           "create <name>",
		Short:         "Open a new change set",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.Create(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), args[0], note)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func newChangeSetListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List change sets",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.List(cmd.Context(), w, rootOpts.Scope(), changeset.Status(status))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Open|Applied|Abandoned)")
	return cmd
}

func newChangeSetApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "apply <pk>",
		Short:         "Merge a change set into head",
		Long:          "Promote the change set's content to head, or fail without side effects if any object changed at head since it was drafted.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := parsePk(args[0])
			if err != nil {
				return err
			}
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				c, promoted, err := app.Manager.Apply(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), pk)
				if err != nil {
					return nil, err
				}
				return map[string]any{"change_set": c, "promoted": promoted}, nil
			})
		},
	}
}

func newChangeSetAbandonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "abandon <pk>",
		Short:         "Abandon an open change set",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := parsePk(args[0])
			if err != nil {
				return err
			}
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Manager.Abandon(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), pk)
			})
		},
	}
}
