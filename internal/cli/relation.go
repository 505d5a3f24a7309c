package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/unitwork"
)

// NewRelationCommand creates the relation command group.
func NewRelationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Link and unlink objects through typed relations",
	}
	cmd.AddCommand(newRelationAddCommand(rootOpts))
	cmd.AddCommand(newRelationRemoveCommand(rootOpts))
	cmd.AddCommand(newRelationListCommand(rootOpts))
	return cmd
}

func runWork(rootOpts *RootOptions, cmd *cobra.Command, fn func(app *App, w *unitwork.Work) (any, error)) error {
	app, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer app.Close()
	f := &Formatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

	var out any
	err = app.Coord.Run(cmd.Context(), func(w *unitwork.Work) error {
		out, err = fn(app, w)
		return err
	})
	if err != nil {
		return f.Failure(err)
	}
	return f.Success(out)
}

func newRelationAddCommand(rootOpts *RootOptions) *cobra.Command {
	var kind, parent, child string
	cmd := &cobra.Command{
		Use:           "add",
		Short:         "Relate a parent object to a child object",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Engine.Relate(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.Vis(), kind, parent, child)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "relation kind (required)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent object id (required)")
	cmd.Flags().StringVar(&child, "child", "", "child object id (required)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("child")
	return cmd
}

func newRelationRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var kind, parent, child string
	cmd := &cobra.Command{
		Use:           "remove",
		Short:         "Tombstone a relation at the current visibility",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Engine.Unrelate(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.Vis(), kind, parent, child)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "relation kind (required)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent object id (required)")
	cmd.Flags().StringVar(&child, "child", "", "child object id (required)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("child")
	return cmd
}

func newRelationListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind, parent string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the children related to a parent",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				return app.Engine.ListRelated(cmd.Context(), w, rootOpts.Scope(), rootOpts.Vis(), kind, parent)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "relation kind (required)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent object id (required)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}
