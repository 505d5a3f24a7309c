package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/model"
	"github.com/sandalwing/si/internal/unitwork"
)

// NewObjectCommand creates the object command group.
func NewObjectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Create, read, update and delete versioned objects",
	}
	cmd.AddCommand(newObjectCreateCommand(rootOpts))
	cmd.AddCommand(newObjectGetCommand(rootOpts))
	cmd.AddCommand(newObjectListCommand(rootOpts))
	cmd.AddCommand(newObjectUpdateCommand(rootOpts))
	cmd.AddCommand(newObjectDeleteCommand(rootOpts))
	return cmd
}

// objectCmd wraps the shared open/run/format plumbing of the object
// subcommands.
func objectCmd(rootOpts *RootOptions, cmd *cobra.Command, kind string, fn func(app *App, w *unitwork.Work, s *model.Store) (any, error)) error {
	app, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer app.Close()
	f := &Formatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

	store, err := app.Engine.Kind(kind)
	if err != nil {
		return f.Failure(err)
	}
	var out any
	err = app.Coord.Run(cmd.Context(), func(w *unitwork.Work) error {
		out, err = fn(app, w, store)
		return err
	})
	if err != nil {
		return f.Failure(err)
	}
	return f.Success(out)
}

func newObjectCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind    string
		name    string
		variant string
		payload string
	)
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create an object",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(payload)
			if err != nil {
				return err
			}
			return objectCmd(rootOpts, cmd, kind, func(app *App, w *unitwork.Work, s *model.Store) (any, error) {
				return s.CreateVariant(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.Vis(), name, variant, raw)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (required)")
	cmd.Flags().StringVar(&name, "name", "", "object name")
	cmd.Flags().StringVar(&variant, "variant", "", "default-payload variant when no payload is given")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload, @file, or - for stdin")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newObjectGetCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:           "get <id>",
		Short:         "Resolve an object at the current visibility",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return objectCmd(rootOpts, cmd, kind, func(app *App, w *unitwork.Work, s *model.Store) (any, error) {
				return s.Find(cmd.Context(), w, rootOpts.Scope(), rootOpts.Vis(), args[0])
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (required)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newObjectListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List objects of a kind at the current visibility",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return objectCmd(rootOpts, cmd, kind, func(app *App, w *unitwork.Work, s *model.Store) (any, error) {
				return s.List(cmd.Context(), w, rootOpts.Scope(), rootOpts.Vis())
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (required)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newObjectUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind    string
		name    string
		payload string
	)
	cmd := &cobra.Command{
		Use:           "update <id>",
		Short:         "Write a new version of an object",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(payload)
			if err != nil {
				return err
			}
			if raw == nil && !cmd.Flags().Changed("name") {
				return fmt.Errorf("nothing to update: provide --payload and/or --name")
			}
			return objectCmd(rootOpts, cmd, kind, func(app *App, w *unitwork.Work, s *model.Store) (any, error) {
				return s.Update(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.Vis(), args[0],
					func(r *model.Row) error {
						if raw != nil {
							r.Payload = json.RawMessage(raw)
						}
						if cmd.Flags().Changed("name") {
							r.Name = name
						}
						return nil
					})
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (required)")
	cmd.Flags().StringVar(&name, "name", "", "new object name")
	cmd.Flags().StringVar(&payload, "payload", "", "new JSON payload, @file, or - for stdin")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newObjectDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Soft-delete an object at the current visibility",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return objectCmd(rootOpts, cmd, kind, func(app *App, w *unitwork.Work, s *model.Store) (any, error) {
				return s.SoftDelete(cmd.Context(), w, rootOpts.Act(), rootOpts.Scope(), rootOpts.Vis(), args[0])
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (required)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
