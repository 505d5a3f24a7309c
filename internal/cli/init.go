package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/storage"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database schema",
		Long: `Apply the base schema and one table per registered entity and
relation kind. Safe to run repeatedly; existing tables are left alone.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := &Formatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			if err := storage.EnsureSchema(cmd.Context(), app.DB, app.Reg); err != nil {
				return f.Failure(err)
			}
			return f.Success(fmt.Sprintf("schema ready (%d kinds, %d relations)",
				len(app.Reg.Defs()), len(app.Reg.Relations())))
		},
	}
}
