package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/unitwork"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		labelPrefix string
		byActor     string
		limit       int
	)
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Read the append-only history ledger",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd, func(app *App, w *unitwork.Work) (any, error) {
				filter := history.Filter{LabelPrefix: labelPrefix}
				if byActor != "" {
					a := actor.User(byActor)
					filter.Actor = &a
				}
				cur := history.List(app.DB, w.Tx(), rootOpts.Scope(), filter)
				var events []history.Event
				for cur.Next(cmd.Context()) {
					events = append(events, cur.Event())
					if limit > 0 && len(events) >= limit {
						break
					}
				}
				if err := cur.Err(); err != nil {
					return nil, err
				}
				return events, nil
			})
		},
	}
	cmd.Flags().StringVar(&labelPrefix, "label-prefix", "", "only events whose label starts with the prefix")
	cmd.Flags().StringVar(&byActor, "by", "", "only events recorded by this user")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many events (0 for all)")
	return cmd
}
