package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/app"
)

// cycleCmd runs a single decision cycle in the foreground.
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one decision cycle now",
	Long: `Run one decision cycle in the foreground and print its result.
The cycle honours the same run lock, business hours, budgets and safety
switch as the scheduled one; a stopped agent reports not_running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Runner().RunCycle(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), res, cycleText(res))
		})
	},
}
