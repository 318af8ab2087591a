package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/app"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

var (
	logsAction  string
	logsOutcome string
	logsLead    int64
	logsRun     string
	logsSince   time.Duration
	logsLimit   int

	statsSince time.Duration
)

// logsCmd lists the action log.
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List action log entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := store.ActionFilter{
			ActionType: model.ActionType(logsAction),
			Outcome:    model.Outcome(logsOutcome),
			LeadID:     logsLead,
			RunID:      logsRun,
			Limit:      logsLimit,
		}
		if logsSince > 0 {
			f.Since = time.Now().Add(-logsSince)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Runner().ListActions(ctx, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), entries, actionsText(entries))
		})
	},
}

// statsCmd summarizes the action log.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize activity over a period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Runner().Statistics(ctx, time.Now().Add(-statsSince))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), st, statsText(st))
		})
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsAction, "action", "", "Filter by action type (send_initial, send_followup, skip, error, reply, reset, control)")
	logsCmd.Flags().StringVar(&logsOutcome, "outcome", "", "Filter by outcome")
	logsCmd.Flags().Int64Var(&logsLead, "lead", 0, "Filter by lead ID")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Filter by cycle run ID")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only entries newer than this, e.g. 24h")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "Maximum number of entries")

	statsCmd.Flags().DurationVar(&statsSince, "since", 7*24*time.Hour, "Period to summarize")
}
