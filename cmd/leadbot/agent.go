package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/app"
)

// statusCmd prints the agent status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent state, budgets and safety",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Runner().Status(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), st, statusText(st))
		})
	},
}

var startCmd = controlCommand("start", "Move the agent to running", func(r *agent.Runner) controlFunc { return r.Start })
var stopCmd = controlCommand("stop", "Move the agent to stopped", func(r *agent.Runner) controlFunc { return r.Stop })
var pauseCmd = controlCommand("pause", "Pause a running agent", func(r *agent.Runner) controlFunc { return r.Pause })
var resumeCmd = controlCommand("resume", "Resume a paused agent and clear the safety trip", func(r *agent.Runner) controlFunc { return r.Resume })

type controlFunc func(ctx context.Context) (agent.Status, error)

// controlCommand builds one of the run state commands. They print the
// resulting status either way.
func controlCommand(use, short string, op func(r *agent.Runner) controlFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := op(a.Runner())(ctx)
				if errors.Is(err, agent.ErrNotRunning) {
					return fmt.Errorf("cannot %s: %w", use, err)
				}
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), st, statusText(st))
			})
		},
	}
}

// resetCountersCmd zeroes the daily and hourly counters.
var resetCountersCmd = &cobra.Command{
	Use:   "reset-counters",
	Short: "Zero the daily and hourly send counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.Runner().ResetCounters(ctx); err != nil {
				return err
			}
			st, err := a.Runner().Status(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), st, statusText(st))
		})
	},
}

var errUnhealthy = errors.New("agent is unhealthy")

// healthCmd evaluates the health checks once without alerting.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Evaluate health checks once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep := a.Health().Evaluate(ctx)
			if err := render(cmd.OutOrStdout(), rep, healthText(rep)); err != nil {
				return err
			}
			if !rep.Healthy {
				return errUnhealthy
			}
			return nil
		})
	},
}
