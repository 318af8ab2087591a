package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/app"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

var (
	leadAdd        = model.NewLead("")
	leadListStatus string
	leadListLimit  int
	leadReplyKind  string
)

// leadsCmd groups lead management.
var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Manage leads",
}

var leadsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Import a lead",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			lead, err := a.Runner().AddLead(ctx, leadAdd)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), lead, leadText(lead))
		})
	},
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := store.LeadFilter{Limit: leadListLimit}
		if leadListStatus != "" {
			status, err := model.ParseLeadStatus(leadListStatus)
			if err != nil {
				return err
			}
			f.Status = status
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			leads, err := a.Runner().ListLeads(ctx, f)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), leads, leadsText(leads))
		})
	},
}

var leadsPauseCmd = leadCommand("pause <id>", "Exclude a lead from cycles",
	func(ctx context.Context, a *app.App, id int64) (model.Lead, error) {
		return a.Runner().PauseLead(ctx, id)
	})

var leadsResumeCmd = leadCommand("resume <id>", "Make a paused lead eligible again",
	func(ctx context.Context, a *app.App, id int64) (model.Lead, error) {
		return a.Runner().ResumeLead(ctx, id)
	})

var leadsResetCmd = leadCommand("reset <id>", "Return a lead in status error to its sequence",
	func(ctx context.Context, a *app.App, id int64) (model.Lead, error) {
		return a.Runner().ResetLead(ctx, id)
	})

var leadsReplyCmd = leadCommand("reply <id>", "Record an inbound reply for a lead",
	func(ctx context.Context, a *app.App, id int64) (model.Lead, error) {
		return a.Runner().RecordReply(ctx, id, model.Outcome(leadReplyKind))
	})

// leadCommand builds a command that changes one lead by ID.
func leadCommand(use, short string, fn func(ctx context.Context, a *app.App, id int64) (model.Lead, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid lead id %q", args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				lead, err := fn(ctx, a, id)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), lead, leadText(lead))
			})
		},
	}
}

func init() {
	f := leadsAddCmd.Flags()
	f.StringVar(&leadAdd.Email, "email", "", "Recipient address")
	f.StringVar(&leadAdd.FirstName, "first-name", "", "First name")
	f.StringVar(&leadAdd.LastName, "last-name", "", "Last name")
	f.StringVar(&leadAdd.Company, "company", "", "Company")
	f.StringVar(&leadAdd.Industry, "industry", "", "Industry")
	f.Float64Var(&leadAdd.PriorityScore, "priority", 0, "Priority score, higher is contacted first")
	f.IntVar(&leadAdd.MaxFollowUps, "max-follow-ups", model.DefaultMaxFollowUps, "Follow-ups after the initial message")
	f.IntVar(&leadAdd.DaysBetweenFollowups, "days-between", model.DefaultDaysBetweenFollowups, "Days between follow-ups")
	_ = leadsAddCmd.MarkFlagRequired("email")

	leadsListCmd.Flags().StringVar(&leadListStatus, "status", "", "Filter by status")
	leadsListCmd.Flags().IntVarP(&leadListLimit, "limit", "n", 100, "Maximum number of leads")

	leadsReplyCmd.Flags().StringVar(&leadReplyKind, "kind", string(model.OutcomeReplied),
		"Reply classification (replied, interested, not_interested)")

	leadsCmd.AddCommand(leadsAddCmd)
	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsPauseCmd)
	leadsCmd.AddCommand(leadsResumeCmd)
	leadsCmd.AddCommand(leadsResetCmd)
	leadsCmd.AddCommand(leadsReplyCmd)
}
