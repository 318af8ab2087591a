package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/health"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

// render writes v in the selected output format. text falls back to JSON
// when nil.
func render(w io.Writer, v any, text func(io.Writer) error) error {
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		return writeJSON(w, v)
	default:
		if text == nil {
			return writeJSON(w, v)
		}
		return text(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func statusText(st agent.Status) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "State:\t%s\n", st.State)
		if st.PauseReason != "" {
			fmt.Fprintf(tw, "Pause reason:\t%s\n", st.PauseReason)
		}
		fmt.Fprintf(tw, "Sent today:\t%d (remaining %d)\n", st.EmailsSentToday, st.DailyRemaining)
		fmt.Fprintf(tw, "Sent this hour:\t%d (remaining %d)\n", st.EmailsSentThisHour, st.HourlyRemaining)
		fmt.Fprintf(tw, "Business hours:\t%t\n", st.InBusinessHours)
		if st.NextOpening != nil {
			fmt.Fprintf(tw, "Next opening:\t%s\n", formatTime(st.NextOpening))
		}
		fmt.Fprintf(tw, "Error rate:\t%.1f%% over %d outcomes\n", st.ErrorRate, st.WindowTotal)
		fmt.Fprintf(tw, "Oracle breaker:\t%s\n", st.OracleBreaker)
		fmt.Fprintf(tw, "Transport breaker:\t%s\n", st.SendBreaker)
		fmt.Fprintf(tw, "Last run:\t%s\n", formatTime(st.LastRunAt))
		fmt.Fprintf(tw, "Next run:\t%s\n", formatTime(st.NextRunAt))
		fmt.Fprintf(tw, "Last send:\t%s\n", formatTime(st.LastSendAt))
		fmt.Fprintf(tw, "Leads:\t%s\n", formatLeadCounts(st.LeadsByStatus))
		return tw.Flush()
	}
}

func formatLeadCounts(counts map[model.LeadStatus]int) string {
	var parts []string
	for _, s := range model.AllStatuses {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func cycleText(res agent.CycleResult) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "run %s: %s (sent=%d skipped=%d errored=%d, %s)\n",
			res.RunID, res.Status, res.Sent, res.Skipped, res.Errored, res.Duration.Round(time.Millisecond))
		if res.Reason != "" {
			fmt.Fprintf(w, "reason: %s\n", res.Reason)
		}
		return nil
	}
}

func actionsText(entries []model.ActionLogEntry) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tACTION\tOUTCOME\tLEAD\tREASON")
		for _, e := range entries {
			lead := "-"
			if e.LeadID != 0 {
				lead = fmt.Sprintf("%d %s", e.LeadID, e.LeadEmail)
			}
			reason := e.DecisionReason
			if e.ErrorMessage != "" {
				reason = strings.TrimSpace(reason + " " + e.ErrorMessage)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.CreatedAt.Format(time.RFC3339), e.ActionType, e.Outcome, lead, reason)
		}
		return tw.Flush()
	}
}

func statsText(st agent.Statistics) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Since:\t%s\n", st.Since.Format(time.RFC3339))
		fmt.Fprintf(tw, "Sent:\t%d\n", st.Sent)
		fmt.Fprintf(tw, "Failed:\t%d\n", st.Failed)
		fmt.Fprintf(tw, "Skipped:\t%d\n", st.Skipped)
		fmt.Fprintf(tw, "Replies:\t%d\n", st.Replies)
		fmt.Fprintf(tw, "Success rate:\t%.1f%%\n", st.SuccessRate)
		fmt.Fprintf(tw, "Lifetime:\tsent=%d replies=%d errors=%d\n",
			st.TotalEmailsSent, st.TotalRepliesReceived, st.TotalErrors)
		fmt.Fprintf(tw, "Leads:\t%s\n", formatLeadCounts(st.LeadsByStatus))

		actions := append([]store.ActionCount(nil), st.Actions...)
		sort.Slice(actions, func(i, j int) bool {
			if actions[i].ActionType != actions[j].ActionType {
				return actions[i].ActionType < actions[j].ActionType
			}
			return actions[i].Outcome < actions[j].Outcome
		})
		for _, c := range actions {
			fmt.Fprintf(tw, "  %s/%s\t%d\n", c.ActionType, c.Outcome, c.Count)
		}
		return tw.Flush()
	}
}

func leadsText(leads []model.Lead) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tCOMPANY\tSTATUS\tFOLLOW-UPS\tNEXT CHECK\tFLAGS")
		for _, l := range leads {
			var flags []string
			if !l.AgentEnabled {
				flags = append(flags, "disabled")
			}
			if l.AgentPaused {
				flags = append(flags, "paused")
			}
			if l.ErrorCount > 0 {
				flags = append(flags, fmt.Sprintf("errors=%d", l.ErrorCount))
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				l.ID, l.Email, l.FullName(), l.Company, l.Status,
				l.FollowUpCount, l.MaxFollowUps, formatTime(l.NextCheckAt), strings.Join(flags, ","))
		}
		return tw.Flush()
	}
}

func leadText(l model.Lead) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "lead %d <%s>: status=%s paused=%t follow_ups=%d/%d next_check=%s\n",
			l.ID, l.Email, l.Status, l.AgentPaused, l.FollowUpCount, l.MaxFollowUps, formatTime(l.NextCheckAt))
		return nil
	}
}

func healthText(rep health.Report) func(io.Writer) error {
	return func(w io.Writer) error {
		state := "healthy"
		if !rep.Healthy {
			state = "unhealthy"
		}
		fmt.Fprintf(w, "%s (agent %s)\n", state, rep.State)
		for _, a := range rep.Alerts {
			fmt.Fprintf(w, "  [%s] %s: %s\n", a.Severity, a.Kind, a.Message)
		}
		return nil
	}
}
