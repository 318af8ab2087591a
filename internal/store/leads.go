package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

const leadColumns = `id, email, first_name, last_name, company, industry,
	agent_enabled, agent_paused, status, next_check_at, last_action_at,
	follow_up_count, max_follow_ups, days_between_followups,
	priority_score, engagement_score, bounce_count, error_count,
	last_error_message, version, created_at, updated_at`

func scanLead(row scanner) (model.Lead, error) {
	var (
		l                   model.Lead
		status              string
		enabled, paused     int
		nextCheck, lastAct  sql.NullInt64
		createdAt, updateAt int64
	)
	err := row.Scan(&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Industry,
		&enabled, &paused, &status, &nextCheck, &lastAct,
		&l.FollowUpCount, &l.MaxFollowUps, &l.DaysBetweenFollowups,
		&l.PriorityScore, &l.EngagementScore, &l.BounceCount, &l.ErrorCount,
		&l.LastErrorMessage, &l.Version, &createdAt, &updateAt)
	if err != nil {
		return model.Lead{}, err
	}
	st, err := model.ParseLeadStatus(status)
	if err != nil {
		return model.Lead{}, fmt.Errorf("lead %d: %w", l.ID, err)
	}
	l.Status = st
	l.AgentEnabled = enabled != 0
	l.AgentPaused = paused != 0
	l.NextCheckAt = ptrFromNull(nextCheck)
	l.LastActionAt = ptrFromNull(lastAct)
	l.CreatedAt = fromMillis(createdAt)
	l.UpdatedAt = fromMillis(updateAt)
	return l, nil
}

func collectLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close()
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// InsertLead stores a new lead and returns it with id and version set.
func (q *queries) InsertLead(ctx context.Context, l model.Lead) (model.Lead, error) {
	if strings.TrimSpace(l.Email) == "" {
		return model.Lead{}, errors.New("lead email is required")
	}
	if l.Status == "" {
		l.Status = model.StatusNew
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	l.Version = 1

	res, err := q.db.ExecContext(ctx, `INSERT INTO leads (
		email, first_name, last_name, company, industry,
		agent_enabled, agent_paused, status, next_check_at, last_action_at,
		follow_up_count, max_follow_ups, days_between_followups,
		priority_score, engagement_score, bounce_count, error_count,
		last_error_message, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Email, l.FirstName, l.LastName, l.Company, l.Industry,
		boolInt(l.AgentEnabled), boolInt(l.AgentPaused), string(l.Status),
		nullMillis(l.NextCheckAt), nullMillis(l.LastActionAt),
		l.FollowUpCount, l.MaxFollowUps, l.DaysBetweenFollowups,
		l.PriorityScore, l.EngagementScore, l.BounceCount, l.ErrorCount,
		l.LastErrorMessage, l.Version, toMillis(l.CreatedAt), toMillis(l.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.Lead{}, fmt.Errorf("insert lead %s: %w", l.Email, ErrDuplicate)
		}
		return model.Lead{}, fmt.Errorf("insert lead %s: %w", l.Email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Lead{}, fmt.Errorf("insert lead id: %w", err)
	}
	l.ID = id
	return l, nil
}

// GetLead loads one lead.
func (q *queries) GetLead(ctx context.Context, id int64) (model.Lead, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, fmt.Errorf("lead %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("get lead %d: %w", id, err)
	}
	return l, nil
}

// UpdateLead writes l if its Version still matches the stored row and
// returns it with the bumped version.
func (q *queries) UpdateLead(ctx context.Context, l model.Lead) (model.Lead, error) {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `UPDATE leads SET
		email = ?, first_name = ?, last_name = ?, company = ?, industry = ?,
		agent_enabled = ?, agent_paused = ?, status = ?, next_check_at = ?, last_action_at = ?,
		follow_up_count = ?, max_follow_ups = ?, days_between_followups = ?,
		priority_score = ?, engagement_score = ?, bounce_count = ?, error_count = ?,
		last_error_message = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`,
		l.Email, l.FirstName, l.LastName, l.Company, l.Industry,
		boolInt(l.AgentEnabled), boolInt(l.AgentPaused), string(l.Status),
		nullMillis(l.NextCheckAt), nullMillis(l.LastActionAt),
		l.FollowUpCount, l.MaxFollowUps, l.DaysBetweenFollowups,
		l.PriorityScore, l.EngagementScore, l.BounceCount, l.ErrorCount,
		l.LastErrorMessage, toMillis(now), l.ID, l.Version)
	if err != nil {
		return model.Lead{}, fmt.Errorf("update lead %d: %w", l.ID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return model.Lead{}, fmt.Errorf("update lead %d: %w", l.ID, err)
	}
	if n == 0 {
		if _, err := q.GetLead(ctx, l.ID); err != nil {
			return model.Lead{}, err
		}
		return model.Lead{}, fmt.Errorf("lead %d at version %d: %w", l.ID, l.Version, ErrVersionConflict)
	}
	l.Version++
	l.UpdatedAt = now
	return l, nil
}

// FetchEligible returns up to limit leads that pass the cheap eligibility
// filters, ordered by priority desc, engagement desc, id asc.
func (q *queries) FetchEligible(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads
	WHERE agent_enabled = 1
	  AND agent_paused = 0
	  AND status IN (?, ?, ?)
	  AND (next_check_at IS NULL OR next_check_at <= ?)
	  AND follow_up_count < max_follow_ups
	ORDER BY priority_score DESC, engagement_score DESC, id ASC
	LIMIT ?`,
		string(model.StatusNew), string(model.StatusContacted), string(model.StatusFollowUpDue),
		toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch eligible leads: %w", err)
	}
	leads, err := collectLeads(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch eligible leads: %w", err)
	}
	return leads, nil
}

// LeadFilter narrows ListLeads.
type LeadFilter struct {
	Status model.LeadStatus
	Limit  int
}

// ListLeads returns leads for the admin surface, newest first.
func (q *queries) ListLeads(ctx context.Context, f LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return collectLeads(rows)
}

// CountLeadsByStatus returns how many leads are in each status.
func (q *queries) CountLeadsByStatus(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	defer rows.Close()

	out := make(map[model.LeadStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count leads: %w", err)
		}
		out[model.LeadStatus(status)] = n
	}
	return out, rows.Err()
}
