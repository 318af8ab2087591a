package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

const actionColumns = `id, run_id, action_type, outcome, lead_id, lead_email,
	decision_reason, metadata, error_message, execution_ms,
	emails_sent_before, emails_sent_this_hour_before, created_at`

func scanAction(row scanner) (model.ActionLogEntry, error) {
	var (
		e              model.ActionLogEntry
		actionType     string
		outcome        string
		leadID         sql.NullInt64
		metadata       string
		execMs, create int64
	)
	err := row.Scan(&e.ID, &e.RunID, &actionType, &outcome, &leadID, &e.LeadEmail,
		&e.DecisionReason, &metadata, &e.ErrorMessage, &execMs,
		&e.EmailsSentBefore, &e.EmailsSentThisHourBefore, &create)
	if err != nil {
		return model.ActionLogEntry{}, err
	}
	e.ActionType = model.ActionType(actionType)
	e.Outcome = model.Outcome(outcome)
	if leadID.Valid {
		e.LeadID = leadID.Int64
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return model.ActionLogEntry{}, fmt.Errorf("action %d metadata: %w", e.ID, err)
		}
	}
	e.ExecutionTime = time.Duration(execMs) * time.Millisecond
	e.CreatedAt = fromMillis(create)
	return e, nil
}

// AppendAction adds an entry to the action log.
func (q *queries) AppendAction(ctx context.Context, e model.ActionLogEntry) (model.ActionLogEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return model.ActionLogEntry{}, fmt.Errorf("encode action metadata: %w", err)
		}
		meta = string(b)
	}
	var leadID sql.NullInt64
	if e.LeadID != 0 {
		leadID = sql.NullInt64{Int64: e.LeadID, Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `INSERT INTO action_log (
		run_id, action_type, outcome, lead_id, lead_email, decision_reason,
		metadata, error_message, execution_ms, emails_sent_before,
		emails_sent_this_hour_before, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, string(e.ActionType), string(e.Outcome), leadID, e.LeadEmail, e.DecisionReason,
		meta, e.ErrorMessage, e.ExecutionTime.Milliseconds(), e.EmailsSentBefore,
		e.EmailsSentThisHourBefore, toMillis(e.CreatedAt))
	if err != nil {
		return model.ActionLogEntry{}, fmt.Errorf("append action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ActionLogEntry{}, fmt.Errorf("append action id: %w", err)
	}
	e.ID = id
	return e, nil
}

// ActionFilter narrows ListActions. Zero fields are ignored.
type ActionFilter struct {
	ActionType model.ActionType
	Outcome    model.Outcome
	LeadID     int64
	RunID      string
	Since      time.Time
	Limit      int
}

// ListActions returns matching entries, newest first.
func (q *queries) ListActions(ctx context.Context, f ActionFilter) ([]model.ActionLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(f.ActionType))
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if f.LeadID != 0 {
		where = append(where, "lead_id = ?")
		args = append(args, f.LeadID)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(f.Since))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `SELECT ` + actionColumns + ` FROM action_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []model.ActionLogEntry
	for rows.Next() {
		e, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("list actions: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentOutcomes returns send outcomes at or after since, oldest first,
// keeping only the newest limit entries.
func (q *queries) RecentOutcomes(ctx context.Context, since time.Time, limit int) ([]model.TimedOutcome, error) {
	if limit <= 0 {
		limit = -1
	}
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = toMillis(since)
	}
	rows, err := q.db.QueryContext(ctx, `SELECT outcome, created_at FROM action_log
	WHERE outcome IN (?, ?, ?) AND created_at >= ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`,
		string(model.OutcomeSent), string(model.OutcomeTransientFailure), string(model.OutcomePermanentFailure),
		sinceMs, limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.TimedOutcome
	for rows.Next() {
		var (
			outcome string
			at      int64
		)
		if err := rows.Scan(&outcome, &at); err != nil {
			return nil, fmt.Errorf("recent outcomes: %w", err)
		}
		out = append(out, model.TimedOutcome{Outcome: model.Outcome(outcome), At: fromMillis(at)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ActionCount is one row of the action statistics.
type ActionCount struct {
	ActionType model.ActionType `json:"action_type" yaml:"action_type"`
	Outcome    model.Outcome    `json:"outcome" yaml:"outcome"`
	Count      int              `json:"count" yaml:"count"`
}

// ActionStats groups entries since the given time by type and outcome.
func (q *queries) ActionStats(ctx context.Context, since time.Time) ([]ActionCount, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT action_type, outcome, COUNT(*) FROM action_log
	WHERE created_at >= ?
	GROUP BY action_type, outcome
	ORDER BY action_type, outcome`, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("action stats: %w", err)
	}
	defer rows.Close()

	var out []ActionCount
	for rows.Next() {
		var (
			c          ActionCount
			at, outcom string
		)
		if err := rows.Scan(&at, &outcom, &c.Count); err != nil {
			return nil, fmt.Errorf("action stats: %w", err)
		}
		c.ActionType = model.ActionType(at)
		c.Outcome = model.Outcome(outcom)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSendAt returns the time of the newest send result, or nil.
func (q *queries) LastSendAt(ctx context.Context) (*time.Time, error) {
	var at sql.NullInt64
	err := q.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM action_log WHERE outcome IN (?, ?, ?)`,
		string(model.OutcomeSent), string(model.OutcomeTransientFailure), string(model.OutcomePermanentFailure)).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("last send: %w", err)
	}
	return ptrFromNull(at), nil
}

// PurgeActions deletes entries older than before and returns how many.
func (s *SQLite) PurgeActions(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM action_log WHERE created_at < ?`, toMillis(before))
		if err != nil {
			return err
		}
		n, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge actions: %w", err)
	}
	return n, nil
}
