package cleanup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

type failingPurger struct{}

func (failingPurger) PurgeActions(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestRunner_PurgesOldEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

	s, err := store.Open(ctx, store.Config{Path: filepath.Join(t.TempDir(), "leadbot.db")}, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	for _, age := range []time.Duration{200 * 24 * time.Hour, 91 * 24 * time.Hour, 89 * 24 * time.Hour, time.Hour} {
		_, err := s.AppendAction(ctx, model.ActionLogEntry{
			ActionType: model.ActionControl,
			Outcome:    model.OutcomeApplied,
			CreatedAt:  now.Add(-age),
		})
		require.NoError(t, err)
	}

	r := NewRunner(Config{}, s)
	r.now = func() time.Time { return now }

	out, err := r.Execute(ctx, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "purged 2 entries older than 2026-07-16", out)

	stats, last := r.LastRun()
	assert.Equal(t, int64(2), stats.Purged)
	assert.Equal(t, now, last)

	left, err := s.ListActions(ctx, store.ActionFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2)

	// Повторный запуск ничего не удаляет
	stats, err = r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Purged)
}

func TestRunner_CustomRetention(t *testing.T) {
	r := NewRunner(Config{RetentionDays: 7}, failingPurger{})
	r.now = func() time.Time { return time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC) }

	stats, err := r.Run(context.Background(), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log retention")
	assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), stats.Cutoff)

	_, last := r.LastRun()
	assert.True(t, last.IsZero())
}
