package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aatumaykin/leadbot/internal/model"
)

func testConfig(daily, hourly int) model.AgentConfig {
	cfg := model.DefaultAgentConfig()
	cfg.Timezone = "UTC"
	cfg.DailyEmailLimit = daily
	cfg.HourlyEmailLimit = hourly
	return cfg
}

func TestReserve_DailyCheckedFirst(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)
	cfg := testConfig(2, 1)
	l := New()

	res := l.Reserve(&cfg, now)
	require.True(t, res.Reserved)
	assert.Equal(t, 0, res.SentTodayBefore)
	assert.Equal(t, 1, cfg.EmailsSentToday)
	assert.Equal(t, 1, cfg.EmailsSentThisHour)

	res = l.Reserve(&cfg, now)
	assert.False(t, res.Reserved)
	assert.Equal(t, model.ReasonHourlyLimitExceeded, res.Reason)

	// next hour: hourly resets, daily still has one slot
	res = l.Reserve(&cfg, now.Add(time.Hour))
	require.True(t, res.Reserved)
	assert.Equal(t, 2, cfg.EmailsSentToday)

	res = l.Reserve(&cfg, now.Add(2*time.Hour))
	assert.False(t, res.Reserved)
	assert.Equal(t, model.ReasonDailyLimitExceeded, res.Reason)
	assert.Equal(t, 2, cfg.EmailsSentToday)
}

func TestRollover_UsesLocalDate(t *testing.T) {
	cfg := testConfig(50, 10)
	cfg.Timezone = "America/New_York"
	l := New()

	// 23:30 New York on March 3rd is 04:30 UTC on March 4th.
	late := time.Date(2026, 3, 4, 4, 30, 0, 0, time.UTC)
	l.Rollover(&cfg, late)
	assert.Equal(t, "2026-03-03", cfg.LastResetDate)

	cfg.EmailsSentToday = 7
	assert.False(t, l.Rollover(&cfg, late.Add(10*time.Minute)))
	assert.Equal(t, 7, cfg.EmailsSentToday)

	// crossing local midnight
	assert.True(t, l.Rollover(&cfg, late.Add(31*time.Minute)))
	assert.Equal(t, 0, cfg.EmailsSentToday)
	assert.Equal(t, "2026-03-04", cfg.LastResetDate)
}

func TestRemaining_DoesNotMutate(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	cfg := testConfig(5, 3)
	cfg.LastResetDate = "2026-03-04"
	cfg.LastHourReset = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	cfg.EmailsSentToday = 5
	cfg.EmailsSentThisHour = 1

	c := New().Remaining(cfg, now)
	assert.False(t, c.Available())
	assert.Equal(t, model.ReasonDailyLimitExceeded, c.Reason())
	assert.Equal(t, 5, cfg.EmailsSentToday)

	c = New().Remaining(cfg, now.Add(24*time.Hour))
	assert.True(t, c.Available())
	assert.Equal(t, "", c.Reason())
}

func TestResetCounters(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 20, 0, 0, time.UTC)
	cfg := testConfig(5, 3)
	cfg.EmailsSentToday = 4
	cfg.EmailsSentThisHour = 3

	New().ResetCounters(&cfg, now)
	assert.Zero(t, cfg.EmailsSentToday)
	assert.Zero(t, cfg.EmailsSentThisHour)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), cfg.LastHourReset)
}

func TestHourStart_HalfHourOffset(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	local := time.Date(2026, 3, 4, 10, 45, 12, 0, kolkata)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, kolkata), hourStart(local))
}

// Budget invariant: no sequence of reservations pushes either counter past
// its limit, and counters move together.
func TestReserve_BudgetInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		daily := rapid.IntRange(1, 30).Draw(t, "daily")
		hourly := rapid.IntRange(1, 30).Draw(t, "hourly")
		cfg := testConfig(daily, hourly)
		l := New()

		now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 90).Draw(t, "advance_min")) * time.Minute)
			before := cfg
			res := l.Reserve(&cfg, now)

			if cfg.EmailsSentToday > cfg.DailyEmailLimit {
				t.Fatalf("daily counter %d exceeds limit %d", cfg.EmailsSentToday, cfg.DailyEmailLimit)
			}
			if cfg.EmailsSentThisHour > cfg.HourlyEmailLimit {
				t.Fatalf("hourly counter %d exceeds limit %d", cfg.EmailsSentThisHour, cfg.HourlyEmailLimit)
			}
			if res.Reserved {
				if cfg.EmailsSentToday != res.SentTodayBefore+1 || cfg.EmailsSentThisHour != res.SentThisHourBefore+1 {
					t.Fatalf("counters did not advance together: %+v -> %+v", before, cfg)
				}
			} else if cfg.EmailsSentToday != res.SentTodayBefore || cfg.EmailsSentThisHour != res.SentThisHourBefore {
				t.Fatalf("denied reservation changed counters")
			}
		}
	})
}

// Rollover is idempotent within the same local hour.
func TestRollover_IdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := testConfig(50, 10)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(rapid.IntRange(0, 365*24).Draw(t, "hours")) * time.Hour)
		l := New()
		l.Rollover(&cfg, base)
		cfg.EmailsSentToday = rapid.IntRange(0, 50).Draw(t, "today")
		cfg.EmailsSentThisHour = rapid.IntRange(0, 10).Draw(t, "hour")
		snapshot := cfg

		offset := time.Duration(rapid.IntRange(0, 59).Draw(t, "minute")) * time.Minute
		if l.Rollover(&cfg, base.Add(offset)) {
			t.Fatalf("second rollover within the same hour reported a change")
		}
		if cfg.EmailsSentToday != snapshot.EmailsSentToday || cfg.EmailsSentThisHour != snapshot.EmailsSentThisHour {
			t.Fatalf("second rollover changed counters")
		}
	})
}
