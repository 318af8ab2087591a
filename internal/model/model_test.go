package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadStatus_Terminal(t *testing.T) {
	terminal := map[LeadStatus]bool{
		StatusBounced:       true,
		StatusReplied:       true,
		StatusInterested:    true,
		StatusNotInterested: true,
		StatusClosed:        true,
	}
	for _, st := range AllStatuses {
		assert.Equal(t, terminal[st], st.Terminal(), st)
	}
}

func TestParseLeadStatus(t *testing.T) {
	st, err := ParseLeadStatus(" Follow_Up_Due ")
	require.NoError(t, err)
	assert.Equal(t, StatusFollowUpDue, st)

	_, err = ParseLeadStatus("archived")
	assert.Error(t, err)
}

func TestLead_CloneIsDeep(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l := NewLead("a@b.io")
	l.NextCheckAt = TimePtr(now)

	c := l.Clone()
	*c.NextCheckAt = now.Add(time.Hour)

	assert.Equal(t, now, *l.NextCheckAt)
}

func TestLead_Due(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l := NewLead("a@b.io")
	assert.True(t, l.Due(now))

	l.NextCheckAt = TimePtr(now)
	assert.True(t, l.Due(now))

	l.NextCheckAt = TimePtr(now.Add(time.Second))
	assert.False(t, l.Due(now))
}

func TestAgentConfig_RunState(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, RunStateStopped, cfg.RunState())

	cfg.IsRunning = true
	assert.Equal(t, RunStateRunning, cfg.RunState())

	cfg.IsPaused = true
	assert.Equal(t, RunStatePaused, cfg.RunState())
}

func TestAgentConfig_Validate(t *testing.T) {
	require.Empty(t, DefaultAgentConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*AgentConfig)
	}{
		{"zero daily limit", func(c *AgentConfig) { c.DailyEmailLimit = 0 }},
		{"negative hourly limit", func(c *AgentConfig) { c.HourlyEmailLimit = -1 }},
		{"start after end", func(c *AgentConfig) { c.BusinessHoursStart = "18:00" }},
		{"start equals end", func(c *AgentConfig) { c.BusinessHoursEnd = "09:00" }},
		{"bad clock", func(c *AgentConfig) { c.BusinessHoursEnd = "5pm" }},
		{"unknown timezone", func(c *AgentConfig) { c.Timezone = "Mars/Olympus" }},
		{"threshold above 100", func(c *AgentConfig) { c.ErrorRateThreshold = 101 }},
		{"threshold negative", func(c *AgentConfig) { c.ErrorRateThreshold = -0.5 }},
		{"weekday out of range", func(c *AgentConfig) { c.ActiveDays = []int{0} }},
		{"no weekdays", func(c *AgentConfig) { c.ActiveDays = nil }},
		{"zero batch", func(c *AgentConfig) { c.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAgentConfig()
			tt.mutate(&cfg)
			assert.NotEmpty(t, cfg.Validate())
		})
	}
}

func TestAgentConfig_CloneIsDeep(t *testing.T) {
	now := time.Now()
	cfg := DefaultAgentConfig()
	cfg.TrippedAt = TimePtr(now)

	c := cfg.Clone()
	c.ActiveDays[0] = 7
	*c.TrippedAt = now.Add(time.Hour)

	assert.Equal(t, 1, cfg.ActiveDays[0])
	assert.Equal(t, now, *cfg.TrippedAt)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	m, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, m)

	for _, bad := range []string{"9", "25:00", "10:60", "ab:cd", "24:01"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestDaysRoundTrip(t *testing.T) {
	days, err := ParseDays(FormatDays([]int{1, 3, 5}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, days)

	_, err = ParseDays("1,x")
	assert.Error(t, err)
}

func TestOutcomeClassification(t *testing.T) {
	assert.True(t, OutcomeSent.IsSendResult())
	assert.False(t, OutcomeSent.IsError())
	assert.True(t, OutcomeTransientFailure.IsError())
	assert.True(t, OutcomePermanentFailure.IsError())
	assert.False(t, OutcomeSkipped.IsSendResult())
	assert.True(t, OutcomeInterested.IsReply())
}
