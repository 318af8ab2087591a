package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/notify"
)

// Среда 11:00 в Нью-Йорке, рабочие часы открыты два часа
var testNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

type fakeSource struct {
	st  agent.Status
	err error
}

func (f *fakeSource) Status(context.Context) (agent.Status, error) { return f.st, f.err }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, a := range n.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func healthyStatus() agent.Status {
	cfg := model.DefaultAgentConfig()
	cfg.IsRunning = true
	cfg.AgentStartedAt = model.TimePtr(testNow.Add(-3 * time.Hour))
	return agent.Status{
		State:           model.RunStateRunning,
		InBusinessHours: true,
		EmailsSentToday: 4,
		OracleBreaker:   "closed",
		SendBreaker:     "closed",
		LastRunAt:       model.TimePtr(testNow.Add(-5 * time.Minute)),
		LeadsByStatus:   map[model.LeadStatus]int{model.StatusNew: 10},
		Config:          cfg,
	}
}

func newTestChecker(src StatusSource, n notify.Notifier) *Checker {
	c := NewChecker(src, n, Config{}, logger.Discard())
	c.now = func() time.Time { return testNow }
	return c
}

func kindsOf(alerts []notify.Alert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(st *agent.Status)
		want   []string
	}{
		{"healthy", func(st *agent.Status) {}, nil},
		{"no activity", func(st *agent.Status) {
			st.LastRunAt = model.TimePtr(testNow.Add(-45 * time.Minute))
		}, []string{AlertNoActivity}},
		{"never ran since start", func(st *agent.Status) {
			st.LastRunAt = nil
		}, []string{AlertNoActivity}},
		{"just started", func(st *agent.Status) {
			st.LastRunAt = nil
			st.Config.AgentStartedAt = model.TimePtr(testNow.Add(-time.Minute))
		}, nil},
		{"zero sends", func(st *agent.Status) {
			st.EmailsSentToday = 0
		}, []string{AlertZeroSends}},
		{"zero sends without pending leads", func(st *agent.Status) {
			st.EmailsSentToday = 0
			st.LeadsByStatus = map[model.LeadStatus]int{model.StatusContacted: 3}
		}, nil},
		{"high error rate", func(st *agent.Status) {
			st.ErrorRate = 40
			st.WindowTotal = 20
		}, []string{AlertHighErrorRate}},
		{"high rate below min outcomes", func(st *agent.Status) {
			st.Config.SafetyMinOutcomes = 10
			st.ErrorRate = 50
			st.WindowTotal = 2
		}, nil},
		{"tripped", func(st *agent.Status) {
			st.State = model.RunStatePaused
			st.PauseReason = model.PauseReasonErrorRate
			st.ErrorRate = 30
		}, []string{AlertHighErrorRate}},
		{"breakers", func(st *agent.Status) {
			st.OracleBreaker = "open"
			st.SendBreaker = "open"
		}, []string{AlertBreakerTripped}},
		{"stopped outside hours is quiet", func(st *agent.Status) {
			st.State = model.RunStateStopped
			st.InBusinessHours = false
			st.LastRunAt = nil
			st.EmailsSentToday = 0
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := healthyStatus()
			tt.mutate(&st)
			rep := newTestChecker(&fakeSource{st: st}, nil).Evaluate(context.Background())
			assert.Equal(t, tt.want, kindsOf(rep.Alerts))
			assert.Equal(t, len(tt.want) == 0, rep.Healthy)
		})
	}
}

func TestEvaluate_BothBreakersOneAlert(t *testing.T) {
	st := healthyStatus()
	st.OracleBreaker = "open"
	st.SendBreaker = "open"
	rep := newTestChecker(&fakeSource{st: st}, nil).Evaluate(context.Background())
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, "oracle,transport", rep.Alerts[0].Fields["dependency"])
}

func TestEvaluate_StoreUnavailable(t *testing.T) {
	rep := newTestChecker(&fakeSource{err: errors.New("database is locked")}, nil).Evaluate(context.Background())
	assert.False(t, rep.Healthy)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, AlertStoreUnavailable, rep.Alerts[0].Kind)
	assert.Equal(t, notify.SeverityCritical, rep.Alerts[0].Severity)
}

func TestRun_DeduplicatesUntilCooldown(t *testing.T) {
	st := healthyStatus()
	st.EmailsSentToday = 0
	src := &fakeSource{st: st}
	n := &recordingNotifier{}
	c := newTestChecker(src, n)

	_, sent := c.Run(context.Background())
	assert.Equal(t, 1, sent)

	c.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	_, sent = c.Run(context.Background())
	assert.Equal(t, 0, sent)

	c.now = func() time.Time { return testNow.Add(61 * time.Minute) }
	src.st.LastRunAt = model.TimePtr(testNow.Add(60 * time.Minute))
	_, sent = c.Run(context.Background())
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{AlertZeroSends, AlertZeroSends}, n.kinds())
}

func TestRun_ResolvedAlertFiresAgain(t *testing.T) {
	st := healthyStatus()
	st.SendBreaker = "open"
	src := &fakeSource{st: st}
	n := &recordingNotifier{}
	c := newTestChecker(src, n)

	c.Run(context.Background())
	src.st.SendBreaker = "closed"
	rep, sent := c.Run(context.Background())
	assert.True(t, rep.Healthy)
	assert.Zero(t, sent)

	src.st.SendBreaker = "open"
	_, sent = c.Run(context.Background())
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{AlertBreakerTripped, AlertBreakerTripped}, n.kinds())
}

func TestExecute(t *testing.T) {
	out, err := newTestChecker(&fakeSource{st: healthyStatus()}, &recordingNotifier{}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy=true alerts=0 notified=0", out)
}
