package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aatumaykin/leadbot/internal/model"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	outcomes []model.TimedOutcome
	err      error
	calls    int
	since    time.Time
}

func (f *fakeSource) RecentOutcomes(_ context.Context, since time.Time, limit int) ([]model.TimedOutcome, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	var out []model.TimedOutcome
	for _, o := range f.outcomes {
		if !o.At.Before(since) {
			out = append(out, o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func outcomes(errs, total int) []model.TimedOutcome {
	out := make([]model.TimedOutcome, 0, total)
	for i := 0; i < total; i++ {
		o := model.OutcomeSent
		if i < errs {
			o = model.OutcomeTransientFailure
		}
		out = append(out, model.TimedOutcome{Outcome: o, At: t0.Add(time.Duration(i) * time.Second)})
	}
	return out
}

func safetyConfig() model.AgentConfig {
	cfg := model.DefaultAgentConfig()
	cfg.IsRunning = true
	cfg.ErrorRateThreshold = 10
	cfg.SafetyWindowSize = 50
	return cfg
}

func TestController_TripsAboveThreshold(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(10, 50)}
	cfg := safetyConfig()
	now := t0.Add(time.Minute)

	v, err := NewController(src).Check(context.Background(), &cfg, now)
	require.NoError(t, err)

	assert.Equal(t, StateTripped, v.State)
	assert.InDelta(t, 20.0, v.Rate, 0.001)
	assert.True(t, cfg.IsPaused)
	assert.Equal(t, model.PauseReasonErrorRate, cfg.PauseReason)
	require.NotNil(t, cfg.TrippedAt)
	assert.Equal(t, now, *cfg.TrippedAt)
}

func TestController_ExactlyThresholdDoesNotTrip(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(5, 50)}
	cfg := safetyConfig()

	v, err := NewController(src).Check(context.Background(), &cfg, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StateOK, v.State)
	assert.False(t, cfg.IsPaused)
}

func TestController_StickyPauseSkipsEvaluation(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(0, 50)}
	cfg := safetyConfig()
	Trip(&cfg, t0)

	v, err := NewController(src).Check(context.Background(), &cfg, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatePaused, v.State)
	assert.Equal(t, 0, src.calls)
}

func TestController_ResetStartsFreshWindow(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(20, 50)}
	cfg := safetyConfig()
	ctrl := NewController(src)

	_, err := ctrl.Check(context.Background(), &cfg, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, cfg.IsPaused)

	resumeAt := t0.Add(2 * time.Minute)
	Reset(&cfg, resumeAt)
	assert.False(t, cfg.IsPaused)

	v, err := ctrl.Check(context.Background(), &cfg, resumeAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StateOK, v.State)
	assert.Equal(t, 0, v.Total)
	assert.Equal(t, resumeAt, src.since)
}

func TestController_DisabledPauseOnHighErrorRate(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(50, 50)}
	cfg := safetyConfig()
	cfg.PauseOnHighErrorRate = false

	v, err := NewController(src).Check(context.Background(), &cfg, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StateOK, v.State)
	assert.InDelta(t, 100.0, v.Rate, 0.001)
}

func TestController_MinOutcomes(t *testing.T) {
	src := &fakeSource{outcomes: outcomes(3, 3)}
	cfg := safetyConfig()
	cfg.SafetyMinOutcomes = 10

	v, err := NewController(src).Check(context.Background(), &cfg, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StateOK, v.State)
}

func TestEvaluate_DefaultConfigHasNoSampleFloor(t *testing.T) {
	cfg := model.DefaultAgentConfig()
	cfg.IsRunning = true
	w := NewWindow(cfg.SafetyWindowSize, 0)
	for i := 0; i < 5; i++ {
		w.Add(model.OutcomeTransientFailure, t0.Add(time.Duration(i)*time.Second))
	}

	v := Evaluate(&cfg, w, t0.Add(time.Minute))
	assert.Equal(t, StateTripped, v.State)
	assert.Equal(t, 5, v.Total)
	assert.True(t, cfg.IsPaused)
}

func TestController_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("database is locked")}
	cfg := safetyConfig()

	_, err := NewController(src).Check(context.Background(), &cfg, t0)
	assert.Error(t, err)
	assert.False(t, cfg.IsPaused)
}

func TestWindow_CountAndDuration(t *testing.T) {
	w := NewWindow(3, 0)
	w.Add(model.OutcomeTransientFailure, t0)
	w.Add(model.OutcomeSent, t0.Add(time.Second))
	w.Add(model.OutcomeSkipped, t0.Add(2*time.Second))
	w.Add(model.OutcomeSent, t0.Add(3*time.Second))
	w.Add(model.OutcomeSent, t0.Add(4*time.Second))
	assert.Equal(t, 3, w.Total())
	assert.Equal(t, 0, w.Errors())

	tw := NewWindow(0, time.Minute)
	tw.Add(model.OutcomePermanentFailure, t0)
	tw.Add(model.OutcomeSent, t0.Add(50*time.Second))
	tw.Prune(t0.Add(90 * time.Second))
	assert.Equal(t, 1, tw.Total())
	assert.Equal(t, 0.0, tw.Rate())
}

// Same multiset of outcomes gives the same decision regardless of order,
// and the decision is exactly errors/total > threshold.
func TestEvaluate_DeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 100).Draw(t, "total")
		errs := rapid.IntRange(0, total).Draw(t, "errors")
		threshold := float64(rapid.IntRange(0, 100).Draw(t, "threshold"))

		items := make([]model.Outcome, total)
		for i := range items {
			if i < errs {
				items[i] = rapid.SampledFrom([]model.Outcome{model.OutcomeTransientFailure, model.OutcomePermanentFailure}).Draw(t, "err_kind")
			} else {
				items[i] = model.OutcomeSent
			}
		}
		perm := rapid.Permutation(items).Draw(t, "order")

		eval := func(seq []model.Outcome) State {
			cfg := safetyConfig()
			cfg.ErrorRateThreshold = threshold
			cfg.SafetyWindowSize = total
			w := NewWindow(total, 0)
			for i, o := range seq {
				w.Add(o, t0.Add(time.Duration(i)*time.Second))
			}
			return Evaluate(&cfg, w, t0.Add(time.Hour)).State
		}

		a, b := eval(items), eval(perm)
		if a != b {
			t.Fatalf("order changed decision: %s vs %s", a, b)
		}
		want := StateOK
		if float64(errs)*100/float64(total) > threshold {
			want = StateTripped
		}
		if a != want {
			t.Fatalf("errors=%d total=%d threshold=%v: got %s want %s", errs, total, threshold, a, want)
		}
	})
}

func TestBreaker(t *testing.T) {
	now := t0
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow(), "probe after cooldown")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one probe")

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(61 * time.Second)
	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}
