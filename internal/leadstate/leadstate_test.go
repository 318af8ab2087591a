package leadstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aatumaykin/leadbot/internal/model"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func lead(status model.LeadStatus, followUps int) model.Lead {
	l := model.NewLead("jane@acme.io")
	l.ID = 1
	l.Status = status
	l.FollowUpCount = followUps
	return l
}

func TestApply_InitialSent(t *testing.T) {
	next, err := Apply(lead(model.StatusNew, 0), Event{Action: model.ActionSendInitial, Outcome: model.OutcomeSent}, now, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusContacted, next.Status)
	assert.Equal(t, 0, next.FollowUpCount)
	require.NotNil(t, next.LastActionAt)
	assert.Equal(t, now, *next.LastActionAt)
	require.NotNil(t, next.NextCheckAt)
	assert.Equal(t, now.Add(3*24*time.Hour), *next.NextCheckAt)
}

func TestApply_FollowUpSequence(t *testing.T) {
	l := lead(model.StatusContacted, 0)
	ev := Event{Action: model.ActionSendFollowUp, Outcome: model.OutcomeSent}

	l, err := Apply(l, ev, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFollowUpDue, l.Status)
	assert.Equal(t, 1, l.FollowUpCount)

	l, err = Apply(l, ev, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFollowUpDue, l.Status)
	assert.Equal(t, 2, l.FollowUpCount)

	l, err = Apply(l, ev, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, l.Status)
	assert.Equal(t, 3, l.FollowUpCount)
	assert.Nil(t, l.NextCheckAt)

	_, err = Apply(l, ev, now, Options{})
	assert.ErrorIs(t, err, ErrTerminalLead)
}

func TestApply_PermanentFailureBounces(t *testing.T) {
	in := lead(model.StatusFollowUpDue, 1)
	in.NextCheckAt = model.TimePtr(now)

	next, err := Apply(in, Event{Action: model.ActionSendFollowUp, Outcome: model.OutcomePermanentFailure, Error: "550 no such user"}, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBounced, next.Status)
	assert.False(t, next.AgentEnabled)
	assert.Equal(t, 1, next.BounceCount)
	assert.Nil(t, next.NextCheckAt)
	assert.Equal(t, "550 no such user", next.LastErrorMessage)

	// input untouched
	assert.Equal(t, model.StatusFollowUpDue, in.Status)
	assert.NotNil(t, in.NextCheckAt)

	for _, ev := range []Event{
		{Action: model.ActionSendFollowUp, Outcome: model.OutcomeSent},
		{Action: model.ActionReply, Outcome: model.OutcomeReplied},
	} {
		_, err := Apply(next, ev, now, Options{})
		assert.ErrorIs(t, err, ErrTerminalLead)
	}
}

func TestApply_TransientFailureKeepsStatus(t *testing.T) {
	in := lead(model.StatusNew, 0)
	next, err := Apply(in, Event{Action: model.ActionSendInitial, Outcome: model.OutcomeTransientFailure, Error: "timeout"}, now, Options{MaxLeadErrors: 3})
	require.NoError(t, err)

	assert.Equal(t, model.StatusNew, next.Status)
	assert.Equal(t, 1, next.ErrorCount)
	assert.Equal(t, "timeout", next.LastErrorMessage)
	assert.Nil(t, next.NextCheckAt)
	assert.Nil(t, next.LastActionAt)
}

func TestApply_ErrorCapAndReset(t *testing.T) {
	l := lead(model.StatusContacted, 0)
	l.LastActionAt = model.TimePtr(now.Add(-72 * time.Hour))
	ev := Event{Action: model.ActionSendFollowUp, Outcome: model.OutcomeTransientFailure, Error: "421 try later"}

	var err error
	for i := 0; i < 3; i++ {
		l, err = Apply(l, ev, now, Options{MaxLeadErrors: 3})
		require.NoError(t, err)
	}
	assert.Equal(t, model.StatusError, l.Status)

	_, err = Apply(l, ev, now, Options{MaxLeadErrors: 3})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	l, err = Apply(l, Event{Action: model.ActionReset, Outcome: model.OutcomeApplied}, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFollowUpDue, l.Status)
	assert.Zero(t, l.ErrorCount)
	assert.Equal(t, now, *l.NextCheckAt)

	fresh := lead(model.StatusError, 0)
	fresh, err = Apply(fresh, Event{Action: model.ActionReset, Outcome: model.OutcomeApplied}, now, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, fresh.Status)
}

func TestApply_ReplyFromAnyActiveStatus(t *testing.T) {
	for _, st := range []model.LeadStatus{model.StatusNew, model.StatusContacted, model.StatusFollowUpDue, model.StatusError, model.StatusClosed} {
		for _, out := range []model.Outcome{model.OutcomeReplied, model.OutcomeInterested, model.OutcomeNotInterested} {
			in := lead(st, 1)
			in.NextCheckAt = model.TimePtr(now)
			next, err := Apply(in, Event{Action: model.ActionReply, Outcome: out}, now, Options{})
			require.NoError(t, err, "%s/%s", st, out)
			assert.Equal(t, model.LeadStatus(out), next.Status)
			assert.Nil(t, next.NextCheckAt)
			assert.True(t, next.Status.Terminal())
		}
	}
}

func TestApply_InvalidCombinations(t *testing.T) {
	tests := []struct {
		name   string
		status model.LeadStatus
		ev     Event
		want   error
	}{
		{"follow-up on new", model.StatusNew, Event{Action: model.ActionSendFollowUp, Outcome: model.OutcomeSent}, ErrInvalidTransition},
		{"initial on contacted", model.StatusContacted, Event{Action: model.ActionSendInitial, Outcome: model.OutcomeSent}, ErrInvalidTransition},
		{"send with reply outcome", model.StatusNew, Event{Action: model.ActionSendInitial, Outcome: model.OutcomeReplied}, ErrInvalidTransition},
		{"reply with send outcome", model.StatusContacted, Event{Action: model.ActionReply, Outcome: model.OutcomeSent}, ErrInvalidTransition},
		{"skip action", model.StatusNew, Event{Action: model.ActionSkip, Outcome: model.OutcomeSkipped}, ErrInvalidTransition},
		{"reset non-error lead", model.StatusContacted, Event{Action: model.ActionReset, Outcome: model.OutcomeApplied}, ErrInvalidTransition},
		{"send on replied", model.StatusReplied, Event{Action: model.ActionSendFollowUp, Outcome: model.OutcomeSent}, ErrTerminalLead},
		{"send on closed", model.StatusClosed, Event{Action: model.ActionSendInitial, Outcome: model.OutcomeTransientFailure}, ErrTerminalLead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(lead(tt.status, 0), tt.ev, now, Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// For any sequence of events, follow_up_count never exceeds max_follow_ups
// and a bounced lead never changes again.
func TestApply_InvariantsProperty(t *testing.T) {
	actions := []model.ActionType{model.ActionSendInitial, model.ActionSendFollowUp, model.ActionReply, model.ActionReset, model.ActionSkip}
	outcomes := []model.Outcome{
		model.OutcomeSent, model.OutcomeTransientFailure, model.OutcomePermanentFailure,
		model.OutcomeReplied, model.OutcomeInterested, model.OutcomeApplied, model.OutcomeSkipped,
	}

	rapid.Check(t, func(t *rapid.T) {
		l := lead(model.StatusNew, 0)
		l.MaxFollowUps = rapid.IntRange(0, 5).Draw(t, "max")
		opts := Options{MaxLeadErrors: rapid.IntRange(0, 4).Draw(t, "max_errors")}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ev := Event{
				Action:  rapid.SampledFrom(actions).Draw(t, "action"),
				Outcome: rapid.SampledFrom(outcomes).Draw(t, "outcome"),
			}
			next, err := Apply(l, ev, now, opts)
			if err != nil {
				if next.Status != l.Status || next.FollowUpCount != l.FollowUpCount {
					t.Fatalf("rejected transition changed the lead")
				}
				continue
			}
			if l.Status == model.StatusBounced {
				t.Fatalf("bounced lead accepted %v", ev)
			}
			if next.FollowUpCount > next.MaxFollowUps {
				t.Fatalf("follow_up_count %d exceeds max %d", next.FollowUpCount, next.MaxFollowUps)
			}
			if next.Status == model.StatusBounced && next.AgentEnabled {
				t.Fatalf("bounced lead still enabled")
			}
			l = next
		}
	})
}
