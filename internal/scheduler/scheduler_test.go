package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/workers"
)

type fakePool struct {
	mu    sync.Mutex
	tasks []workers.Task
	err   error
}

func (p *fakePool) TrySubmit(task workers.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *fakePool) submitted() []workers.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]workers.Task(nil), p.tasks...)
}

func TestScheduler_AddValidates(t *testing.T) {
	s := New(logger.Discard(), &fakePool{}, nil)

	assert.Error(t, s.Add(Job{Name: "x", Schedule: "every tuesday", TaskType: workers.TaskAgentCycle}))
	assert.Error(t, s.Add(Job{Schedule: "@daily", TaskType: workers.TaskAgentCycle}))
	require.NoError(t, s.Add(Job{Name: "log_retention", Schedule: "@daily", TaskType: workers.TaskLogRetention}))
	require.NoError(t, s.Add(Job{Name: "agent_cycle", Schedule: EverySpec(5 * time.Minute), TaskType: workers.TaskAgentCycle}))
	require.NoError(t, s.Add(Job{Name: "health_check", Schedule: "0 */5 * * * *", TaskType: workers.TaskHealthCheck}))

	entries := s.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "agent_cycle", entries[0].Name)
	assert.Equal(t, "@every 5m0s", entries[0].Schedule)
	assert.Equal(t, "health_check", entries[1].Name)
}

func TestScheduler_TriggerSubmitsTask(t *testing.T) {
	pool := &fakePool{}
	s := New(logger.Discard(), pool, nil)
	require.NoError(t, s.Add(Job{Name: "agent_cycle", Schedule: "@hourly", TaskType: workers.TaskAgentCycle}))

	require.NoError(t, s.Trigger("agent_cycle"))
	tasks := pool.submitted()
	require.Len(t, tasks, 1)
	assert.Equal(t, workers.TaskAgentCycle, tasks[0].Type)
	assert.NotEmpty(t, tasks[0].ID)

	assert.ErrorIs(t, s.Trigger("missing"), ErrUnknownJob)

	pool.err = workers.ErrQueueFull
	assert.ErrorIs(t, s.Trigger("agent_cycle"), workers.ErrQueueFull)
}

func TestScheduler_RescheduleAndRemove(t *testing.T) {
	s := New(logger.Discard(), &fakePool{}, nil)
	require.NoError(t, s.Add(Job{Name: "agent_cycle", Schedule: EverySpec(5 * time.Minute), TaskType: workers.TaskAgentCycle}))

	require.NoError(t, s.Reschedule("agent_cycle", EverySpec(time.Minute)))
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "@every 1m0s", entries[0].Schedule)

	assert.Error(t, s.Reschedule("agent_cycle", "bogus"))
	assert.ErrorIs(t, s.Reschedule("other", "@daily"), ErrUnknownJob)

	require.NoError(t, s.Remove("agent_cycle"))
	assert.Empty(t, s.Entries())
	assert.ErrorIs(t, s.Remove("agent_cycle"), ErrUnknownJob)
}

func TestScheduler_TicksIntoPool(t *testing.T) {
	pool := &fakePool{}
	s := New(logger.Discard(), pool, time.UTC)
	require.NoError(t, s.Add(Job{Name: "health_check", Schedule: "@every 1s", TaskType: workers.TaskHealthCheck}))
	require.NoError(t, s.Start(t.Context()))
	defer s.Stop()

	assert.Error(t, s.Start(t.Context()))
	assert.Eventually(t, func() bool { return len(pool.submitted()) > 0 }, 3*time.Second, 50*time.Millisecond)

	task := pool.submitted()[0]
	assert.Equal(t, workers.TaskHealthCheck, task.Type)
	require.NotNil(t, task.Context)
	assert.NoError(t, task.Context.Err())

	s.Stop()
	assert.Error(t, task.Context.Err())
}
