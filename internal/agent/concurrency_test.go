package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/ratelimit"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/transport"
)

type cycleOutcome struct {
	res CycleResult
	err error
}

func TestRunCycle_ConcurrentRunnersShareOneLease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadbot.db")
	limit := withConfig(func(c *model.AgentConfig) { c.DailyEmailLimit = 1 })
	a := newHarness(t, withPath(path), limit, withLeaseLock())
	b := newHarness(t, withPath(path), limit, withLeaseLock())
	a.addLeads(2)
	a.start()

	// The lease holder parks inside its first send until the other runner
	// has given up.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	hold := func(transport.Message) {
		once.Do(func() { close(entered) })
		<-release
	}
	a.sender.onSend = hold
	b.sender.onSend = hold

	gate := make(chan struct{})
	results := make(chan cycleOutcome, 2)
	for _, h := range []*harness{a, b} {
		go func(h *harness) {
			<-gate
			res, err := h.runner.RunCycle(h.ctx)
			results <- cycleOutcome{res: res, err: err}
		}(h)
	}
	close(gate)

	next := func() cycleOutcome {
		t.Helper()
		select {
		case out := <-results:
			return out
		case <-time.After(10 * time.Second):
			t.Fatal("cycle did not finish")
			return cycleOutcome{}
		}
	}

	loser := next()
	require.NoError(t, loser.err)
	assert.Equal(t, CycleAlreadyRunning, loser.res.Status)
	assert.Zero(t, loser.res.Sent)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("lease holder never reached the transport")
	}
	close(release)

	winner := next()
	require.NoError(t, winner.err)
	assert.Equal(t, 1, winner.res.Sent)

	assert.Equal(t, 1, a.sender.count()+b.sender.count())
	assert.Equal(t, 1, a.config().EmailsSentToday)

	sent, err := a.runner.ListActions(a.ctx, store.ActionFilter{Outcome: model.OutcomeSent})
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}

func TestReserve_ParallelTransactionsShareLastUnit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leadbot.db")
	open := func() *store.SQLite {
		t.Helper()
		s, err := store.Open(ctx, store.Config{Path: path}, logger.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	first, second := open(), open()

	seed := model.DefaultAgentConfig()
	seed.DailyEmailLimit = 1
	_, _, err := first.EnsureAgentConfig(ctx, seed)
	require.NoError(t, err)

	limiter := ratelimit.New()
	gate := make(chan struct{})
	granted := make([]bool, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, s := range []*store.SQLite{first, second} {
		wg.Add(1)
		go func(i int, s *store.SQLite) {
			defer wg.Done()
			<-gate
			errs[i] = s.InTx(ctx, func(tx *store.Tx) error {
				granted[i] = false
				cfg, err := tx.LoadAgentConfig(ctx)
				if err != nil {
					return err
				}
				if !limiter.Reserve(&cfg, wednesday).Reserved {
					return nil
				}
				if _, err := tx.SaveAgentConfig(ctx, cfg); err != nil {
					return err
				}
				granted[i] = true
				return nil
			})
		}(i, s)
	}
	close(gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, granted[0] != granted[1], "exactly one reservation passes: %v", granted)

	cfg, err := first.LoadAgentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.EmailsSentToday)
	assert.Equal(t, 1, cfg.EmailsSentThisHour)
}
