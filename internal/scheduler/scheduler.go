// Package scheduler triggers leadbot's periodic jobs. It uses robfig/cron/v3
// for timing; every tick submits a typed task into the worker pool, so the
// scheduler itself never runs domain code.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/workers"
)

// Submitter is the part of the worker pool the scheduler needs.
type Submitter interface {
	TrySubmit(task workers.Task) error
}

// Job binds a schedule to a worker task type.
type Job struct {
	Name     string
	Schedule string // cron expression or descriptor (@every 5m, @daily)
	TaskType string
}

// Entry describes a registered job for status output.
type Entry struct {
	Name     string    `json:"name" yaml:"name"`
	Schedule string    `json:"schedule" yaml:"schedule"`
	TaskType string    `json:"task_type" yaml:"task_type"`
	Next     time.Time `json:"next,omitempty" yaml:"next,omitempty"`
	Prev     time.Time `json:"prev,omitempty" yaml:"prev,omitempty"`
}

// ErrUnknownJob is returned for a job name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	pool   Submitter
	logger *logger.Logger

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	jobs    map[string]Job
	entries map[string]cron.EntryID
}

// Parser accepts an optional seconds field and descriptors.
func Parser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// EverySpec formats an interval schedule.
func EverySpec(d time.Duration) string {
	return "@every " + d.String()
}

// New creates a scheduler evaluating expressions in loc (UTC when nil).
func New(log *logger.Logger, pool Submitter, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	parser := Parser()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{log}),
		),
		parser:  parser,
		pool:    pool,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a job. Adding a name again replaces its schedule.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.TaskType == "" {
		return fmt.Errorf("job name and task type are required")
	}
	sched, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[job.Name]; ok {
		s.cron.Remove(id)
	}
	s.entries[job.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.submit(job) }))
	s.jobs[job.Name] = job

	s.logger.Info("cron job added",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "schedule", Value: job.Schedule},
		logger.Field{Key: "task_type", Value: job.TaskType})
	return nil
}

// Reschedule changes the schedule of an existing job.
func (s *Scheduler) Reschedule(name, schedule string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if job.Schedule == schedule {
		return nil
	}
	job.Schedule = schedule
	return s.Add(job)
}

// Remove unregisters a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	delete(s.jobs, name)
	s.logger.Info("cron job removed", logger.Field{Key: "job", Value: name})
	return nil
}

// Trigger submits a job's task now, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.submit(job)
}

// Entries lists registered jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, job := range s.jobs {
		e := s.cron.Entry(s.entries[name])
		out = append(out, Entry{
			Name:     name,
			Schedule: job.Schedule,
			TaskType: job.TaskType,
			Next:     e.Next,
			Prev:     e.Prev,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start starts the cron scheduler. Tasks inherit ctx; cancelling it stops
// the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info("cron scheduler started", logger.Field{Key: "jobs", Value: len(s.jobs)})

	go func() {
		<-s.ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop stops the cron scheduler gracefully
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	// Running jobs take the read lock in submit
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

// submit hands a job to the pool. A full queue drops the tick: the next
// one will come soon enough.
func (s *Scheduler) submit(job Job) error {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	task := workers.Task{
		ID:      workers.NewTaskID(job.TaskType, time.Now()),
		Type:    job.TaskType,
		Context: ctx,
	}
	if err := s.pool.TrySubmit(task); err != nil {
		s.logger.Warn("cron job tick dropped",
			logger.Field{Key: "job", Value: job.Name},
			logger.Field{Key: "reason", Value: err.Error()})
		return err
	}
	s.logger.Debug("cron job submitted to worker pool",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "task_id", Value: task.ID})
	return nil
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Field{Key: fmt.Sprint(kv[i]), Value: kv[i+1]})
	}
	return fields
}
