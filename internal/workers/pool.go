package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// Config configures a WorkerPool.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Recorder    Recorder
}

// WorkerPool manages a pool of goroutine workers for concurrent task execution.
type WorkerPool struct {
	taskQueue   chan Task
	resultCh    chan Result
	workers     int
	taskTimeout time.Duration
	wg          *taskWaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *logger.Logger
	metrics     *PoolMetrics
	recorder    Recorder

	execMu    sync.RWMutex
	executors map[string]TaskExecutor

	stopMu  sync.RWMutex
	stopped bool
}

// NewPool creates a new worker pool with the specified configuration.
func NewPool(cfg Config, log *logger.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		taskQueue:   make(chan Task, cfg.QueueSize),
		resultCh:    make(chan Result, cfg.QueueSize),
		workers:     cfg.Workers,
		taskTimeout: cfg.TaskTimeout,
		wg:          newTaskWaitGroup(),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log,
		metrics:     &PoolMetrics{},
		recorder:    cfg.Recorder,
		executors:   make(map[string]TaskExecutor),
	}
}

// Register binds an executor to a task type. Registering a type twice
// replaces the previous executor.
func (p *WorkerPool) Register(taskType string, exec TaskExecutor) {
	p.execMu.Lock()
	defer p.execMu.Unlock()
	p.executors[taskType] = exec
}

func (p *WorkerPool) executor(taskType string) (TaskExecutor, bool) {
	p.execMu.RLock()
	defer p.execMu.RUnlock()
	exec, ok := p.executors[taskType]
	return exec, ok
}

// Start initializes and starts all worker goroutines.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "buffer_size", Value: cap(p.taskQueue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// TrySubmit queues a task without blocking. Scheduled jobs use it so a slow
// cycle makes the next tick drop instead of piling up.
func (p *WorkerPool) TrySubmit(task Task) error {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		p.incrementSubmitted()
		p.logger.Debug("task submitted",
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type})
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWithContext waits for a queue slot until ctx is done.
func (p *WorkerPool) SubmitWithContext(ctx context.Context, task Task) error {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		p.incrementSubmitted()
		p.logger.DebugCtx(ctx, "task submitted with context",
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Results returns a read-only channel for receiving task results.
// Results are dropped when nobody drains the channel.
func (p *WorkerPool) Results() <-chan Result {
	return p.resultCh
}

// Stop cancels running tasks and waits for workers to exit. Queued tasks
// that have not started are discarded.
func (p *WorkerPool) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return
	}
	p.stopped = true
	p.stopMu.Unlock()

	p.cancel()
	p.wg.Wait()

	metrics := p.Metrics()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "tasks_submitted", Value: metrics.TasksSubmitted},
		logger.Field{Key: "tasks_completed", Value: metrics.TasksCompleted},
		logger.Field{Key: "tasks_failed", Value: metrics.TasksFailed},
		logger.Field{Key: "tasks_dropped", Value: len(p.taskQueue)})

	close(p.resultCh)
}

// WorkerCount returns the number of active workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueueSize returns the current number of tasks waiting in the queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}

// NewTaskID returns an ID like "agent_cycle-1760450400000".
func NewTaskID(taskType string, now time.Time) string {
	return fmt.Sprintf("%s-%d", taskType, now.UnixMilli())
}

// taskWaitGroup wraps sync.WaitGroup with thread-safe metrics access.
type taskWaitGroup struct {
	sync.RWMutex
	wg sync.WaitGroup
}

func newTaskWaitGroup() *taskWaitGroup {
	return &taskWaitGroup{}
}

func (twg *taskWaitGroup) Add(delta int) { twg.wg.Add(delta) }
func (twg *taskWaitGroup) Done()         { twg.wg.Done() }
func (twg *taskWaitGroup) Wait()         { twg.wg.Wait() }
