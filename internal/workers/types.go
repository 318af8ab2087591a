// Package workers provides an async worker pool for background task execution.
// Task types are registered with an executor; the scheduler and the admin API
// submit tasks by type and observe results through the result channel.
package workers

import (
	"context"
	"errors"
	"time"
)

// Task types known to leadbot.
const (
	TaskAgentCycle   = "agent_cycle"
	TaskHealthCheck  = "health_check"
	TaskLogRetention = "log_retention"
)

var (
	// ErrQueueFull is returned by TrySubmit when no slot is free.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolStopped is returned for tasks submitted after Stop.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Task represents a unit of work to be executed by a worker.
type Task struct {
	ID      string          // Unique task identifier
	Type    string          // Registered task type
	Context context.Context // Task-specific context for cancellation/timeout
}

// Result represents the outcome of a task execution.
type Result struct {
	TaskID   string
	Type     string
	Error    error
	Output   string
	Duration time.Duration
}

// PoolMetrics tracks execution metrics for the worker pool.
type PoolMetrics struct {
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TotalDuration  time.Duration
	ByType         map[string]TypeStats
}

// TaskExecutor defines the interface for task-specific execution logic
type TaskExecutor func(context.Context, Task) (string, error)

// Recorder receives per-task outcomes (Prometheus in production).
type Recorder interface {
	RecordTask(taskType, status string, d time.Duration)
}

// Constants for worker pool configuration
const (
	DefaultTaskTimeout = 15 * time.Minute
	DefaultPoolSize    = 2
	DefaultQueueSize   = 16
)
