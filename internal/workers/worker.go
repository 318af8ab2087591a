package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// worker is the main worker goroutine that processes tasks from the queue.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugCtx(p.ctx, "worker started",
		logger.Field{Key: "worker_id", Value: id})

	for {
		select {
		case <-p.ctx.Done():
			p.logger.DebugCtx(p.ctx, "worker stopping",
				logger.Field{Key: "worker_id", Value: id})
			return
		case task := <-p.taskQueue:
			p.processTask(id, task)
		}
	}
}

// processTask handles a single task execution with metrics and error handling.
func (p *WorkerPool) processTask(workerID int, task Task) {
	startTime := time.Now()

	p.logger.DebugCtx(p.ctx, "processing task",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_type", Value: task.Type})

	// Task context wins, but pool shutdown still cancels it
	parent := p.ctx
	if task.Context != nil {
		parent = task.Context
	}
	execCtx, cancel := context.WithTimeout(parent, p.taskTimeout)
	stop := context.AfterFunc(p.ctx, cancel)
	result := p.executeTask(execCtx, task)
	stop()
	cancel()
	result.Duration = time.Since(startTime)

	if p.recordResult(result) == "error" {
		p.logger.ErrorCtx(p.ctx, "task failed", result.Error,
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type})
	}

	select {
	case p.resultCh <- result:
	default:
		p.logger.DebugCtx(p.ctx, "result channel full, dropping result",
			logger.Field{Key: "task_id", Value: task.ID})
	}

	p.logger.DebugCtx(p.ctx, "task processed",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()})
}

// executeTask dispatches task execution based on type.
func (p *WorkerPool) executeTask(ctx context.Context, task Task) Result {
	res := Result{TaskID: task.ID, Type: task.Type}

	if err := ctx.Err(); err != nil {
		res.Error = err
		return res
	}

	exec, ok := p.executor(task.Type)
	if !ok {
		res.Error = fmt.Errorf("unknown task type: %s", task.Type)
		return res
	}

	res.Output, res.Error = p.executeWithRecover(ctx, task, exec)
	return res
}

// executeWithRecover runs exec and turns a panic into an error.
func (p *WorkerPool) executeWithRecover(ctx context.Context, task Task, exec TaskExecutor) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during task execution: %v", r)
			p.logger.ErrorCtx(ctx, "task panic recovered", err,
				logger.Field{Key: "task_id", Value: task.ID})
		}
	}()

	return exec(ctx, task)
}
