package workers

import (
	"maps"
	"time"
)

// TypeStats is the per task type view of PoolMetrics.
type TypeStats struct {
	Completed    uint64
	Failed       uint64
	LastDuration time.Duration
	LastError    string
	LastFinished time.Time
}

// Metrics returns a snapshot of the pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	p.wg.RLock()
	defer p.wg.RUnlock()
	out := *p.metrics
	out.ByType = maps.Clone(p.metrics.ByType)
	return out
}

// incrementSubmitted increments the submitted task counter.
func (p *WorkerPool) incrementSubmitted() {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.TasksSubmitted++
}

// recordResult folds a finished task into the counters and forwards it to
// the recorder. It returns the status label used for both.
func (p *WorkerPool) recordResult(res Result) string {
	status := "success"
	if res.Error != nil {
		status = "error"
	}

	p.wg.Lock()
	m := p.metrics
	if m.ByType == nil {
		m.ByType = make(map[string]TypeStats)
	}
	ts := m.ByType[res.Type]
	if res.Error != nil {
		m.TasksFailed++
		ts.Failed++
		ts.LastError = res.Error.Error()
	} else {
		m.TasksCompleted++
		ts.Completed++
		ts.LastError = ""
	}
	m.TotalDuration += res.Duration
	ts.LastDuration = res.Duration
	ts.LastFinished = time.Now()
	m.ByType[res.Type] = ts
	p.wg.Unlock()

	if p.recorder != nil {
		p.recorder.RecordTask(res.Type, status, res.Duration)
	}
	return status
}
