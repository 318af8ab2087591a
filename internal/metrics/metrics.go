// Package metrics exposes the agent's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/safety"
)

const DefaultNamespace = "leadbot"

// Prometheus implements agent.Observer and the worker pool hooks.
type Prometheus struct {
	registry *prometheus.Registry

	cyclesTotal        *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	actionsTotal       *prometheus.CounterVec
	budgetUsed         *prometheus.GaugeVec
	budgetLimit        *prometheus.GaugeVec
	errorRate          prometheus.Gauge
	agentState         prometheus.Gauge
	dependencyDuration *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	tasksTotal         *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
}

var _ agent.Observer = (*Prometheus)(nil)

// New registers every collector on a fresh registry. withRuntime adds the
// Go and process collectors.
func New(namespace string, withRuntime bool) *Prometheus {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()

	m := &Prometheus{
		registry: reg,
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Agent cycles by final status",
			},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of agent cycles",
				Buckets:   []float64{.01, .1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Recorded actions by type and outcome",
			},
			[]string{"action", "outcome"},
		),
		budgetUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_used",
				Help:      "Emails sent in the current window",
			},
			[]string{"window"},
		),
		budgetLimit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_limit",
				Help:      "Configured send limit per window",
			},
			[]string{"window"},
		),
		errorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "error_rate_percent",
				Help:      "Error rate of the safety window",
			},
		),
		agentState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_state",
				Help:      "Agent state: 0=stopped, 1=running, 2=paused",
			},
		),
		dependencyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dependency_duration_seconds",
				Help:      "Latency of oracle and transport calls",
				Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"dependency"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Dependency breaker state: 0=closed, 1=open, 2=half-open",
			},
			[]string{"dependency"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_total",
				Help:      "Worker pool tasks by type and status",
			},
			[]string{"type", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_task_duration_seconds",
				Help:      "Duration of worker pool tasks",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.actionsTotal,
		m.budgetUsed,
		m.budgetLimit,
		m.errorRate,
		m.agentState,
		m.dependencyDuration,
		m.breakerState,
		m.tasksTotal,
		m.taskDuration,
	)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the private registry.
func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Prometheus) CycleFinished(status agent.CycleStatus, d time.Duration) {
	m.cyclesTotal.WithLabelValues(string(status)).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Prometheus) ActionRecorded(action model.ActionType, outcome model.Outcome) {
	m.actionsTotal.WithLabelValues(string(action), string(outcome)).Inc()
}

func (m *Prometheus) BudgetUsed(cfg model.AgentConfig) {
	m.budgetUsed.WithLabelValues("day").Set(float64(cfg.EmailsSentToday))
	m.budgetUsed.WithLabelValues("hour").Set(float64(cfg.EmailsSentThisHour))
	m.budgetLimit.WithLabelValues("day").Set(float64(cfg.DailyEmailLimit))
	m.budgetLimit.WithLabelValues("hour").Set(float64(cfg.HourlyEmailLimit))
}

func (m *Prometheus) ErrorRate(percent float64) {
	m.errorRate.Set(percent)
}

func (m *Prometheus) AgentState(state model.RunState) {
	switch state {
	case model.RunStateRunning:
		m.agentState.Set(1)
	case model.RunStatePaused:
		m.agentState.Set(2)
	default:
		m.agentState.Set(0)
	}
}

func (m *Prometheus) DependencyCall(dependency string, d time.Duration) {
	m.dependencyDuration.WithLabelValues(dependency).Observe(d.Seconds())
}

// BreakerState records a dependency breaker state.
func (m *Prometheus) BreakerState(dependency string, state safety.BreakerState) {
	m.breakerState.WithLabelValues(dependency).Set(float64(state))
}

// RecordTask records a finished worker pool task.
func (m *Prometheus) RecordTask(taskType, status string, d time.Duration) {
	m.tasksTotal.WithLabelValues(taskType, status).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}
