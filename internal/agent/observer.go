package agent

import (
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

// Observer receives cycle telemetry. The metrics package implements it.
type Observer interface {
	CycleFinished(status CycleStatus, d time.Duration)
	ActionRecorded(action model.ActionType, outcome model.Outcome)
	BudgetUsed(cfg model.AgentConfig)
	ErrorRate(percent float64)
	AgentState(state model.RunState)
	DependencyCall(dependency string, d time.Duration)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) CycleFinished(CycleStatus, time.Duration)       {}
func (NopObserver) ActionRecorded(model.ActionType, model.Outcome) {}
func (NopObserver) BudgetUsed(model.AgentConfig)                   {}
func (NopObserver) ErrorRate(float64)                              {}
func (NopObserver) AgentState(model.RunState)                      {}
func (NopObserver) DependencyCall(string, time.Duration)           {}
