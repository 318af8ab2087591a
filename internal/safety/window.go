package safety

import (
	"sort"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

// Window is a rolling set of send outcomes. With Duration set it keeps
// outcomes newer than now-Duration; Size always caps it to the most recent
// entries.
type Window struct {
	size     int
	duration time.Duration
	items    []model.TimedOutcome
}

// NewWindow creates an empty window. size <= 0 means unbounded by count.
func NewWindow(size int, duration time.Duration) *Window {
	return &Window{size: size, duration: duration}
}

// Add records an outcome. Non-send outcomes are ignored.
func (w *Window) Add(o model.Outcome, at time.Time) {
	if !o.IsSendResult() {
		return
	}
	w.items = append(w.items, model.TimedOutcome{Outcome: o, At: at})
	sort.SliceStable(w.items, func(i, j int) bool { return w.items[i].At.Before(w.items[j].At) })
	if w.size > 0 && len(w.items) > w.size {
		w.items = append([]model.TimedOutcome(nil), w.items[len(w.items)-w.size:]...)
	}
}

// Prune drops outcomes older than now-Duration.
func (w *Window) Prune(now time.Time) {
	if w.duration <= 0 {
		return
	}
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.items) && w.items[i].At.Before(cutoff) {
		i++
	}
	w.items = w.items[i:]
}

// Total is the number of outcomes in the window.
func (w *Window) Total() int { return len(w.items) }

// Errors is the number of failed sends in the window.
func (w *Window) Errors() int {
	n := 0
	for _, it := range w.items {
		if it.Outcome.IsError() {
			n++
		}
	}
	return n
}

// Rate is the error percentage in [0, 100]; an empty window is 0.
func (w *Window) Rate() float64 {
	if len(w.items) == 0 {
		return 0
	}
	return float64(w.Errors()) * 100 / float64(len(w.items))
}
