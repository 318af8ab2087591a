// Package timegate decides whether "now" falls inside the configured
// business-hours window of the agent's timezone.
package timegate

import (
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

// ErrInvalidWindow is returned for a window that can never be open.
var ErrInvalidWindow = errors.New("invalid business hours window")

// Window is a half-open [Start, End) local-time interval on active weekdays.
type Window struct {
	start    int // minutes since midnight
	end      int
	days     [8]bool // indexed by ISO weekday
	location *time.Location
}

// NewWindow parses "HH:MM" bounds, an IANA timezone and ISO weekdays
// (1 = Monday … 7 = Sunday). Empty days means Monday through Friday.
func NewWindow(start, end, tz string, days []int) (Window, error) {
	s, err := model.ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %v", ErrInvalidWindow, err)
	}
	e, err := model.ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %v", ErrInvalidWindow, err)
	}
	if s >= e {
		return Window{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start, end)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidWindow, tz, err)
	}
	if len(days) == 0 {
		days = model.DefaultActiveDays
	}

	w := Window{start: s, end: e, location: loc}
	for _, d := range days {
		if d < 1 || d > 7 {
			return Window{}, fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, d)
		}
		w.days[d] = true
	}
	return w, nil
}

// FromConfig builds the window stored on the agent configuration row.
func FromConfig(cfg model.AgentConfig) (Window, error) {
	return NewWindow(cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.Timezone, cfg.ActiveDays)
}

// Location returns the window's timezone.
func (w Window) Location() *time.Location { return w.location }

// Allowed reports whether now lies inside the window: the local weekday is
// active and start <= local time < end.
func (w Window) Allowed(now time.Time) bool {
	local := now.In(w.location)
	if !w.days[isoWeekday(local)] {
		return false
	}
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return sec >= w.start*60 && sec < w.end*60
}

// NextOpening returns now when the window is open, otherwise the next
// instant it opens. The zero time is returned if no weekday is active.
func (w Window) NextOpening(now time.Time) time.Time {
	if w.Allowed(now) {
		return now
	}
	local := now.In(w.location)
	for i := 0; i <= 7; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, w.location)
		if !w.days[isoWeekday(day)] {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), w.start/60, w.start%60, 0, 0, w.location)
		if open.After(now) {
			return open
		}
	}
	return time.Time{}
}

// Gate applies the RespectBusinessHours switch on top of a Window.
type Gate struct{}

// Check reports whether a cycle may run at now under cfg, with a reason
// code when it may not.
func (Gate) Check(cfg model.AgentConfig, now time.Time) (bool, string, error) {
	if !cfg.RespectBusinessHours {
		return true, "", nil
	}
	w, err := FromConfig(cfg)
	if err != nil {
		return false, "", err
	}
	if !w.Allowed(now) {
		return false, "outside_business_hours", nil
	}
	return true, "", nil
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
