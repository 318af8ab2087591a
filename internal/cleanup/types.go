// Package cleanup enforces action-log retention.
package cleanup

import (
	"context"
	"time"
)

// DefaultRetentionDays keeps three months of history.
const DefaultRetentionDays = 90

// Stats holds statistics about the last cleanup run.
type Stats struct {
	Purged   int64         `json:"purged" yaml:"purged"`
	Cutoff   time.Time     `json:"cutoff" yaml:"cutoff"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Config holds configuration for cleanup operations.
type Config struct {
	RetentionDays int
}

// Purger deletes action-log entries older than a cutoff.
type Purger interface {
	PurgeActions(ctx context.Context, before time.Time) (int64, error)
}

// Runner manages periodic cleanup operations.
type Runner struct {
	config  Config
	purger  Purger
	now     func() time.Time
	stats   Stats
	lastRun time.Time
}

// NewRunner creates a new cleanup runner.
func NewRunner(config Config, purger Purger) *Runner {
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	return &Runner{
		config: config,
		purger: purger,
		now:    time.Now,
	}
}
