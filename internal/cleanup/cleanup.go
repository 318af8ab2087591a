package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// Run purges entries older than the retention period.
func (r *Runner) Run(ctx context.Context, log *logger.Logger) (Stats, error) {
	startTime := time.Now()
	now := r.now().UTC()
	stats := Stats{Cutoff: now.AddDate(0, 0, -r.config.RetentionDays)}

	n, err := r.purger.PurgeActions(ctx, stats.Cutoff)
	if err != nil {
		if log != nil {
			log.ErrorCtx(ctx, "failed to purge action log", err,
				logger.Field{Key: "cutoff", Value: stats.Cutoff})
		}
		return stats, fmt.Errorf("log retention: %w", err)
	}
	stats.Purged = n
	stats.Duration = time.Since(startTime)

	r.stats = stats
	r.lastRun = now

	if log != nil {
		log.InfoCtx(ctx, "action log retention completed",
			logger.Field{Key: "purged", Value: n},
			logger.Field{Key: "retention_days", Value: r.config.RetentionDays},
			logger.Field{Key: "duration_ms", Value: stats.Duration.Milliseconds()})
	}
	return stats, nil
}

// Execute is the worker task entry point.
func (r *Runner) Execute(ctx context.Context, log *logger.Logger) (string, error) {
	stats, err := r.Run(ctx, log)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("purged %d entries older than %s", stats.Purged, stats.Cutoff.Format(time.DateOnly)), nil
}

// LastRun returns the stats and time of the last successful run.
func (r *Runner) LastRun() (Stats, time.Time) {
	return r.stats, r.lastRun
}
