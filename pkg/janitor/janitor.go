package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/resumekit/authz/pkg/authz"
	"github.com/resumekit/authz/pkg/observability"
)

// Purger removes assignment rows whose expiry has passed, returning the
// affected user IDs and the number of rows removed. The memory and
// postgres stores implement it.
type Purger interface {
	PurgeExpiredAssignments(ctx context.Context, cutoff time.Time) ([]string, int64, error)
}

// Config controls the sweep cadence.
type Config struct {
	// Schedule is a cron expression; "@every 10m" style descriptors
	// work too. Empty defaults to every ten minutes.
	Schedule string
	// Retention keeps expired rows around for this long before the
	// sweep removes them, preserving a window for audits. Zero purges
	// as soon as a row expires.
	Retention time.Duration
}

// Janitor periodically purges expired assignments and invalidates the
// cached contexts of the users whose rows were removed. Resolution
// already filters expired assignments, so purging never changes a
// decision; the invalidation is what retires cached contexts that were
// resolved while the assignment was still active.
type Janitor struct {
	purger      Purger
	invalidator authz.CacheInvalidator
	metrics     *observability.Metrics
	schedule    string
	retention   time.Duration
	cron        *cron.Cron
}

// New creates a janitor. Metrics may be nil.
func New(purger Purger, invalidator authz.CacheInvalidator, metrics *observability.Metrics, cfg Config) *Janitor {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	return &Janitor{
		purger:      purger,
		invalidator: invalidator,
		metrics:     metrics,
		schedule:    schedule,
		retention:   cfg.Retention,
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			observability.GetLogger(ctx).WithError(err).Warn("assignment sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	observability.GetLogger(ctx).WithField("schedule", j.schedule).Info("janitor started")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RunOnce performs a single sweep and returns the number of assignment
// rows removed. Users whose rows were purged get their cached contexts
// invalidated; if some invalidations fail the sweep still reports the
// purge count alongside the error.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.retention)
	userIDs, removed, err := j.purger.PurgeExpiredAssignments(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired assignments: %w", err)
	}
	if j.metrics != nil && removed > 0 {
		j.metrics.ExpiredAssignmentsPurged.Add(float64(removed))
	}
	if removed == 0 {
		return 0, nil
	}

	logger := observability.GetLogger(ctx)
	failed := 0
	for _, userID := range userIDs {
		if err := j.invalidator.InvalidateCache(ctx, userID); err != nil {
			failed++
			logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate purged user's cache")
		}
	}
	logger.WithFields(map[string]interface{}{
		"removed": removed,
		"users":   len(userIDs),
	}).Info("purged expired assignments")

	if failed > 0 {
		return removed, fmt.Errorf("failed to invalidate %d of %d purged users", failed, len(userIDs))
	}
	return removed, nil
}
