// Package scheduler runs periodic maintenance with gocron.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
}

func New(opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, ferrors.InternalError("failed to create scheduler").WithCause(err).Build()
	}
	return &Scheduler{scheduler: s}, nil
}

func (s *Scheduler) Start() {
	slog.Debug("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	slog.Debug("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval. A run that is still going when the
// next one is due delays it instead of overlapping.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", ferrors.ValidationError("interval must be positive").WithContext("job", name).Build()
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", ferrors.InternalError("failed to schedule job").WithCause(err).WithContext("job", name).Build()
	}
	return job.ID().String(), nil
}

// ScheduleJanitor prunes cache entries older than maxAge every interval. A
// non-positive maxAge disables pruning and schedules nothing.
func (s *Scheduler) ScheduleJanitor(store cache.Store, maxAge, interval time.Duration, rec metrics.Recorder) (string, error) {
	if maxAge <= 0 {
		slog.Debug("Cache janitor disabled")
		return "", nil
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return s.ScheduleEvery("cache-janitor", interval, func() {
		PruneCache(store, maxAge, rec)
	})
}

// PruneCache runs one janitor pass.
func PruneCache(store cache.Store, maxAge time.Duration, rec metrics.Recorder) int {
	removed := store.Prune(maxAge)
	rec.SetCacheEntries(store.Len())
	if removed > 0 {
		slog.Info("Pruned stale previews", slog.Int("removed", removed), slog.Duration("max_age", maxAge))
	}
	return removed
}
