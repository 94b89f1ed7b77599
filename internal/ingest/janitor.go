package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/company-ingest/internal/repository"
)

// Janitor periodically deletes upload files of jobs that finished more
// than Retention ago. The job rows themselves are kept.
type Janitor struct {
	jobs      repository.JobRepository
	store     *Store
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewJanitor schedules a sweep with a robfig/cron spec such as
// "@every 1h" or "0 3 * * *".
func NewJanitor(schedule string, retention time.Duration, jobs repository.JobRepository, store *Store, logger *slog.Logger) (*Janitor, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	j := &Janitor{
		jobs:      jobs,
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error("upload sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return nil, fmt.Errorf("ingest: bad janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.logger.Info("starting upload janitor", slog.Duration("retention", j.retention))
	j.cron.Start()
}

// Stop prevents further sweeps and waits for a running one, or for ctx.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep removes expired upload files once and returns how many it removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	expired, err := j.jobs.ListExpired(ctx, j.now().Add(-j.retention))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range expired {
		if err := j.store.Remove(job.StoredPath); err != nil {
			j.logger.Warn("failed to remove upload",
				slog.String("jobID", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := j.jobs.ClearStoredPath(ctx, job.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("removed expired uploads", slog.Int("count", removed))
	}
	return removed, nil
}
