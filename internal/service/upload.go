package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/ingest"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

// JobQueue is the part of *ingest.Pipeline the upload flow needs.
type JobQueue interface {
	Enqueue(jobID string) error
	Cancel(ctx context.Context, jobID string) error
}

// IngestService accepts CSV uploads and exposes their jobs to the owner.
//
//	UploadHandler → IngestService → Store (disk) + JobRepository (DB)
//	                              ↘ JobQueue (worker pool)
type IngestService struct {
	jobs   repository.JobRepository
	store  *ingest.Store
	queue  JobQueue
	logger *slog.Logger
}

func NewIngestService(jobs repository.JobRepository, store *ingest.Store, queue JobQueue, logger *slog.Logger) *IngestService {
	return &IngestService{
		jobs:   jobs,
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

// Upload stores body under a fresh job ID, records a queued job and hands
// it to the worker pool. It returns as soon as the job is queued.
//
// Non-CSV names are rejected before anything touches the disk. When the
// queue is full the job is recorded as failed, its file removed, and the
// caller gets apperror.ErrUnavailable.
func (s *IngestService) Upload(ctx context.Context, owner *model.User, filename string, body io.Reader) (*model.IngestJob, error) {
	if !ingest.IsCSVFilename(filename) {
		s.logger.Warn("upload rejected",
			slog.String("owner", owner.Email),
			slog.String("filename", filename),
			slog.String("reason", "not a csv file"),
		)
		return nil, apperror.ValidationFailed("file", "Only CSV files are allowed")
	}

	id := uuid.NewString()
	path, size, err := s.store.Save(id, filename, body)
	if err != nil {
		return nil, fmt.Errorf("service/ingest: saving upload: %w", err)
	}

	job := &model.IngestJob{
		ID:         id,
		OwnerEmail: owner.Email,
		Filename:   ingest.SanitizeFilename(filename),
		StoredPath: path,
		Status:     model.JobQueued,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		_ = s.store.Remove(path)
		return nil, fmt.Errorf("service/ingest: creating job: %w", err)
	}

	s.logger.Info("upload stored",
		slog.String("jobID", id),
		slog.String("owner", owner.Email),
		slog.String("filename", job.Filename),
		slog.Int64("bytes", size),
	)

	if err := s.queue.Enqueue(id); err != nil {
		return nil, s.reject(ctx, job, err)
	}
	return job, nil
}

// reject finishes a job that could not be queued. The request may already
// be gone, so the bookkeeping ignores ctx cancellation.
func (s *IngestService) reject(ctx context.Context, job *model.IngestJob, cause error) error {
	ctx = context.WithoutCancel(ctx)

	msg := "rejected: " + cause.Error()
	if err := s.jobs.Finish(ctx, job.ID, model.JobFailed, model.JobProgress{}, msg, time.Now()); err != nil {
		s.logger.Error("failed to record rejected job",
			slog.String("jobID", job.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.store.Remove(job.StoredPath); err == nil {
		_ = s.jobs.ClearStoredPath(ctx, job.ID)
	}

	s.logger.Warn("upload rejected",
		slog.String("jobID", job.ID),
		slog.String("reason", cause.Error()),
	)

	if errors.Is(cause, ingest.ErrQueueFull) || errors.Is(cause, ingest.ErrStopped) {
		return apperror.Unavailable("The ingest queue is busy, try again later")
	}
	return fmt.Errorf("service/ingest: enqueueing job %s: %w", job.ID, cause)
}

// GetJob returns a job owned by owner. Other users' jobs are reported as
// not found so their IDs cannot be probed.
func (s *IngestService) GetJob(ctx context.Context, owner *model.User, id string) (*model.IngestJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("job", id)
		}
		return nil, fmt.Errorf("service/ingest: fetching job %s: %w", id, err)
	}
	if job.OwnerEmail != owner.Email {
		return nil, apperror.NotFound("job", id)
	}
	return job, nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *IngestService) ListJobs(ctx context.Context, owner *model.User, opts repository.ListOptions) ([]model.IngestJob, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}

	jobs, err := s.jobs.ListByOwner(ctx, owner.Email, opts)
	if err != nil {
		return nil, fmt.Errorf("service/ingest: listing jobs for %s: %w", owner.Email, err)
	}
	return jobs, nil
}

// CancelJob cancels a queued job at once, or asks a running one to stop
// at its next row. The returned job reflects the state right after the
// request, so a running job may still show "running".
func (s *IngestService) CancelJob(ctx context.Context, owner *model.User, id string) (*model.IngestJob, error) {
	job, err := s.GetJob(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, alreadyFinished(job)
	}

	if err := s.queue.Cancel(ctx, id); err != nil {
		if errors.Is(err, ingest.ErrNotCancelable) {
			// Finished between the lookup and the cancel.
			if job, gerr := s.jobs.Get(ctx, id); gerr == nil {
				return nil, alreadyFinished(job)
			}
			return nil, apperror.Conflict("job", id)
		}
		return nil, fmt.Errorf("service/ingest: canceling job %s: %w", id, err)
	}

	s.logger.Info("job cancel requested",
		slog.String("jobID", id),
		slog.String("owner", owner.Email),
	)

	return s.jobs.Get(ctx, id)
}

func alreadyFinished(job *model.IngestJob) error {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: fmt.Sprintf("job %s already finished with status %s", job.ID, job.Status),
	}
}
