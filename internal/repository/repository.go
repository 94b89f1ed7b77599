// Package repository declares the storage interfaces the services depend on.
//
// Services only see these interfaces; internal/repository/sqldb implements
// them for SQLite and Postgres, and service tests implement them with
// in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/company-ingest/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores accounts.
//
// Create must return an error wrapping apperror.ErrConflict when the email
// is already taken. The UNIQUE constraint decides, not a prior lookup.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// RecordLogin sets last_login. A non-empty newHash replaces the
	// stored password digest in the same statement.
	RecordLogin(ctx context.Context, id string, at time.Time, newHash string) error
}

// CompanyFilter narrows a company-profile count. Empty strings and a nil
// YearFounded mean "no constraint"; set fields are ANDed.
type CompanyFilter struct {
	FirstName   string
	City        string
	State       string
	Country     string
	Industry    string
	YearFounded *int
}

// CompanyRepository stores ingested rows.
type CompanyRepository interface {
	// InsertBatch writes rows in one transaction, skipping rows whose email
	// already exists. It returns how many rows were actually inserted.
	InsertBatch(ctx context.Context, rows []model.CompanyProfile) (int, error)
	Count(ctx context.Context, filter CompanyFilter) (int, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
}

// JobRepository stores ingestion job state.
type JobRepository interface {
	Create(ctx context.Context, job *model.IngestJob) error
	Get(ctx context.Context, id string) (*model.IngestJob, error)
	ListByOwner(ctx context.Context, ownerEmail string, opts ListOptions) ([]model.IngestJob, error)
	ListByStatus(ctx context.Context, status model.JobStatus) ([]model.IngestJob, error)
	// ListExpired returns finished jobs whose upload file is still on disk
	// and that finished before the cutoff.
	ListExpired(ctx context.Context, before time.Time) ([]model.IngestJob, error)

	// MarkRunning moves a queued job to running. It reports false when the
	// job was no longer queued (for example, canceled while waiting).
	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateProgress(ctx context.Context, id string, p model.JobProgress) error
	Finish(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, errMsg string, at time.Time) error
	// CancelQueued moves a queued job straight to canceled and reports
	// whether it did.
	CancelQueued(ctx context.Context, id string, at time.Time) (bool, error)
	ClearStoredPath(ctx context.Context, id string) error
}
