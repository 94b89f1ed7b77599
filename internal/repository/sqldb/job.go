package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

var _ repository.JobRepository = (*JobStore)(nil)

// JobStore is the ingest_jobs table.
type JobStore struct {
	db *DB
}

const jobColumns = `id, owner_email, filename, stored_path, status, rows_total, rows_inserted,
	rows_failed, batches_committed, error, created_at, started_at, finished_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.IngestJob, error) {
	var (
		j                 model.IngestJob
		started, finished sql.NullTime
	)
	err := row.Scan(
		&j.ID,
		&j.OwnerEmail,
		&j.Filename,
		&j.StoredPath,
		&j.Status,
		&j.RowsTotal,
		&j.RowsInserted,
		&j.RowsFailed,
		&j.BatchesCommitted,
		&j.Error,
		&j.CreatedAt,
		&started,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}
	return &j, nil
}

// Create inserts a job. The caller sets ID and Status.
func (s *JobStore) Create(ctx context.Context, job *model.IngestJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.conn.ExecContext(ctx, s.db.q(
		`INSERT INTO ingest_jobs (id, owner_email, filename, stored_path, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		job.ID, job.OwnerEmail, job.Filename, job.StoredPath, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by ID.
// Returns apperror.ErrNotFound if it doesn't exist.
func (s *JobStore) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.q(
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE id = ?`), id)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("job", id)
		}
		return nil, fmt.Errorf("sqldb: getting job %s: %w", id, err)
	}
	return j, nil
}

// ListByOwner returns a user's jobs, newest first.
func (s *JobStore) ListByOwner(ctx context.Context, ownerEmail string, opts repository.ListOptions) ([]model.IngestJob, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return s.list(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE owner_email = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		ownerEmail, opts.Limit, opts.Offset)
}

// ListByStatus returns every job in status, oldest first.
func (s *JobStore) ListByStatus(ctx context.Context, status model.JobStatus) ([]model.IngestJob, error) {
	return s.list(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE status = ? ORDER BY created_at, id`,
		string(status))
}

func (s *JobStore) ListExpired(ctx context.Context, before time.Time) ([]model.IngestJob, error) {
	return s.list(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs
		 WHERE finished_at IS NOT NULL AND finished_at < ? AND stored_path <> ''
		 ORDER BY finished_at`,
		before.UTC())
}

func (s *JobStore) list(ctx context.Context, query string, args ...any) ([]model.IngestJob, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing jobs: %w", err)
	}
	// ALWAYS close rows: an open *sql.Rows pins a pooled connection, and
	// the SQLite pool has only one.
	defer rows.Close()

	jobs := []model.IngestJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx, s.db.q(
		`UPDATE ingest_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`),
		string(model.JobRunning), at.UTC(), id, string(model.JobQueued))
	if err != nil {
		return false, fmt.Errorf("sqldb: starting job %s: %w", id, err)
	}
	return affectedOne(res)
}

func (s *JobStore) UpdateProgress(ctx context.Context, id string, p model.JobProgress) error {
	_, err := s.db.conn.ExecContext(ctx, s.db.q(
		`UPDATE ingest_jobs
		 SET rows_total = ?, rows_inserted = ?, rows_failed = ?, batches_committed = ?
		 WHERE id = ?`),
		p.RowsTotal, p.RowsInserted, p.RowsFailed, p.BatchesCommitted, id)
	if err != nil {
		return fmt.Errorf("sqldb: updating progress of job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Finish(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, errMsg string, at time.Time) error {
	res, err := s.db.conn.ExecContext(ctx, s.db.q(
		`UPDATE ingest_jobs
		 SET status = ?, rows_total = ?, rows_inserted = ?, rows_failed = ?, batches_committed = ?,
		     error = ?, finished_at = ?
		 WHERE id = ?`),
		string(status), p.RowsTotal, p.RowsInserted, p.RowsFailed, p.BatchesCommitted, errMsg, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqldb: finishing job %s: %w", id, err)
	}
	if ok, _ := affectedOne(res); !ok {
		return apperror.NotFound("job", id)
	}
	return nil
}

func (s *JobStore) CancelQueued(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx, s.db.q(
		`UPDATE ingest_jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`),
		string(model.JobCanceled), at.UTC(), id, string(model.JobQueued))
	if err != nil {
		return false, fmt.Errorf("sqldb: canceling job %s: %w", id, err)
	}
	return affectedOne(res)
}

func (s *JobStore) ClearStoredPath(ctx context.Context, id string) error {
	_, err := s.db.conn.ExecContext(ctx, s.db.q(
		`UPDATE ingest_jobs SET stored_path = '' WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqldb: clearing stored path of job %s: %w", id, err)
	}
	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: rows affected: %w", err)
	}
	return n == 1, nil
}
