package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

func createTestJob(t *testing.T, s *JobStore, owner string, createdAt time.Time) *model.IngestJob {
	t.Helper()
	j := &model.IngestJob{
		ID:         uuid.NewString(),
		OwnerEmail: owner,
		Filename:   "companies.csv",
		StoredPath: "/tmp/uploads/x_companies.csv",
		Status:     model.JobQueued,
		CreatedAt:  createdAt.UTC(),
	}
	if err := s.Create(context.Background(), j); err != nil {
		t.Fatalf("failed to create test job: %v", err)
	}
	return j
}

func TestJobCreateAndGet(t *testing.T) {
	s := newTestDB(t).Jobs()
	created := createTestJob(t, s, "ada@example.com", time.Now())

	got, err := s.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != model.JobQueued || got.OwnerEmail != "ada@example.com" || got.StoredPath != created.StoredPath {
		t.Errorf("Get() = %+v", got)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("new job should have no start/finish time")
	}
}

func TestJobGet_NotFound(t *testing.T) {
	s := newTestDB(t).Jobs()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestDB(t).Jobs()
	ctx := context.Background()
	j := createTestJob(t, s, "ada@example.com", time.Now())

	started, err := s.MarkRunning(ctx, j.ID, time.Now())
	if err != nil || !started {
		t.Fatalf("MarkRunning() = %v, %v; want true, nil", started, err)
	}

	// A running job can't be started again or canceled as queued.
	if again, _ := s.MarkRunning(ctx, j.ID, time.Now()); again {
		t.Error("MarkRunning() succeeded twice")
	}
	if canceled, _ := s.CancelQueued(ctx, j.ID, time.Now()); canceled {
		t.Error("CancelQueued() canceled a running job")
	}

	p := model.JobProgress{RowsTotal: 10, RowsInserted: 8, RowsFailed: 2, BatchesCommitted: 1}
	if err := s.UpdateProgress(ctx, j.ID, p); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	got, _ := s.Get(ctx, j.ID)
	if got.Status != model.JobRunning || got.RowsInserted != 8 || got.StartedAt == nil {
		t.Errorf("after progress: %+v", got)
	}

	if err := s.Finish(ctx, j.ID, model.JobPartiallyFailed, p, "2 rows failed", time.Now()); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, _ = s.Get(ctx, j.ID)
	if got.Status != model.JobPartiallyFailed || got.Error != "2 rows failed" || got.FinishedAt == nil {
		t.Errorf("after finish: %+v", got)
	}
}

func TestJobFinish_Unknown(t *testing.T) {
	s := newTestDB(t).Jobs()

	err := s.Finish(context.Background(), "missing", model.JobFailed, model.JobProgress{}, "", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Finish() error = %v, want ErrNotFound", err)
	}
}

func TestJobCancelQueued(t *testing.T) {
	s := newTestDB(t).Jobs()
	ctx := context.Background()
	j := createTestJob(t, s, "ada@example.com", time.Now())

	canceled, err := s.CancelQueued(ctx, j.ID, time.Now())
	if err != nil || !canceled {
		t.Fatalf("CancelQueued() = %v, %v; want true, nil", canceled, err)
	}
	if started, _ := s.MarkRunning(ctx, j.ID, time.Now()); started {
		t.Error("MarkRunning() started a canceled job")
	}

	got, _ := s.Get(ctx, j.ID)
	if got.Status != model.JobCanceled || got.FinishedAt == nil {
		t.Errorf("after cancel: %+v", got)
	}
}

func TestJobListByOwner(t *testing.T) {
	s := newTestDB(t).Jobs()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	old := createTestJob(t, s, "ada@example.com", base)
	newer := createTestJob(t, s, "ada@example.com", base.Add(time.Minute))
	createTestJob(t, s, "bob@example.com", base.Add(2*time.Minute))

	jobs, err := s.ListByOwner(ctx, "ada@example.com", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("ListByOwner() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != newer.ID || jobs[1].ID != old.ID {
		t.Error("ListByOwner() not ordered newest first")
	}

	page, _ := s.ListByOwner(ctx, "ada@example.com", repository.ListOptions{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != old.ID {
		t.Errorf("page 2 = %+v, want the older job", page)
	}

	none, _ := s.ListByOwner(ctx, "nobody@example.com", repository.ListOptions{})
	if none == nil || len(none) != 0 {
		t.Errorf("ListByOwner() for unknown owner = %v, want empty non-nil slice", none)
	}
}

func TestJobListByStatusAndExpired(t *testing.T) {
	s := newTestDB(t).Jobs()
	ctx := context.Background()
	now := time.Now()

	queued := createTestJob(t, s, "ada@example.com", now.Add(-3*time.Hour))
	running := createTestJob(t, s, "ada@example.com", now.Add(-2*time.Hour))
	done := createTestJob(t, s, "ada@example.com", now.Add(-time.Hour))

	if _, err := s.MarkRunning(ctx, running.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, done.ID, model.JobSucceeded, model.JobProgress{}, "", now.Add(-30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	q, _ := s.ListByStatus(ctx, model.JobQueued)
	if len(q) != 1 || q[0].ID != queued.ID {
		t.Errorf("ListByStatus(queued) = %+v", q)
	}
	r, _ := s.ListByStatus(ctx, model.JobRunning)
	if len(r) != 1 || r[0].ID != running.ID {
		t.Errorf("ListByStatus(running) = %+v", r)
	}

	expired, err := s.ListExpired(ctx, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != done.ID {
		t.Fatalf("ListExpired() = %+v, want only the finished job", expired)
	}

	if err := s.ClearStoredPath(ctx, done.ID); err != nil {
		t.Fatalf("ClearStoredPath() error = %v", err)
	}
	expired, _ = s.ListExpired(ctx, now.Add(-10*time.Minute))
	if len(expired) != 0 {
		t.Errorf("ListExpired() after clearing = %d jobs, want 0", len(expired))
	}

	notYet, _ := s.ListExpired(ctx, now.Add(-time.Hour))
	if len(notYet) != 0 {
		t.Errorf("ListExpired() with early cutoff = %d jobs, want 0", len(notYet))
	}
}
