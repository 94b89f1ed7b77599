package model

import "time"

// JobStatus is the lifecycle state of an ingestion job.
//
//	queued ──► running ──► succeeded
//	   │          ├──────► partially_failed
//	   │          ├──────► failed
//	   └──────────┴──────► canceled
type JobStatus string

const (
	JobQueued          JobStatus = "queued"
	JobRunning         JobStatus = "running"
	JobSucceeded       JobStatus = "succeeded"
	JobPartiallyFailed JobStatus = "partially_failed"
	JobFailed          JobStatus = "failed"
	JobCanceled        JobStatus = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobPartiallyFailed, JobFailed, JobCanceled:
		return true
	}
	return false
}

// IngestJob tracks one uploaded CSV file through the pipeline.
type IngestJob struct {
	ID               string     `json:"job_id"`
	OwnerEmail       string     `json:"owner_email"`
	Filename         string     `json:"filename"`
	StoredPath       string     `json:"-"`
	Status           JobStatus  `json:"status"`
	RowsTotal        int        `json:"rows_total"`
	RowsInserted     int        `json:"rows_inserted"`
	RowsFailed       int        `json:"rows_failed"`
	BatchesCommitted int        `json:"batches_committed"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// JobProgress is the counter snapshot persisted after each batch.
type JobProgress struct {
	RowsTotal        int
	RowsInserted     int
	RowsFailed       int
	BatchesCommitted int
}
