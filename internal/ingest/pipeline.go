package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

var (
	ErrQueueFull      = errors.New("ingest: queue is full")
	ErrStopped        = errors.New("ingest: pipeline is stopped")
	ErrNotCancelable  = errors.New("ingest: job is already finished")
	errCanceledByUser = errors.New("canceled by user")
	errShutdown       = errors.New("interrupted: server shutting down")
)

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers   int
	QueueSize int
	BatchSize int
}

// Pipeline is a fixed pool of workers fed from a bounded queue of job IDs.
//
// LIFECYCLE:
//
//	NewPipeline → Start (once) → Enqueue/Cancel ... → Stop (once)
//
// Each running job gets a child of the pipeline's root context, registered
// under its ID so Cancel can reach it. Stop cancels the root only if the
// workers don't finish within the caller's deadline.
type Pipeline struct {
	cfg       PipelineConfig
	jobs      repository.JobRepository
	companies repository.CompanyRepository
	logger    *slog.Logger

	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup

	root       context.Context
	rootCancel context.CancelCauseFunc

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPipeline wires a pipeline. Nothing runs until Start.
func NewPipeline(cfg PipelineConfig, jobs repository.JobRepository, companies repository.CompanyRepository, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}

	root, cancel := context.WithCancelCause(context.Background())
	return &Pipeline{
		cfg:        cfg,
		jobs:       jobs,
		companies:  companies,
		logger:     logger,
		queue:      make(chan string, cfg.QueueSize),
		done:       make(chan struct{}),
		root:       root,
		rootCancel: cancel,
		running:    make(map[string]context.CancelCauseFunc),
	}
}

// Start launches the workers.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting ingest pipeline",
			slog.Int("workers", p.cfg.Workers),
			slog.Int("queueSize", p.cfg.QueueSize),
			slog.Int("batchSize", p.cfg.BatchSize),
		)
		for range p.cfg.Workers {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop stops taking new jobs and waits for in-flight jobs. When ctx
// expires first, running jobs are canceled and Stop waits for them to
// record their state. Jobs still queued stay "queued" in the database and
// are picked up by Recover on the next start.
func (p *Pipeline) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down ingest pipeline")

		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.done)

		finished := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			p.logger.Warn("ingest pipeline did not drain in time, canceling running jobs")
			p.rootCancel(errShutdown)
			<-finished
		}
		p.rootCancel(errShutdown)
	})
}

// Enqueue hands a queued job to the workers without blocking.
func (p *Pipeline) Enqueue(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel stops a job. A queued job is marked canceled straight away; a
// running job has its context canceled and records "canceled" itself once
// the worker notices, between rows or before the next commit.
func (p *Pipeline) Cancel(ctx context.Context, jobID string) error {
	canceled, err := p.jobs.CancelQueued(ctx, jobID, time.Now())
	if err != nil {
		return err
	}
	if canceled {
		p.logger.Info("canceled queued ingest job", slog.String("jobID", jobID))
		return nil
	}

	p.mu.Lock()
	cancel, ok := p.running[jobID]
	p.mu.Unlock()
	if !ok {
		return ErrNotCancelable
	}

	cancel(errCanceledByUser)
	p.logger.Info("cancel requested for running ingest job", slog.String("jobID", jobID))
	return nil
}

// Recover repairs state left by a previous process: running jobs are
// marked failed (their partial batches stay committed) and queued jobs
// are fed back to the workers. Call it after Start.
func (p *Pipeline) Recover(ctx context.Context) error {
	stale, err := p.jobs.ListByStatus(ctx, model.JobRunning)
	if err != nil {
		return fmt.Errorf("ingest: listing running jobs: %w", err)
	}
	for _, j := range stale {
		progress := model.JobProgress{
			RowsTotal:        j.RowsTotal,
			RowsInserted:     j.RowsInserted,
			RowsFailed:       j.RowsFailed,
			BatchesCommitted: j.BatchesCommitted,
		}
		if err := p.jobs.Finish(ctx, j.ID, model.JobFailed, progress, "interrupted", time.Now()); err != nil {
			return fmt.Errorf("ingest: failing interrupted job %s: %w", j.ID, err)
		}
		p.logger.Warn("marked interrupted ingest job as failed", slog.String("jobID", j.ID))
	}

	queued, err := p.jobs.ListByStatus(ctx, model.JobQueued)
	if err != nil {
		return fmt.Errorf("ingest: listing queued jobs: %w", err)
	}
	if len(queued) == 0 {
		return nil
	}

	// The backlog may exceed the queue, so feed it from a goroutine that
	// blocks on the channel instead of failing with ErrQueueFull.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for _, j := range queued {
			select {
			case p.queue <- j.ID:
			case <-p.done:
				return
			}
		}
		p.logger.Info("re-enqueued queued ingest jobs", slog.Int("count", len(queued)))
	}()
	return nil
}

// worker pulls job IDs until Stop.
func (p *Pipeline) worker() {
	defer p.wg.Done()

	for {
		// Check done first so a stop request wins over a non-empty queue.
		select {
		case <-p.done:
			return
		default:
		}

		select {
		case <-p.done:
			return
		case id := <-p.queue:
			p.run(id)
		}
	}
}

// run executes one job end to end and records its final state.
func (p *Pipeline) run(jobID string) {
	ctx, cancel := context.WithCancelCause(p.root)
	defer cancel(nil)

	p.mu.Lock()
	p.running[jobID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
	}()

	// Bookkeeping writes must land even after ctx is canceled.
	book := context.WithoutCancel(ctx)
	log := p.logger.With(slog.String("jobID", jobID))

	started, err := p.jobs.MarkRunning(book, jobID, time.Now())
	if err != nil {
		log.Error("failed to start ingest job", slog.String("error", err.Error()))
		return
	}
	if !started {
		log.Info("skipping ingest job that is no longer queued")
		return
	}

	job, err := p.jobs.Get(book, jobID)
	if err != nil {
		log.Error("failed to load ingest job", slog.String("error", err.Error()))
		return
	}

	begin := time.Now()
	progress, runErr := p.ingest(ctx, job, log)
	if runErr == nil {
		progress = p.reconcile(book, jobID, progress, log)
	}
	status, msg := outcome(progress, runErr, context.Cause(ctx))

	if err := p.jobs.Finish(book, jobID, status, progress, msg, time.Now()); err != nil {
		log.Error("failed to record ingest job result", slog.String("error", err.Error()))
		return
	}

	log.Info("ingest job finished",
		slog.String("status", string(status)),
		slog.Int("rowsTotal", progress.RowsTotal),
		slog.Int("rowsInserted", progress.RowsInserted),
		slog.Int("rowsFailed", progress.RowsFailed),
		slog.Int("batches", progress.BatchesCommitted),
		slog.Duration("duration", time.Since(begin)),
	)
}

// reconcile checks the inserted counter against the rows the job actually
// owns in the store and trusts the store when they disagree.
func (p *Pipeline) reconcile(ctx context.Context, jobID string, progress model.JobProgress, log *slog.Logger) model.JobProgress {
	persisted, err := p.companies.CountByJob(ctx, jobID)
	if err != nil {
		log.Warn("failed to count persisted rows", slog.String("error", err.Error()))
		return progress
	}
	if persisted == progress.RowsInserted {
		return progress
	}

	log.Warn("inserted row count disagrees with store",
		slog.Int("counted", progress.RowsInserted),
		slog.Int("persisted", persisted),
	)
	progress.RowsInserted = persisted
	progress.RowsFailed = max(progress.RowsTotal-persisted, 0)
	return progress
}

// outcome derives the terminal status from the counters and errors.
func outcome(p model.JobProgress, runErr, cause error) (model.JobStatus, string) {
	switch {
	case runErr != nil && errors.Is(cause, errCanceledByUser):
		return model.JobCanceled, errCanceledByUser.Error()
	case runErr != nil && errors.Is(cause, errShutdown):
		return model.JobFailed, errShutdown.Error()
	case runErr != nil:
		return model.JobFailed, runErr.Error()
	case p.RowsFailed == 0:
		return model.JobSucceeded, ""
	case p.RowsInserted == 0:
		return model.JobFailed, fmt.Sprintf("no rows inserted, %d failed", p.RowsFailed)
	default:
		return model.JobPartiallyFailed, fmt.Sprintf("%d of %d rows failed", p.RowsFailed, p.RowsTotal)
	}
}

// ingest streams the job's file through the CSV mapper in fixed-size
// batches. It returns a non-nil error only for fatal problems (unreadable
// file, bad header, I/O failure, cancellation); bad rows and failed
// batches are counted, logged and skipped.
func (p *Pipeline) ingest(ctx context.Context, job *model.IngestJob, log *slog.Logger) (model.JobProgress, error) {
	var progress model.JobProgress

	f, err := os.Open(job.StoredPath)
	if err != nil {
		return progress, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, 64<<10))
	r.FieldsPerRecord = -1 // short/long rows are judged per column, not rejected wholesale
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return progress, ErrEmptyFile
	}
	if err != nil {
		return progress, fmt.Errorf("reading header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return progress, err
	}

	book := context.WithoutCancel(ctx)
	batch := make([]model.CompanyProfile, 0, p.cfg.BatchSize)

	// abandon counts rows read but never committed as failed, so the
	// counters still add up when the job stops early.
	abandon := func(err error) error {
		progress.RowsFailed += len(batch)
		batch = batch[:0]
		return err
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return abandon(err)
		}

		inserted, err := p.companies.InsertBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return abandon(ctx.Err())
			}
			// The transaction rolled back; the whole batch failed.
			log.Error("ingest batch failed",
				slog.Int("rows", len(batch)),
				slog.String("error", err.Error()),
			)
			progress.RowsFailed += len(batch)
		} else {
			progress.RowsInserted += inserted
			progress.RowsFailed += len(batch) - inserted // duplicates skipped by ON CONFLICT
			progress.BatchesCommitted++
		}
		batch = batch[:0]

		if err := p.jobs.UpdateProgress(book, job.ID, progress); err != nil {
			log.Warn("failed to persist ingest progress", slog.String("error", err.Error()))
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			err = abandon(err)
			return progress, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return progress, fmt.Errorf("reading csv: %w", err)
			}
			n := malformedRows(perr)
			progress.RowsTotal += n
			progress.RowsFailed += n
			if n > 1 {
				log.Warn("unterminated quoted field",
					slog.Int("startLine", perr.StartLine),
					slog.Int("endLine", perr.Line),
					slog.Int("rows", n),
				)
			} else {
				log.Debug("skipping malformed csv row", slog.Int("line", perr.Line), slog.String("error", perr.Err.Error()))
			}
			continue
		}

		progress.RowsTotal++
		profile, err := cols.profile(record, job.ID)
		if err != nil {
			progress.RowsFailed++
			line, _ := r.FieldPos(0)
			log.Debug("skipping invalid csv row", slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}

		batch = append(batch, profile)
		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				return progress, err
			}
		}
	}

	if err := flush(); err != nil {
		return progress, err
	}
	return progress, nil
}

// malformedRows is how many input lines a parse error swallowed. A quoted
// field that never closes runs to the end of the file, and each line it
// consumed is counted as its own failed row.
func malformedRows(perr *csv.ParseError) int {
	if errors.Is(perr.Err, csv.ErrQuote) && perr.Line > perr.StartLine {
		return perr.Line - perr.StartLine + 1
	}
	return 1
}
