package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/auth"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

// IngestService is what UploadHandler needs from service.IngestService.
type IngestService interface {
	Upload(ctx context.Context, owner *model.User, filename string, body io.Reader) (*model.IngestJob, error)
	GetJob(ctx context.Context, owner *model.User, id string) (*model.IngestJob, error)
	ListJobs(ctx context.Context, owner *model.User, opts repository.ListOptions) ([]model.IngestJob, error)
	CancelJob(ctx context.Context, owner *model.User, id string) (*model.IngestJob, error)
}

// UploadHandler accepts CSV uploads and reports on their ingestion jobs.
// Every route requires RequireAuth; a user only ever sees their own jobs.
type UploadHandler struct {
	ingest   IngestService
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(ingest IngestService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{ingest: ingest, maxBytes: maxBytes, logger: logger}
}

type uploadResponse struct {
	Message string          `json:"message"`
	JobID   string          `json:"job_id"`
	Status  model.JobStatus `json:"status"`
}

type cancelResponse struct {
	Message string           `json:"message"`
	Job     *model.IngestJob `json:"job"`
}

// HandleUpload streams the "file" part of a multipart body to disk and
// schedules it for ingestion.
//
// HTTP: POST /upload_csv/upload-csv/
//
// STREAMING:
// r.MultipartReader walks the parts as they arrive instead of buffering
// the whole form like r.ParseMultipartForm would. The file part is copied
// straight into the upload store, so memory stays flat for any file size.
// MaxBytesReader cuts the stream at maxBytes.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Could not validate credentials"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "Expected a multipart/form-data body with a file part"))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, apperror.ValidationFailed("file", "A file part named \"file\" is required"))
			return
		}
		if err != nil {
			h.uploadFailed(w, err, true)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		job, err := h.ingest.Upload(r.Context(), user, part.FileName(), part)
		part.Close()
		if err != nil {
			h.uploadFailed(w, err, false)
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{
			Message: "File uploaded successfully, processing in background.",
			JobID:   job.ID,
			Status:  job.Status,
		})
		return
	}
}

// uploadFailed reports a failed upload. An oversized body is 413, a
// truncated or malformed multipart stream is the client's 400.
func (h *UploadHandler) uploadFailed(w http.ResponseWriter, err error, streamErr bool) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: "Upload exceeds the maximum size of " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
		})
		return
	}
	if streamErr || errors.Is(err, io.ErrUnexpectedEOF) {
		h.logger.Warn("malformed upload", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("file", "Malformed multipart body"))
		return
	}
	writeError(w, err)
}

// HandleListJobs returns the caller's jobs, newest first.
//
// HTTP: GET /upload_csv/jobs?limit=50&offset=0
func (h *UploadHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Could not validate credentials"))
		return
	}

	var opts repository.ListOptions
	var err error
	if opts.Limit, err = intQuery(r, "limit"); err != nil {
		writeError(w, err)
		return
	}
	if opts.Offset, err = intQuery(r, "offset"); err != nil {
		writeError(w, err)
		return
	}

	jobs, err := h.ingest.ListJobs(r.Context(), user, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleGetJob returns one job with its row counts, for polling.
//
// HTTP: GET /upload_csv/jobs/{id}
func (h *UploadHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Could not validate credentials"))
		return
	}

	job, err := h.ingest.GetJob(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob cancels a queued or running job.
//
// HTTP: POST /upload_csv/jobs/{id}/cancel
func (h *UploadHandler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Could not validate credentials"))
		return
	}

	job, err := h.ingest.CancelJob(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	msg := "Job canceled"
	if !job.Status.Terminal() {
		msg = "Cancellation requested"
	}
	writeJSON(w, http.StatusOK, cancelResponse{Message: msg, Job: job})
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(key, key+" must be a non-negative integer")
	}
	return n, nil
}
