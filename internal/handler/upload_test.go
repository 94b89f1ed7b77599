package handler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/auth"
	"github.com/sakif/company-ingest/internal/handler"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

// MockIngestService reads the uploaded body fully, like the real store.
type MockIngestService struct {
	CapturedOwner    *model.User
	CapturedFilename string
	CapturedBody     string
	CapturedID       string
	CapturedOpts     repository.ListOptions

	ReturnJob  *model.IngestJob
	ReturnJobs []model.IngestJob
	ReturnErr  error
}

func (m *MockIngestService) Upload(_ context.Context, owner *model.User, filename string, body io.Reader) (*model.IngestJob, error) {
	m.CapturedOwner = owner
	m.CapturedFilename = filename
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.CapturedBody = string(data)
	return m.ReturnJob, m.ReturnErr
}

func (m *MockIngestService) GetJob(_ context.Context, owner *model.User, id string) (*model.IngestJob, error) {
	m.CapturedOwner, m.CapturedID = owner, id
	return m.ReturnJob, m.ReturnErr
}

func (m *MockIngestService) ListJobs(_ context.Context, owner *model.User, opts repository.ListOptions) ([]model.IngestJob, error) {
	m.CapturedOwner, m.CapturedOpts = owner, opts
	return m.ReturnJobs, m.ReturnErr
}

func (m *MockIngestService) CancelJob(_ context.Context, owner *model.User, id string) (*model.IngestJob, error) {
	m.CapturedOwner, m.CapturedID = owner, id
	return m.ReturnJob, m.ReturnErr
}

var ada = &model.User{ID: "u-1", Email: "ada@example.com", IsActive: true}

func asUser(req *http.Request, user *model.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

func multipartUpload(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "quarterly import"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_csv/upload-csv/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return asUser(req, ada)
}

// jobRouter mounts the job routes so chi fills in {id}.
func jobRouter(h *handler.UploadHandler, user *model.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, asUser(r, user))
		})
	})
	r.Get("/upload_csv/jobs", h.HandleListJobs)
	r.Get("/upload_csv/jobs/{id}", h.HandleGetJob)
	r.Post("/upload_csv/jobs/{id}/cancel", h.HandleCancelJob)
	return r
}

func TestUploadHandler_HandleUpload(t *testing.T) {
	const csv = "first_name,last_name\nAda,Lovelace\n"

	t.Run("accepted", func(t *testing.T) {
		mock := &MockIngestService{ReturnJob: &model.IngestJob{ID: "job-1", Status: model.JobQueued}}
		h := handler.NewUploadHandler(mock, 1<<20, testLogger())

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, multipartUpload(t, "file", "companies.csv", csv))

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "job-1", body["job_id"])
		assert.Equal(t, "queued", body["status"])
		assert.Equal(t, "companies.csv", mock.CapturedFilename)
		assert.Equal(t, csv, mock.CapturedBody)
		assert.Equal(t, ada.Email, mock.CapturedOwner.Email)
	})

	t.Run("service rejects the file type", func(t *testing.T) {
		mock := &MockIngestService{ReturnErr: apperror.ValidationFailed("file", "Only CSV files are allowed")}
		h := handler.NewUploadHandler(mock, 1<<20, testLogger())

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, multipartUpload(t, "file", "companies.xlsx", "PK..."))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Only CSV files are allowed", decodeBody(t, rr)["message"])
	})

	t.Run("missing file part", func(t *testing.T) {
		mock := &MockIngestService{}
		h := handler.NewUploadHandler(mock, 1<<20, testLogger())

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, multipartUpload(t, "attachment", "companies.csv", csv))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, mock.CapturedOwner, "service must not be called")
	})

	t.Run("not multipart", func(t *testing.T) {
		h := handler.NewUploadHandler(&MockIngestService{}, 1<<20, testLogger())
		req := asUser(postJSON("/upload_csv/upload-csv/", `{"file":"x"}`), ada)

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		mock := &MockIngestService{ReturnJob: &model.IngestJob{ID: "job-1"}}
		h := handler.NewUploadHandler(mock, 512, testLogger())

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, multipartUpload(t, "file", "big.csv", strings.Repeat("a,b\n", 1000)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		mock := &MockIngestService{ReturnErr: apperror.Unavailable("The ingest queue is busy, try again later")}
		h := handler.NewUploadHandler(mock, 1<<20, testLogger())

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, multipartUpload(t, "file", "companies.csv", csv))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := handler.NewUploadHandler(&MockIngestService{}, 1<<20, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/upload_csv/upload-csv/", nil)

		rr := httptest.NewRecorder()
		h.HandleUpload(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestUploadHandler_Jobs(t *testing.T) {
	t.Run("get job", func(t *testing.T) {
		mock := &MockIngestService{ReturnJob: &model.IngestJob{ID: "job-7", Status: model.JobRunning, RowsInserted: 5000, StoredPath: "/srv/uploads/job-7_a.csv"}}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upload_csv/jobs/job-7", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "job-7", mock.CapturedID)
		assert.NotContains(t, rr.Body.String(), "/srv/uploads")
		body := decodeBody(t, rr)
		assert.Equal(t, "running", body["status"])
		assert.Equal(t, float64(5000), body["rows_inserted"])
	})

	t.Run("someone else's job", func(t *testing.T) {
		mock := &MockIngestService{ReturnErr: apperror.NotFound("job", "job-7")}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upload_csv/jobs/job-7", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("list with paging", func(t *testing.T) {
		mock := &MockIngestService{ReturnJobs: []model.IngestJob{{ID: "b"}, {ID: "a"}}}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upload_csv/jobs?limit=2&offset=4", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, repository.ListOptions{Limit: 2, Offset: 4}, mock.CapturedOpts)
		assert.Contains(t, rr.Body.String(), `"job_id":"b"`)
	})

	t.Run("bad paging", func(t *testing.T) {
		mock := &MockIngestService{}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upload_csv/jobs?limit=ten", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "limit", decodeBody(t, rr)["field"])
	})

	t.Run("cancel", func(t *testing.T) {
		mock := &MockIngestService{ReturnJob: &model.IngestJob{ID: "job-7", Status: model.JobCanceled}}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload_csv/jobs/job-7/cancel", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Job canceled", decodeBody(t, rr)["message"])
	})

	t.Run("cancel finished job", func(t *testing.T) {
		mock := &MockIngestService{ReturnErr: &apperror.AppError{Err: apperror.ErrConflict, Message: "already finished"}}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/upload_csv/jobs/job-7/cancel", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("internal error", func(t *testing.T) {
		mock := &MockIngestService{ReturnErr: errors.New("boom")}
		rr := httptest.NewRecorder()
		jobRouter(handler.NewUploadHandler(mock, 1<<20, testLogger()), ada).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upload_csv/jobs", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
