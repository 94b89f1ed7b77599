package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/handler"
	"github.com/sakif/company-ingest/internal/repository"
)

type MockCounter struct {
	CapturedFilter repository.CompanyFilter
	Called         bool
	ReturnCount    int
	ReturnErr      error
}

func (m *MockCounter) Count(_ context.Context, filter repository.CompanyFilter) (int, error) {
	m.Called = true
	m.CapturedFilter = filter
	return m.ReturnCount, m.ReturnErr
}

func TestQueryHandler_HandleCount(t *testing.T) {
	t.Run("filters are passed through", func(t *testing.T) {
		mock := &MockCounter{ReturnCount: 42}
		h := handler.NewQueryHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleCount(rr, httptest.NewRequest(http.MethodGet,
			"/query/company-profiles/?city=+London+&industry=soft&year_founded=1999&unknown=x", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(42), decodeBody(t, rr)["count"])

		assert.Equal(t, "London", mock.CapturedFilter.City)
		assert.Equal(t, "soft", mock.CapturedFilter.Industry)
		assert.Empty(t, mock.CapturedFilter.FirstName)
		require.NotNil(t, mock.CapturedFilter.YearFounded)
		assert.Equal(t, 1999, *mock.CapturedFilter.YearFounded)
	})

	t.Run("no filters", func(t *testing.T) {
		mock := &MockCounter{ReturnCount: 3}
		h := handler.NewQueryHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleCount(rr, httptest.NewRequest(http.MethodGet, "/query/company-profiles/", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, repository.CompanyFilter{}, mock.CapturedFilter)
	})

	t.Run("non-integer year", func(t *testing.T) {
		mock := &MockCounter{}
		h := handler.NewQueryHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleCount(rr, httptest.NewRequest(http.MethodGet, "/query/company-profiles/?year_founded=nineteen", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "year_founded", decodeBody(t, rr)["field"])
		assert.False(t, mock.Called)
	})

	t.Run("no matches", func(t *testing.T) {
		mock := &MockCounter{ReturnErr: apperror.NotFoundMessage("No matching company profiles found")}
		h := handler.NewQueryHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleCount(rr, httptest.NewRequest(http.MethodGet, "/query/company-profiles/?country=atlantis", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "No matching company profiles found", decodeBody(t, rr)["message"])
	})
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.NewHealthHandler(stubPinger{}, testLogger()).
		HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(stubPinger{err: errors.New("connection refused")}, testLogger()).
		HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
