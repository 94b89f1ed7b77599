package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/repository"
)

// CompanyCounter is what QueryHandler needs from service.CompanyService.
type CompanyCounter interface {
	Count(ctx context.Context, filter repository.CompanyFilter) (int, error)
}

// QueryHandler serves counts over the ingested company profiles.
type QueryHandler struct {
	companies CompanyCounter
}

func NewQueryHandler(companies CompanyCounter) *QueryHandler {
	return &QueryHandler{companies: companies}
}

type countResponse struct {
	Count int `json:"count"`
}

// HandleCount counts profiles matching the query filters.
//
// HTTP: GET /query/company-profiles/?city=lon&industry=soft&year_founded=1999
//
// Text filters are case-insensitive substrings; year_founded is exact.
// All given filters must match. No match at all is a 404.
func (h *QueryHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.CompanyFilter{
		FirstName: strings.TrimSpace(q.Get("first_name")),
		City:      strings.TrimSpace(q.Get("city")),
		State:     strings.TrimSpace(q.Get("state")),
		Country:   strings.TrimSpace(q.Get("country")),
		Industry:  strings.TrimSpace(q.Get("industry")),
	}

	if raw := strings.TrimSpace(q.Get("year_founded")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("year_founded", "year_founded must be an integer"))
			return
		}
		filter.YearFounded = &year
	}

	count, err := h.companies.Count(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}
