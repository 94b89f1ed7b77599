package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/repository"
)

// CompanyService answers queries over ingested company profiles.
type CompanyService struct {
	companies repository.CompanyRepository
	logger    *slog.Logger
}

func NewCompanyService(companies repository.CompanyRepository, logger *slog.Logger) *CompanyService {
	return &CompanyService{companies: companies, logger: logger}
}

// Count returns how many profiles match every set filter. Zero matches is
// reported as apperror.ErrNotFound.
func (s *CompanyService) Count(ctx context.Context, filter repository.CompanyFilter) (int, error) {
	if filter.YearFounded != nil && *filter.YearFounded < 0 {
		return 0, apperror.ValidationFailed("year_founded", "year_founded must not be negative")
	}

	count, err := s.companies.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("service/company: counting profiles: %w", err)
	}

	attrs := []any{slog.Int("count", count)}
	for _, f := range []struct{ key, val string }{
		{"first_name", filter.FirstName},
		{"city", filter.City},
		{"state", filter.State},
		{"country", filter.Country},
		{"industry", filter.Industry},
	} {
		if f.val != "" {
			attrs = append(attrs, slog.String(f.key, f.val))
		}
	}
	if filter.YearFounded != nil {
		attrs = append(attrs, slog.Int("year_founded", *filter.YearFounded))
	}

	if count == 0 {
		s.logger.Warn("no matching company profiles", attrs...)
		return 0, apperror.NotFoundMessage("No matching company profiles found")
	}
	s.logger.Info("counted company profiles", attrs...)
	return count, nil
}
