package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

var _ repository.CompanyRepository = (*CompanyStore)(nil)

// CompanyStore is the company_profiles table.
type CompanyStore struct {
	db *DB
}

// InsertBatch writes rows in a single transaction.
//
// ON CONFLICT (email) DO NOTHING makes a duplicate email a skipped row, not
// a failed batch. The return value counts rows that really went in, so the
// caller can derive how many were skipped.
//
// If anything else fails, the whole transaction rolls back and the
// returned count is 0.
func (s *CompanyStore) InsertBatch(ctx context.Context, rows []model.CompanyProfile) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.db.withTx(ctx, func(tx DBTX) error {
		stmt, err := tx.PrepareContext(ctx, s.db.q(
			`INSERT INTO company_profiles
			   (id, job_id, first_name, last_name, email, mobile_number, city, state, country,
			    industry, year_founded, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (email) DO NOTHING`))
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range rows {
			p := &rows[i]
			if p.ID == "" {
				p.ID = xid.New().String()
			}
			p.CreatedAt = now
			p.UpdatedAt = now

			res, err := stmt.ExecContext(ctx,
				p.ID, p.JobID, p.FirstName, p.LastName, p.Email, p.MobileNumber,
				p.City, p.State, p.Country, p.Industry, p.YearFounded, p.IsActive,
				p.CreatedAt, p.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting %s: %w", p.Email, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqldb: inserting company batch: %w", err)
	}
	return inserted, nil
}

// Count returns how many profiles match every set field of filter.
// Text filters are case-insensitive substring matches; LIKE wildcards in
// the input are matched literally.
func (s *CompanyStore) Count(ctx context.Context, filter repository.CompanyFilter) (int, error) {
	var (
		where []string
		args  []any
	)

	like := func(column, value string) {
		if value == "" {
			return
		}
		where = append(where, "LOWER("+column+`) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, "%"+escapeLike(value)+"%")
	}
	like("first_name", filter.FirstName)
	like("city", filter.City)
	like("state", filter.State)
	like("country", filter.Country)
	like("industry", filter.Industry)

	if filter.YearFounded != nil {
		where = append(where, "year_founded = ?")
		args = append(args, *filter.YearFounded)
	}

	query := "SELECT COUNT(*) FROM company_profiles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var n int
	if err := s.db.conn.QueryRowContext(ctx, s.db.q(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqldb: counting company profiles: %w", err)
	}
	return n, nil
}

// CountByJob returns how many profiles a given ingestion job created.
func (s *CompanyStore) CountByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, s.db.q(
		`SELECT COUNT(*) FROM company_profiles WHERE job_id = ?`), jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqldb: counting profiles for job %s: %w", jobID, err)
	}
	return n, nil
}
