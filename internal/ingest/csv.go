package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/company-ingest/internal/model"
)

// RequiredColumns lists the header names every upload must carry. Order in
// the file doesn't matter; extra columns are ignored.
var RequiredColumns = []string{
	"first_name",
	"last_name",
	"email",
	"mobile_number",
	"city",
	"state",
	"country",
	"industry",
	"year_founded",
}

// optional; defaults to true when absent or empty
const isActiveColumn = "is_active"

var (
	ErrEmptyFile  = errors.New("ingest: file is empty")
	ErrBadHeader  = errors.New("ingest: header is missing required columns")
	ErrRowInvalid = errors.New("ingest: invalid row")
)

// columns maps a lower-cased header name to its field index.
type columns map[string]int

// mapHeader indexes header by normalized name. It fails with ErrBadHeader
// listing every missing required column.
func mapHeader(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff") // UTF-8 BOM from Excel exports
		}
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[name]; !dup && name != "" {
			cols[name] = i
		}
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadHeader, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// profile converts one CSV record. Every required field must be non-empty
// and year_founded must be an integer.
func (c columns) profile(record []string, jobID string) (model.CompanyProfile, error) {
	for _, name := range RequiredColumns {
		if c.get(record, name) == "" {
			return model.CompanyProfile{}, fmt.Errorf("%w: %s is empty", ErrRowInvalid, name)
		}
	}

	year, err := strconv.Atoi(c.get(record, "year_founded"))
	if err != nil {
		return model.CompanyProfile{}, fmt.Errorf("%w: year_founded %q is not an integer",
			ErrRowInvalid, c.get(record, "year_founded"))
	}

	active := true
	if v := c.get(record, isActiveColumn); v != "" {
		active, err = strconv.ParseBool(v)
		if err != nil {
			return model.CompanyProfile{}, fmt.Errorf("%w: is_active %q is not a boolean", ErrRowInvalid, v)
		}
	}

	return model.CompanyProfile{
		JobID:        jobID,
		FirstName:    c.get(record, "first_name"),
		LastName:     c.get(record, "last_name"),
		Email:        strings.ToLower(c.get(record, "email")),
		MobileNumber: c.get(record, "mobile_number"),
		City:         c.get(record, "city"),
		State:        c.get(record, "state"),
		Country:      c.get(record, "country"),
		Industry:     c.get(record, "industry"),
		YearFounded:  year,
		IsActive:     active,
	}, nil
}
