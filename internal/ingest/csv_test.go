package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHeader = []string{
	"first_name", "last_name", "email", "mobile_number", "city",
	"state", "country", "industry", "year_founded",
}

func TestMapHeader(t *testing.T) {
	t.Run("exact names", func(t *testing.T) {
		cols, err := mapHeader(fullHeader)
		require.NoError(t, err)
		assert.Equal(t, 2, cols["email"])
	})

	t.Run("case, spacing, order and BOM", func(t *testing.T) {
		header := []string{"\ufeffYear_Founded", " EMAIL ", "Industry", "country", "State", "City",
			"mobile_number", "Last_Name", "first_name", "notes"}
		cols, err := mapHeader(header)
		require.NoError(t, err)
		assert.Equal(t, 0, cols["year_founded"])
		assert.Equal(t, 1, cols["email"])
		assert.Equal(t, 9, cols["notes"])
	})

	t.Run("missing columns are all reported", func(t *testing.T) {
		_, err := mapHeader([]string{"first_name", "email"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBadHeader))
		assert.Contains(t, err.Error(), "last_name")
		assert.Contains(t, err.Error(), "year_founded")
	})
}

func TestColumnsProfile(t *testing.T) {
	cols, err := mapHeader(append(append([]string{}, fullHeader...), "is_active"))
	require.NoError(t, err)

	valid := []string{"Ada", "Lovelace", " Ada@Example.COM ", "555-0100", "London",
		"LDN", "UK", "Computing", "1843", ""}

	t.Run("valid row", func(t *testing.T) {
		p, err := cols.profile(valid, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", p.JobID)
		assert.Equal(t, "ada@example.com", p.Email)
		assert.Equal(t, 1843, p.YearFounded)
		assert.True(t, p.IsActive)
	})

	tests := []struct {
		name   string
		mutate func([]string) []string
	}{
		{"empty required field", func(r []string) []string { r[4] = " "; return r }},
		{"non-integer year", func(r []string) []string { r[8] = "18x3"; return r }},
		{"decimal year", func(r []string) []string { r[8] = "1843.5"; return r }},
		{"short row", func(r []string) []string { return r[:5] }},
		{"bad is_active", func(r []string) []string { r[9] = "sometimes"; return r }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.mutate(append([]string{}, valid...))
			_, err := cols.profile(row, "job-1")
			assert.True(t, errors.Is(err, ErrRowInvalid), "error = %v", err)
		})
	}

	t.Run("is_active false", func(t *testing.T) {
		row := append([]string{}, valid...)
		row[9] = "false"
		p, err := cols.profile(row, "job-1")
		require.NoError(t, err)
		assert.False(t, p.IsActive)
	})
}
