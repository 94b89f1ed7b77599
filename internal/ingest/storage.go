// Package ingest turns uploaded CSV files into company_profiles rows.
//
// The moving parts:
//   - Store    : writes the upload to disk under a name the client can't steer
//   - csv.go   : maps the header by column name and converts records
//   - Pipeline : bounded worker pool that processes jobs in batches
//   - Janitor  : cron job that deletes old upload files
//
// The HTTP request only saves the file and enqueues a job; everything after
// that runs on the pipeline's own context, detached from the request.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store saves uploads inside one directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolving upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("ingest: creating upload dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save streams r to "<dir>/<jobID>_<sanitized name>" and returns the path
// and the number of bytes written. A partially written file is removed.
func (s *Store) Save(jobID, clientName string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, jobID+"_"+SanitizeFilename(clientName))

	// O_EXCL: never overwrite, even if two jobs somehow shared an ID.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("ingest: creating %s: %w", filepath.Base(path), err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", n, fmt.Errorf("ingest: writing upload: %w", err)
	}
	return path, n, nil
}

// Remove deletes a stored upload. Paths outside the store and files that
// are already gone are ignored.
func (s *Store) Remove(path string) error {
	if path == "" || filepath.Dir(filepath.Clean(path)) != s.dir {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ingest: removing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// IsCSVFilename reports whether name ends in ".csv", ignoring case.
func IsCSVFilename(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}

// SanitizeFilename reduces a client-supplied name to its base name and
// keeps only [A-Za-z0-9._-]. Both "/" and "\" count as separators, since
// browsers on Windows may send the full local path.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		out = "upload.csv"
	}
	const maxLen = 128
	if len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}
	return out
}
