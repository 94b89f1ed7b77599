package sqldb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pgUniqueViolation is SQLSTATE 23505.
const pgUniqueViolation = "23505"

type dialect struct {
	name       string
	driverName string
	pragmas    []string
	schema     []string
	rebind     func(string) string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return dialect{
			name:       "sqlite",
			driverName: "sqlite",
			pragmas: []string{
				// WAL lets readers proceed while a batch insert is writing.
				"PRAGMA journal_mode=WAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA foreign_keys=ON",
			},
			schema: schemaFor("DATETIME"),
			rebind: func(q string) string { return q },
		}, nil
	case "postgres":
		return dialect{
			name:       "postgres",
			driverName: "pgx",
			schema:     schemaFor("TIMESTAMPTZ"),
			rebind:     dollarPlaceholders,
		}, nil
	default:
		return dialect{}, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
}

func schemaFor(ts string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			last_login    ` + ts + `,
			created_at    ` + ts + ` NOT NULL,
			updated_at    ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS company_profiles (
			id            TEXT PRIMARY KEY,
			job_id        TEXT NOT NULL,
			first_name    TEXT NOT NULL,
			last_name     TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			mobile_number TEXT NOT NULL,
			city          TEXT NOT NULL,
			state         TEXT NOT NULL,
			country       TEXT NOT NULL,
			industry      TEXT NOT NULL,
			year_founded  INTEGER NOT NULL,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    ` + ts + ` NOT NULL,
			updated_at    ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_company_profiles_job_id ON company_profiles(job_id)`,
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			id                TEXT PRIMARY KEY,
			owner_email       TEXT NOT NULL,
			filename          TEXT NOT NULL,
			stored_path       TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			rows_total        INTEGER NOT NULL DEFAULT 0,
			rows_inserted     INTEGER NOT NULL DEFAULT 0,
			rows_failed       INTEGER NOT NULL DEFAULT 0,
			batches_committed INTEGER NOT NULL DEFAULT 0,
			error             TEXT NOT NULL DEFAULT '',
			created_at        ` + ts + ` NOT NULL,
			started_at        ` + ts + `,
			finished_at       ` + ts + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_owner ON ingest_jobs(owner_email, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status)`,
	}
}

// dollarPlaceholders turns "a = ? AND b = ?" into "a = $1 AND b = $2".
func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint, for either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
