package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore is the users table.
type UserStore struct {
	db *DB
}

// Create inserts a new user, generating its ID and timestamps.
//
// A taken email surfaces as a UNIQUE violation on users.email and is
// returned as apperror.ErrConflict. Concurrent registrations for the same
// address therefore yield exactly one success.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.conn.ExecContext(ctx, s.db.q(
		`INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqldb: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetByEmail retrieves a user by (already normalized) email.
// Returns apperror.ErrNotFound if no user exists with that email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)

	err := s.db.conn.QueryRowContext(ctx, s.db.q(
		`SELECT id, email, password_hash, first_name, last_name, is_active, last_login, created_at, updated_at
		 FROM users WHERE email = ?`),
		email,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqldb: getting user %s: %w", email, err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}

	return &u, nil
}

// RecordLogin stamps last_login/updated_at and, when newHash is set,
// upgrades the password digest.
func (s *UserStore) RecordLogin(ctx context.Context, id string, at time.Time, newHash string) error {
	at = at.UTC()

	var (
		res sql.Result
		err error
	)
	if newHash != "" {
		res, err = s.db.conn.ExecContext(ctx, s.db.q(
			`UPDATE users SET last_login = ?, updated_at = ?, password_hash = ? WHERE id = ?`),
			at, at, newHash, id)
	} else {
		res, err = s.db.conn.ExecContext(ctx, s.db.q(
			`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`),
			at, at, id)
	}
	if err != nil {
		return fmt.Errorf("sqldb: recording login for user %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
