// Package service implements the business logic.
//
// Services sit between the HTTP handlers and the repositories:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (pbkdf2)
//
// KEY RESPONSIBILITIES:
//   - Validate input and normalize it (emails are trimmed and lower-cased)
//   - Encapsulate the auth rules in one place, away from HTTP concerns
//   - Return apperror values; handlers decide the status code
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/auth"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/repository"
)

// invalidCredentials is the login error body when flags are disabled. It
// does not reveal whether the email exists.
const invalidCredentials = "Invalid email or password"

// AuthService handles registration, login, token refresh and bearer
// authentication.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue/validate JWTs
//   - passwords  PasswordHasher             → pbkdf2_sha256 digests
//   - loginFlags bool                       → distinct login error flags
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	passwords  PasswordHasher
	loginFlags bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
//
// With loginFlags set, a failed login says whether the email was unknown
// (flag 1) or the password wrong (flag 2). Otherwise both get the same
// message and no flag.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords PasswordHasher,
	loginFlags bool,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		passwords:  passwords,
		loginFlags: loginFlags,
		logger:     logger,
		now:        time.Now,
	}
}

// PasswordHasher is what AuthService needs from *auth.PasswordService.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, plaintext string) error
	VerifyUnknown(plaintext string) error
	NeedsRehash(digest string) bool
}

// compile-time check that *AuthService can back the bearer middleware
var _ auth.Authenticator = (*AuthService)(nil)

// =========================================================================
// INPUTS AND RESULTS
// =========================================================================

type RegisterInput struct {
	FirstName       string `json:"first_name" validate:"required,min=2,max=30,alphaname"`
	LastName        string `json:"last_name" validate:"required,min=3,max=30,alphaname"`
	Email           string `json:"email" validate:"required,max=50,email"`
	Password        string `json:"password" validate:"required,password_policy"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,max=50,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshInput struct {
	HashSlug string `json:"hash_slug" validate:"required"`
}

// LoginResult bundles the user and both tokens so the handler can respond
// in one step.
type LoginResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =========================================================================
// OPERATIONS
// =========================================================================

// Register creates an account.
//
// The GetByEmail lookup only saves a pbkdf2 round for obvious duplicates.
// The UNIQUE constraint checked by Create is what actually decides, so two
// concurrent registrations for one address yield exactly one account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		s.logger.Info("registration rejected",
			slog.String("email", in.Email),
			slog.String("reason", "already registered"),
		)
		return nil, apperror.AlreadyRegistered()
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", in.Email, err)
	}

	digest, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("registration rejected",
				slog.String("email", in.Email),
				slog.String("reason", "unique constraint"),
			)
			return nil, apperror.AlreadyRegistered()
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", in.Email, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// Login verifies credentials and issues an access and a refresh token.
//
// The log line always records the real reason; what the caller sees
// depends on loginFlags.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyUnknown(in.Password)
			s.loginRejected(in.Email, "unknown email")
			return nil, s.credentialsError("Email Id is not registered", apperror.FlagUnknownEmail)
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", in.Email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		s.loginRejected(in.Email, "wrong password")
		return nil, s.credentialsError("Invalid password", apperror.FlagWrongPassword)
	}

	if !user.IsActive {
		s.loginRejected(in.Email, "inactive account")
		return nil, apperror.AuthenticationFailed(invalidCredentials)
	}

	// Upgrade digests created with an older iteration count. The plaintext
	// is only available here.
	var newHash string
	if s.passwords.NeedsRehash(user.PasswordHash) {
		if newHash, err = s.passwords.Hash(in.Password); err != nil {
			s.logger.Warn("password rehash failed",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
			newHash = ""
		}
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now, newHash); err != nil {
		return nil, fmt.Errorf("service/auth: recording login for %s: %w", user.ID, err)
	}
	user.LastLogin = &now
	if newHash != "" {
		user.PasswordHash = newHash
	}

	access, err := s.tokens.IssueAccess(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token: %w", err)
	}

	s.logger.Info("login succeeded",
		slog.String("userID", user.ID),
		slog.Bool("rehashed", newHash != ""),
	)
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (string, error) {
	in.HashSlug = strings.TrimSpace(in.HashSlug)
	if err := validateInput(in); err != nil {
		return "", err
	}

	email, err := s.tokens.Validate(in.HashSlug, auth.KindRefresh)
	if err != nil {
		s.logger.Warn("refresh rejected", slog.String("reason", err.Error()))
		return "", apperror.AuthenticationFailed("Invalid refresh token")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("refresh rejected",
				slog.String("email", email),
				slog.String("reason", "unknown subject"),
			)
			return "", apperror.AuthenticationFailed("User not found")
		}
		return "", fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if !user.IsActive {
		s.logger.Warn("refresh rejected",
			slog.String("email", email),
			slog.String("reason", "inactive account"),
		)
		return "", apperror.AuthenticationFailed("User not found")
	}

	access, err := s.tokens.IssueAccess(user.Email)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing access token: %w", err)
	}
	return access, nil
}

// Authenticate resolves an access token to an active user. It backs the
// bearer middleware; every failure is an apperror.ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	email, err := s.tokens.Validate(accessToken, auth.KindAccess)
	if err != nil {
		s.logger.Debug("bearer token rejected", slog.String("reason", err.Error()))
		return nil, apperror.Unauthorized("Could not validate credentials")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Could not validate credentials")
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("Could not validate credentials")
	}
	return user, nil
}

// credentialsError builds the login failure the caller sees.
func (s *AuthService) credentialsError(flaggedMessage string, flag int) error {
	if !s.loginFlags {
		return apperror.AuthenticationFailed(invalidCredentials)
	}
	return apperror.AuthenticationFailed(flaggedMessage).WithFlag(flag)
}

func (s *AuthService) loginRejected(email, reason string) {
	s.logger.Warn("login rejected",
		slog.String("email", email),
		slog.String("reason", reason),
	)
}
