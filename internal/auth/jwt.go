// Package auth provides password hashing, JWT issuance/validation and the
// bearer-token middleware for the ingest API.
//
// AUTHENTICATION FLOW OVERVIEW:
//
//  1. POST /auth/register/ stores the user with a pbkdf2 password digest
//  2. POST /auth/login/ verifies the password and returns TWO tokens:
//     a short-lived access token and a long-lived refresh token
//  3. Protected routes read "Authorization: Bearer <access token>", validate
//     it, load the user and put it in the request context
//  4. When the access token expires, POST /auth/refresh_token/ trades the
//     refresh token for a new access token
//
// TOKEN KINDS:
// Both tokens are HMAC-signed with the same secret, so the signature alone
// can't tell them apart. Every token carries an explicit "kind" claim and
// Validate is told which kind it expects. A refresh token presented as an
// access token (or the reverse) is rejected.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"a@b.io","kind":"access","exp":1234567890}
//	- Signature: HMAC(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const (
	DefaultIssuer     = "company-ingest"
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrTokenWrongKind = errors.New("auth: wrong token kind")
)

// TokenConfig configures a TokenService. Zero values fall back to defaults.
type TokenConfig struct {
	Secret     string
	Algorithm  string // HS256 | HS384 | HS512
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations.
type TokenService struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService from cfg.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported JWT algorithm %q", cfg.Algorithm)
	}

	ts := &TokenService{
		secret:     []byte(cfg.Secret),
		method:     method,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if ts.issuer == "" {
		ts.issuer = DefaultIssuer
	}
	if ts.accessTTL <= 0 {
		ts.accessTTL = DefaultAccessTTL
	}
	if ts.refreshTTL <= 0 {
		ts.refreshTTL = DefaultRefreshTTL
	}
	return ts, nil
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims which includes
// standard fields like Issuer, Subject, ExpiresAt, IssuedAt.
//
// "sub" holds the user's email.
type claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// IssueAccess signs a short-lived access token for subject.
func (s *TokenService) IssueAccess(subject string) (string, error) {
	return s.Issue(subject, KindAccess, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for subject.
func (s *TokenService) IssueRefresh(subject string) (string, error) {
	return s.Issue(subject, KindRefresh, s.refreshTTL)
}

// Issue signs a token of the given kind with a custom lifetime.
// Used directly by tests to mint already-expired tokens.
func (s *TokenService) Issue(subject string, kind TokenKind, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject is empty")
	}
	now := time.Now()

	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(s.method, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns its subject.
//
// VALIDATION CHECKS:
//   - Signature is valid (wasn't tampered with)
//   - Algorithm is exactly the configured one (no "none", no RS/HS confusion)
//   - Token is not expired and HAS an expiry
//   - Issuer matches
//   - "kind" claim equals want
//   - Subject is not empty
func (s *TokenService) Validate(tokenStr string, want TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: bad claims", ErrTokenInvalid)
	}
	if c.Kind != want {
		return "", fmt.Errorf("%w: got %q, want %q", ErrTokenWrongKind, c.Kind, want)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}

	return c.Subject, nil
}
