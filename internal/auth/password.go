// Password hashing utilities.
//
// WHY PBKDF2 (AND NOT BCRYPT)?
// Existing accounts were created by a Django/passlib stack that stores
// passwords as "django_pbkdf2_sha256" digests. Using the same format means
// those rows keep working without a forced password reset.
//
// PBKDF2 is a deliberately slow key-derivation function: it runs HMAC-SHA256
// thousands of times over (salt, password). The iteration count is the work
// factor, the same role bcrypt's "cost" plays.
//
// Hash format (Django's, fields separated by "$"):
//
//	pbkdf2_sha256$600000$Yt3k8SUxq9Ln$Zm9vYmFyYmF6cXV4...=
//	^             ^      ^            ^
//	algorithm     iters  salt (12)    base64(derived key, 32 bytes)
//
// Everything needed to verify is in the string, so there is no separate
// salt column.

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashAlgorithm = "pbkdf2_sha256"

	// DefaultIterations matches current Django/passlib guidance for
	// pbkdf2_sha256. Lower it only in tests.
	DefaultIterations = 600000

	saltLength = 12
	keyLength  = sha256.Size
	saltChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	decoySalt = "decoyDecoy00"
)

// ErrInvalidPassword is returned by Verify when the password does not match
// or the stored digest cannot be parsed.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService provides pbkdf2_sha256 hashing and verification.
//
// It's a struct (not free functions) so that the iteration count can be
// injected: tests use a few hundred iterations instead of 600k.
type PasswordService struct {
	iterations int
}

// NewPasswordService creates a PasswordService with the given iteration
// count. Zero or negative means DefaultIterations.
func NewPasswordService(iterations int) *PasswordService {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &PasswordService{iterations: iterations}
}

// NewPasswordServiceForTest creates a PasswordService with a tiny iteration
// count. Use this in tests in other packages to keep them fast.
//
// Do NOT use in production.
func NewPasswordServiceForTest(iterations int) *PasswordService {
	return &PasswordService{iterations: iterations}
}

// Hash derives a digest for plaintext with a fresh random salt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	salt, err := randomSalt(saltLength)
	if err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}
	return encodeDigest(plaintext, salt, p.iterations), nil
}

// Verify checks whether a plaintext password matches a stored digest.
//
// Returns nil if they match, ErrInvalidPassword (possibly wrapped) if they
// don't. A malformed digest is treated as a mismatch.
//
// TIMING SAFETY:
// The derived keys are compared with subtle.ConstantTimeCompare, so the
// response time does not leak how many leading bytes were right.
func (p *PasswordService) Verify(digest, plaintext string) error {
	iterations, salt, want, err := parseDigest(digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	got := pbkdf2.Key([]byte(plaintext), []byte(salt), iterations, len(want), sha256.New)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// VerifyUnknown spends one key derivation at the current cost and always
// fails. Login calls it when no account has the email, so that path takes
// as long as a wrong password does.
func (p *PasswordService) VerifyUnknown(plaintext string) error {
	_ = pbkdf2.Key([]byte(plaintext), []byte(decoySalt), p.iterations, keyLength, sha256.New)
	return ErrInvalidPassword
}

// NeedsRehash reports whether digest was produced with weaker settings than
// the service currently uses. Login upgrades such digests transparently.
func (p *PasswordService) NeedsRehash(digest string) bool {
	iterations, _, _, err := parseDigest(digest)
	if err != nil {
		return true
	}
	return iterations < p.iterations
}

func encodeDigest(plaintext, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(plaintext), []byte(salt), iterations, keyLength, sha256.New)
	return strings.Join([]string{
		hashAlgorithm,
		strconv.Itoa(iterations),
		salt,
		base64.StdEncoding.EncodeToString(key),
	}, "$")
}

func parseDigest(digest string) (iterations int, salt string, key []byte, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 4 {
		return 0, "", nil, fmt.Errorf("digest has %d fields, want 4", len(parts))
	}
	if parts[0] != hashAlgorithm {
		return 0, "", nil, fmt.Errorf("unsupported algorithm %q", parts[0])
	}

	iterations, err = strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, "", nil, fmt.Errorf("bad iteration count %q", parts[1])
	}
	if parts[2] == "" {
		return 0, "", nil, errors.New("empty salt")
	}

	key, err = base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, "", nil, fmt.Errorf("bad key encoding")
	}
	return iterations, parts[2], key, nil
}

func randomSalt(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(saltChars)))
	for range n {
		i, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(saltChars[i.Int64()])
	}
	return b.String(), nil
}
