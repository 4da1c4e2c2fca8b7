// Password hashing for email accounts (contributors and professionals who
// did not come in through GitHub).
//
// BCRYPT IN ONE PARAGRAPH:
// bcrypt salts every hash, stores the salt and the cost inside the hash string
// ($2a$<cost>$<salt><hash>), and is slow on purpose. The users table needs one
// TEXT column and nothing else.
//
// UNIFORM LOGIN FAILURES:
// Login answers "invalid email or password" for an unknown email, a GitHub-only
// account and a wrong password alike. The message alone is not enough: an
// unknown email would return in microseconds while a wrong password costs a
// full bcrypt compare. CompareDummy spends that same time when there is no
// hash to check.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillboard/internal/apperror"
)

// defaultCost is roughly 250ms per hash on current server hardware.
const defaultCost = 12

const (
	// MinPasswordLength matches the hosted identity provider the demo
	// accounts were first created with.
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit; longer input is silently
	// truncated by the algorithm, so it is refused instead.
	MaxPasswordLength = 72
)

// ErrInvalidPassword is returned by Verify when the password doesn't match.
var ErrInvalidPassword = errors.New("auth: invalid password")

type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordService uses the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest lets tests and the seeder's tests pass
// bcrypt.MinCost. Never use it for a running server.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash to store in users.password_hash.
//
// A password outside [MinPasswordLength, MaxPasswordLength] bytes is an
// apperror.ErrValidation on field "password", ready for the handler.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if n := len(plaintext); n < MinPasswordLength || n > MaxPasswordLength {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches a stored hash. A mismatch is
// ErrInvalidPassword; a hash bcrypt cannot parse is a different error, since
// it means bad data in the users table rather than a bad login.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidPassword
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}

// CompareDummy burns one bcrypt compare at the service's cost and always
// returns ErrInvalidPassword. Call it on login paths that have no hash to
// check.
func (p *PasswordService) CompareDummy(plaintext string) error {
	p.dummyOnce.Do(func() {
		// The dummy hash is made once per process; the password in it is
		// never compared successfully because the result is discarded.
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("skillboard-no-such-account"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
	return ErrInvalidPassword
}
