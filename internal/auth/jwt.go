// Package auth provides JWT sessions, password hashing and GitHub OAuth for the API.
//
// AUTHENTICATION FLOW OVERVIEW:
// Two ways in, one session format:
//
//	A. Email + password: POST /auth/login → bcrypt check against the stored hash
//	B. GitHub (contributors): /auth/github/login → GitHub → /auth/github/callback
//	   → exchange code for GitHub user info → upsert user in DB
//
// Both end with a signed access token in the HttpOnly "token" cookie. API
// clients that are not browsers may send the same token as
// "Authorization: Bearer <jwt>". Middleware validates it and puts a Principal
// (user ID and role) in the request context.
//
// TOKEN CONTENTS:
//
//	{"sub": "<user id>", "role": "contributor", "iss": "skillboard", "iat": ..., "exp": ...}
//
// The role rides in the token so the admin routes (badge awards, score
// adjustments) need no database lookup. A role change therefore applies from
// the next login, at most TokenLifetime later.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/skillboard/internal/model"
)

const issuer = "skillboard"

// TokenLifetime is how long an access token stays valid.
const TokenLifetime = 15 * time.Minute

// MinSecretLength is the shortest JWT_SECRET NewTokenService accepts.
const MinSecretLength = 16

// ErrTokenExpired lets middleware tell "log in again" apart from a forged or
// garbled token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and checks HS256 access tokens with one shared secret.
type TokenService struct {
	secret []byte
}

// NewTokenService wants at least MinSecretLength bytes; use 32 random bytes
// in production (openssl rand -hex 32).
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Principal is who a validated token says the caller is.
type Principal struct {
	UserID string
	Role   model.Role
}

// IsAdmin reports whether the caller may award badges and adjust scores.
func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

type claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Generate issues a token valid for TokenLifetime.
func (s *TokenService) Generate(userID string, role model.Role) (string, error) {
	return s.GenerateWithDuration(userID, role, TokenLifetime)
}

// GenerateWithDuration issues a token valid for d. Tests pass a negative d to
// get an expired token.
func (s *TokenService) GenerateWithDuration(userID string, role model.Role, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm (HS256 only, so "alg":"none" and
// RSA/HMAC confusion are refused), issuer and expiry, then the claims
// themselves: a subject must be present and the role must be one this
// service knows.
func (s *TokenService) Validate(tokenStr string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrTokenExpired
	case err != nil:
		return Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	case c.Subject == "":
		return Principal{}, errors.New("auth: token has no subject")
	case !c.Role.Valid():
		return Principal{}, fmt.Errorf("auth: token has unknown role %q", c.Role)
	}
	return Principal{UserID: c.Subject, Role: c.Role}, nil
}
