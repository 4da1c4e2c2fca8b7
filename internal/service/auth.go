// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// TWO WAYS IN:
//   - Email + password: Signup / Login. Professionals and contributors both
//     use this. Passwords are stored as bcrypt hashes only.
//   - GitHub OAuth: LoginOrRegisterGitHub. New GitHub accounts are
//     contributors.
//
// Either way the caller gets back an AuthResult whose Token carries the
// user's ID and role; the handler puts it in an HttpOnly cookie.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

const (
	MaxNameLength = 80
	MaxBioLength  = 1000
)

// Recategorizer moves a user's score record to another category board.
// *ledger.Ledger implements it.
type Recategorizer interface {
	Recategorize(ctx context.Context, userID, category string) error
}

// AuthService handles signup, login and profile edits.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → generate/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - scores     Recategorizer              → keep the ledger's category in step
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	scores    Recategorizer
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	scores Recategorizer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		scores:    scores,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
	Role     model.Role
	Category string
}

// Signup creates an email/password account. Only contributor and
// professional accounts can sign up; admins are made by seeding.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if in.Role == "" {
		in.Role = model.RoleContributor
	}
	if in.Role != model.RoleContributor && in.Role != model.RoleProfessional {
		return nil, apperror.ValidationFailed("role", "role must be contributor or professional")
	}
	if !model.ValidCategory(in.Category) {
		return nil, apperror.ValidationFailed("category", "unknown category "+in.Category)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		Role:         in.Role,
		Category:     in.Category,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	return s.issue(user)
}

// Login checks an email/password pair.
//
// Unknown email, GitHub-only account and wrong password all return the same
// apperror.ErrUnauthorized so the response doesn't reveal which emails exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.CompareDummy(password)
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		_ = s.passwords.CompareDummy(password)
		return nil, invalid
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Info("failed login", slog.String("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// WHY UPSERT (not insert + check conflict)?
// GitHub's OAuth guarantees the GitHub ID is stable and unique, so we can
// always upsert on (github_id). First login → INSERT; subsequent logins →
// UPDATE the name/email/avatar in case the user changed them on GitHub.
//
// WHAT THIS METHOD DOES NOT DO:
//   - It does NOT set cookies (that's the handler's job — HTTP concern)
//   - It does NOT read HTTP requests
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Name:      ghUser.DisplayName(),
		Email:     strings.ToLower(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
		Role:      model.RoleContributor,
	}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}
	return s.users.GetUserByID(ctx, id)
}

// ProfileInput holds the editable profile fields. Nil means "leave as is".
type ProfileInput struct {
	Name      *string
	Bio       *string
	AvatarURL *string
	Category  *string
}

// UpdateProfile saves profile edits for userID.
//
// A category change also moves the user's score to the new category board.
// The profile is written first; if moving the score fails the error is
// returned and the next score event re-reads the category anyway.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be 1 to %d characters", MaxNameLength))
		}
		user.Name = name
	}
	if in.Bio != nil {
		if len(*in.Bio) > MaxBioLength {
			return nil, apperror.ValidationFailed("bio",
				fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
		}
		user.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	previous := user.Category
	if in.Category != nil {
		if !model.ValidCategory(*in.Category) {
			return nil, apperror.ValidationFailed("category", "unknown category "+*in.Category)
		}
		user.Category = *in.Category
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile %s: %w", userID, err)
	}

	if user.Category != previous {
		if err := s.scores.Recategorize(ctx, userID, user.Category); err != nil {
			return nil, fmt.Errorf("service/auth: moving score to %q: %w", user.Category, err)
		}
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// ValidateToken is a thin delegation to TokenService.Validate so callers
// only need the service package.
func (s *AuthService) ValidateToken(tokenStr string) (auth.Principal, error) {
	p, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("service/auth: %w", err)
	}
	return p, nil
}
