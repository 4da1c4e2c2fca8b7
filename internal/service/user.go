package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

// ScoreReader is the read side of the ledger for single users.
type ScoreReader interface {
	ScoreOrZero(ctx context.Context, userID string) (*model.UserScore, error)
}

// UserService serves public profile lookups.
type UserService struct {
	users  repository.UserRepository
	scores ScoreReader
}

func NewUserService(users repository.UserRepository, scores ScoreReader) *UserService {
	return &UserService{users: users, scores: scores}
}

// Search finds users whose display name starts with prefix.
func (s *UserService) Search(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, apperror.ValidationFailed("q", "search term is required")
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultSearchLimit
	}
	users, err := s.users.SearchUsers(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return users, nil
}

// Score returns userID's score record, all zeros if they have not earned
// anything yet. Unknown users are apperror.ErrNotFound.
func (s *UserService) Score(ctx context.Context, userID string) (*model.UserScore, error) {
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking user %s: %w", userID, err)
	}
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	return s.scores.ScoreOrZero(ctx, userID)
}
