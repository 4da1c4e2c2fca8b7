package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

const (
	BadgeDeveloper      model.BadgeType = "developer"
	BadgeInnovation     model.BadgeType = "innovation"
	BadgeProblemSolver  model.BadgeType = "problem-solver"
	BadgeTopContributor model.BadgeType = "top-contributor"
	BadgeMentor         model.BadgeType = "mentor"
)

// badgeCatalog is the fixed set of badges an admin can award.
var badgeCatalog = []model.Badge{
	{Type: BadgeDeveloper, Name: "Developer", Description: "Awarded for being the platform developer", Points: 50},
	{Type: BadgeInnovation, Name: "Innovation", Description: "Awarded for exceptional innovative thinking", Points: 100},
	{Type: BadgeProblemSolver, Name: "Problem Solver", Description: "Successfully solved 10+ problems", Points: 100},
	{Type: BadgeTopContributor, Name: "Top Contributor", Description: "Recognized as a top contributor", Points: 150},
	{Type: BadgeMentor, Name: "Mentor", Description: "Provided mentorship to other contributors", Points: 75},
}

// BadgeService awards catalog badges and reports them to the ledger.
type BadgeService struct {
	badges repository.BadgeRepository
	users  repository.UserRepository
	scores ScoreApplier
	logger *slog.Logger
}

func NewBadgeService(
	badges repository.BadgeRepository,
	users repository.UserRepository,
	scores ScoreApplier,
	logger *slog.Logger,
) *BadgeService {
	return &BadgeService{badges: badges, users: users, scores: scores, logger: logger}
}

// Catalog returns a copy of every awardable badge.
func (s *BadgeService) Catalog() []model.Badge {
	return slices.Clone(badgeCatalog)
}

func lookupBadge(t model.BadgeType) (model.Badge, bool) {
	i := slices.IndexFunc(badgeCatalog, func(b model.Badge) bool { return b.Type == t })
	if i < 0 {
		return model.Badge{}, false
	}
	return badgeCatalog[i], true
}

// Award gives userID a badge and credits its points.
//
// Each badge is held at most once: the (user, badge) primary key turns a
// repeat into apperror.ErrConflict before any score event is emitted.
func (s *BadgeService) Award(ctx context.Context, userID string, badgeType model.BadgeType) (*model.UserBadge, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	badge, ok := lookupBadge(badgeType)
	if !ok {
		return nil, apperror.ValidationFailed("type", "unknown badge "+string(badgeType))
	}

	exists, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking user %s: %w", userID, err)
	}
	if !exists {
		return nil, apperror.NotFound("user", userID)
	}

	held := &model.UserBadge{UserID: userID, Type: badge.Type, Name: badge.Name}
	if err := s.badges.AwardBadge(ctx, held); err != nil {
		return nil, err
	}

	ev := model.ScoreEvent{UserID: userID, Delta: badge.Points, Reason: model.ReasonBadgeAward}
	if _, err := s.scores.ApplyEvent(ctx, ev); err != nil {
		s.logger.Error("badge stored but points not applied",
			slog.String("user", userID),
			slog.String("badge", string(badge.Type)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("crediting badge: %w", err)
	}

	s.logger.Info("badge awarded",
		slog.String("user", userID),
		slog.String("badge", string(badge.Type)),
		slog.Int64("points", badge.Points),
	)
	return held, nil
}

// List returns the badges userID holds.
func (s *BadgeService) List(ctx context.Context, userID string) ([]model.UserBadge, error) {
	badges, err := s.badges.ListBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing badges for %s: %w", userID, err)
	}
	return badges, nil
}
