package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

const MaxNoteLength = 500

// AdminService applies manual score corrections and reads the activity
// trail they leave.
type AdminService struct {
	scores     ScoreApplier
	activities repository.ActivityRepository
	logger     *slog.Logger
}

func NewAdminService(scores ScoreApplier, activities repository.ActivityRepository, logger *slog.Logger) *AdminService {
	return &AdminService{scores: scores, activities: activities, logger: logger}
}

// Adjust applies a signed delta to userID's score. Only admins may call it,
// and every adjustment needs a note explaining it. The note is stored in the
// activity trail next to who made the change.
//
// A negative delta larger than the current score leaves the user at zero.
//
// ORDER OF WRITES:
// The score goes first. If the trail entry then fails to save, the
// adjustment still stands (a retry would apply it twice) and the note is
// kept in an error log line instead.
func (s *AdminService) Adjust(ctx context.Context, admin model.Role, adminID, userID string, delta int64, note string) (*model.UserScore, error) {
	if admin != model.RoleAdmin {
		return nil, apperror.Forbidden("only admins can adjust scores")
	}
	if delta == 0 {
		return nil, apperror.ValidationFailed("delta", "adjustment must not be zero")
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperror.ValidationFailed("note", "a note explaining the adjustment is required")
	}
	if len(note) > MaxNoteLength {
		return nil, apperror.ValidationFailed("note",
			fmt.Sprintf("note must be %d characters or less", MaxNoteLength))
	}

	score, err := s.scores.ApplyEvent(ctx, model.ScoreEvent{
		UserID: strings.TrimSpace(userID),
		Delta:  delta,
		Reason: model.ReasonAdminAdjustment,
	})
	if err != nil {
		return nil, err
	}

	entry := &model.Activity{
		UserID:    adminID,
		Type:      model.ActivityScoreAdjusted,
		SubjectID: score.UserID,
		Delta:     delta,
		Note:      note,
	}
	if err := s.activities.RecordActivity(ctx, entry); err != nil {
		s.logger.Error("score adjusted but activity not recorded",
			slog.String("admin", adminID),
			slog.String("user", score.UserID),
			slog.Int64("delta", delta),
			slog.String("note", note),
			slog.String("error", err.Error()),
		)
		return score, nil
	}

	s.logger.Info("score adjusted",
		slog.String("admin", adminID),
		slog.String("user", score.UserID),
		slog.Int64("delta", delta),
		slog.Int64("score", score.Score),
		slog.String("activity", entry.ID),
	)
	return score, nil
}

// Activities lists the trail newest first. limit is clamped to
// 1..MaxListLimit.
func (s *AdminService) Activities(ctx context.Context, admin model.Role, filter repository.ActivityFilter) ([]model.Activity, error) {
	if admin != model.RoleAdmin {
		return nil, apperror.Forbidden("only admins can read the activity trail")
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	activities, err := s.activities.ListActivities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return activities, nil
}
