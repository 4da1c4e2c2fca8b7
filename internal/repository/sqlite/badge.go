package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

var _ repository.BadgeRepository = (*DB)(nil)

// AwardBadge inserts the (user, badge) pair. The primary key rejects a
// second award, which comes back as apperror.ErrConflict.
func (db *DB) AwardBadge(ctx context.Context, badge *model.UserBadge) error {
	if badge.AwardedAt.IsZero() {
		badge.AwardedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_type, name, awarded_at) VALUES (?, ?, ?, ?)`,
		badge.UserID, badge.Type, badge.Name, badge.AwardedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("badge", badge.UserID+"/"+string(badge.Type))
		}
		return fmt.Errorf("sqlite: awarding badge %s to %s: %w", badge.Type, badge.UserID, err)
	}
	return nil
}

// ListBadges returns a user's badges, oldest first.
func (db *DB) ListBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, badge_type, name, awarded_at
		 FROM user_badges WHERE user_id = ?
		 ORDER BY awarded_at, badge_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing badges for %s: %w", userID, err)
	}
	defer rows.Close()

	badges := []model.UserBadge{}
	for rows.Next() {
		var b model.UserBadge
		if err := rows.Scan(&b.UserID, &b.Type, &b.Name, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning badge row: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating badges: %w", err)
	}
	return badges, nil
}
