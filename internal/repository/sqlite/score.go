package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

var (
	_ repository.ScoreRepository = (*DB)(nil)
	_ repository.RankWriter      = (*DB)(nil)
)

const scoreColumns = `user_id, score, category, projects, badges, views, likes, rank, updated_at`

func scanScore(s scanner) (*model.UserScore, error) {
	var us model.UserScore
	err := s.Scan(
		&us.UserID,
		&us.Score,
		&us.Category,
		&us.Projects,
		&us.Badges,
		&us.Views,
		&us.Likes,
		&us.Rank,
		&us.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// GetScore returns apperror.ErrNotFound when the user has no row yet.
// The ledger treats that as "start from zero".
func (db *DB) GetScore(ctx context.Context, userID string) (*model.UserScore, error) {
	us, err := scanScore(db.conn.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM user_scores WHERE user_id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("score", userID)
		}
		return nil, fmt.Errorf("sqlite: getting score for %s: %w", userID, err)
	}
	return us, nil
}

// UpsertScore writes the whole record.
//
// ON CONFLICT DO UPDATE keeps the row (and its rank column) in place rather
// than deleting and re-inserting it the way INSERT OR REPLACE would. rank is
// deliberately left out of the update: only SaveRanks writes it.
func (db *DB) UpsertScore(ctx context.Context, s *model.UserScore) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_scores (user_id, score, category, projects, badges, views, likes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			score      = excluded.score,
			category   = excluded.category,
			projects   = excluded.projects,
			badges     = excluded.badges,
			views      = excluded.views,
			likes      = excluded.likes,
			updated_at = excluded.updated_at`,
		s.UserID,
		s.Score,
		s.Category,
		s.Projects,
		s.Badges,
		s.Views,
		s.Likes,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting score for %s: %w", s.UserID, err)
	}
	return nil
}

// ListScores returns all records, or those in category when it's non-empty.
func (db *DB) ListScores(ctx context.Context, category string) ([]model.UserScore, error) {
	query := `SELECT ` + scoreColumns + ` FROM user_scores`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing scores: %w", err)
	}
	defer rows.Close()

	scores := []model.UserScore{}
	for rows.Next() {
		us, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning score row: %w", err)
		}
		scores = append(scores, *us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating score rows: %w", err)
	}
	return scores, nil
}

// SaveRanks stores each entry's global rank in one transaction.
//
// TRANSACTIONS:
// BeginTx → many ExecContext calls on tx → Commit. If anything fails,
// the deferred Rollback undoes the partial write (after a successful Commit,
// Rollback is a harmless no-op returning sql.ErrTxDone).
func (db *DB) SaveRanks(ctx context.Context, entries []model.LeaderboardEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning rank transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE user_scores SET rank = ? WHERE user_id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing rank update: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Rank, e.UserID); err != nil {
			return fmt.Errorf("sqlite: saving rank for %s: %w", e.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing ranks: %w", err)
	}
	return nil
}
