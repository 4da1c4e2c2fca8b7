package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

var _ repository.ActivityRepository = (*DB)(nil)

// RecordActivity appends one audit entry, filling its ID and timestamp.
func (db *DB) RecordActivity(ctx context.Context, a *model.Activity) error {
	a.ID = xid.New().String()
	a.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, type, subject_id, delta, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.SubjectID, a.Delta, a.Note, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording %s activity: %w", a.Type, err)
	}
	return nil
}

// ListActivities returns the newest entries first.
func (db *DB) ListActivities(ctx context.Context, filter repository.ActivityFilter) ([]model.Activity, error) {
	limit, offset := page(filter.ListOptions)

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT id, user_id, type, subject_id, delta, note, created_at FROM activities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing activities: %w", err)
	}
	defer rows.Close()

	activities := []model.Activity{}
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.SubjectID, &a.Delta, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning activity row: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating activities: %w", err)
	}
	return activities, nil
}
