package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

const projectColumns = `id, user_id, title, description, category, repo_url, files, status, views, likes, created_at, updated_at`

func scanProject(s scanner) (*model.Project, error) {
	var (
		p     model.Project
		files string
	)
	err := s.Scan(
		&p.ID,
		&p.UserID,
		&p.Title,
		&p.Description,
		&p.Category,
		&p.RepoURL,
		&files,
		&p.Status,
		&p.Views,
		&p.Likes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// files is a JSON array column: the list of references is always read
	// and written whole, so a child table would buy nothing.
	if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
		return nil, fmt.Errorf("decoding files of project %s: %w", p.ID, err)
	}
	return &p, nil
}

func collectProjects(rows *sql.Rows) ([]model.Project, error) {
	defer rows.Close()
	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	return projects, nil
}

// CreateProject inserts a project, generating its ID and timestamps.
func (db *DB) CreateProject(ctx context.Context, project *model.Project) error {
	project.ID = xid.New().String()

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Status == "" {
		project.Status = model.ProjectStatusActive
	}
	if project.Files == nil {
		project.Files = []model.ProjectFile{}
	}

	files, err := json.Marshal(project.Files)
	if err != nil {
		return fmt.Errorf("sqlite: encoding project files: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.UserID,
		project.Title,
		project.Description,
		project.Category,
		project.RepoURL,
		string(files),
		project.Status,
		project.Views,
		project.Likes,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating project: %w", err)
	}
	return nil
}

// GetProject returns apperror.ErrNotFound for an unknown ID.
func (db *DB) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns the newest projects first, optionally narrowed to one
// owner and/or one category.
//
// The WHERE clause is assembled from fixed fragments only; user input always
// travels as a ? parameter.
func (db *DB) ListProjects(ctx context.Context, filter repository.ProjectFilter) ([]model.Project, error) {
	limit, offset := page(filter.ListOptions)

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + projectColumns + ` FROM projects`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}
	return collectProjects(rows)
}

// SearchProjects is a prefix match on title using the same range trick as
// SearchUsers.
func (db *DB) SearchProjects(ctx context.Context, prefix string, limit int) ([]model.Project, error) {
	cond, args := prefixRange("title", prefix)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE `+cond+`
		 ORDER BY title, id
		 LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching projects: %w", err)
	}
	return collectProjects(rows)
}

// AddLike records one like and bumps the project's counter atomically.
// Liking twice returns apperror.ErrConflict and leaves the counter alone.
func (db *DB) AddLike(ctx context.Context, projectID, userID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning like transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET likes = likes + 1 WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("sqlite: counting like on %s: %w", projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("project", projectID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_likes (project_id, user_id, created_at) VALUES (?, ?, ?)`,
		projectID, userID, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("like", projectID+"/"+userID)
		}
		return fmt.Errorf("sqlite: recording like on %s: %w", projectID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing like: %w", err)
	}
	return nil
}

// IncrementViews bumps the view counter. Views are not deduplicated.
func (db *DB) IncrementViews(ctx context.Context, projectID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET views = views + 1 WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("sqlite: counting view on %s: %w", projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("project", projectID)
	}
	return nil
}
