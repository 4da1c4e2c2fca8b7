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

var _ repository.ProblemRepository = (*DB)(nil)

const problemColumns = `id, company_id, company_name, contact_email, title, description, category,
	budget, deadline, files, status, applications, selected_solution, created_at, updated_at`

func scanProblem(s scanner) (*model.ProblemStatement, error) {
	var (
		p        model.ProblemStatement
		deadline sql.NullTime
		files    string
	)
	err := s.Scan(
		&p.ID,
		&p.CompanyID,
		&p.CompanyName,
		&p.ContactEmail,
		&p.Title,
		&p.Description,
		&p.Category,
		&p.Budget,
		&deadline,
		&files,
		&p.Status,
		&p.Applications,
		&p.SelectedSolution,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deadline.Valid {
		p.Deadline = &deadline.Time
	}
	if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
		return nil, fmt.Errorf("decoding files of problem %s: %w", p.ID, err)
	}
	return &p, nil
}

// CreateProblem inserts a problem statement, generating its ID and
// timestamps. A new problem starts active with no applications.
func (db *DB) CreateProblem(ctx context.Context, problem *model.ProblemStatement) error {
	problem.ID = xid.New().String()

	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	if problem.Status == "" {
		problem.Status = model.ProblemActive
	}
	if problem.Files == nil {
		problem.Files = []model.ProjectFile{}
	}

	files, err := json.Marshal(problem.Files)
	if err != nil {
		return fmt.Errorf("sqlite: encoding problem files: %w", err)
	}

	// A nil *time.Time must reach the driver as NULL, not as a typed nil.
	var deadline any
	if problem.Deadline != nil {
		deadline = *problem.Deadline
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO problem_statements (`+problemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		problem.ID,
		problem.CompanyID,
		problem.CompanyName,
		problem.ContactEmail,
		problem.Title,
		problem.Description,
		problem.Category,
		problem.Budget,
		deadline,
		string(files),
		problem.Status,
		problem.Applications,
		problem.SelectedSolution,
		problem.CreatedAt,
		problem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating problem statement: %w", err)
	}
	return nil
}

// GetProblem returns apperror.ErrNotFound for an unknown ID.
func (db *DB) GetProblem(ctx context.Context, id string) (*model.ProblemStatement, error) {
	p, err := scanProblem(db.conn.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problem_statements WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("problem statement", id)
		}
		return nil, fmt.Errorf("sqlite: getting problem statement %s: %w", id, err)
	}
	return p, nil
}

// ListProblems filters on company, category and status, newest first. The
// WHERE clause is built the same way as in ListProjects.
func (db *DB) ListProblems(ctx context.Context, filter repository.ProblemFilter) ([]model.ProblemStatement, error) {
	limit, offset := page(filter.ListOptions)

	var (
		where []string
		args  []any
	)
	if filter.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + problemColumns + ` FROM problem_statements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing problem statements: %w", err)
	}
	defer rows.Close()

	problems := []model.ProblemStatement{}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning problem statement row: %w", err)
		}
		problems = append(problems, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating problem statements: %w", err)
	}
	return problems, nil
}
