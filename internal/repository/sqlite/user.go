package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, email, name, role, bio, avatar_url, category, password_hash, created_at, updated_at`

// scanner is the part of *sql.Row and *sql.Rows that scanUser needs, so one
// function can read a user from either.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := s.Scan(
		&u.ID,
		&githubID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.Bio,
		&u.AvatarURL,
		&u.Category,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}

// nullGitHubID stores 0 as NULL so many email accounts can coexist under the
// UNIQUE constraint on github_id.
func nullGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Create inserts a new user (email signup or seeding).
// A duplicate email or GitHub ID returns apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleContributor
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullGitHubID(user.GitHubID),
		user.Email,
		user.Name,
		user.Role,
		user.Bio,
		user.AvatarURL,
		user.Category,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Email, err)
	}
	return nil
}

// UpsertGitHub inserts or updates a user based on their GitHub ID.
//
// Existing users keep their internal ID, role, bio and category; only the
// fields GitHub owns (name, email, avatar) are refreshed on every login.
// After the call user holds the canonical stored record.
func (db *DB) UpsertGitHub(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID == "" {
		// New user: reuse Create so ID, timestamps and role default live in
		// one place.
		return db.Create(ctx, user)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.AvatarURL,
		time.Now(),
		existingID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
	}

	stored, err := db.GetUserByID(ctx, existingID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail is used by password login.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND email <> ''`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile saves the user-editable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, bio = ?, avatar_url = ?, category = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Bio,
		user.AvatarURL,
		user.Category,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", user.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// SearchUsers returns users whose name starts with prefix, alphabetically.
//
// RANGE QUERY:
// `name >= 'ali' AND name < 'alj'` selects every name beginning with "ali",
// whatever character follows (emoji and fullwidth forms included), and can
// use idx_users_name, unlike LIKE 'ali%' with a parameter. See prefixRange.
func (db *DB) SearchUsers(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	cond, args := prefixRange("name", prefix)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE `+cond+`
		 ORDER BY name, id
		 LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

// UserExists and UserCategory make *DB a ledger.Identity.

func (db *DB) UserExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking user %s: %w", id, err)
	}
	return true, nil
}

func (db *DB) UserCategory(ctx context.Context, id string) (string, error) {
	var category string
	err := db.conn.QueryRowContext(ctx, `SELECT category FROM users WHERE id = ?`, id).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NotFound("user", id)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: getting category for %s: %w", id, err)
	}
	return category, nil
}
