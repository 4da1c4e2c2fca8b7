// Package sqlite is the storage backend: one *DB value implements every
// repository interface (users, projects, problem statements, badges,
// activities, scores, ranks).
//
// WHY SQLITE?
// Skillboard runs as a single process, so an embedded database file is
// enough, and ":memory:" gives every test its own fresh database.
// modernc.org/sqlite is pure Go, so there is no cgo and no C toolchain in the
// build.
//
// SCHEMA VERSIONS:
// The schema is an ordered list of migrations. SQLite's PRAGMA user_version
// stores how many of them a database file has already run; New applies the
// rest, each in its own transaction. Append new steps; never edit a step that
// has shipped.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// The named import also registers the "sqlite" driver with database/sql.
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/skillboard/internal/repository"
)

// DB wraps the connection pool. Its methods live in user.go, project.go,
// problem.go, badge.go, activity.go and score.go.
type DB struct {
	conn *sql.DB
}

// pragmas run on open, in order.
var pragmas = []struct{ stmt, what string }{
	// Readers (leaderboard snapshots) don't block the ledger's writes.
	{"PRAGMA journal_mode=WAL", "setting WAL mode"},
	// Wait for a competing writer instead of failing with SQLITE_BUSY; the
	// ledger's StoreTimeout still bounds the whole call.
	{"PRAGMA busy_timeout=5000", "setting busy timeout"},
	{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
}

// New opens (creating if needed) the database at dbPath and brings its
// schema up to date. dbPath is a file path such as "data/skillboard.db" or
// ":memory:".
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" opens its OWN empty database. Pin the
	// pool to one connection so migrations and queries see the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// sql.Open is lazy; surface a bad path here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p.what, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database still answers. The /healthz endpoint uses it.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrations is the schema history. Index i moves user_version from i to i+1.
var migrations = []struct {
	name string
	sql  string
}{
	{
		// Email accounts have github_id NULL; GitHub accounts may have an
		// empty email. Each must still be unique when present.
		name: "users",
		sql: `
			CREATE TABLE users (
				id            TEXT PRIMARY KEY,
				github_id     INTEGER UNIQUE,
				email         TEXT NOT NULL DEFAULT '',
				name          TEXT NOT NULL DEFAULT '',
				role          TEXT NOT NULL DEFAULT 'contributor',
				bio           TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX idx_users_email ON users(email) WHERE email <> '';
			CREATE INDEX idx_users_name ON users(name);`,
	},
	{
		name: "users.category",
		sql:  `ALTER TABLE users ADD COLUMN category TEXT NOT NULL DEFAULT '';`,
	},
	{
		// Written only by the ledger. No foreign key to users: a fail-open
		// ledger accepts events for users this database has never seen.
		name: "user_scores",
		sql: `
			CREATE TABLE user_scores (
				user_id    TEXT PRIMARY KEY,
				score      INTEGER NOT NULL DEFAULT 0 CHECK (score >= 0),
				category   TEXT NOT NULL DEFAULT '',
				projects   INTEGER NOT NULL DEFAULT 0,
				badges     INTEGER NOT NULL DEFAULT 0,
				views      INTEGER NOT NULL DEFAULT 0,
				likes      INTEGER NOT NULL DEFAULT 0,
				rank       INTEGER NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_user_scores_category ON user_scores(category);`,
	},
	{
		name: "projects",
		sql: `
			CREATE TABLE projects (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id),
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category    TEXT NOT NULL DEFAULT '',
				repo_url    TEXT NOT NULL DEFAULT '',
				files       TEXT NOT NULL DEFAULT '[]',
				status      TEXT NOT NULL DEFAULT 'active',
				views       INTEGER NOT NULL DEFAULT 0,
				likes       INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_projects_user_id ON projects(user_id);
			CREATE INDEX idx_projects_category ON projects(category);
			CREATE INDEX idx_projects_title ON projects(title);
			CREATE INDEX idx_projects_created_at ON projects(created_at);`,
	},
	{
		// The composite primary keys make likes and badge awards idempotent:
		// a second insert is a constraint error, reported as ErrConflict.
		name: "project_likes, user_badges",
		sql: `
			CREATE TABLE project_likes (
				project_id TEXT NOT NULL REFERENCES projects(id),
				user_id    TEXT NOT NULL REFERENCES users(id),
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (project_id, user_id)
			);
			CREATE TABLE user_badges (
				user_id    TEXT NOT NULL REFERENCES users(id),
				badge_type TEXT NOT NULL,
				name       TEXT NOT NULL,
				awarded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, badge_type)
			);`,
	},
	{
		// selected_solution is the winning project's ID, '' until one is
		// picked, so it cannot carry a foreign key.
		name: "problem_statements",
		sql: `
			CREATE TABLE problem_statements (
				id                TEXT PRIMARY KEY,
				company_id        TEXT NOT NULL REFERENCES users(id),
				company_name      TEXT NOT NULL DEFAULT '',
				contact_email     TEXT NOT NULL DEFAULT '',
				title             TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				category          TEXT NOT NULL DEFAULT '',
				budget            INTEGER NOT NULL DEFAULT 0 CHECK (budget >= 0),
				deadline          DATETIME,
				files             TEXT NOT NULL DEFAULT '[]',
				status            TEXT NOT NULL DEFAULT 'active',
				applications      INTEGER NOT NULL DEFAULT 0,
				selected_solution TEXT NOT NULL DEFAULT '',
				created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_problems_company_id ON problem_statements(company_id);
			CREATE INDEX idx_problems_category ON problem_statements(category);
			CREATE INDEX idx_problems_created_at ON problem_statements(created_at);`,
	},
	{
		// Append-only. No foreign keys, so the trail survives whatever
		// happens to the rows it mentions.
		name: "activities",
		sql: `
			CREATE TABLE activities (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				type       TEXT NOT NULL,
				subject_id TEXT NOT NULL DEFAULT '',
				delta      INTEGER NOT NULL DEFAULT 0,
				note       TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_activities_user_id ON activities(user_id, created_at);
			CREATE INDEX idx_activities_subject_id ON activities(subject_id, created_at);`,
	},
}

// migrate runs every step past the database's user_version.
func (db *DB) migrate(ctx context.Context) error {
	version, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		m := migrations[i]
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		// PRAGMA takes no bind parameters; i+1 is an int from this loop.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): recording version: %w", i+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
	}
	return nil
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// isUniqueViolation reports whether err is SQLite refusing a duplicate key.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// page clamps a listing's limit to 1..100 (default 20) and its offset to >= 0.
func page(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit, max(opts.Offset, 0)
}

// prefixRange is a WHERE fragment selecting rows whose col starts with
// prefix, written as the half-open range [prefix, prefixEnd(prefix)) so it
// can use the column's index. SQLite's BINARY collation compares bytes, so
// the bound is computed on bytes too.
func prefixRange(col, prefix string) (string, []any) {
	if end, ok := prefixEnd(prefix); ok {
		return col + " >= ? AND " + col + " < ?", []any{prefix, end}
	}
	return col + " >= ?", []any{prefix}
}

// prefixEnd returns the smallest byte string greater than every string that
// starts with prefix: drop trailing 0xFF bytes, then increment the last one.
// ok is false when no such bound exists (empty or all-0xFF prefix). The result
// need not be valid UTF-8; it is only ever compared.
func prefixEnd(prefix string) (end string, ok bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
