// Package repository defines the storage contracts the services depend on.
//
// Services take these interfaces, never *sqlite.DB, so tests can pass small
// in-memory fakes and main.go decides which backend to wire.
package repository

import (
	"context"

	"github.com/sakif/skillboard/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProjectFilter narrows a project listing. Empty fields match everything.
type ProjectFilter struct {
	UserID   string
	Category string
	ListOptions
}

// ProblemFilter narrows a problem statement listing. Empty fields match
// everything.
type ProblemFilter struct {
	CompanyID string
	Category  string
	Status    model.ProblemStatus
	ListOptions
}

// ActivityFilter narrows the audit trail. UserID matches the actor,
// SubjectID what was acted on.
type ActivityFilter struct {
	UserID    string
	SubjectID string
	Type      model.ActivityType
	ListOptions
}

// ScoreRepository stores one UserScore record per user.
//
// The ledger is the only writer. GetScore returns apperror.ErrNotFound when
// the user has no record yet.
type ScoreRepository interface {
	GetScore(ctx context.Context, userID string) (*model.UserScore, error)
	UpsertScore(ctx context.Context, score *model.UserScore) error
	// ListScores returns every record, or only those in category when it is
	// not empty. Order is unspecified.
	ListScores(ctx context.Context, category string) ([]model.UserScore, error)
}

// RankWriter persists the denormalized rank column after a global recompute.
type RankWriter interface {
	SaveRanks(ctx context.Context, entries []model.LeaderboardEntry) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// UpsertGitHub inserts or refreshes a user keyed by GitHub ID.
	UpsertGitHub(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	SearchUsers(ctx context.Context, prefix string, limit int) ([]model.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	UserCategory(ctx context.Context, id string) (string, error)
}

type ProjectRepository interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error)
	SearchProjects(ctx context.Context, prefix string, limit int) ([]model.Project, error)
	// AddLike records userID liking a project. It returns apperror.ErrConflict
	// when the pair already exists.
	AddLike(ctx context.Context, projectID, userID string) error
	IncrementViews(ctx context.Context, projectID string) error
}

type BadgeRepository interface {
	// AwardBadge returns apperror.ErrConflict if the user already holds it.
	AwardBadge(ctx context.Context, badge *model.UserBadge) error
	ListBadges(ctx context.Context, userID string) ([]model.UserBadge, error)
}

type ProblemRepository interface {
	CreateProblem(ctx context.Context, problem *model.ProblemStatement) error
	GetProblem(ctx context.Context, id string) (*model.ProblemStatement, error)
	// ListProblems returns the newest problem statements first.
	ListProblems(ctx context.Context, filter ProblemFilter) ([]model.ProblemStatement, error)
}

// ActivityRepository is the append-only audit trail.
type ActivityRepository interface {
	RecordActivity(ctx context.Context, activity *model.Activity) error
	// ListActivities returns the newest entries first.
	ListActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error)
}
