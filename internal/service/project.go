// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// WHERE SCORES COME FROM:
// Services are the "contribution reporters". When something worth points
// happens (a project upload, a badge, an admin adjustment) the service first
// records the fact in its own table and then hands a model.ScoreEvent to the
// ledger through the ScoreApplier interface:
//
//	ProjectService.Upload ──► projects table ──► ScoreApplier.ApplyEvent(+100)
//
// The ledger applies each event exactly once, so deduplication is the
// service's job. Likes and badges are guarded by unique keys in the database:
// a second like returns apperror.ErrConflict before any event is emitted.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces and a ScoreApplier, never
// *sqlite.DB or *ledger.Ledger, so tests pass small in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

// ScoreApplier is the write side of the ledger.
type ScoreApplier interface {
	ApplyEvent(ctx context.Context, ev model.ScoreEvent) (*model.UserScore, error)
}

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 5000
	MaxProjectFiles      = 20
	DefaultListLimit     = 20
	MaxListLimit         = 100
	DefaultSearchLimit   = 10
)

// Likes and views are counted on the owner's score record but earn no points.
const (
	LikeScore int64 = 0
	ViewScore int64 = 0
)

// UploadInput is what a contributor submits for a new project.
type UploadInput struct {
	Title       string
	Description string
	Category    string // empty means "use the owner's profile category"
	RepoURL     string
	Files       []model.ProjectFile
}

type ProjectService struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	scores   ScoreApplier
	logger   *slog.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	users repository.UserRepository,
	scores ScoreApplier,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects: projects,
		users:    users,
		scores:   scores,
		logger:   logger,
	}
}

// Upload saves a project for ownerID and credits ProjectUploadScore.
//
// ORDER OF WRITES:
// The project row is written first and the score second. If the ledger is
// unavailable the project stays saved and the caller gets the transient
// error; there is no distributed transaction between the two tables.
func (s *ProjectService) Upload(ctx context.Context, ownerID string, in UploadInput) (*model.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperror.ValidationFailed("title", "project title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("project title must be %d characters or less", MaxTitleLength))
	}
	if len(in.Description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(in.Files) > MaxProjectFiles {
		return nil, apperror.ValidationFailed("files",
			fmt.Sprintf("a project can reference at most %d files", MaxProjectFiles))
	}
	if in.RepoURL != "" {
		if u, err := url.Parse(in.RepoURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, apperror.ValidationFailed("repoUrl", "repository URL must be http or https")
		}
	}

	owner, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.Role != model.RoleContributor && owner.Role != model.RoleAdmin {
		return nil, apperror.Forbidden("only contributors can upload projects")
	}

	category := in.Category
	if category == "" {
		category = owner.Category
	}
	if !model.ValidCategory(category) {
		return nil, apperror.ValidationFailed("category", "unknown category "+category)
	}

	project := &model.Project{
		UserID:      ownerID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		RepoURL:     in.RepoURL,
		Files:       in.Files,
		Status:      model.ProjectStatusActive,
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		s.logger.Error("failed to create project",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if _, err := s.scores.ApplyEvent(ctx, model.ProjectUploaded(ownerID)); err != nil {
		s.logger.Error("project saved but upload score not applied",
			slog.String("project", project.ID),
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("crediting upload: %w", err)
	}

	s.logger.Info("project uploaded",
		slog.String("id", project.ID),
		slog.String("owner", ownerID),
		slog.String("category", category),
	)
	return project, nil
}

// Get returns apperror.ErrNotFound for unknown IDs.
func (s *ProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}
	return s.projects.GetProject(ctx, id)
}

// List returns projects newest first, optionally filtered by owner or
// category. limit is clamped to 1..MaxListLimit.
func (s *ProjectService) List(ctx context.Context, filter repository.ProjectFilter) ([]model.Project, error) {
	if !model.ValidCategory(filter.Category) {
		return nil, apperror.ValidationFailed("category", "unknown category "+filter.Category)
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

	projects, err := s.projects.ListProjects(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list projects", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// Search finds projects whose title starts with prefix.
func (s *ProjectService) Search(ctx context.Context, prefix string, limit int) ([]model.Project, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, apperror.ValidationFailed("q", "search term is required")
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultSearchLimit
	}
	projects, err := s.projects.SearchProjects(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("searching projects: %w", err)
	}
	return projects, nil
}

// Like records userID liking a project and bumps the owner's like counter.
//
// A user can like a project once (a repeat returns apperror.ErrConflict and
// emits nothing) and can't like their own project.
func (s *ProjectService) Like(ctx context.Context, projectID, userID string) (*model.Project, error) {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID == userID {
		return nil, apperror.Forbidden("you can't like your own project")
	}

	if err := s.projects.AddLike(ctx, project.ID, userID); err != nil {
		return nil, err
	}

	ev := model.ScoreEvent{UserID: project.UserID, Delta: LikeScore, Reason: model.ReasonProjectLike}
	if _, err := s.scores.ApplyEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("crediting like: %w", err)
	}

	project.Likes++
	return project, nil
}

// View counts one view of a project. viewerID is empty for anonymous
// visitors. Owners looking at their own project are not counted.
func (s *ProjectService) View(ctx context.Context, projectID, viewerID string) error {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if viewerID != "" && viewerID == project.UserID {
		return nil
	}

	if err := s.projects.IncrementViews(ctx, project.ID); err != nil {
		return err
	}

	ev := model.ScoreEvent{UserID: project.UserID, Delta: ViewScore, Reason: model.ReasonProjectView}
	if _, err := s.scores.ApplyEvent(ctx, ev); err != nil {
		// The view itself is already counted on the project. Losing the
		// owner's counter bump is not worth failing a page view over.
		if errors.Is(err, apperror.ErrTransient) {
			s.logger.Warn("view counted but owner stats not updated",
				slog.String("project", project.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("crediting view: %w", err)
	}
	return nil
}
