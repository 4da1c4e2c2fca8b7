package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

const MinProblemDescriptionLength = 50

// ProblemInput is what a company submits for a new problem statement.
type ProblemInput struct {
	Title        string
	Description  string
	Category     string
	Budget       int64
	Deadline     *time.Time
	CompanyName  string // empty means "use the poster's profile name"
	ContactEmail string // empty means "use the poster's email"
	Files        []model.ProjectFile
}

// ProblemService lets companies post problem statements for contributors.
//
// Posting earns no points, so nothing here talks to the ledger. Each new
// problem is written to the activity trail instead.
type ProblemService struct {
	problems   repository.ProblemRepository
	users      repository.UserRepository
	activities repository.ActivityRepository
	logger     *slog.Logger
}

func NewProblemService(
	problems repository.ProblemRepository,
	users repository.UserRepository,
	activities repository.ActivityRepository,
	logger *slog.Logger,
) *ProblemService {
	return &ProblemService{problems: problems, users: users, activities: activities, logger: logger}
}

// Create posts a problem statement on behalf of companyID, who must be a
// professional or an admin.
func (s *ProblemService) Create(ctx context.Context, companyID string, in ProblemInput) (*model.ProblemStatement, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return nil, apperror.ValidationFailed("title", "problem title is required")
	case len(in.Title) > MaxTitleLength:
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("problem title must be %d characters or less", MaxTitleLength))
	case len(in.Description) < MinProblemDescriptionLength:
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be at least %d characters", MinProblemDescriptionLength))
	case len(in.Description) > MaxDescriptionLength:
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	case in.Budget <= 0:
		return nil, apperror.ValidationFailed("budget", "budget must be positive")
	case len(in.Files) > MaxProjectFiles:
		return nil, apperror.ValidationFailed("files",
			fmt.Sprintf("a problem can reference at most %d files", MaxProjectFiles))
	case in.Deadline != nil && !in.Deadline.After(time.Now()):
		return nil, apperror.ValidationFailed("deadline", "deadline must be in the future")
	}
	if in.Category == "" || !model.ValidCategory(in.Category) {
		return nil, apperror.ValidationFailed("category", "a known category is required")
	}

	company, err := s.users.GetUserByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.Role != model.RoleProfessional && company.Role != model.RoleAdmin {
		return nil, apperror.Forbidden("only professionals can post problem statements")
	}

	name := strings.TrimSpace(in.CompanyName)
	if name == "" {
		name = company.Name
	}
	email := strings.TrimSpace(in.ContactEmail)
	if email == "" {
		email = company.Email
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperror.ValidationFailed("contactEmail", "contact email is not a valid address")
		}
	}

	problem := &model.ProblemStatement{
		CompanyID:    companyID,
		CompanyName:  name,
		ContactEmail: email,
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Budget:       in.Budget,
		Deadline:     in.Deadline,
		Files:        in.Files,
		Status:       model.ProblemActive,
	}
	if err := s.problems.CreateProblem(ctx, problem); err != nil {
		s.logger.Error("failed to create problem statement",
			slog.String("company", companyID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating problem statement: %w", err)
	}

	// The problem is already saved; a missing trail entry isn't worth
	// failing the request over.
	if err := s.activities.RecordActivity(ctx, &model.Activity{
		UserID:    companyID,
		Type:      model.ActivityProblemPosted,
		SubjectID: problem.ID,
	}); err != nil {
		s.logger.Warn("problem posted but activity not recorded",
			slog.String("problem", problem.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("problem statement posted",
		slog.String("id", problem.ID),
		slog.String("company", companyID),
		slog.String("category", problem.Category),
	)
	return problem, nil
}

// Get returns apperror.ErrNotFound for unknown IDs.
func (s *ProblemService) Get(ctx context.Context, id string) (*model.ProblemStatement, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "problem ID is required")
	}
	return s.problems.GetProblem(ctx, id)
}

// List returns problem statements newest first, filtered by company,
// category and status. limit is clamped to 1..MaxListLimit.
func (s *ProblemService) List(ctx context.Context, filter repository.ProblemFilter) ([]model.ProblemStatement, error) {
	if !model.ValidCategory(filter.Category) {
		return nil, apperror.ValidationFailed("category", "unknown category "+filter.Category)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.ValidationFailed("status", "unknown status "+string(filter.Status))
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

	problems, err := s.problems.ListProblems(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list problem statements", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing problem statements: %w", err)
	}
	return problems, nil
}
