// Package seed fills a database with demo accounts, projects, badges and
// problem statements.
//
// Everything goes through the same services the HTTP API uses, so seeded
// projects and badges earn points through the ledger exactly like real ones.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/service"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

const problemsPerCompany = 2

// Account is one fixed demo login.
type Account struct {
	Email    string
	Name     string
	Role     model.Role
	Category string
	Bio      string
}

// Accounts are the logins shown on the sign-in page of the demo.
var Accounts = []Account{
	{Email: "contributor@test.com", Name: "John Contributor", Role: model.RoleContributor, Category: "ai-ml",
		Bio: "Passionate student developer working on AI projects"},
	{Email: "professional@test.com", Name: "Sarah Professional", Role: model.RoleProfessional,
		Bio: "Senior Developer at TechCorp, looking for talented contributors"},
	{Email: "student@test.com", Name: "Alex Student", Role: model.RoleContributor, Category: "web-development",
		Bio: "Computer Science student interested in web development"},
	{Email: "admin@test.com", Name: "Platform Admin", Role: model.RoleAdmin,
		Bio: "Awards badges and keeps the leaderboards honest"},
}

// Summary counts what a run created.
type Summary struct {
	Accounts int // fixed accounts created; existing ones are skipped
	Extra    int // random contributors created
	Projects int
	Badges   int
	Problems int // posted for newly created professional accounts
}

type Seeder struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	projects  *service.ProjectService
	badges    *service.BadgeService
	problems  *service.ProblemService
	faker     *gofakeit.Faker
	logger    *slog.Logger
}

// New creates a Seeder. faker decides every random choice; pass
// gofakeit.New(seed) with a fixed seed for a reproducible dataset.
func New(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	projects *service.ProjectService,
	badges *service.BadgeService,
	problems *service.ProblemService,
	faker *gofakeit.Faker,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		users:     users,
		passwords: passwords,
		projects:  projects,
		badges:    badges,
		problems:  problems,
		faker:     faker,
		logger:    logger,
	}
}

// Run creates the fixed Accounts and then extra random contributors, each
// with a few projects and sometimes a badge. Running it twice does not
// duplicate the fixed accounts.
func (s *Seeder) Run(ctx context.Context, extra int) (Summary, error) {
	var sum Summary

	hash, err := s.passwords.Hash(DemoPassword)
	if err != nil {
		return sum, fmt.Errorf("seed: hashing demo password: %w", err)
	}

	for _, a := range Accounts {
		u := &model.User{
			Email:        a.Email,
			Name:         a.Name,
			Role:         a.Role,
			Category:     a.Category,
			Bio:          a.Bio,
			PasswordHash: hash,
		}
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				s.logger.Info("seed: account exists, skipping", slog.String("email", a.Email))
				continue
			}
			return sum, fmt.Errorf("seed: creating %s: %w", a.Email, err)
		}
		sum.Accounts++
		s.logger.Info("seed: account created",
			slog.String("email", a.Email),
			slog.String("role", string(a.Role)),
		)

		if a.Role == model.RoleProfessional {
			for range problemsPerCompany {
				if err := s.problem(ctx, u); err != nil {
					return sum, err
				}
				sum.Problems++
			}
		}
	}

	for range extra {
		user, err := s.contributor(ctx, hash)
		if err != nil {
			return sum, err
		}
		sum.Extra++

		for range s.faker.Number(1, 3) {
			if err := s.project(ctx, user); err != nil {
				return sum, err
			}
			sum.Projects++
		}

		if s.faker.Bool() {
			badge := s.faker.RandomString(s.badgeTypes())
			if _, err := s.badges.Award(ctx, user.ID, model.BadgeType(badge)); err != nil {
				return sum, fmt.Errorf("seed: awarding %s to %s: %w", badge, user.ID, err)
			}
			sum.Badges++
		}
	}

	s.logger.Info("seed: done",
		slog.Int("accounts", sum.Accounts),
		slog.Int("extra", sum.Extra),
		slog.Int("projects", sum.Projects),
		slog.Int("badges", sum.Badges),
		slog.Int("problems", sum.Problems),
	)
	return sum, nil
}

func (s *Seeder) contributor(ctx context.Context, hash string) (*model.User, error) {
	u := &model.User{
		// The random suffix keeps emails unique across repeated runs.
		Email:        fmt.Sprintf("%s.%s@example.com", s.faker.Username(), s.faker.LetterN(6)),
		Name:         s.faker.Name(),
		Role:         model.RoleContributor,
		Category:     s.faker.RandomString(model.Categories),
		Bio:          s.faker.Sentence(8),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("seed: creating contributor: %w", err)
	}
	return u, nil
}

func (s *Seeder) project(ctx context.Context, owner *model.User) error {
	title := s.faker.AppName()
	slug := s.faker.Username()
	_, err := s.projects.Upload(ctx, owner.ID, service.UploadInput{
		Title:       title,
		Description: s.faker.Paragraph(1, 3, 8, " "),
		Category:    owner.Category,
		RepoURL:     "https://github.com/" + slug + "/" + s.faker.LetterN(8),
		Files: []model.ProjectFile{{
			Name: slug + ".zip",
			URL:  "https://files.example.com/" + slug + ".zip",
			Size: int64(s.faker.Number(1<<10, 1<<24)),
			Type: "application/zip",
		}},
	})
	if err != nil {
		return fmt.Errorf("seed: uploading %q for %s: %w", title, owner.ID, err)
	}
	return nil
}

func (s *Seeder) problem(ctx context.Context, company *model.User) error {
	title := "Build a " + s.faker.AppName() + " prototype"
	_, err := s.problems.Create(ctx, company.ID, service.ProblemInput{
		Title: title,
		// Two paragraphs clear the minimum description length.
		Description: s.faker.Paragraph() + "\n\n" + s.faker.Paragraph(),
		Category:    s.faker.RandomString(model.Categories),
		Budget:      int64(s.faker.Number(5, 100)) * 100,
		CompanyName: s.faker.Company(),
	})
	if err != nil {
		return fmt.Errorf("seed: posting %q for %s: %w", title, company.ID, err)
	}
	return nil
}

func (s *Seeder) badgeTypes() []string {
	var out []string
	for _, b := range s.badges.Catalog() {
		out = append(out, string(b.Type))
	}
	return out
}
