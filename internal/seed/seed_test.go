package seed

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/ledger"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	sqliteRepo "github.com/sakif/skillboard/internal/repository/sqlite"
	"github.com/sakif/skillboard/internal/service"
)

func TestSeeder_Run(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := ledger.New(db, db, ledger.Config{RequireKnownUser: true}, nil, logger)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	s := New(db, passwords,
		service.NewProjectService(db, db, l, logger),
		service.NewBadgeService(db, db, l, logger),
		service.NewProblemService(db, db, db, logger),
		gofakeit.New(42), logger)

	sum, err := s.Run(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, len(Accounts), sum.Accounts)
	assert.Equal(t, 5, sum.Extra)
	assert.GreaterOrEqual(t, sum.Projects, 5)
	assert.LessOrEqual(t, sum.Projects, 15)
	assert.Equal(t, problemsPerCompany, sum.Problems)

	t.Run("demo accounts can log in", func(t *testing.T) {
		for _, a := range Accounts {
			u, err := db.GetUserByEmail(ctx, a.Email)
			require.NoError(t, err, a.Email)
			assert.Equal(t, a.Role, u.Role)
			assert.NoError(t, passwords.Verify(u.PasswordHash, DemoPassword))
		}
	})

	t.Run("uploads and badges went through the ledger", func(t *testing.T) {
		scores, err := l.Snapshot(ctx, "")
		require.NoError(t, err)

		var projects, badges int64
		for _, sc := range scores {
			projects += sc.Projects
			badges += sc.Badges
			assert.GreaterOrEqual(t, sc.Score, sc.Projects*model.ProjectUploadScore)
			assert.NotEmpty(t, sc.Category, "seeded contributors always have a category")
		}
		assert.Equal(t, int64(sum.Projects), projects)
		assert.Equal(t, int64(sum.Badges), badges)
	})

	t.Run("professional posted problem statements", func(t *testing.T) {
		company, err := db.GetUserByEmail(ctx, "professional@test.com")
		require.NoError(t, err)
		problems, err := db.ListProblems(ctx, repository.ProblemFilter{CompanyID: company.ID})
		require.NoError(t, err)
		assert.Len(t, problems, problemsPerCompany)
		for _, p := range problems {
			assert.Equal(t, model.ProblemActive, p.Status)
			assert.Positive(t, p.Budget)
		}
	})

	t.Run("second run skips existing accounts", func(t *testing.T) {
		again, err := s.Run(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, again.Accounts)
		assert.Zero(t, again.Problems)
		assert.Equal(t, 1, again.Extra)
	})
}
