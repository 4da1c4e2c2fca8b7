package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/feed"
	"github.com/sakif/skillboard/internal/handler"
	"github.com/sakif/skillboard/internal/ledger"
	"github.com/sakif/skillboard/internal/model"
	sqliteRepo "github.com/sakif/skillboard/internal/repository/sqlite"
	"github.com/sakif/skillboard/internal/service"
)

// env is a full stack over an in-memory database: real repositories, ledger,
// feed and services behind the handlers. Handler tests talk to it over HTTP
// the same way a browser would, with the JWT cookie for authentication.
type env struct {
	t      *testing.T
	db     *sqliteRepo.DB
	ledger *ledger.Ledger
	feed   *feed.Feed
	tokens *auth.TokenService
	router chi.Router
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := quietLogger()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)

	l := ledger.New(db, db, ledger.Config{RequireKnownUser: true}, nil, logger)
	f := feed.New(l, db, feed.Config{}, nil, logger)
	l.OnChange(f)
	t.Cleanup(func() {
		f.Close()
		db.Close()
	})

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	authH := handler.NewAuthHandler(
		service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), l, logger),
		nil, logger)
	projectH := handler.NewProjectHandler(service.NewProjectService(db, db, l, logger), logger)
	badgeH := handler.NewBadgeHandler(service.NewBadgeService(db, db, l, logger), logger)
	adminH := handler.NewAdminHandler(service.NewAdminService(l, db, logger), logger)
	problemH := handler.NewProblemHandler(service.NewProblemService(db, db, db, logger), logger)
	userH := handler.NewUserHandler(service.NewUserService(db, l), logger)
	boardH := handler.NewLeaderboardHandler(f, logger)

	r := chi.NewRouter()
	r.Post("/auth/signup", authH.HandleSignup)
	r.Post("/auth/login", authH.HandleLogin)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/api/me", authH.HandleMe)
		r.Put("/api/me", authH.HandleUpdateMe)
		r.Get("/api/leaderboard/me", boardH.HandleMyRank)
		r.Post("/api/projects", projectH.HandleUpload)
		r.Post("/api/projects/{id}/like", projectH.HandleLike)
		r.With(auth.RequireRole(model.RoleAdmin)).Post("/api/badges", badgeH.HandleAward)
		r.With(auth.RequireRole(model.RoleAdmin)).Post("/api/admin/adjustments", adminH.HandleAdjust)
		r.With(auth.RequireRole(model.RoleAdmin)).Get("/api/admin/activities", adminH.HandleActivities)
		r.With(auth.RequireRole(model.RoleProfessional, model.RoleAdmin)).Post("/api/problems", problemH.HandleCreate)
	})
	r.With(auth.OptionalAuth(tokens)).Post("/api/projects/{id}/view", projectH.HandleView)
	r.Get("/api/projects", projectH.HandleList)
	r.Get("/api/projects/search", projectH.HandleSearch)
	r.Get("/api/projects/{id}", projectH.HandleGet)
	r.Get("/api/leaderboard", boardH.HandleTop)
	r.Get("/api/leaderboard/stream", boardH.HandleStream)
	r.Get("/api/users/search", userH.HandleSearch)
	r.Get("/api/users/{id}/score", userH.HandleScore)
	r.Get("/api/users/{id}/badges", badgeH.HandleUserBadges)
	r.Get("/api/badges", badgeH.HandleCatalog)
	r.Get("/api/problems", problemH.HandleList)
	r.Get("/api/problems/{id}", problemH.HandleGet)

	return &env{t: t, db: db, ledger: l, feed: f, tokens: tokens, router: r}
}

// addUser inserts a user straight into the database and returns its ID.
func (e *env) addUser(role model.Role, category string) string {
	e.t.Helper()
	u := &model.User{
		Email:    gofakeit.Email(),
		Name:     gofakeit.Name(),
		Role:     role,
		Category: category,
	}
	require.NoError(e.t, e.db.Create(context.Background(), u))
	return u.ID
}

// credit gives userID delta points through the ledger.
func (e *env) credit(userID string, delta int64) {
	e.t.Helper()
	_, err := e.ledger.ApplyEvent(context.Background(), model.ScoreEvent{
		UserID: userID, Delta: delta, Reason: model.ReasonAdminAdjustment,
	})
	require.NoError(e.t, err)
}

// do sends a request through the router. A non-empty userID is logged in
// with a fresh token for role.
func (e *env) do(method, path, body, userID string, role model.Role) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		tok, err := e.tokens.Generate(userID, role)
		require.NoError(e.t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tok})
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func tokenCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}
