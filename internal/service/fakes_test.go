package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository interfaces.
// Each one can be told to fail so tests can drive the error paths.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int

	createErr error
	updateErr error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

// add stores u directly and returns its ID.
func (f *fakeUserRepo) add(u model.User) string {
	f.nextID++
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", f.nextID)
	}
	f.users[u.ID] = &u
	return u.ID
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if u.Email != "" && existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	if u.Role == "" {
		u.Role = model.RoleContributor
	}
	u.CreatedAt = time.Now()
	u.ID = f.add(*u)
	return nil
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.GitHubID == u.GitHubID {
			existing.Name = u.Name
			existing.Email = u.Email
			existing.AvatarURL = u.AvatarURL
			*u = *existing
			return nil
		}
	}
	return f.Create(ctx, u)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if email != "" && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, u *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) SearchUsers(_ context.Context, prefix string, limit int) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if strings.HasPrefix(u.Name, prefix) {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return strings.Compare(a.Name, b.Name) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUserRepo) UserExists(_ context.Context, id string) (bool, error) {
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeUserRepo) UserCategory(_ context.Context, id string) (string, error) {
	u, ok := f.users[id]
	if !ok {
		return "", apperror.NotFound("user", id)
	}
	return u.Category, nil
}

type fakeProjectRepo struct {
	projects map[string]*model.Project
	likes    map[string]bool // projectID + "/" + userID
	nextID   int

	createErr error
}

var _ repository.ProjectRepository = (*fakeProjectRepo)(nil)

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[string]*model.Project),
		likes:    make(map[string]bool),
	}
}

func (f *fakeProjectRepo) CreateProject(_ context.Context, p *model.Project) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	p.ID = fmt.Sprintf("project-%d", f.nextID)
	p.CreatedAt = time.Now()
	copied := *p
	f.projects[p.ID] = &copied
	return nil
}

func (f *fakeProjectRepo) GetProject(_ context.Context, id string) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, apperror.NotFound("project", id)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProjectRepo) ListProjects(_ context.Context, filter repository.ProjectFilter) ([]model.Project, error) {
	var out []model.Project
	for _, p := range f.projects {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, *p)
	}
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeProjectRepo) SearchProjects(_ context.Context, prefix string, limit int) ([]model.Project, error) {
	var out []model.Project
	for _, p := range f.projects {
		if strings.HasPrefix(p.Title, prefix) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProjectRepo) AddLike(_ context.Context, projectID, userID string) error {
	p, ok := f.projects[projectID]
	if !ok {
		return apperror.NotFound("project", projectID)
	}
	key := projectID + "/" + userID
	if f.likes[key] {
		return apperror.Conflict("like", key)
	}
	f.likes[key] = true
	p.Likes++
	return nil
}

func (f *fakeProjectRepo) IncrementViews(_ context.Context, projectID string) error {
	p, ok := f.projects[projectID]
	if !ok {
		return apperror.NotFound("project", projectID)
	}
	p.Views++
	return nil
}

type fakeBadgeRepo struct {
	held map[string][]model.UserBadge
}

var _ repository.BadgeRepository = (*fakeBadgeRepo)(nil)

func newFakeBadgeRepo() *fakeBadgeRepo {
	return &fakeBadgeRepo{held: make(map[string][]model.UserBadge)}
}

func (f *fakeBadgeRepo) AwardBadge(_ context.Context, b *model.UserBadge) error {
	for _, h := range f.held[b.UserID] {
		if h.Type == b.Type {
			return apperror.Conflict("badge", string(b.Type))
		}
	}
	b.AwardedAt = time.Now()
	f.held[b.UserID] = append(f.held[b.UserID], *b)
	return nil
}

func (f *fakeBadgeRepo) ListBadges(_ context.Context, userID string) ([]model.UserBadge, error) {
	return slices.Clone(f.held[userID]), nil
}

type fakeProblemRepo struct {
	problems []model.ProblemStatement // in insertion order
	filters  []repository.ProblemFilter

	createErr error
}

var _ repository.ProblemRepository = (*fakeProblemRepo)(nil)

func (f *fakeProblemRepo) CreateProblem(_ context.Context, p *model.ProblemStatement) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = fmt.Sprintf("problem-%d", len(f.problems)+1)
	p.CreatedAt = time.Now()
	f.problems = append(f.problems, *p)
	return nil
}

func (f *fakeProblemRepo) GetProblem(_ context.Context, id string) (*model.ProblemStatement, error) {
	for _, p := range f.problems {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("problem statement", id)
}

// ListProblems records the filter it was given and returns everything
// matching, newest first.
func (f *fakeProblemRepo) ListProblems(_ context.Context, filter repository.ProblemFilter) ([]model.ProblemStatement, error) {
	f.filters = append(f.filters, filter)
	out := []model.ProblemStatement{}
	for _, p := range slices.Backward(f.problems) {
		if filter.CompanyID != "" && p.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	entries []model.Activity
	filters []repository.ActivityFilter

	recordErr error
}

var _ repository.ActivityRepository = (*fakeActivityRepo)(nil)

func (f *fakeActivityRepo) RecordActivity(_ context.Context, a *model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	a.ID = fmt.Sprintf("activity-%d", len(f.entries)+1)
	a.CreatedAt = time.Now()
	f.entries = append(f.entries, *a)
	return nil
}

func (f *fakeActivityRepo) ListActivities(_ context.Context, filter repository.ActivityFilter) ([]model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	out := []model.Activity{}
	for _, a := range slices.Backward(f.entries) {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeActivityRepo) recorded() []model.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entries)
}

// fakeLedger records every event it is handed and keeps a running total per
// user, clamped at zero like the real ledger. It implements ScoreApplier,
// ScoreReader and Recategorizer.
type fakeLedger struct {
	mu       sync.Mutex
	events   []model.ScoreEvent
	totals   map[string]int64
	moves    []string // "userID→category"
	applyErr error
	moveErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{totals: make(map[string]int64)}
}

func (f *fakeLedger) ApplyEvent(_ context.Context, ev model.ScoreEvent) (*model.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	if ev.UserID == "" {
		return nil, apperror.ValidationFailed("userId", "score event needs a user ID")
	}
	f.events = append(f.events, ev)
	f.totals[ev.UserID] = max(0, f.totals[ev.UserID]+ev.Delta)
	return &model.UserScore{UserID: ev.UserID, Score: f.totals[ev.UserID]}, nil
}

func (f *fakeLedger) ScoreOrZero(_ context.Context, userID string) (*model.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.UserScore{UserID: userID, Score: f.totals[userID]}, nil
}

func (f *fakeLedger) Recategorize(_ context.Context, userID, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, userID+"→"+category)
	return nil
}

func (f *fakeLedger) recorded() []model.ScoreEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}
