package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/ledger"
	"github.com/sakif/skillboard/internal/model"
)

func TestGetScore_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetScore(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetScore() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertScore_InsertThenUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := &model.UserScore{UserID: "u1", Score: 100, Projects: 1, Category: "ai-ml", UpdatedAt: time.Now()}
	if err := db.UpsertScore(ctx, s); err != nil {
		t.Fatalf("UpsertScore() insert: %v", err)
	}

	s.Score = 250
	s.Badges = 2
	if err := db.UpsertScore(ctx, s); err != nil {
		t.Fatalf("UpsertScore() update: %v", err)
	}

	got, err := db.GetScore(ctx, "u1")
	if err != nil {
		t.Fatalf("GetScore() error = %v", err)
	}
	if got.Score != 250 || got.Projects != 1 || got.Badges != 2 || got.Category != "ai-ml" {
		t.Errorf("GetScore() = %+v", got)
	}
}

func TestUpsertScore_RejectsNegativeScore(t *testing.T) {
	db := newTestDB(t)

	// The CHECK constraint is a last line of defence behind the ledger's clamp.
	err := db.UpsertScore(context.Background(), &model.UserScore{UserID: "u", Score: -1})
	if err == nil {
		t.Error("UpsertScore() accepted a negative score")
	}
}

func TestListScores_Category(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, s := range []model.UserScore{
		{UserID: "a", Score: 1, Category: "ai-ml"},
		{UserID: "b", Score: 2, Category: "web-development"},
		{UserID: "c", Score: 3, Category: "ai-ml"},
	} {
		if err := db.UpsertScore(ctx, &s); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListScores(ctx, "")
	if err != nil {
		t.Fatalf("ListScores(\"\") error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListScores(\"\") returned %d, want 3", len(all))
	}

	ai, err := db.ListScores(ctx, "ai-ml")
	if err != nil {
		t.Fatalf("ListScores(ai-ml) error = %v", err)
	}
	if len(ai) != 2 {
		t.Errorf("ListScores(ai-ml) returned %d, want 2", len(ai))
	}

	none, err := db.ListScores(ctx, "robotics")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListScores(robotics) = %v, want empty non-nil slice", none)
	}
}

func TestSaveRanks_SurvivesLaterUpserts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := db.UpsertScore(ctx, &model.UserScore{UserID: id, Score: 10}); err != nil {
			t.Fatal(err)
		}
	}

	err := db.SaveRanks(ctx, []model.LeaderboardEntry{
		{UserID: "a", Score: 10, Rank: 1},
		{UserID: "b", Score: 10, Rank: 2},
	})
	if err != nil {
		t.Fatalf("SaveRanks() error = %v", err)
	}

	// A score write must not reset the denormalized rank.
	if err := db.UpsertScore(ctx, &model.UserScore{UserID: "b", Score: 20}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetScore(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got.Rank != 2 {
		t.Errorf("Rank = %d, want 2", got.Rank)
	}
}

// TestLedgerOnSQLite runs the ledger's clamp scenario against the real
// store, with the database acting as the identity collaborator too.
func TestLedgerOnSQLite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "ledgered", "web-development")

	l := ledger.New(db, db, ledger.Config{RequireKnownUser: true}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := l.ApplyEvent(ctx, model.ProjectUploaded(user.ID))
	if err != nil {
		t.Fatalf("ApplyEvent(upload) error = %v", err)
	}
	if got.Score != 100 || got.Projects != 1 || got.Category != "web-development" {
		t.Errorf("after upload = %+v", got)
	}

	got, err = l.ApplyEvent(ctx, model.ScoreEvent{UserID: user.ID, Delta: -500, Reason: model.ReasonAdminAdjustment})
	if err != nil {
		t.Fatalf("ApplyEvent(adjustment) error = %v", err)
	}
	if got.Score != 0 {
		t.Errorf("Score = %d, want clamp to 0", got.Score)
	}

	if _, err := l.ApplyEvent(ctx, model.ProjectUploaded("ghost")); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ApplyEvent(ghost) error = %v, want ErrNotFound", err)
	}
}
