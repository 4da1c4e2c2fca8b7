package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
)

func TestAwardBadge_UniquePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "mentee", "")

	award := &model.UserBadge{UserID: u.ID, Type: "mentor", Name: "Mentor"}
	if err := db.AwardBadge(ctx, award); err != nil {
		t.Fatalf("AwardBadge() error = %v", err)
	}
	if award.AwardedAt.IsZero() {
		t.Error("AwardBadge() did not set AwardedAt")
	}

	err := db.AwardBadge(ctx, &model.UserBadge{UserID: u.ID, Type: "mentor", Name: "Mentor"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second AwardBadge() error = %v, want ErrConflict", err)
	}

	if err := db.AwardBadge(ctx, &model.UserBadge{UserID: u.ID, Type: "developer", Name: "Developer"}); err != nil {
		t.Fatalf("AwardBadge(developer) error = %v", err)
	}

	badges, err := db.ListBadges(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListBadges() error = %v", err)
	}
	if len(badges) != 2 {
		t.Errorf("ListBadges() returned %d, want 2", len(badges))
	}
}

func TestListBadges_Empty(t *testing.T) {
	db := newTestDB(t)

	badges, err := db.ListBadges(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListBadges() error = %v", err)
	}
	if badges == nil || len(badges) != 0 {
		t.Errorf("ListBadges() = %v, want empty non-nil slice", badges)
	}
}
