package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
)

func TestUserSearch(t *testing.T) {
	users := newFakeUserRepo()
	users.add(model.User{Name: "alice"})
	users.add(model.User{Name: "alina"})
	users.add(model.User{Name: "bob"})
	svc := NewUserService(users, newFakeLedger())

	got, err := svc.Search(context.Background(), "ali", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Name)

	_, err = svc.Search(context.Background(), "", 5)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUserScore(t *testing.T) {
	users := newFakeUserRepo()
	id := users.add(model.User{Name: "new"})
	scores := newFakeLedger()
	svc := NewUserService(users, scores)

	got, err := svc.Score(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, &model.UserScore{UserID: id}, got, "users with no events read as zero")

	_, err = svc.Score(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
