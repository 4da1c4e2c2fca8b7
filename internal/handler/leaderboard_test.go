package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/feed"
	"github.com/sakif/skillboard/internal/handler"
	"github.com/sakif/skillboard/internal/model"
)

func TestLeaderboardHandler_Top(t *testing.T) {
	e := newEnv(t)
	ada := e.addUser(model.RoleContributor, "ai-ml")
	bob := e.addUser(model.RoleContributor, "web-development")
	cy := e.addUser(model.RoleContributor, "ai-ml")
	e.credit(ada, 300)
	e.credit(bob, 500)
	e.credit(cy, 100)

	t.Run("global board", func(t *testing.T) {
		rr := e.do(http.MethodGet, "/api/leaderboard", "", "", "")
		require.Equal(t, http.StatusOK, rr.Code)

		got := decode[handler.LeaderboardResponse](t, rr)
		assert.False(t, got.Stale)
		want := []model.LeaderboardEntry{
			{UserID: bob, Score: 500, Rank: 1, Category: "web-development"},
			{UserID: ada, Score: 300, Rank: 2, Category: "ai-ml"},
			{UserID: cy, Score: 100, Rank: 3, Category: "ai-ml"},
		}
		if diff := cmp.Diff(want, got.Entries); diff != "" {
			t.Errorf("entries mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("category board with limit", func(t *testing.T) {
		rr := e.do(http.MethodGet, "/api/leaderboard?category=ai-ml&limit=1", "", "", "")
		require.Equal(t, http.StatusOK, rr.Code)

		got := decode[handler.LeaderboardResponse](t, rr)
		assert.Equal(t, "ai-ml", got.Category)
		require.Len(t, got.Entries, 1)
		assert.Equal(t, ada, got.Entries[0].UserID)
		assert.Equal(t, 1, got.Entries[0].Rank)
	})

	t.Run("zero limit", func(t *testing.T) {
		rr := e.do(http.MethodGet, "/api/leaderboard?limit=0", "", "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[handler.LeaderboardResponse](t, rr).Entries)
	})

	bad := []struct {
		name  string
		query string
		field string
	}{
		{"unknown category", "?category=cooking", "category"},
		{"negative limit", "?limit=-1", "limit"},
		{"non-numeric limit", "?limit=ten", "limit"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(http.MethodGet, "/api/leaderboard"+tt.query, "", "", "")
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.field, decode[handler.ErrorResponse](t, rr).Field)
		})
	}
}

// flakySource answers the first snapshot and fails every one after it.
type flakySource struct {
	mu     sync.Mutex
	calls  int
	scores []model.UserScore
}

func (s *flakySource) Snapshot(_ context.Context, _ string) ([]model.UserScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls > 1 {
		return nil, apperror.Transient("listing scores", errors.New("database is locked"))
	}
	return s.scores, nil
}

func TestLeaderboardHandler_StaleFallback(t *testing.T) {
	src := &flakySource{scores: []model.UserScore{
		{UserID: "u1", Score: 10},
		{UserID: "u2", Score: 20},
	}}
	f := feed.New(src, nil, feed.Config{}, nil, quietLogger())
	t.Cleanup(f.Close)
	h := handler.NewLeaderboardHandler(f, quietLogger())

	get := func(query string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.HandleTop(rr, httptest.NewRequest(http.MethodGet, "/api/leaderboard"+query, nil))
		return rr
	}

	rr := get("")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[handler.LeaderboardResponse](t, rr).Stale)

	// The store is down now; the global board has been ranked before.
	rr = get("")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[handler.LeaderboardResponse](t, rr)
	assert.True(t, got.Stale)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "u2", got.Entries[0].UserID)

	// A board that was never ranked has nothing to fall back to.
	rr = get("?category=iot")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", decode[handler.ErrorResponse](t, rr).Error)
}

func TestLeaderboardHandler_MyRank(t *testing.T) {
	e := newEnv(t)
	ada := e.addUser(model.RoleContributor, "ai-ml")
	bob := e.addUser(model.RoleContributor, "ai-ml")
	newcomer := e.addUser(model.RoleContributor, "ai-ml")
	e.credit(ada, 10)
	e.credit(bob, 20)

	rr := e.do(http.MethodGet, "/api/leaderboard/me?category=ai-ml", "", ada, model.RoleContributor)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	entry := decode[model.LeaderboardEntry](t, rr)
	assert.Equal(t, 2, entry.Rank)
	assert.Equal(t, int64(10), entry.Score)

	rr = e.do(http.MethodGet, "/api/leaderboard/me", "", newcomer, model.RoleContributor)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(http.MethodGet, "/api/leaderboard/me", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// readBoard returns the next leaderboard event that satisfies ok, skipping
// heartbeats and earlier boards.
func readBoard(t *testing.T, r *bufio.Reader, ok func(handler.LeaderboardResponse) bool) handler.LeaderboardResponse {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		data, found := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !found {
			continue
		}
		var board handler.LeaderboardResponse
		require.NoError(t, json.Unmarshal([]byte(data), &board))
		if ok(board) {
			return board
		}
	}
}

func TestLeaderboardHandler_Stream(t *testing.T) {
	e := newEnv(t)
	ada := e.addUser(model.RoleContributor, "ai-ml")
	bob := e.addUser(model.RoleContributor, "ai-ml")
	e.credit(ada, 50)

	ts := httptest.NewServer(e.router)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/leaderboard/stream?category=ai-ml", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first := readBoard(t, r, func(handler.LeaderboardResponse) bool { return true })
	assert.Equal(t, "ai-ml", first.Category)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, ada, first.Entries[0].UserID)

	e.credit(bob, 80)
	next := readBoard(t, r, func(b handler.LeaderboardResponse) bool { return len(b.Entries) == 2 })
	assert.Equal(t, bob, next.Entries[0].UserID)
	assert.Equal(t, 1, next.Entries[0].Rank)

	// Shutting the feed down ends the stream.
	e.feed.Close()
	_, err = io.Copy(io.Discard, r)
	assert.NoError(t, err)
}

func TestLeaderboardHandler_StreamRejectsUnknownCategory(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/api/leaderboard/stream?category=cooking", "", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
