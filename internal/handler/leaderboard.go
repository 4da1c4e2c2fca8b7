package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/feed"
	"github.com/sakif/skillboard/internal/model"
)

const (
	defaultBoardLimit = 10
	maxBoardLimit     = 100
	heartbeatInterval = 15 * time.Second
)

// LeaderboardHandler serves ranked boards, as JSON snapshots and as a
// server-sent event stream.
type LeaderboardHandler struct {
	feed   *feed.Feed
	logger *slog.Logger
}

func NewLeaderboardHandler(f *feed.Feed, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{feed: f, logger: logger}
}

// LeaderboardResponse is one board. Stale is true when the store was
// unavailable and the entries come from the last successful ranking.
type LeaderboardResponse struct {
	Category string                   `json:"category,omitempty"`
	Entries  []model.LeaderboardEntry `json:"entries"`
	Stale    bool                     `json:"stale"`
}

// HandleTop returns the first limit entries of a board.
//
// HTTP: GET /api/leaderboard?category=ai-ml&limit=10
//
// STALE FALLBACK:
// If ranking fails because the store is down (ErrTransient) and this board
// has been ranked before, we answer 200 with the cached board and
// "stale": true rather than a 503. Any other error is returned as usual.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	category, limit, err := boardQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.feed.GetTop(r.Context(), limit, category)
	if err != nil {
		if errors.Is(err, apperror.ErrTransient) {
			if cached, ok := h.feed.Cached(category, limit); ok {
				h.logger.Warn("serving stale leaderboard",
					slog.String("category", category),
					slog.String("error", err.Error()),
				)
				writeJSON(w, http.StatusOK, LeaderboardResponse{Category: category, Entries: cached, Stale: true})
				return
			}
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{Category: category, Entries: entries})
}

// HandleMyRank returns the caller's position on a board.
//
// HTTP: GET /api/leaderboard/me?category=ai-ml
// Auth: Required
func (h *LeaderboardHandler) HandleMyRank(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")
	if !model.ValidCategory(category) {
		writeError(w, apperror.ValidationFailed("category", "unknown category "+category))
		return
	}

	entry, err := h.feed.RankOf(r.Context(), userID, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleStream pushes a fresh board every time it changes.
//
// HTTP: GET /api/leaderboard/stream?category=ai-ml
//
// SERVER-SENT EVENTS:
// The response stays open and each update is written as
//
//	event: leaderboard
//	data: {"category":"ai-ml","entries":[...],"stale":false}
//
// followed by a blank line. The first event is the current board. A comment
// line every heartbeatInterval keeps proxies from closing an idle stream.
// The stream ends when the client disconnects (r.Context is done) or the
// feed shuts down.
func (h *LeaderboardHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if !model.ValidCategory(category) {
		writeError(w, apperror.ValidationFailed("category", "unknown category "+category))
		return
	}

	rc := http.NewResponseController(w)
	// The server's WriteTimeout would cut the stream off; lift it for this
	// response only. Recorders in tests don't support deadlines.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("stream: clearing write deadline", slog.String("error", err.Error()))
	}

	ctx := r.Context()
	boards := make(chan []model.LeaderboardEntry)
	sub, err := h.feed.Subscribe(ctx, category, func(entries []model.LeaderboardEntry) {
		select {
		case boards <- entries:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			// feed shutting down
			return
		case entries := <-boards:
			payload, err := json.Marshal(LeaderboardResponse{Category: category, Entries: entries})
			if err != nil {
				h.logger.Error("stream: encoding board", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: leaderboard\ndata: %s\n\n", payload); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			h.logger.Debug("stream: flush failed", slog.String("error", err.Error()))
			return
		}
	}
}

// boardQuery parses ?category= and ?limit=.
func boardQuery(r *http.Request) (category string, limit int, err error) {
	q := r.URL.Query()
	category = q.Get("category")
	if !model.ValidCategory(category) {
		return "", 0, apperror.ValidationFailed("category", "unknown category "+category)
	}

	limit = defaultBoardLimit
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			return "", 0, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
		}
	}
	return category, min(limit, maxBoardLimit), nil
}
