// Package ranking turns a snapshot of user scores into an ordered leaderboard.
//
// PURE FUNCTIONS:
// Nothing in this package touches a database, a clock or a lock. Rank takes a
// slice of model.UserScore and returns a new slice of model.LeaderboardEntry.
// Because the output depends only on the input, the same snapshot always
// produces the same leaderboard, and the package is trivial to test.
//
// ORDERING RULES:
//
//  1. Higher score first.
//  2. Equal scores: lower UserID first (plain byte-wise string compare).
//  3. Rank = position + 1. Every entry gets its own rank, so two users tied
//     on 30 points are #1 and #2, never #1 and #1.
//
// The tie-break is what makes the order total. Without it, sort.Slice on
// equal scores could return either order and the leaderboard would flicker
// between refreshes.
package ranking

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/model"
)

// Rank orders snapshot and assigns 1-based sequential ranks.
//
// The input slice is not modified. An empty snapshot yields an empty, non-nil
// slice. A duplicate UserID or a negative score means the snapshot did not
// come from a healthy ledger, so Rank refuses it with apperror.ErrInvariant
// instead of guessing which record is right.
func Rank(snapshot []model.UserScore) ([]model.LeaderboardEntry, error) {
	seen := make(map[string]struct{}, len(snapshot))
	entries := make([]model.LeaderboardEntry, 0, len(snapshot))

	for _, s := range snapshot {
		if _, dup := seen[s.UserID]; dup {
			return nil, apperror.InvariantViolation(
				fmt.Sprintf("duplicate user %q in ranking snapshot", s.UserID))
		}
		if s.Score < 0 {
			return nil, apperror.InvariantViolation(
				fmt.Sprintf("negative score %d for user %q", s.Score, s.UserID))
		}
		seen[s.UserID] = struct{}{}
		entries = append(entries, model.LeaderboardEntry{
			UserID:   s.UserID,
			Score:    s.Score,
			Category: s.Category,
		})
	}

	slices.SortFunc(entries, compare)

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// compare is the leaderboard order: score descending, then UserID ascending.
func compare(a, b model.LeaderboardEntry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// Top returns the first n entries of a ranked slice. n <= 0 returns an empty
// slice; n past the end returns everything. The result is a copy, so callers
// may hand it to subscribers without sharing the backing array.
func Top(entries []model.LeaderboardEntry, n int) []model.LeaderboardEntry {
	if n <= 0 {
		return []model.LeaderboardEntry{}
	}
	n = min(n, len(entries))
	return slices.Clone(entries[:n])
}

// Position finds userID in a ranked slice. ok is false when the user is not
// on the board.
func Position(entries []model.LeaderboardEntry, userID string) (entry model.LeaderboardEntry, ok bool) {
	i := slices.IndexFunc(entries, func(e model.LeaderboardEntry) bool {
		return e.UserID == userID
	})
	if i < 0 {
		return model.LeaderboardEntry{}, false
	}
	return entries[i], true
}
