package model

import (
	"fmt"
	"time"
)

// ProjectUploadScore is the base score a contributor earns for each project
// upload.
const ProjectUploadScore int64 = 100

// Reason is the closed set of contribution kinds a ScoreEvent can carry.
// The ledger switches over it exhaustively, so adding a value means adding a
// case in ledger.applyReason.
type Reason string

const (
	ReasonProjectUpload   Reason = "project-upload"
	ReasonBadgeAward      Reason = "badge-award"
	ReasonAdminAdjustment Reason = "admin-adjustment"
	ReasonProjectLike     Reason = "project-like"
	ReasonProjectView     Reason = "project-view"
)

// Valid reports whether r is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonProjectUpload, ReasonBadgeAward, ReasonAdminAdjustment,
		ReasonProjectLike, ReasonProjectView:
		return true
	}
	return false
}

// ScoreEvent is a single signed contribution to a user's score.
// It is applied once by the ledger and then discarded.
type ScoreEvent struct {
	UserID string `json:"userId"`
	Delta  int64  `json:"delta"`
	Reason Reason `json:"reason"`
}

func (e ScoreEvent) String() string {
	return fmt.Sprintf("%s %+d (%s)", e.UserID, e.Delta, e.Reason)
}

// ProjectUploaded builds the event a project upload reports.
func ProjectUploaded(userID string) ScoreEvent {
	return ScoreEvent{UserID: userID, Delta: ProjectUploadScore, Reason: ReasonProjectUpload}
}

// UserScore is the ledger's record for one user.
//
// Score is never negative. Projects, Badges, Views and Likes only grow.
// Rank is a denormalized copy of the last global ranking written back for
// cheap lookups; the authoritative order is always recomputed.
type UserScore struct {
	UserID    string    `json:"userId"`
	Score     int64     `json:"score"`
	Category  string    `json:"category,omitempty"`
	Projects  int64     `json:"projects"`
	Badges    int64     `json:"badges"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
	Rank      int       `json:"rank,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeaderboardEntry is one row of a computed ranking. It is derived from a
// snapshot of UserScore records and never stored as ground truth.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Score    int64  `json:"score"`
	Rank     int    `json:"rank"`
	Category string `json:"category,omitempty"`
}
