package model

import "time"

// ActivityType names something a user did that is kept for the audit trail.
type ActivityType string

const (
	ActivityScoreAdjusted ActivityType = "score_adjusted"
	ActivityProblemPosted ActivityType = "problem_posted"
)

// Activity is one entry in the audit trail.
//
// UserID is whoever acted (the admin for an adjustment), SubjectID what they
// acted on (the adjusted user, the new problem). Delta is only set for score
// adjustments.
type Activity struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Type      ActivityType `json:"type"`
	SubjectID string       `json:"subjectId"`
	Delta     int64        `json:"delta,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
