// Package model defines the data structures used throughout the application.
package model

import "time"

// Role decides what a user can do on the platform.
type Role string

const (
	RoleContributor  Role = "contributor"  // students who upload projects
	RoleProfessional Role = "professional" // company users who post problem statements
	RoleAdmin        Role = "admin"        // can award badges and adjust scores
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleContributor || r == RoleProfessional || r == RoleAdmin
}

// User represents a registered account and its public profile.
//
// Accounts come from two places: email/password signup, or GitHub OAuth for
// contributors. GitHubID is zero for email accounts, and Email may be empty
// for GitHub accounts whose address is hidden.
//
// WHY PasswordHash HAS json:"-"?
// The struct is returned directly from /api/me. The "-" tag keeps the bcrypt
// hash out of every JSON response, no matter which handler encodes it.
//
// Category is the user's primary classification tag (e.g. "ai-ml"). It scopes
// the category leaderboards; a user has exactly one.
type User struct {
	ID           string    `json:"id"        db:"id"`
	GitHubID     int64     `json:"githubId,omitempty" db:"github_id"`
	Email        string    `json:"email"     db:"email"`
	Name         string    `json:"name"      db:"name"`
	Role         Role      `json:"role"      db:"role"`
	Bio          string    `json:"bio"       db:"bio"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	Category     string    `json:"category"  db:"category"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
