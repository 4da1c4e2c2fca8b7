package model

import "time"

// ProblemStatus is where a problem statement is in its lifecycle.
type ProblemStatus string

const (
	ProblemActive    ProblemStatus = "active"    // open for applications
	ProblemReviewing ProblemStatus = "reviewing" // company is looking at solutions
	ProblemCompleted ProblemStatus = "completed" // a solution was selected
)

// Valid reports whether s is a known status.
func (s ProblemStatus) Valid() bool {
	return s == ProblemActive || s == ProblemReviewing || s == ProblemCompleted
}

// ProblemStatement is a challenge a company (a professional user) posts for
// contributors to solve.
//
// CompanyID is the poster's user ID. Files are references to attachments in
// blob storage, like Project.Files. SelectedSolution is the ID of the
// winning project, empty until the company picks one.
type ProblemStatement struct {
	ID               string        `json:"id"`
	CompanyID        string        `json:"companyId"`
	CompanyName      string        `json:"companyName"`
	ContactEmail     string        `json:"contactEmail"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Category         string        `json:"category"`
	Budget           int64         `json:"budget"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	Files            []ProjectFile `json:"files"`
	Status           ProblemStatus `json:"status"`
	Applications     int64         `json:"applications"`
	SelectedSolution string        `json:"selectedSolution,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
