package model

import "time"

// Project is a contributor's uploaded work.
//
// The files themselves live in external blob storage; we only keep the
// references the upload flow hands us.
type Project struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	RepoURL     string        `json:"repoUrl,omitempty"`
	Files       []ProjectFile `json:"files"`
	Status      string        `json:"status"`
	Views       int64         `json:"views"`
	Likes       int64         `json:"likes"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ProjectFile references one uploaded file.
type ProjectFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// ProjectStatusActive is the only status the upload flow produces.
const ProjectStatusActive = "active"
