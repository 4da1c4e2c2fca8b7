package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/service"
)

// ProjectHandler exposes project upload, browsing, likes and views.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type projectFileRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	URL  string `json:"url"  validate:"required,url"`
	Size int64  `json:"size" validate:"min=0"`
	Type string `json:"type" validate:"max=100"`
}

type uploadRequest struct {
	Title       string               `json:"title"       validate:"required,max=120"`
	Description string               `json:"description" validate:"max=5000"`
	Category    string               `json:"category"    validate:"max=40"`
	RepoURL     string               `json:"repoUrl"     validate:"omitempty,url"`
	Files       []projectFileRequest `json:"files"       validate:"max=20,dive"`
}

// HandleUpload stores a new project for the caller and credits the upload.
//
// HTTP: POST /api/projects
// Auth: Required
// REQUEST BODY: {"title":"Chatbot","category":"ai-ml","files":[{"name":"a.zip","url":"https://..."}]}
func (h *ProjectHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	files := make([]model.ProjectFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = model.ProjectFile{Name: f.Name, URL: f.URL, Size: f.Size, Type: f.Type}
	}

	project, err := h.projects.Upload(r.Context(), userID, service.UploadInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		RepoURL:     req.RepoURL,
		Files:       files,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HandleGet returns one project.
//
// HTTP: GET /api/projects/{id}
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleList returns projects newest first.
//
// HTTP: GET /api/projects?user=abc&category=ai-ml&limit=20&offset=0
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Bad numbers fall back to the service defaults rather than failing.
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	projects, err := h.projects.List(r.Context(), repository.ProjectFilter{
		UserID:      q.Get("user"),
		Category:    q.Get("category"),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleSearch finds projects by title prefix.
//
// HTTP: GET /api/projects/search?q=chat&limit=10
func (h *ProjectHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	projects, err := h.projects.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleLike records the caller liking a project.
//
// HTTP: POST /api/projects/{id}/like
// Auth: Required
// 409 if the caller already liked it, 403 for their own project.
func (h *ProjectHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}

	project, err := h.projects.Like(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleView counts a view. Anonymous visitors count too.
//
// HTTP: POST /api/projects/{id}/view
// Auth: Optional
func (h *ProjectHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	if err := h.projects.View(r.Context(), chi.URLParam(r, "id"), viewerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
