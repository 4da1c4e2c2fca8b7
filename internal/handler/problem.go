package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/service"
)

// ProblemHandler exposes problem statements posted by companies.
//
//	POST /api/problems        (professional or admin)
//	GET  /api/problems, /api/problems/{id}
type ProblemHandler struct {
	problems *service.ProblemService
	logger   *slog.Logger
}

func NewProblemHandler(problems *service.ProblemService, logger *slog.Logger) *ProblemHandler {
	return &ProblemHandler{problems: problems, logger: logger}
}

type problemRequest struct {
	Title        string               `json:"title"        validate:"required,max=120"`
	Description  string               `json:"description"  validate:"required,max=5000"`
	Category     string               `json:"category"     validate:"required,max=40"`
	Budget       int64                `json:"budget"       validate:"gt=0"`
	Deadline     *time.Time           `json:"deadline"`
	CompanyName  string               `json:"companyName"  validate:"max=120"`
	ContactEmail string               `json:"contactEmail" validate:"omitempty,email"`
	Files        []projectFileRequest `json:"files"        validate:"max=20,dive"`
}

// HandleCreate posts a problem statement as the caller's company.
//
// HTTP: POST /api/problems
// Auth: professional or admin
// REQUEST BODY: {"title":"Route planner","description":"...","category":"ai-ml","budget":5000,"deadline":"2026-12-01T00:00:00Z"}
func (h *ProblemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req problemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	files := make([]model.ProjectFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = model.ProjectFile{Name: f.Name, URL: f.URL, Size: f.Size, Type: f.Type}
	}

	problem, err := h.problems.Create(r.Context(), userID, service.ProblemInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Budget:       req.Budget,
		Deadline:     req.Deadline,
		CompanyName:  req.CompanyName,
		ContactEmail: req.ContactEmail,
		Files:        files,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, problem)
}

// HandleGet returns one problem statement.
//
// HTTP: GET /api/problems/{id}
func (h *ProblemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	problem, err := h.problems.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

// HandleList returns problem statements newest first.
//
// HTTP: GET /api/problems?company=abc&category=ai-ml&status=active&limit=20&offset=0
func (h *ProblemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	problems, err := h.problems.List(r.Context(), repository.ProblemFilter{
		CompanyID:   q.Get("company"),
		Category:    q.Get("category"),
		Status:      model.ProblemStatus(q.Get("status")),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, problems)
}
