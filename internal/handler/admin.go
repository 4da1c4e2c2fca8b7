package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/skillboard/internal/auth"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/service"
)

type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

type adjustmentRequest struct {
	UserID string `json:"userId" validate:"required"`
	Delta  int64  `json:"delta"  validate:"ne=0"`
	Note   string `json:"note"   validate:"required,max=500"`
}

// HandleAdjust applies a manual score correction.
//
// HTTP: POST /api/admin/adjustments
// Auth: admin
// REQUEST BODY: {"userId":"abc","delta":-50,"note":"duplicate upload"}
func (h *AdminHandler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req adjustmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	score, err := h.admin.Adjust(r.Context(), p.Role, p.UserID, req.UserID, req.Delta, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// HandleActivities lists the audit trail, newest first.
//
// HTTP: GET /api/admin/activities?user=abc&subject=def&type=score_adjusted&limit=20
// Auth: admin
func (h *AdminHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	activities, err := h.admin.Activities(r.Context(), p.Role, repository.ActivityFilter{
		UserID:      q.Get("user"),
		SubjectID:   q.Get("subject"),
		Type:        model.ActivityType(q.Get("type")),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}
