package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/service"
)

type BadgeHandler struct {
	badges *service.BadgeService
	logger *slog.Logger
}

func NewBadgeHandler(badges *service.BadgeService, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, logger: logger}
}

type awardRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Type   model.BadgeType `json:"type"   validate:"required"`
}

// HandleCatalog lists every badge that can be awarded.
//
// HTTP: GET /api/badges
func (h *BadgeHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.badges.Catalog())
}

// HandleAward gives a user a badge.
//
// HTTP: POST /api/badges
// Auth: admin
// REQUEST BODY: {"userId":"abc","type":"mentor"}
func (h *BadgeHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	held, err := h.badges.Award(r.Context(), req.UserID, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, held)
}

// HandleUserBadges lists the badges a user holds.
//
// HTTP: GET /api/users/{id}/badges
func (h *BadgeHandler) HandleUserBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}
