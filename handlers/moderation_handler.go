package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
	"whiteboardAPI/services"
)

type ModerationHandler struct {
	manager *services.WhiteboardManager
	log     *zap.Logger
}

func NewModerationHandler(manager *services.WhiteboardManager, log *zap.Logger) *ModerationHandler {
	return &ModerationHandler{manager: manager, log: log}
}

type moderationConfigRequest struct {
	Enabled         *bool    `json:"enabled" validate:"required"`
	AutoModerate    *bool    `json:"autoModerate" validate:"required"`
	Sensitivity     int      `json:"sensitivity" validate:"min=0,max=100"`
	CustomBlocklist []string `json:"customBlocklist" validate:"max=500,dive,min=1,max=64"`
	CustomAllowlist []string `json:"customAllowlist" validate:"max=500,dive,min=1,max=64"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=profane_language offensive_content unwanted_symbols other"`
}

func (h *ModerationHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, "", false
	}
	s, err := h.manager.GetSession(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return nil, "", false
	}
	return s, userID, true
}

func (h *ModerationHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, s.Config())
}

func (h *ModerationHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s, userID, ok := h.session(w, r)
	if !ok {
		return
	}

	var req moderationConfigRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	cfg, err := s.SetModerationConfig(ctx, userID, policy.Config{
		Enabled:         *req.Enabled,
		AutoModerate:    *req.AutoModerate,
		Sensitivity:     req.Sensitivity,
		CustomBlocklist: req.CustomBlocklist,
		CustomAllowlist: req.CustomAllowlist,
	})
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	s, userID, ok := h.session(w, r)
	if !ok {
		return
	}
	el, err := s.Approve(userID, mux.Vars(r)["elementID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, el)
}

func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	s, userID, ok := h.session(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			respondWithAppError(w, h.log, err)
			return
		}
	}
	reason, err := element.ParseReason(req.Reason)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	el, err := s.Reject(userID, mux.Vars(r)["elementID"], reason)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, el)
}

// ModerateAll classifies every pending element now instead of waiting for the sweeper.
func (h *ModerationHandler) ModerateAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	s, userID, ok := h.session(w, r)
	if !ok {
		return
	}
	summary, err := s.ModerateAll(ctx, userID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
