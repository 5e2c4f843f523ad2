package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"whiteboardAPI/services"
)

type VotingHandler struct {
	manager *services.WhiteboardManager
	log     *zap.Logger
}

func NewVotingHandler(manager *services.WhiteboardManager, log *zap.Logger) *VotingHandler {
	return &VotingHandler{manager: manager, log: log}
}

type voteRequest struct {
	FilterID string `json:"filterId" validate:"required"`
}

func (h *VotingHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.GetSession(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s.Filters())
}

// Vote only counts for users connected to the session over websocket.
func (h *VotingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, err := h.manager.GetSession(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	var req voteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	snap, err := s.Vote(r.Context(), userID, req.FilterID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

func (h *VotingHandler) Unvote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, err := h.manager.GetSession(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	snap, err := s.Unvote(r.Context(), userID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}
