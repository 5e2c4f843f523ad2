package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WhiteboardHandler struct {
	manager *services.WhiteboardManager
	invites *services.InviteService
	log     *zap.Logger

	messagesPerSecond float64
	messageBurst      int
}

func NewWhiteboardHandler(manager *services.WhiteboardManager, invites *services.InviteService, messagesPerSecond float64, messageBurst int, log *zap.Logger) *WhiteboardHandler {
	return &WhiteboardHandler{
		manager:           manager,
		invites:           invites,
		log:               log,
		messagesPerSecond: messagesPerSecond,
		messageBurst:      messageBurst,
	}
}

type createWhiteboardRequest struct {
	Title string `json:"title" validate:"max=120"`
}

type createWhiteboardResponse struct {
	services.SessionInfo
	WsURL string `json:"wsUrl"`
}

func (h *WhiteboardHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	s, err := h.manager.GetSession(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return nil, false
	}
	return s, true
}

func (h *WhiteboardHandler) CreateWhiteboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createWhiteboardRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	s, err := h.manager.CreateSession(ctx, userID, req.Title)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, createWhiteboardResponse{
		SessionInfo: s.Info(),
		WsURL:       "/api/v1/whiteboards/ws/" + s.ID,
	})
}

func (h *WhiteboardHandler) ListWhiteboards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.manager.ListSessions(ctx)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sessions)
}

func (h *WhiteboardHandler) GetWhiteboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, s.Info())
}

func (h *WhiteboardHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	invite, err := h.invites.Invite(s.ID)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, invite)
}

func (h *WhiteboardHandler) ListElements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, s.Elements(userID))
}

func (h *WhiteboardHandler) GetElement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Element(userID, mux.Vars(r)["elementID"])
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *WhiteboardHandler) CreateElement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var draft element.Draft
	if err := decodeAndValidate(r, &draft); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	el, err := s.CreateElement(ctx, userID, draft)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, el)
}

func (h *WhiteboardHandler) UpdateElement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch element.Patch
	if err := decodeAndValidate(r, &patch); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	el, err := s.UpdateElement(ctx, userID, mux.Vars(r)["elementID"], patch)
	if err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, el)
}

// JoinWhiteboard upgrades to a websocket and attaches the caller to the session hub.
func (h *WhiteboardHandler) JoinWhiteboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("could not upgrade connection", zap.Error(err))
		return
	}

	client := services.NewClient(s, conn, userID, h.messagesPerSecond, h.messageBurst)
	if err := client.Attach(); err != nil {
		h.log.Warn("session closed during join", zap.String("session_id", s.ID), zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session restarting"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
