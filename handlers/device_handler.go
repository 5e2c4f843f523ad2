package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"whiteboardAPI/internal/notification"
)

// DeviceHandler registers push tokens for moderation alerts.
type DeviceHandler struct {
	devices notification.DeviceStore
	log     *zap.Logger
}

func NewDeviceHandler(devices notification.DeviceStore, log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, log: log}
}

func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var tok notification.DeviceToken
	if err := decodeAndValidate(r, &tok); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}

	if err := h.devices.Register(r.Context(), userID, tok); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.devices.Unregister(r.Context(), userID, mux.Vars(r)["token"]); err != nil {
		respondWithAppError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
