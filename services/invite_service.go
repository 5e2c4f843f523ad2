package services

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

type InviteService struct {
	baseURL string
}

func NewInviteService(publicBaseURL string) *InviteService {
	return &InviteService{baseURL: strings.TrimRight(publicBaseURL, "/")}
}

type InviteResponse struct {
	SessionID    string `json:"sessionId"`
	JoinURL      string `json:"joinUrl"`
	WsURL        string `json:"wsUrl"`
	QrCodeBase64 string `json:"qrCodeBase64"`
}

// Invite renders a QR code that points at the session's join URL.
func (s *InviteService) Invite(sessionID string) (*InviteResponse, error) {
	joinURL := fmt.Sprintf("%s/whiteboards/%s", s.baseURL, url.PathEscape(sessionID))

	pngBytes, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &InviteResponse{
		SessionID:    sessionID,
		JoinURL:      joinURL,
		WsURL:        "/api/v1/whiteboards/ws/" + sessionID,
		QrCodeBase64: base64.StdEncoding.EncodeToString(pngBytes),
	}, nil
}
