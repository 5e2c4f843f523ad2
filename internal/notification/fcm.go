package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type FCMService struct {
	client *messaging.Client
	log    *zap.Logger
}

// NewFCMService prefers base64 encoded service account JSON and falls back to
// a key file on disk.
func NewFCMService(ctx context.Context, credentialsJSON, localFilePath string, log *zap.Logger) (*FCMService, error) {
	var opt option.ClientOption

	if credentialsJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(credentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode FCM service account JSON: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Info("fcm: using credentials from config")
	} else {
		if _, err := os.Stat(localFilePath); err != nil {
			return nil, fmt.Errorf("firebase credentials file %s: %w", localFilePath, err)
		}
		opt = option.WithCredentialsFile(localFilePath)
		log.Info("fcm: using credentials file", zap.String("path", localFilePath))
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return &FCMService{client: client, log: log}, nil
}

// SendPush sends one message per token. The batch endpoint is not used.
func (s *FCMService) SendPush(ctx context.Context, tokens []DeviceToken, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}

	sent, failed := 0, 0
	for _, tok := range tokens {
		msg := &messaging.Message{
			Token:        tok.Token,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
		}
		switch tok.Platform {
		case "ios":
			msg.APNS = &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
			}
		default:
			msg.Android = &messaging.AndroidConfig{
				Priority:     "high",
				Notification: &messaging.AndroidNotification{Sound: "default"},
			}
		}

		if _, err := s.client.Send(ctx, msg); err != nil {
			s.log.Warn("fcm: send failed", zap.String("platform", tok.Platform), zap.Error(err))
			failed++
			continue
		}
		sent++
	}

	s.log.Debug("fcm: push finished", zap.Int("sent", sent), zap.Int("failed", failed))
	if sent == 0 && failed > 0 {
		return errors.New("all push notifications failed")
	}
	return nil
}
