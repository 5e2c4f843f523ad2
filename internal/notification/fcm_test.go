package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFCMService_RejectsUndecodableCredentials(t *testing.T) {
	_, err := NewFCMService(context.Background(), "not base64!", "", zap.NewNop())
	require.ErrorContains(t, err, "decode FCM service account JSON")
}

func TestNewFCMService_MissingKeyFile(t *testing.T) {
	_, err := NewFCMService(context.Background(), "", t.TempDir()+"/missing.json", zap.NewNop())
	require.ErrorContains(t, err, "firebase credentials file")
}
