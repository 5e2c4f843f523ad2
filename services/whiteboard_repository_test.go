package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
)

func TestMemoryRepository_KeepsNewestVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	v2 := element.Element{ID: "e1", SessionID: "s1", Text: "second", Version: 2, CreatedAt: now, UpdatedAt: now}
	v1 := element.Element{ID: "e1", SessionID: "s1", Text: "first", Version: 1, CreatedAt: now, UpdatedAt: now}

	require.NoError(t, repo.SaveElement(ctx, v2))
	require.NoError(t, repo.SaveElement(ctx, v1))

	got, err := repo.LoadElements(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Text)

	empty, err := repo.LoadElements(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRepository_StaleEditKeepsManualVerdict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	approved := element.Element{
		ID: "e1", SessionID: "s1", Text: "hi", Version: 2, CreatedAt: now, UpdatedAt: now.Add(time.Second),
		ModerationStatus: element.StatusApproved, ModerationEpoch: 2, ModeratedAt: now.Add(time.Second),
	}
	moved := element.Element{
		ID: "e1", SessionID: "s1", Text: "hi", X: 30, Version: 2, CreatedAt: now, UpdatedAt: now.Add(2 * time.Second),
		ModerationStatus: element.StatusPending, ModerationEpoch: 1, ModeratedAt: now,
	}

	require.NoError(t, repo.SaveElement(ctx, approved))
	require.NoError(t, repo.SaveElement(ctx, moved))

	got, err := repo.LoadElements(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, element.StatusApproved, got[0].ModerationStatus)
	assert.Equal(t, 30.0, got[0].X)
}

func TestMemoryRepository_Sessions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.LoadSession(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	older := SessionInfo{ID: "a", HostID: "h", CreatedAt: time.Now().Add(-time.Hour)}
	newer := SessionInfo{ID: "b", HostID: "h", CreatedAt: time.Now()}
	require.NoError(t, repo.SaveSession(ctx, older))
	require.NoError(t, repo.SaveSession(ctx, newer))

	list, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

type failingRepository struct {
	*MemoryRepository
	err error
}

func (f failingRepository) SaveElement(context.Context, element.Element) error { return f.err }

func TestBreakerRepository_OpensAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("connection refused")
	repo := NewBreakerRepository(failingRepository{MemoryRepository: NewMemoryRepository(), err: boom}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, repo.SaveElement(ctx, element.Element{ID: "e"}), boom)
	}
	assert.Equal(t, gobreaker.StateOpen, repo.State())
	assert.ErrorIs(t, repo.SaveElement(ctx, element.Element{ID: "e"}), gobreaker.ErrOpenState)
}

func TestBreakerRepository_NotFoundIsNotAFailure(t *testing.T) {
	repo := NewBreakerRepository(NewMemoryRepository(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := repo.LoadSession(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, repo.State())

	require.NoError(t, repo.SaveSession(ctx, SessionInfo{ID: "s1", HostID: "h"}))
	info, err := repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "h", info.HostID)
}

func TestAuthorizer(t *testing.T) {
	a := NewAuthorizer([]string{"admin"})
	a.SetHost("s1", "host")

	assert.True(t, a.IsModerator("admin", "s1"))
	assert.True(t, a.IsModerator("admin", "s2"))
	assert.True(t, a.IsModerator("host", "s1"))
	assert.False(t, a.IsModerator("host", "s2"))
	assert.False(t, a.IsModerator("guest", "s1"))
	assert.False(t, a.IsModerator("", "s1"))

	assert.Equal(t, []string{"admin", "host"}, a.ModeratorsOf("s1"))
	assert.Equal(t, []string{"admin"}, a.ModeratorsOf("s2"))
}

func TestInviteService(t *testing.T) {
	svc := NewInviteService("https://board.example.com/")

	inv, err := svc.Invite("abc")
	require.NoError(t, err)
	assert.Equal(t, "https://board.example.com/whiteboards/abc", inv.JoinURL)
	assert.Equal(t, "/api/v1/whiteboards/ws/abc", inv.WsURL)

	png, err := base64.StdEncoding.DecodeString(inv.QrCodeBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
