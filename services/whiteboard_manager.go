package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whiteboardAPI/internal/broadcast"
	"whiteboardAPI/internal/metrics"
)

// WhiteboardManager holds every session that is live on this instance.
// Sessions that are not in memory are loaded from the repository on demand.
type WhiteboardManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	deps     SessionDeps
}

func NewWhiteboardManager(deps SessionDeps) *WhiteboardManager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Repo == nil {
		deps.Repo = NewMemoryRepository()
	}
	if deps.Authz == nil {
		deps.Authz = NewAuthorizer(nil)
	}
	if deps.InstanceID == "" {
		deps.InstanceID = uuid.NewString()
	}
	if deps.Bus == nil {
		deps.Bus = broadcast.NewLocal(deps.InstanceID)
	}
	deps.DefaultModeration = deps.DefaultModeration.Normalized()
	return &WhiteboardManager{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

func (m *WhiteboardManager) CreateSession(ctx context.Context, hostID, title string) (*Session, error) {
	info := SessionInfo{
		ID:         uuid.NewString(),
		HostID:     hostID,
		Title:      strings.TrimSpace(title),
		Moderation: m.deps.DefaultModeration,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.deps.Repo.SaveSession(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s, err := newSession(info, nil, m)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[info.ID] = s
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.deps.Log.Info("whiteboard session created", zap.String("session_id", info.ID), zap.String("host_id", hostID))
	return s, nil
}

// GetSession returns the live session, loading it and its elements from the
// repository when this instance has not seen it yet.
func (m *WhiteboardManager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	info, err := m.deps.Repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	elements, err := m.deps.Repo.LoadElements(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load elements: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s, nil
	}
	s, err = newSession(info, elements, m)
	if err != nil {
		return nil, err
	}
	m.sessions[sessionID] = s
	metrics.ActiveSessions.Inc()
	m.deps.Log.Info("whiteboard session loaded", zap.String("session_id", sessionID), zap.Int("elements", len(elements)))
	return s, nil
}

type SessionSummary struct {
	SessionInfo
	Live         bool `json:"live"`
	Participants int  `json:"participants"`
}

func (m *WhiteboardManager) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	infos, err := m.deps.Repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionSummary, 0, len(infos))
	for _, info := range infos {
		summary := SessionSummary{SessionInfo: info}
		if s, ok := m.sessions[info.ID]; ok {
			summary.SessionInfo = s.Info()
			summary.Live = true
			summary.Participants = s.Filters().Participants
		}
		out = append(out, summary)
	}
	return out, nil
}

// evict removes an empty session. It is called from the session's Run loop.
func (m *WhiteboardManager) evict(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[s.ID]; !ok || current != s {
		return false
	}
	delete(m.sessions, s.ID)
	metrics.ActiveSessions.Dec()
	return true
}

// Shutdown stops every live session, waiting for pending moderation verdicts
// to be persisted.
func (m *WhiteboardManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}
