package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// SessionInfo is the persisted part of a whiteboard session.
type SessionInfo struct {
	ID         string        `json:"sessionId"`
	HostID     string        `json:"hostId"`
	Title      string        `json:"title"`
	Moderation policy.Config `json:"moderation"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// WhiteboardRepository persists sessions and their elements. Elements are
// stored by id; a write is merged into the stored copy with element.Merge.
type WhiteboardRepository interface {
	SaveSession(ctx context.Context, info SessionInfo) error
	LoadSession(ctx context.Context, sessionID string) (SessionInfo, error)
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	SaveElement(ctx context.Context, el element.Element) error
	LoadElements(ctx context.Context, sessionID string) ([]element.Element, error)
}

// MemoryRepository is used when DATABASE_URL is not set, and in tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]SessionInfo
	elements map[string]map[string]element.Element
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]SessionInfo),
		elements: make(map[string]map[string]element.Element),
	}
}

func (m *MemoryRepository) SaveSession(_ context.Context, info SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[info.ID] = info
	return nil
}

func (m *MemoryRepository) LoadSession(_ context.Context, sessionID string) (SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.sessions[sessionID]
	if !ok {
		return SessionInfo{}, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	return info, nil
}

func (m *MemoryRepository) ListSessions(_ context.Context) ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, info := range m.sessions {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) SaveElement(_ context.Context, el element.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession := m.elements[el.SessionID]
	if bySession == nil {
		bySession = make(map[string]element.Element)
		m.elements[el.SessionID] = bySession
	}
	if cur, ok := bySession[el.ID]; ok {
		if merged, changed := element.Merge(cur, el); changed {
			bySession[el.ID] = merged
		}
		return nil
	}
	bySession[el.ID] = el.Clone()
	return nil
}

func (m *MemoryRepository) LoadElements(_ context.Context, sessionID string) ([]element.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]element.Element, 0, len(m.elements[sessionID]))
	for _, el := range m.elements[sessionID] {
		out = append(out, el.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
