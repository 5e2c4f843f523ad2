package services

import (
	"sort"
	"sync"
)

// Authorizer answers isModerator for a participant in a session. The session
// host moderates their own board; configured ids moderate every board.
type Authorizer struct {
	mu         sync.RWMutex
	moderators map[string]struct{}
	hosts      map[string]string
}

func NewAuthorizer(moderatorIDs []string) *Authorizer {
	a := &Authorizer{
		moderators: make(map[string]struct{}, len(moderatorIDs)),
		hosts:      make(map[string]string),
	}
	for _, id := range moderatorIDs {
		a.moderators[id] = struct{}{}
	}
	return a
}

func (a *Authorizer) SetHost(sessionID, hostID string) {
	a.mu.Lock()
	a.hosts[sessionID] = hostID
	a.mu.Unlock()
}

func (a *Authorizer) IsModerator(participantID, sessionID string) bool {
	if participantID == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.moderators[participantID]; ok {
		return true
	}
	return a.hosts[sessionID] == participantID
}

// ModeratorsOf lists everyone who moderates sessionID.
func (a *Authorizer) ModeratorsOf(sessionID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.moderators)+1)
	for id := range a.moderators {
		ids = append(ids, id)
	}
	if host, ok := a.hosts[sessionID]; ok {
		if _, dup := a.moderators[host]; !dup {
			ids = append(ids, host)
		}
	}
	sort.Strings(ids)
	return ids
}
