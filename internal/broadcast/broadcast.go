package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published for every session.
const (
	EventElementCreated   = "element_created"
	EventElementUpdated   = "element_updated"
	EventElementModerated = "element_moderated"
	EventModerationConfig = "moderation_config"
	EventParticipantJoin  = "participant_joined"
	EventParticipantLeave = "participant_left"
	EventVote             = "vote"
	EventUnvote           = "unvote"
	EventSyncRequest      = "sync_request"
	EventSyncState        = "sync_state"
)

// Event is one message on a session channel. Origin is the instance that
// published it so that an instance can skip its own events.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type Handler func(Event)

// Broadcaster propagates session events to every subscriber of the session,
// possibly across processes.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID, eventType string, payload any) error
	Subscribe(sessionID string, h Handler) (unsubscribe func())
	Close() error
}

func newEvent(origin, sessionID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Origin:    origin,
		Payload:   raw,
		At:        time.Now().UTC(),
	}, nil
}

// registry holds per-session handlers; shared by both implementations.
type registry struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[uint64]Handler)}
}

func (r *registry) add(sessionID string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if r.subs[sessionID] == nil {
		r.subs[sessionID] = make(map[uint64]Handler)
	}
	r.subs[sessionID][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[sessionID], id)
			if len(r.subs[sessionID]) == 0 {
				delete(r.subs, sessionID)
			}
		})
	}
}

// dispatch calls handlers outside the lock so a handler may unsubscribe.
func (r *registry) dispatch(ev Event) int {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.subs[ev.SessionID]))
	for _, h := range r.subs[ev.SessionID] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// Local delivers events to subscribers in the same process. It is used when
// no Redis is configured and by tests.
type Local struct {
	origin string
	reg    *registry
}

func NewLocal(origin string) *Local {
	return &Local{origin: origin, reg: newRegistry()}
}

// WithOrigin returns a Local that shares l's subscribers but stamps its events
// with origin. Several in-process instances can then share one bus.
func (l *Local) WithOrigin(origin string) *Local {
	return &Local{origin: origin, reg: l.reg}
}

func (l *Local) Publish(ctx context.Context, sessionID, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := newEvent(l.origin, sessionID, eventType, payload)
	if err != nil {
		return err
	}
	l.reg.dispatch(ev)
	return nil
}

func (l *Local) Subscribe(sessionID string, h Handler) func() {
	return l.reg.add(sessionID, h)
}

func (l *Local) Close() error { return nil }
