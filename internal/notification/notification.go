package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"
)

type DeviceToken struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// Alert tells a session's moderators that an element needs review.
type Alert struct {
	SessionID string
	ElementID string
	AuthorID  string
	Status    string
	Reason    string
	Excerpt   string
}

const maxExcerpt = 80

func (a Alert) Title() string {
	return "Whiteboard content needs review"
}

func (a Alert) Body() string {
	excerpt := a.Excerpt
	if utf8.RuneCountInString(excerpt) > maxExcerpt {
		excerpt = string([]rune(excerpt)[:maxExcerpt]) + "…"
	}
	if excerpt == "" {
		return fmt.Sprintf("An element was marked %s (%s).", a.Status, a.Reason)
	}
	return fmt.Sprintf("%q was marked %s (%s).", excerpt, a.Status, a.Reason)
}

func (a Alert) Data() map[string]string {
	return map[string]string{
		"type":      "moderation_alert",
		"sessionId": a.SessionID,
		"elementId": a.ElementID,
		"authorId":  a.AuthorID,
		"status":    a.Status,
		"reason":    a.Reason,
	}
}

// DeviceStore keeps the push tokens each user registered. Devices is the
// in-memory implementation; the Postgres repository is used when a database
// is configured.
type DeviceStore interface {
	Register(ctx context.Context, userID string, tok DeviceToken) error
	Unregister(ctx context.Context, userID, token string) error
	TokensFor(ctx context.Context, userIDs []string) ([]DeviceToken, error)
}

type Devices struct {
	mu     sync.RWMutex
	byUser map[string]map[string]DeviceToken
}

var _ DeviceStore = (*Devices)(nil)

func NewDevices() *Devices {
	return &Devices{byUser: make(map[string]map[string]DeviceToken)}
}

func (d *Devices) Register(_ context.Context, userID string, tok DeviceToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.byUser[userID] == nil {
		d.byUser[userID] = make(map[string]DeviceToken)
	}
	d.byUser[userID][tok.Token] = tok
	return nil
}

func (d *Devices) Unregister(_ context.Context, userID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byUser[userID], token)
	return nil
}

// TokensFor returns the de-duplicated tokens of all given users.
func (d *Devices) TokensFor(_ context.Context, userIDs []string) ([]DeviceToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []DeviceToken
	for _, id := range userIDs {
		for token, tok := range d.byUser[id] {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}
