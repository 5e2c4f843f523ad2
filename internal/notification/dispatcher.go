package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type PushProvider interface {
	SendPush(ctx context.Context, tokens []DeviceToken, title, body string, data map[string]string) error
}

// Recipients resolves the users that moderate a session.
type Recipients func(sessionID string) []string

// Dispatcher sends moderation alerts on a small worker pool so that flagging
// never waits on FCM.
type Dispatcher struct {
	devices    DeviceStore
	recipients Recipients
	log        *zap.Logger

	mu           sync.RWMutex
	pushProvider PushProvider
	stopped      bool

	jobQueue chan Alert
	wg       sync.WaitGroup
}

func NewDispatcher(devices DeviceStore, recipients Recipients, log *zap.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	d := &Dispatcher{
		devices:    devices,
		recipients: recipients,
		log:        log.With(zap.String("module", "notification")),
		jobQueue:   make(chan Alert, 100),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// SetPushProvider injects FCM from main.go. Without one alerts are only logged.
func (d *Dispatcher) SetPushProvider(p PushProvider) {
	d.mu.Lock()
	d.pushProvider = p
	d.mu.Unlock()
}

// Dispatch queues the alert and reports whether it was accepted.
func (d *Dispatcher) Dispatch(a Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	select {
	case d.jobQueue <- a:
		return true
	default:
		d.log.Warn("alert queue full, dropping moderation alert",
			zap.String("session_id", a.SessionID), zap.String("element_id", a.ElementID))
		return false
	}
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for a := range d.jobQueue {
		d.process(a)
	}
}

func (d *Dispatcher) process(a Alert) {
	d.mu.RLock()
	provider := d.pushProvider
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := d.devices.TokensFor(ctx, d.recipients(a.SessionID))
	if err != nil {
		d.log.Warn("could not load moderator devices", zap.String("session_id", a.SessionID), zap.Error(err))
		return
	}
	if provider == nil || len(tokens) == 0 {
		d.log.Info("skipping moderation push",
			zap.String("element_id", a.ElementID),
			zap.Int("tokens", len(tokens)),
			zap.Bool("provider_set", provider != nil),
		)
		return
	}

	if err := provider.SendPush(ctx, tokens, a.Title(), a.Body(), a.Data()); err != nil {
		d.log.Warn("moderation push failed", zap.String("session_id", a.SessionID), zap.Error(err))
	}
}
