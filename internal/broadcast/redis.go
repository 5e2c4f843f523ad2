package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "whiteboard:session:"

// Redis fans session events out to every API instance through Redis pub/sub.
// Each session has its own channel; one pattern subscription receives them all.
type Redis struct {
	client *redis.Client
	log    *zap.Logger
	origin string
	reg    *registry
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(client *redis.Client, log *zap.Logger, origin string) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Redis{
		client: client,
		log:    log.With(zap.String("module", "broadcast")),
		origin: origin,
		reg:    newRegistry(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.listen()
	return b
}

func channelFor(sessionID string) string { return channelPrefix + sessionID }

func (b *Redis) listen() {
	defer close(b.done)

	pubsub := b.client.PSubscribe(b.ctx, channelPrefix+"*")
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.log.Error("redis pubsub receive error", zap.Error(err))
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.Error("failed to unmarshal session event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if ev.SessionID == "" {
			ev.SessionID = strings.TrimPrefix(msg.Channel, channelPrefix)
		}

		delivered := b.reg.dispatch(ev)
		b.log.Debug("delivered session event",
			zap.String("session_id", ev.SessionID),
			zap.String("event_type", ev.Type),
			zap.String("origin", ev.Origin),
			zap.Int("subscriber_count", delivered),
		)
	}
}

func (b *Redis) Publish(ctx context.Context, sessionID, eventType string, payload any) error {
	ev, err := newEvent(b.origin, sessionID, eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publish %s to redis: %w", eventType, err)
	}
	return nil
}

func (b *Redis) Subscribe(sessionID string, h Handler) func() {
	return b.reg.add(sessionID, h)
}

func (b *Redis) Close() error {
	b.cancel()
	<-b.done
	return nil
}
