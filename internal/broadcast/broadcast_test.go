package broadcast

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

type votePayload struct {
	ParticipantID string `json:"participantId"`
	FilterID      string `json:"filterId"`
}

func TestLocal_DeliversPerSession(t *testing.T) {
	b := NewLocal("instance-a")
	var s1, s2 collector
	b.Subscribe("s1", s1.handle)
	b.Subscribe("s2", s2.handle)

	require.NoError(t, b.Publish(context.Background(), "s1", EventVote, votePayload{ParticipantID: "p1", FilterID: "sepia"}))

	events := s1.all()
	require.Len(t, events, 1)
	assert.Empty(t, s2.all())

	ev := events[0]
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, EventVote, ev.Type)
	assert.Equal(t, "instance-a", ev.Origin)
	assert.NotEmpty(t, ev.ID)

	var got votePayload
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, votePayload{ParticipantID: "p1", FilterID: "sepia"}, got)
}

func TestLocal_Unsubscribe(t *testing.T) {
	b := NewLocal("instance-a")
	var c collector
	unsubscribe := b.Subscribe("s1", c.handle)

	unsubscribe()
	unsubscribe()
	require.NoError(t, b.Publish(context.Background(), "s1", EventUnvote, nil))

	assert.Empty(t, c.all())
}

func TestLocal_HandlerMayUnsubscribeItself(t *testing.T) {
	b := NewLocal("instance-a")
	calls := 0
	var unsubscribe func()
	unsubscribe = b.Subscribe("s1", func(Event) {
		calls++
		unsubscribe()
	})

	require.NoError(t, b.Publish(context.Background(), "s1", EventVote, nil))
	require.NoError(t, b.Publish(context.Background(), "s1", EventVote, nil))

	assert.Equal(t, 1, calls)
}

func TestLocal_PublishErrors(t *testing.T) {
	b := NewLocal("instance-a")

	err := b.Publish(context.Background(), "s1", EventVote, make(chan int))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Publish(ctx, "s1", EventVote, nil), context.Canceled)
}

// Runs against a real Redis when REDIS_URL is set.
func TestRedis_FanOutAcrossInstances(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedis(client, zap.NewNop(), "instance-a")
	b := NewRedis(client, zap.NewNop(), "instance-b")
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	var got collector
	b.Subscribe("redis-test", got.handle)
	// PSubscribe is asynchronous; give it a moment to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.Publish(context.Background(), "redis-test", EventVote, votePayload{ParticipantID: "p1", FilterID: "blur"}))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := got.all()[0]
	assert.Equal(t, "instance-a", ev.Origin)
	assert.Equal(t, "redis-test", ev.SessionID)
}

func TestLocal_WithOriginSharesSubscribers(t *testing.T) {
	a := NewLocal("a")
	b := a.WithOrigin("b")
	var got collector
	a.Subscribe("s1", got.handle)

	require.NoError(t, b.Publish(context.Background(), "s1", EventUnvote, votePayload{ParticipantID: "p1"}))

	events := got.all()
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].Origin)
}
