package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// pingTimeout bounds the connectivity probe.
const pingTimeout = 2 * time.Second

// RedisTransport is the push transport: events go out as redis pub/sub
// messages and reach other subscribers near-immediately.
type RedisTransport struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewRedisTransport creates a push transport on the given client.
func NewRedisTransport(client *redis.Client, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{client: client, logger: logger}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, channelName(ev.FamilyID, ev.Kind), payload).Err()
}

func (t *RedisTransport) Subscribe(familyID string, kind Kind, h Handler) (UnsubscribeFunc, error) {
	ps := t.client.Subscribe(context.Background(), channelName(familyID, kind))
	// Force the SUBSCRIBE round trip so a dead backend fails here, not
	// silently in the reader goroutine.
	if _, err := ps.Receive(context.Background()); err != nil {
		ps.Close()
		return nil, err
	}

	t.mu.Lock()
	t.subs = append(t.subs, ps)
	t.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.logger.Warn("dropping malformed sync event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			h(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				t.logger.Debug("closing subscription", zap.Error(err))
			}
		})
	}, nil
}

func (t *RedisTransport) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return t.client.Ping(ctx).Err() == nil
}

func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, ps := range subs {
		ps.Close()
	}
	return t.client.Close()
}
