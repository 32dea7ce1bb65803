package relay

import (
	"context"
	"encoding/json"
	"sync"

	"PPGateway/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "ppgateway:"

// RedisRelay uses redis Pub/Sub on "ppgateway:<subject>".
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	nodeID  string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRelay(rdb redis.UniversalClient, subject, nodeID string) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: redisChannelPrefix + subject,
		nodeID:  nodeID,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	env.NodeID = r.nodeID
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "relay: encode envelope")
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return errors.Wrapf(err, "relay: publish %s", r.channel)
	}
	return nil
}

// Subscribe blocks until the subscription is confirmed, then delivers in
// a background goroutine until Close.
func (r *RedisRelay) Subscribe(ctx context.Context, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return errors.New("relay: already subscribed")
	}

	ps := r.rdb.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return errors.Wrapf(err, "relay: subscribe %s", r.channel)
	}
	r.pubsub = ps
	r.done = make(chan struct{})

	ch := ps.Channel()
	go func() {
		defer close(r.done)
		for msg := range ch {
			accept([]byte(msg.Payload), r.nodeID, h)
		}
	}()
	logger.Info("[relay] redis subscribed", zap.String("channel", r.channel))
	return nil
}

// Close stops the subscription. The redis client itself is shared and left open.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
