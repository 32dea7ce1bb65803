// Package relay carries room and global broadcasts between gateway
// instances so a client connected to node A sees events emitted on node B.
//
// Every envelope is stamped with the publishing node; receivers drop their
// own envelopes because the local delivery already happened.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one broadcast. Exactly one of Room or All selects the
// audience; Except names a socket that must not receive it.
type Envelope struct {
	NodeID string          `json:"nodeId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Room   string          `json:"room,omitempty"`
	All    bool            `json:"all,omitempty"`
	Except string          `json:"except,omitempty"`
}

// Handler receives envelopes published by other nodes.
type Handler func(Envelope)

type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe starts delivery to h. It may be called once.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Deps carries the shared connections a driver may need.
type Deps struct {
	Redis redis.UniversalClient
	Nats  NatsConn
}

// New builds the driver selected by cfg.Driver.
func New(cfg config.RelayConfig, nodeID string, deps Deps) (Relay, error) {
	switch cfg.Driver {
	case config.RelayNone, "":
		return Noop{}, nil
	case config.RelayNats:
		if deps.Nats == nil {
			return nil, fmt.Errorf("relay: nats driver needs a nats connection")
		}
		return NewNatsRelay(deps.Nats, cfg.Subject, nodeID), nil
	case config.RelayRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("relay: redis driver needs a redis client")
		}
		return NewRedisRelay(deps.Redis, cfg.Subject, nodeID), nil
	default:
		return nil, fmt.Errorf("relay: unsupported driver %q", cfg.Driver)
	}
}

// accept decodes raw and hands it to h unless it came from self.
func accept(raw []byte, self string, h Handler) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warn("[relay] drop undecodable envelope", zap.Error(err))
		return
	}
	if env.NodeID == self {
		return
	}
	h(env)
}

// Noop is the single-instance relay.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error  { return nil }
func (Noop) Subscribe(context.Context, Handler) error { return nil }
func (Noop) Close() error                             { return nil }
