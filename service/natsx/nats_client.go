package natsx

import (
	"strings"
	"sync"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NatsxClient wraps one core NATS connection shared by the RPC bridge and
// the broadcast relay. JetStream is not used: RPC is request/reply and the
// relay is fire-and-forget.
type NatsxClient struct {
	nc  *nats.Conn
	mws []NatsxMiddleware

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNatsxClient connects to cfg.Servers. Subscribe handlers are wrapped with
// mws in order.
func NewNatsxClient(cfg config.NatsConfig, mws ...NatsxMiddleware) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("[natsx] disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("[natsx] reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("[natsx] async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	logger.Info("[natsx] connected", zap.String("url", nc.ConnectedUrl()))
	return &NatsxClient{nc: nc, mws: mws}, nil
}

// Close drains subscriptions then the connection.
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
	c.mu.Unlock()
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

// Connected reports whether the connection is currently up.
func (c *NatsxClient) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}
