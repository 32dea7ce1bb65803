package main

import (
	"context"
	"hash/fnv"
	"net/http"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	mid "PPGateway/middleware"
	"PPGateway/middleware/security"
	"PPGateway/module/user"
	"PPGateway/service/chat"
	"PPGateway/service/chat/handlers"
	"PPGateway/service/health"
	"PPGateway/service/kafka"
	"PPGateway/service/natsx"
	"PPGateway/service/presence"
	"PPGateway/service/relay"
	"PPGateway/service/rpc"
	"PPGateway/service/session"
	pstore "PPGateway/service/storage/redis"
	"PPGateway/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dialTimeout     = 5 * time.Second
	shutdownTimeout = 15 * time.Second
	healthTimeout   = 2 * time.Second
	slowCall        = time.Second
)

type presenceStream interface {
	chat.PresenceStream
	Close() error
}

// gateway owns every long-lived resource of one node.
type gateway struct {
	cfg    *config.AppConfig
	nodeID string

	rdb    *redis.Client
	nc     *natsx.NatsxClient
	relay  relay.Relay
	stream presenceStream
	chat   *chat.Server
	health *health.Server
	http   *http.Server
}

func newGateway(ctx context.Context, cfg *config.AppConfig) (*gateway, error) {
	g := &gateway{cfg: cfg, nodeID: cfg.NodeID}
	if g.nodeID == "" {
		g.nodeID = uuid.NewString()
	}
	ready := false
	defer func() {
		if !ready {
			g.close()
		}
	}()

	var err error
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if g.rdb, err = pstore.NewClient(dctx, cfg.Redis); err != nil {
		return nil, err
	}
	if g.nc, err = natsx.NewNatsxClient(cfg.Nats, natsx.NatsxRecover(), natsx.NatsxLog(slowCall)); err != nil {
		return nil, err
	}
	if g.relay, err = relay.New(cfg.Relay, g.nodeID, relay.Deps{Redis: g.rdb, Nats: g.nc}); err != nil {
		return nil, err
	}
	g.stream = kafka.Noop{}
	if cfg.KafkaEnabled() {
		pp, err := kafka.Dial(cfg.Kafka, g.nodeID)
		if err != nil {
			return nil, err
		}
		g.stream = pp
	}

	tracker := presence.NewTracker(g.rdb, presence.Config{
		StatusTTL:  cfg.Presence.StatusTTL,
		SocketsTTL: cfg.Presence.SocketsTTL,
	})
	disp := chat.NewDispatcher()
	handlers.Register(disp)
	g.chat = chat.NewServer(chat.Deps{
		WS:             cfg.WS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		NodeID:         g.nodeID,
		Presence:       tracker,
		RPC:            rpc.NewBridge(g.nc, cfg.RPC, rpc.LogMiddleware(slowCall)),
		Relay:          g.relay,
		Stream:         g.stream,
		IDs:            ids.NewGenerator(nodeBits(g.nodeID)),
	}, disp)

	if cfg.Health.GRPCAddr != "" {
		if g.health, err = health.Listen(cfg.Health.GRPCAddr); err != nil {
			return nil, err
		}
	}
	g.http = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           g.routes(tracker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ready = true
	return g, nil
}

func (g *gateway) routes(tracker *presence.Tracker) http.Handler {
	sessions := session.NewValidator(g.rdb, g.cfg.Session.KeyPrefix)
	wsAuth := security.Middleware(sessions, &security.Options{CookieName: g.cfg.Session.CookieName})
	apiAuth := security.Middleware(sessions, &security.Options{CookieName: g.cfg.Session.CookieName, Abort: true})

	guards := mid.NewManager()
	guards.Add(mid.Origin(g.cfg.HTTP.AllowedOrigins))

	r := gin.New()
	r.Use(mid.Recovery(), mid.ReqLog(), guards.Use())

	r.GET(g.cfg.HTTP.WSPath, wsAuth, g.chat.HandleWS)
	r.GET("/healthz", health.Handler(healthTimeout,
		health.Check{Name: "redis", Fn: func(ctx context.Context) error { return pstore.Ping(ctx, g.rdb) }},
		health.Check{Name: "nats", Fn: func(context.Context) error {
			if !g.nc.Connected() {
				return errors.New("nats not connected")
			}
			return nil
		}},
	))
	user.Register(r.Group("/api"), mid.Routes{Auth: apiAuth}, tracker)
	return r
}

// run serves until ctx is done, then shuts down.
func (g *gateway) run(ctx context.Context) error {
	if err := g.chat.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[HTTP] listening", zap.String("addr", g.cfg.HTTP.Addr), zap.String("node", g.nodeID))
		if err := g.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http serve")
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	g.shutdown()
	return serveErr
}

func (g *gateway) shutdown() {
	logger.Info("[gateway] shutting down", zap.String("node", g.nodeID))
	if g.health != nil {
		g.health.SetServing(false)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := g.http.Shutdown(ctx); err != nil {
		logger.Warn("[HTTP] shutdown", zap.Error(err))
	}
	if err := g.chat.Shutdown(ctx); err != nil {
		logger.Warn("[gateway] chat shutdown", zap.Error(err))
	}
	g.close()
}

// close releases connections in reverse dial order. Nil fields are skipped.
func (g *gateway) close() {
	if g.health != nil {
		g.health.Stop()
	}
	if g.relay != nil {
		_ = g.relay.Close()
	}
	if g.stream != nil {
		_ = g.stream.Close()
	}
	if g.nc != nil {
		_ = g.nc.Close()
	}
	if g.rdb != nil {
		_ = g.rdb.Close()
	}
}

// nodeBits hashes the node id into the socket id generator's node field.
func nodeBits(nodeID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(nodeID))
	return int64(h.Sum32())
}
