package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/middleware"
	"PPGateway/service/relay"
	"PPGateway/tools/ids"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// IDGenerator issues socket ids unique across the cluster.
type IDGenerator interface {
	NextString() string
}

type Deps struct {
	WS             config.WSConfig
	AllowedOrigins []string
	NodeID         string

	Presence Presence
	RPC      RPC
	Relay    relay.Relay    // nil = single node
	Stream   PresenceStream // nil = no presence stream
	IDs      IDGenerator
}

// Server owns this node's websocket connections.
type Server struct {
	conf     config.WSConfig
	nodeID   string
	upgrader websocket.Upgrader

	hub    *Hub
	router *Router
	disp   *Dispatcher
	relay  relay.Relay

	presence Presence
	rpc      RPC
	stream   PresenceStream
	ids      IDGenerator

	presenceTimeout time.Duration

	conns    sync.WaitGroup // one per HandleWS
	inflight sync.WaitGroup // one per running async handler
}

func NewServer(d Deps, disp *Dispatcher) *Server {
	conf := normalizeWS(d.WS)
	if d.Relay == nil {
		d.Relay = relay.Noop{}
	}
	if d.Stream == nil {
		d.Stream = noopStream{}
	}
	if d.IDs == nil {
		d.IDs = ids.NewGenerator(0)
	}
	if disp == nil {
		disp = NewDispatcher()
	}
	hub := NewHub()
	origins := d.AllowedOrigins
	return &Server{
		conf:   conf,
		nodeID: d.NodeID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  conf.ReadBufferSize,
			WriteBufferSize: conf.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(origins, r.Header.Get("Origin"))
			},
		},
		hub:             hub,
		router:          NewRouter(hub, d.Relay),
		disp:            disp,
		relay:           d.Relay,
		presence:        d.Presence,
		rpc:             d.RPC,
		stream:          d.Stream,
		ids:             d.IDs,
		presenceTimeout: 3 * time.Second,
	}
}

func normalizeWS(c config.WSConfig) config.WSConfig {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4096
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

func (s *Server) Hub() *Hub                 { return s.hub }
func (s *Server) Router() *Router           { return s.router }
func (s *Server) Disp() *Dispatcher         { return s.disp }
func (s *Server) WSConfig() config.WSConfig { return s.conf }

// Start subscribes to room and global traffic published by other nodes.
func (s *Server) Start(ctx context.Context) error {
	if err := s.relay.Subscribe(ctx, s.router.OnRelay); err != nil {
		return err
	}
	logger.Info("[chat] gateway started", zap.String("node", s.nodeID), zap.Strings("events", s.disp.Events()))
	return nil
}

// Shutdown closes every client and waits for connection teardown and
// running handlers until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, c := range s.hub.All() {
		c.Close()
	}
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) announceStatus(ctx context.Context, userID, status string) {
	_, err := s.router.Deliver(ctx, OutboundEvent{
		Name:   EventUserStatusUpdated,
		Data:   UserStatus{UserID: userID, Status: status},
		Target: ToAll(),
	})
	if err != nil {
		logger.Warn("[chat] status broadcast failed", zap.String("user", userID), zap.String("status", status), zap.Error(err))
	}
	s.stream.PresenceChanged(ctx, userID, status)
}

// presenceCtx bounds a presence store call independently of the
// connection; a disconnect must still clean up.
func (s *Server) presenceCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.presenceTimeout)
}

type noopStream struct{}

func (noopStream) PresenceChanged(context.Context, string, string) {}
