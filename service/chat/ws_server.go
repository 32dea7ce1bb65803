package chat

import (
	"context"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/middleware/security"
	"PPGateway/service/rpc"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// HandleWS upgrades an authenticated request and serves the connection
// until the peer goes away. The security middleware must run first; an
// unauthenticated upgrade is closed with a policy-violation code and no
// event.
func (s *Server) HandleWS(c *gin.Context) {
	userID, authErr := security.UserID(c)

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// not a websocket request or a bad handshake; Upgrade already wrote the HTTP error
		logger.Info("[WS] upgrade failed", zap.Error(err))
		return
	}
	if authErr != nil {
		logger.Info("[WS] reject unauthenticated connection", zap.String("remote", c.ClientIP()), zap.Error(authErr))
		s.reject(ws)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()
	s.serve(ws, userID)
}

func (s *Server) reject(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.conf.WriteWait))
	_ = ws.Close()
}

func (s *Server) serve(ws *websocket.Conn, userID string) {
	client := NewClient(s.ids.NextString(), userID, ws, s.conf.SendQueueSize)
	s.hub.Add(client)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		client.writePump(s.conf)
	}()

	s.onConnect(client)

	client.readPump(s.conf, func(raw []byte) { s.handleFrame(client, raw) })

	s.onDisconnect(client)
	<-pumpDone
}

func (s *Server) onConnect(c *Client) {
	logger.Info("[WS] connected", zap.String("socket", c.ID), zap.String("user", c.UserID))

	ctx, cancel := s.presenceCtx()
	becameOnline, err := s.presence.AddConnection(ctx, c.UserID, c.ID)
	cancel()
	if err != nil {
		logger.Error("[WS] presence add failed", zap.String("socket", c.ID), zap.String("user", c.UserID), zap.Error(err))
	}

	if frame, err := EncodeFrame(EventConnectionSuccess, ConnectionSuccess{SocketID: c.ID, UserID: c.UserID}); err == nil {
		c.Send(frame)
	}
	if becameOnline {
		s.announceStatus(context.Background(), c.UserID, StatusOnline)
	}

	s.rpc.Emit(context.Background(), &rpc.Call{
		Service: "user",
		Method:  "user_last_login",
		UserID:  c.UserID,
		Payload: map[string]string{"userId": c.UserID},
	})
}

func (s *Server) onDisconnect(c *Client) {
	s.hub.Remove(c)
	c.Close()

	ctx, cancel := s.presenceCtx()
	wentOffline, err := s.presence.RemoveConnection(ctx, c.UserID, c.ID)
	cancel()
	if err != nil {
		logger.Error("[WS] presence remove failed", zap.String("socket", c.ID), zap.String("user", c.UserID), zap.Error(err))
	}
	if wentOffline {
		s.announceStatus(context.Background(), c.UserID, StatusOffline)
	}
	logger.Info("[WS] disconnected", zap.String("socket", c.ID), zap.String("user", c.UserID), zap.Bool("offline", wentOffline))
}

// handleFrame runs on the read loop. Inline handlers finish before the next
// frame is read. The others are started here and chained per socket: each
// one's backend request is sent after the previous one's, while replies are
// awaited concurrently and may complete out of order.
func (s *Server) handleFrame(c *Client, raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Info("[WS] bad frame", zap.String("socket", c.ID), zap.Error(err), zap.ByteString("sample", sample), zap.Int("len", len(raw)))
		return
	}

	h, ok := s.disp.GetHandler(f.Event)
	if !ok {
		s.reportError(c, f.Event, errs.ErrUnknownEvent.WrapMsg("no handler", "event", f.Event))
		return
	}

	hc := &Context{ctx: context.Background(), srv: s, client: c, event: f.Event}
	if h.Inline() {
		s.run(hc, h, f)
		return
	}

	mine := make(chan struct{})
	var once sync.Once
	hc.prev, hc.release = c.turn, func() { once.Do(func() { close(mine) }) }
	c.turn = mine

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer hc.release()
		s.run(hc, h, f)
	}()
}

func (s *Server) run(hc *Context, h Handler, f *Frame) {
	defer safe.Recover(func(err error) { s.reportError(hc.client, f.Event, err) })
	if err := h.Handle(hc, f.Data); err != nil {
		s.reportError(hc.client, f.Event, err)
	}
}
