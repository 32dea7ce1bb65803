package chat

import (
	"context"
	"encoding/json"

	"PPGateway/service/presence"
	"PPGateway/service/rpc"
	"PPGateway/tools/errs"
)

// Handler serves one inbound event. Inline handlers run on the client's
// read loop and so keep transport order with each other. The rest each run
// on their own goroutine so a slow backend call stalls only that event;
// their backend requests still go out in transport order.
type Handler interface {
	Event() string
	Inline() bool
	Handle(c *Context, data json.RawMessage) error
}

// RPC is the part of *rpc.Bridge handlers use.
type RPC interface {
	Call(ctx context.Context, call *rpc.Call, out any) error
	Emit(ctx context.Context, call *rpc.Call)
}

// Presence is the part of *presence.Tracker the gateway uses.
type Presence interface {
	AddConnection(ctx context.Context, userID, socketID string) (bool, error)
	RemoveConnection(ctx context.Context, userID, socketID string) (bool, error)
	RefreshTTL(ctx context.Context, userID, socketID string) (bool, error)
	GetStatus(ctx context.Context, userID string) (presence.Status, error)
}

// PresenceStream receives every broadcast presence transition.
type PresenceStream interface {
	PresenceChanged(ctx context.Context, userID, status string)
}

// Context is what a handler sees of the gateway for one inbound event.
type Context struct {
	ctx    context.Context
	srv    *Server
	client *Client
	event  string

	prev    <-chan struct{} // closed when the previous async event has sent; nil when first or inline
	release func()          // marks this event's request as sent; safe to call twice
}

func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) Event() string            { return c.event }
func (c *Context) UserID() string           { return c.client.UserID }
func (c *Context) SocketID() string         { return c.client.ID }
func (c *Context) RPC() RPC                 { return orderedRPC{c} }
func (c *Context) Presence() Presence       { return c.srv.presence }

// orderedRPC holds a call until every earlier event of the same socket has
// sent its request, then lets the next one go as soon as this request is out.
type orderedRPC struct{ c *Context }

func (o orderedRPC) Call(ctx context.Context, call *rpc.Call, out any) error {
	if o.c.prev != nil {
		select {
		case <-o.c.prev:
		case <-ctx.Done():
			return errs.ErrUpstreamTimeout.WrapMsg("earlier request still pending", "method", call.Subject())
		}
	}
	if o.c.release == nil {
		return o.c.srv.rpc.Call(ctx, call, out)
	}
	defer o.c.release()
	return o.c.srv.rpc.Call(rpc.WithSent(ctx, o.c.release), call, out)
}

func (o orderedRPC) Emit(ctx context.Context, call *rpc.Call) { o.c.srv.rpc.Emit(ctx, call) }

// Reply sends an event to the calling socket only.
func (c *Context) Reply(event string, data any) error {
	return c.deliver(event, data, ToSocket(c.client.ID))
}

// ToRoom sends an event to every socket that joined chatID, on any node.
func (c *Context) ToRoom(chatID, event string, data any) error {
	return c.deliver(event, data, ToRoom(chatID))
}

// ToRoomOthers is ToRoom without the calling socket.
func (c *Context) ToRoomOthers(chatID, event string, data any) error {
	return c.deliver(event, data, ToRoom(chatID).Excluding(c.client.ID))
}

// Broadcast sends an event to every connected socket, on any node.
func (c *Context) Broadcast(event string, data any) error {
	return c.deliver(event, data, ToAll())
}

func (c *Context) deliver(event string, data any, t Target) error {
	_, err := c.srv.router.Deliver(c.ctx, OutboundEvent{Name: event, Data: data, Target: t})
	return err
}

func (c *Context) Join(chatID string)  { c.srv.hub.Join(c.client, chatID) }
func (c *Context) Leave(chatID string) { c.srv.hub.Leave(c.client, chatID) }

// AnnounceStatus broadcasts user_status_updated for the calling user and
// forwards it to the presence stream.
func (c *Context) AnnounceStatus(status string) {
	c.srv.announceStatus(c.ctx, c.client.UserID, status)
}
