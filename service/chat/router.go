package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"PPGateway/logger"
	"PPGateway/service/relay"

	"go.uber.org/zap"
)

type TargetKind int

const (
	TargetSocket TargetKind = iota
	TargetRoom
	TargetAll
)

func (k TargetKind) String() string {
	switch k {
	case TargetSocket:
		return "socket"
	case TargetRoom:
		return "room"
	case TargetAll:
		return "all"
	}
	return fmt.Sprintf("TargetKind(%d)", int(k))
}

// Target selects the audience of an OutboundEvent. Except removes one
// socket from a room or global audience.
type Target struct {
	Kind   TargetKind
	Socket string
	Room   string
	Except string
}

func ToSocket(socketID string) Target { return Target{Kind: TargetSocket, Socket: socketID} }
func ToRoom(chatID string) Target     { return Target{Kind: TargetRoom, Room: chatID} }
func ToAll() Target                   { return Target{Kind: TargetAll} }

// Excluding returns t without socketID.
func (t Target) Excluding(socketID string) Target {
	t.Except = socketID
	return t
}

type OutboundEvent struct {
	Name   string
	Data   any
	Target Target
}

// Router delivers outbound events to local sockets and, for room and
// global audiences, to the other gateway nodes through the relay.
type Router struct {
	hub   *Hub
	relay relay.Relay
}

func NewRouter(hub *Hub, rl relay.Relay) *Router {
	if rl == nil {
		rl = relay.Noop{}
	}
	return &Router{hub: hub, relay: rl}
}

// Deliver returns the number of local sockets that accepted the frame. A
// relay failure is logged; local delivery has already happened by then.
func (r *Router) Deliver(ctx context.Context, ev OutboundEvent) (int, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	frame, err := EncodeFrame(ev.Name, json.RawMessage(data))
	if err != nil {
		return 0, err
	}
	n := r.deliverLocal(ev.Target, frame)

	if ev.Target.Kind == TargetSocket {
		return n, nil
	}
	env := relay.Envelope{
		Event:  ev.Name,
		Data:   data,
		Room:   ev.Target.Room,
		All:    ev.Target.Kind == TargetAll,
		Except: ev.Target.Except,
	}
	if err := r.relay.Publish(ctx, env); err != nil {
		logger.Warn("[router] relay publish failed", zap.String("event", ev.Name), zap.String("target", ev.Target.Kind.String()), zap.Error(err))
	}
	return n, nil
}

// OnRelay delivers an envelope received from another node to local sockets.
func (r *Router) OnRelay(env relay.Envelope) {
	frame, err := EncodeFrame(env.Event, env.Data)
	if err != nil {
		logger.Warn("[router] bad relayed envelope", zap.String("event", env.Event), zap.Error(err))
		return
	}
	t := Target{Kind: TargetRoom, Room: env.Room, Except: env.Except}
	if env.All {
		t.Kind = TargetAll
	}
	r.deliverLocal(t, frame)
}

func (r *Router) deliverLocal(t Target, frame []byte) int {
	var clients []*Client
	switch t.Kind {
	case TargetSocket:
		if c := r.hub.Get(t.Socket); c != nil {
			clients = []*Client{c}
		}
	case TargetRoom:
		clients = r.hub.RoomMembers(t.Room)
	case TargetAll:
		clients = r.hub.All()
	}
	n := 0
	for _, c := range clients {
		if c.ID == t.Except {
			continue
		}
		if c.Send(frame) {
			n++
		}
	}
	return n
}
