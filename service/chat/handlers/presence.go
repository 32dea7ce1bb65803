package handlers

import (
	"encoding/json"
	"time"

	"PPGateway/service/chat"
)

const (
	EventUserStatusChange = "user_status_change"
	EventHeartbeat        = "heartbeat"
	EventHeartbeatAck     = "heartbeat_ack"
)

type StatusChangeReq struct {
	Status string `json:"status" validate:"required,oneof=online offline"`
}

// UserStatusHandler lets a socket mark itself away or back. Going offline
// drops only this socket from presence, so the user is announced offline
// only when it was the last one.
type UserStatusHandler struct{}

func NewUserStatusHandler() chat.Handler   { return &UserStatusHandler{} }
func (h *UserStatusHandler) Event() string { return EventUserStatusChange }
func (h *UserStatusHandler) Inline() bool  { return true }

func (h *UserStatusHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[StatusChangeReq](data)
	if err != nil {
		return err
	}
	ctx, cancel := presenceCtx(c)
	defer cancel()

	switch req.Status {
	case chat.StatusOffline:
		wentOffline, err := c.Presence().RemoveConnection(ctx, c.UserID(), c.SocketID())
		if err != nil {
			return err
		}
		if wentOffline {
			c.AnnounceStatus(chat.StatusOffline)
		}
	default:
		created, err := c.Presence().RefreshTTL(ctx, c.UserID(), c.SocketID())
		if err != nil {
			return err
		}
		if created {
			c.AnnounceStatus(chat.StatusOnline)
		}
	}
	return nil
}

type HeartbeatAck struct {
	TS int64 `json:"ts"`
}

// HeartbeatHandler re-arms the presence TTLs. A user whose status had
// silently expired is announced online again.
type HeartbeatHandler struct{}

func NewHeartbeatHandler() chat.Handler   { return &HeartbeatHandler{} }
func (h *HeartbeatHandler) Event() string { return EventHeartbeat }
func (h *HeartbeatHandler) Inline() bool  { return true }

func (h *HeartbeatHandler) Handle(c *chat.Context, _ json.RawMessage) error {
	ctx, cancel := presenceCtx(c)
	defer cancel()
	created, err := c.Presence().RefreshTTL(ctx, c.UserID(), c.SocketID())
	if err != nil {
		return err
	}
	if created {
		c.AnnounceStatus(chat.StatusOnline)
	}
	return c.Reply(EventHeartbeatAck, HeartbeatAck{TS: time.Now().UnixMilli()})
}
