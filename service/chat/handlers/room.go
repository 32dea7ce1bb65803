package handlers

import (
	"encoding/json"

	"PPGateway/service/chat"
)

const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventUserIsTyping = "user_is_typing"
)

type RoomReq struct {
	ChatID string `json:"chatId" validate:"required"`
}

// JoinRoomHandler subscribes the socket to a chat's room traffic. Access to
// the chat was settled by the call that produced its id.
type JoinRoomHandler struct{}

func NewJoinRoomHandler() chat.Handler   { return &JoinRoomHandler{} }
func (h *JoinRoomHandler) Event() string { return EventJoinRoom }
func (h *JoinRoomHandler) Inline() bool  { return true }

func (h *JoinRoomHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[RoomReq](data)
	if err != nil {
		return err
	}
	c.Join(req.ChatID)
	return nil
}

type LeaveRoomHandler struct{}

func NewLeaveRoomHandler() chat.Handler   { return &LeaveRoomHandler{} }
func (h *LeaveRoomHandler) Event() string { return EventLeaveRoom }
func (h *LeaveRoomHandler) Inline() bool  { return true }

func (h *LeaveRoomHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[RoomReq](data)
	if err != nil {
		return err
	}
	c.Leave(req.ChatID)
	return nil
}

type TypingReq struct {
	ChatID   string `json:"chatId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type Typing struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// TypingHandler tells the rest of the room, never the sender.
type TypingHandler struct{}

func NewTypingHandler() chat.Handler   { return &TypingHandler{} }
func (h *TypingHandler) Event() string { return EventUserIsTyping }
func (h *TypingHandler) Inline() bool  { return true }

func (h *TypingHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[TypingReq](data)
	if err != nil {
		return err
	}
	return c.ToRoomOthers(req.ChatID, EventUserIsTyping, Typing{UserID: c.UserID(), IsTyping: req.IsTyping})
}
