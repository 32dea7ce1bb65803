package handlers

import (
	"encoding/json"
	"time"

	"PPGateway/service/chat"
)

const (
	EventCreateOrGetChat = "create_or_get_chat"
	EventChatReady       = "chat_ready"
	EventNotifyNewChat   = "notify_new_chat"
	EventGetAllChats     = "get_all_chats"
	EventChatsList       = "chats_list"
)

// The chat service may have to look the other user up in the user service.
const (
	createOrGetChatTimeout = 10 * time.Second
	getAllChatsTimeout     = 5 * time.Second
)

type CreateOrGetChatReq struct {
	Username  string `json:"username" validate:"required"`
	RequestID string `json:"requestId" validate:"required"`
}

type createOrGetChatArgs struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type createOrGetChatReply struct {
	Chat       json.RawMessage `json:"chat"`
	IsNewChat  bool            `json:"isNewChat"`
	ReceiverID string          `json:"receiverId"`
}

type ChatReady struct {
	Chat      json.RawMessage `json:"chat"`
	RequestID string          `json:"requestId"`
}

type NotifyNewChat struct {
	ReceiverID string `json:"receiverId"`
}

type CreateOrGetChatHandler struct{}

func NewCreateOrGetChatHandler() chat.Handler   { return &CreateOrGetChatHandler{} }
func (h *CreateOrGetChatHandler) Event() string { return EventCreateOrGetChat }
func (h *CreateOrGetChatHandler) Inline() bool  { return false }

func (h *CreateOrGetChatHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[CreateOrGetChatReq](data)
	if err != nil {
		return err
	}
	var reply createOrGetChatReply
	err = call(c, ServiceChat, EventCreateOrGetChat, createOrGetChatTimeout,
		createOrGetChatArgs{UserID: c.UserID(), Username: req.Username}, &reply)
	if err != nil {
		return err
	}
	if err := c.Reply(EventChatReady, ChatReady{Chat: nullIfEmpty(reply.Chat), RequestID: req.RequestID}); err != nil {
		return err
	}
	if reply.IsNewChat {
		return c.Broadcast(EventNotifyNewChat, NotifyNewChat{ReceiverID: reply.ReceiverID})
	}
	return nil
}

type userArgs struct {
	UserID string `json:"userId"`
}

type GetAllChatsHandler struct{}

func NewGetAllChatsHandler() chat.Handler   { return &GetAllChatsHandler{} }
func (h *GetAllChatsHandler) Event() string { return EventGetAllChats }
func (h *GetAllChatsHandler) Inline() bool  { return false }

func (h *GetAllChatsHandler) Handle(c *chat.Context, _ json.RawMessage) error {
	var chats json.RawMessage
	if err := call(c, ServiceChat, EventGetAllChats, getAllChatsTimeout, userArgs{UserID: c.UserID()}, &chats); err != nil {
		return err
	}
	if len(chats) == 0 || string(chats) == "null" {
		chats = json.RawMessage("[]")
	}
	return c.Reply(EventChatsList, chats)
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
