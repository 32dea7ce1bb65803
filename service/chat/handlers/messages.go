package handlers

import (
	"encoding/json"
	"time"

	"PPGateway/service/chat"
)

const (
	EventLoadChatMessages    = "load_chat_messages"
	EventChatMessagesLoaded  = "chat_messages_loaded"
	EventSendMessage         = "send_message"
	EventSendMessageWithFile = "send_message_with_file"
	EventNewMessage          = "new_message"
	EventNewMessageNotice    = "new_message_notification"
	EventMarkMessagesRead    = "mark_messages_read"
	EventMessagesMarkedRead  = "messages_marked_read"
	EventEditMessage         = "edit_message"
	EventEditedMessage       = "edited_message"
	EventDeleteMessage       = "delete_message"
	EventDeletedMessage      = "deleted_message"
	EventGetUnreadCount      = "get_unread_messages_count"
	EventUnreadCount         = "unread_messages_count"
)

// message service methods
const (
	methodGetChatMessages       = "get_chat_messages"
	methodCreateMessage         = "create_message"
	methodCreateMessageWithFile = "create_message_with_file"
	methodMarkMessagesAsRead    = "mark_messages_as_read"
	methodEditMessage           = "edit_message"
	methodDeleteMessage         = "delete_message"
	methodGetUnreadCount        = "get_unread_messages_count"
)

const (
	messageTimeout     = 5 * time.Second
	fileMessageTimeout = 15 * time.Second
	unreadTimeout      = 3 * time.Second

	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// ---- load_chat_messages ----

type LoadChatMessagesReq struct {
	ChatID            string `json:"chatId" validate:"required"`
	Limit             int    `json:"limit" validate:"gte=0"`
	Offset            int    `json:"offset" validate:"gte=0"`
	RequestMessagesID string `json:"requestMessagesId" validate:"required"`
}

type pageArgs struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type pageReply struct {
	Messages []json.RawMessage `json:"messages"`
	Total    int               `json:"total"`
}

type ChatMessagesLoaded struct {
	ChatID            string            `json:"chatId"`
	RequestMessagesID string            `json:"requestMessagesId"`
	Messages          []json.RawMessage `json:"messages"`
	Total             int               `json:"total"`
	HasMore           bool              `json:"hasMore"`
}

// PageLimit applies the default and the cap to a requested page size.
func PageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	}
	return limit
}

type LoadChatMessagesHandler struct{}

func NewLoadChatMessagesHandler() chat.Handler   { return &LoadChatMessagesHandler{} }
func (h *LoadChatMessagesHandler) Event() string { return EventLoadChatMessages }
func (h *LoadChatMessagesHandler) Inline() bool  { return false }

func (h *LoadChatMessagesHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[LoadChatMessagesReq](data)
	if err != nil {
		return err
	}
	args := pageArgs{UserID: c.UserID(), ChatID: req.ChatID, Limit: PageLimit(req.Limit), Offset: req.Offset}
	var page pageReply
	if err := call(c, ServiceMessage, methodGetChatMessages, messageTimeout, args, &page); err != nil {
		return err
	}
	if page.Messages == nil {
		page.Messages = []json.RawMessage{}
	}
	return c.Reply(EventChatMessagesLoaded, ChatMessagesLoaded{
		ChatID:            req.ChatID,
		RequestMessagesID: req.RequestMessagesID,
		Messages:          page.Messages,
		Total:             page.Total,
		HasMore:           args.Offset+len(page.Messages) < page.Total,
	})
}

// ---- send_message / send_message_with_file ----

type SendMessageReq struct {
	ChatID  string `json:"chatId" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type FileReq struct {
	Name   string `json:"name" validate:"required"`
	Type   string `json:"type" validate:"required,contains=/"`
	Data   string `json:"data" validate:"required,base64"`
	Width  int    `json:"width" validate:"gte=0"`
	Height int    `json:"height" validate:"gte=0"`
}

type SendMessageWithFileReq struct {
	ChatID  string  `json:"chatId" validate:"required"`
	Content string  `json:"content"`
	File    FileReq `json:"file"`
}

type sendArgs struct {
	UserID  string   `json:"userId"`
	ChatID  string   `json:"chatId"`
	Content string   `json:"content"`
	File    *FileReq `json:"file,omitempty"`
}

type NewMessageNotice struct {
	ChatID   string          `json:"chatId"`
	SenderID string          `json:"senderId"`
	Message  json.RawMessage `json:"message"`
}

// publishNewMessage runs only after the message service stored the message.
func publishNewMessage(c *chat.Context, chatID string, msg json.RawMessage) error {
	msg = nullIfEmpty(msg)
	if err := c.ToRoom(chatID, EventNewMessage, msg); err != nil {
		return err
	}
	return c.Broadcast(EventNewMessageNotice, NewMessageNotice{ChatID: chatID, SenderID: c.UserID(), Message: msg})
}

type SendMessageHandler struct{}

func NewSendMessageHandler() chat.Handler   { return &SendMessageHandler{} }
func (h *SendMessageHandler) Event() string { return EventSendMessage }
func (h *SendMessageHandler) Inline() bool  { return false }

func (h *SendMessageHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[SendMessageReq](data)
	if err != nil {
		return err
	}
	var msg json.RawMessage
	args := sendArgs{UserID: c.UserID(), ChatID: req.ChatID, Content: req.Content}
	if err := call(c, ServiceMessage, methodCreateMessage, messageTimeout, args, &msg); err != nil {
		return err
	}
	return publishNewMessage(c, req.ChatID, msg)
}

type SendMessageWithFileHandler struct{}

func NewSendMessageWithFileHandler() chat.Handler   { return &SendMessageWithFileHandler{} }
func (h *SendMessageWithFileHandler) Event() string { return EventSendMessageWithFile }
func (h *SendMessageWithFileHandler) Inline() bool  { return false }

func (h *SendMessageWithFileHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[SendMessageWithFileReq](data)
	if err != nil {
		return err
	}
	var msg json.RawMessage
	args := sendArgs{UserID: c.UserID(), ChatID: req.ChatID, Content: req.Content, File: &req.File}
	if err := call(c, ServiceMessage, methodCreateMessageWithFile, fileMessageTimeout, args, &msg); err != nil {
		return err
	}
	return publishNewMessage(c, req.ChatID, msg)
}

// ---- mark_messages_read ----

type MarkMessagesReadReq struct {
	ChatID     string   `json:"chatId" validate:"required"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,required"`
}

type markReadArgs struct {
	UserID     string   `json:"userId"`
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

type MessagesMarkedRead struct {
	ChatID   string          `json:"chatId"`
	Messages json.RawMessage `json:"messages"`
	UserID   string          `json:"userId"`
}

type MarkMessagesReadHandler struct{}

func NewMarkMessagesReadHandler() chat.Handler   { return &MarkMessagesReadHandler{} }
func (h *MarkMessagesReadHandler) Event() string { return EventMarkMessagesRead }
func (h *MarkMessagesReadHandler) Inline() bool  { return false }

func (h *MarkMessagesReadHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[MarkMessagesReadReq](data)
	if err != nil {
		return err
	}
	var msgs json.RawMessage
	args := markReadArgs{UserID: c.UserID(), ChatID: req.ChatID, MessageIDs: req.MessageIDs}
	if err := call(c, ServiceMessage, methodMarkMessagesAsRead, messageTimeout, args, &msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		msgs = json.RawMessage("[]")
	}
	return c.ToRoom(req.ChatID, EventMessagesMarkedRead, MessagesMarkedRead{ChatID: req.ChatID, Messages: msgs, UserID: c.UserID()})
}

// ---- edit_message / delete_message ----

type EditMessageReq struct {
	MessageID string `json:"messageId" validate:"required"`
	ChatID    string `json:"chatId" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type editArgs struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
}

type EditMessageHandler struct{}

func NewEditMessageHandler() chat.Handler   { return &EditMessageHandler{} }
func (h *EditMessageHandler) Event() string { return EventEditMessage }
func (h *EditMessageHandler) Inline() bool  { return false }

func (h *EditMessageHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[EditMessageReq](data)
	if err != nil {
		return err
	}
	var msg json.RawMessage
	args := editArgs{UserID: c.UserID(), MessageID: req.MessageID, ChatID: req.ChatID, Content: req.Content}
	if err := call(c, ServiceMessage, methodEditMessage, messageTimeout, args, &msg); err != nil {
		return err
	}
	return c.ToRoom(req.ChatID, EventEditedMessage, nullIfEmpty(msg))
}

type DeleteMessageReq struct {
	MessageID string `json:"messageId" validate:"required"`
	ChatID    string `json:"chatId" validate:"required"`
}

type deleteArgs struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type DeletedMessage struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type DeleteMessageHandler struct{}

func NewDeleteMessageHandler() chat.Handler   { return &DeleteMessageHandler{} }
func (h *DeleteMessageHandler) Event() string { return EventDeleteMessage }
func (h *DeleteMessageHandler) Inline() bool  { return false }

func (h *DeleteMessageHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[DeleteMessageReq](data)
	if err != nil {
		return err
	}
	args := deleteArgs{UserID: c.UserID(), MessageID: req.MessageID, ChatID: req.ChatID}
	if err := call(c, ServiceMessage, methodDeleteMessage, messageTimeout, args, nil); err != nil {
		return err
	}
	return c.ToRoom(req.ChatID, EventDeletedMessage, DeletedMessage{MessageID: req.MessageID, ChatID: req.ChatID})
}

// ---- get_unread_messages_count ----

type UnreadCountReq struct {
	ChatID string `json:"chatId" validate:"required"`
}

type chatArgs struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type UnreadCount struct {
	ChatID string `json:"chatId"`
	Count  int    `json:"count"`
}

type UnreadCountHandler struct{}

func NewUnreadCountHandler() chat.Handler   { return &UnreadCountHandler{} }
func (h *UnreadCountHandler) Event() string { return EventGetUnreadCount }
func (h *UnreadCountHandler) Inline() bool  { return false }

func (h *UnreadCountHandler) Handle(c *chat.Context, data json.RawMessage) error {
	req, err := chat.Bind[UnreadCountReq](data)
	if err != nil {
		return err
	}
	var reply struct {
		Count int `json:"count"`
	}
	if err := call(c, ServiceMessage, methodGetUnreadCount, unreadTimeout, chatArgs{UserID: c.UserID(), ChatID: req.ChatID}, &reply); err != nil {
		return err
	}
	return c.Reply(EventUnreadCount, UnreadCount{ChatID: req.ChatID, Count: reply.Count})
}
