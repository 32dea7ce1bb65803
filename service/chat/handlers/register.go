package handlers

import "PPGateway/service/chat"

// All returns one handler per inbound event.
func All() []chat.Handler {
	return []chat.Handler{
		NewUserStatusHandler(),
		NewHeartbeatHandler(),
		NewJoinRoomHandler(),
		NewLeaveRoomHandler(),
		NewTypingHandler(),
		NewCreateOrGetChatHandler(),
		NewGetAllChatsHandler(),
		NewLoadChatMessagesHandler(),
		NewSendMessageHandler(),
		NewSendMessageWithFileHandler(),
		NewMarkMessagesReadHandler(),
		NewEditMessageHandler(),
		NewDeleteMessageHandler(),
		NewUnreadCountHandler(),
	}
}

func Register(d *chat.Dispatcher) { d.Register(All()...) }
