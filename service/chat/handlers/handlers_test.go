package handlers_test

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"PPGateway/service/chat"
	"PPGateway/service/chat/chattest"
	"PPGateway/service/chat/handlers"
	"PPGateway/service/kafka"
	"PPGateway/service/rpc"
	"PPGateway/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, fake *chattest.FakeRPC) *chattest.Env {
	t.Helper()
	d := chat.NewDispatcher()
	handlers.Register(d)
	return chattest.New(t, d, chattest.Options{RPC: fake})
}

// online dials userID and waits for its own online broadcast.
func online(t *testing.T, env *chattest.Env, userID string) *chattest.Conn {
	t.Helper()
	c := env.Dial(t, userID)
	c.Until(t, chat.EventUserStatusUpdated, nil)
	return c
}

const marker = "__marker"

// quiet requires that nothing is queued for c. An unknown event is
// answered on the read loop without touching presence or rooms.
func quiet(t *testing.T, c *chattest.Conn) {
	t.Helper()
	c.Emit(t, marker, nil)
	var ex chat.ExceptionPayload
	c.Expect(t, chat.EventException, &ex)
	require.Equal(t, marker, ex.Event)
}

// flush discards everything queued for c so far.
func flush(t *testing.T, c *chattest.Conn) {
	t.Helper()
	c.Emit(t, marker, nil)
	for {
		f := c.Next(t)
		if f.Event == chat.EventException {
			var ex chat.ExceptionPayload
			require.NoError(t, json.Unmarshal(f.Data, &ex))
			if ex.Event == marker {
				return
			}
		}
	}
}

func joined(t *testing.T, c *chattest.Conn, chatID string) {
	t.Helper()
	c.Emit(t, handlers.EventJoinRoom, map[string]string{"chatId": chatID})
	quiet(t, c)
}

// payloadOf decodes the JSON payload the gateway sent for call.
func payloadOf(t *testing.T, call *rpc.Call) map[string]any {
	t.Helper()
	b, err := json.Marshal(call.Payload)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestRegister_AllEvents(t *testing.T) {
	d := chat.NewDispatcher()
	handlers.Register(d)
	assert.ElementsMatch(t, []string{
		"user_status_change", "heartbeat", "create_or_get_chat", "get_all_chats",
		"join_room", "leave_room", "load_chat_messages", "send_message",
		"send_message_with_file", "mark_messages_read", "edit_message",
		"delete_message", "get_unread_messages_count", "user_is_typing",
	}, d.Events())
}

func TestPageLimit(t *testing.T) {
	assert.Equal(t, 50, handlers.PageLimit(0))
	assert.Equal(t, 50, handlers.PageLimit(-3))
	assert.Equal(t, 20, handlers.PageLimit(20))
	assert.Equal(t, 100, handlers.PageLimit(100))
	assert.Equal(t, 100, handlers.PageLimit(1000))
}

func TestCreateOrGetChat_NewChatNotifiesEveryone(t *testing.T) {
	var mu sync.Mutex
	var gotUser string
	fake := (&chattest.FakeRPC{}).On("chat.create_or_get_chat", func(call *rpc.Call) (any, error) {
		mu.Lock()
		gotUser = call.UserID
		mu.Unlock()
		return map[string]any{
			"chat":       map[string]any{"id": "c1", "participants": []string{"alice", "bob"}},
			"isNewChat":  true,
			"receiverId": "bob",
		}, nil
	})
	env := newEnv(t, fake)
	bob := online(t, env, "bob")
	alice := online(t, env, "alice")
	bob.Until(t, chat.EventUserStatusUpdated, nil)

	alice.Emit(t, handlers.EventCreateOrGetChat, map[string]string{"username": "bob", "requestId": "r1"})

	var ready struct {
		Chat      map[string]any `json:"chat"`
		RequestID string         `json:"requestId"`
	}
	alice.Expect(t, handlers.EventChatReady, &ready)
	assert.Equal(t, "r1", ready.RequestID)
	assert.Equal(t, "c1", ready.Chat["id"])

	var note handlers.NotifyNewChat
	bob.Expect(t, handlers.EventNotifyNewChat, &note)
	assert.Equal(t, "bob", note.ReceiverID)
	alice.Expect(t, handlers.EventNotifyNewChat, nil)

	mu.Lock()
	assert.Equal(t, "alice", gotUser)
	mu.Unlock()
}

func TestCreateOrGetChat_ExistingChatRepliesOnly(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("chat.create_or_get_chat", func(*rpc.Call) (any, error) {
		return map[string]any{"chat": map[string]any{"id": "c1"}, "isNewChat": false}, nil
	})
	env := newEnv(t, fake)
	bob := online(t, env, "bob")
	alice := online(t, env, "alice")
	bob.Until(t, chat.EventUserStatusUpdated, nil)

	alice.Emit(t, handlers.EventCreateOrGetChat, map[string]string{"username": "bob", "requestId": "r2"})
	alice.Expect(t, handlers.EventChatReady, nil)
	quiet(t, alice)
	quiet(t, bob)
}

func TestGetAllChats_UsesSessionUser(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("chat.get_all_chats", func(*rpc.Call) (any, error) {
		return []map[string]string{{"id": "c1"}, {"id": "c2"}}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	alice.Emit(t, handlers.EventGetAllChats, map[string]string{"userId": "mallory"})
	var list []map[string]string
	alice.Expect(t, handlers.EventChatsList, &list)
	assert.Len(t, list, 2)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].UserID)
	assert.Equal(t, "alice", payloadOf(t, &calls[0])["userId"])
}

func TestGetAllChats_EmptyReplyIsEmptyList(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	alice := online(t, env, "alice")
	alice.Emit(t, handlers.EventGetAllChats, nil)
	f := alice.Next(t)
	assert.Equal(t, handlers.EventChatsList, f.Event)
	assert.JSONEq(t, `[]`, string(f.Data))
}

func TestLoadChatMessages_Pagination(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.get_chat_messages", func(*rpc.Call) (any, error) {
		return map[string]any{"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}}, "total": 5}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	var page handlers.ChatMessagesLoaded
	alice.Emit(t, handlers.EventLoadChatMessages, map[string]any{"chatId": "abc", "requestMessagesId": "q1"})
	alice.Expect(t, handlers.EventChatMessagesLoaded, &page)
	assert.Equal(t, "abc", page.ChatID)
	assert.Equal(t, "q1", page.RequestMessagesID)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)

	alice.Emit(t, handlers.EventLoadChatMessages, map[string]any{"chatId": "abc", "requestMessagesId": "q2", "limit": 500, "offset": 3})
	alice.Expect(t, handlers.EventChatMessagesLoaded, &page)
	assert.False(t, page.HasMore)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.EqualValues(t, 50, payloadOf(t, &calls[0])["limit"])
	assert.EqualValues(t, 100, payloadOf(t, &calls[1])["limit"])
	assert.EqualValues(t, 3, payloadOf(t, &calls[1])["offset"])
}

func TestLoadChatMessages_Invalid(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	alice := online(t, env, "alice")
	alice.Emit(t, handlers.EventLoadChatMessages, map[string]any{"chatId": "abc", "offset": -1})

	var ve chat.ValidationErrorPayload
	alice.Expect(t, chat.EventValidationError, &ve)
	fields := map[string]bool{}
	for _, f := range ve.Errors {
		fields[f.Field] = true
	}
	assert.True(t, fields["offset"])
	assert.True(t, fields["requestMessagesId"])
}

func TestSendMessage_RoomAndNotification(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "m1", "content": "hi"}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	bob := online(t, env, "bob")
	carol := online(t, env, "carol")
	flush(t, alice)
	flush(t, bob)

	joined(t, alice, "abc")
	joined(t, bob, "abc")

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "hi"})

	for _, c := range []*chattest.Conn{alice, bob} {
		var msg map[string]string
		c.Expect(t, handlers.EventNewMessage, &msg)
		assert.Equal(t, "m1", msg["id"])
		var note handlers.NewMessageNotice
		c.Expect(t, handlers.EventNewMessageNotice, &note)
		assert.Equal(t, "abc", note.ChatID)
		assert.Equal(t, "alice", note.SenderID)
		quiet(t, c)
	}
	carol.Expect(t, handlers.EventNewMessageNotice, nil)
	quiet(t, carol)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	p := payloadOf(t, &calls[0])
	assert.Equal(t, "alice", p["userId"])
	assert.Equal(t, "hi", p["content"])
}

func TestSendMessage_RequestsKeepArrivalOrder(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "m"}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	const n = 200
	for i := 0; i < n; i++ {
		alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": strconv.Itoa(i)})
	}
	require.Eventually(t, func() bool { return len(fake.Calls()) == n }, 5*time.Second, 10*time.Millisecond)

	calls := fake.Calls()
	for i := range calls {
		require.Equal(t, strconv.Itoa(i), payloadOf(t, &calls[i])["content"], "call %d", i)
	}
}

func TestSendMessage_SlowReplyDoesNotHoldNextRequest(t *testing.T) {
	release := make(chan struct{})
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(call *rpc.Call) (any, error) {
		b, _ := json.Marshal(call.Payload)
		var p struct{ Content string }
		_ = json.Unmarshal(b, &p)
		if p.Content == "slow" {
			<-release
		}
		return map[string]string{"id": p.Content}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "slow"})
	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "fast"})
	require.Eventually(t, func() bool { return len(fake.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)

	var note handlers.NewMessageNotice
	alice.Until(t, handlers.EventNewMessageNotice, &note)
	assert.JSONEq(t, `{"id":"fast"}`, string(note.Message))
	close(release)
	alice.Until(t, handlers.EventNewMessageNotice, &note)
	assert.JSONEq(t, `{"id":"slow"}`, string(note.Message))
}

func TestSendMessage_ValidationErrorKeepsConnection(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "m2"}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	joined(t, alice, "abc")

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc"})
	var ve chat.ValidationErrorPayload
	alice.Expect(t, chat.EventValidationError, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "content", ve.Errors[0].Field)
	assert.Equal(t, map[string]any{"chatId": "abc"}, ve.OriginalData)
	assert.Empty(t, fake.Calls())

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "again"})
	alice.Expect(t, handlers.EventNewMessage, nil)
}

func TestSendMessage_TimeoutIsScopedAndNotBroadcast(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(*rpc.Call) (any, error) {
		return nil, errs.ErrUpstreamTimeout.WrapMsg("rpc", "method", "message.create_message")
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	bob := online(t, env, "bob")
	alice.Until(t, chat.EventUserStatusUpdated, nil)
	joined(t, alice, "abc")
	joined(t, bob, "abc")

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "hi"})
	var ex chat.ExceptionPayload
	alice.Expect(t, chat.EventException, &ex)
	assert.Equal(t, handlers.EventSendMessage, ex.Event)
	assert.Equal(t, errs.CodeUpstreamTimeout, ex.Code)
	quiet(t, bob)
}

func TestSendMessageWithFile(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message_with_file", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "f1"}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	joined(t, alice, "abc")

	alice.Emit(t, handlers.EventSendMessageWithFile, map[string]any{
		"chatId": "abc",
		"file":   map[string]any{"name": "a.png", "type": "png", "data": "***", "width": -1},
	})
	var ve chat.ValidationErrorPayload
	alice.Expect(t, chat.EventValidationError, &ve)
	fields := map[string]bool{}
	for _, f := range ve.Errors {
		fields[f.Field] = true
	}
	assert.Equal(t, map[string]bool{"file.type": true, "file.data": true, "file.width": true}, fields)

	alice.Emit(t, handlers.EventSendMessageWithFile, map[string]any{
		"chatId": "abc",
		"file":   map[string]any{"name": "a.png", "type": "image/png", "data": "aGVsbG8=", "width": 10, "height": 20},
	})
	alice.Expect(t, handlers.EventNewMessage, nil)
	alice.Expect(t, handlers.EventNewMessageNotice, nil)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	file := payloadOf(t, &calls[0])["file"].(map[string]any)
	assert.Equal(t, "image/png", file["type"])
	assert.EqualValues(t, 20, file["height"])
}

func TestRoomEvents(t *testing.T) {
	fake := &chattest.FakeRPC{}
	fake.On("message.mark_messages_as_read", func(*rpc.Call) (any, error) {
		return []map[string]string{{"id": "m1", "readBy": "bob"}}, nil
	})
	fake.On("message.edit_message", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "m1", "content": "edited"}, nil
	})
	fake.On("message.delete_message", func(*rpc.Call) (any, error) {
		return map[string]bool{"ok": true}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	bob := online(t, env, "bob")
	alice.Until(t, chat.EventUserStatusUpdated, nil)
	joined(t, alice, "abc")
	joined(t, bob, "abc")

	bob.Emit(t, handlers.EventMarkMessagesRead, map[string]any{"chatId": "abc", "messageIds": []string{"m1"}})
	var read handlers.MessagesMarkedRead
	alice.Expect(t, handlers.EventMessagesMarkedRead, &read)
	assert.Equal(t, "bob", read.UserID)
	assert.Equal(t, "abc", read.ChatID)
	bob.Expect(t, handlers.EventMessagesMarkedRead, nil)

	alice.Emit(t, handlers.EventEditMessage, map[string]string{"messageId": "m1", "chatId": "abc", "content": "edited"})
	var edited map[string]string
	bob.Expect(t, handlers.EventEditedMessage, &edited)
	assert.Equal(t, "edited", edited["content"])
	alice.Expect(t, handlers.EventEditedMessage, nil)

	alice.Emit(t, handlers.EventDeleteMessage, map[string]string{"messageId": "m1", "chatId": "abc"})
	var deleted handlers.DeletedMessage
	bob.Expect(t, handlers.EventDeletedMessage, &deleted)
	assert.Equal(t, handlers.DeletedMessage{MessageID: "m1", ChatID: "abc"}, deleted)
	alice.Expect(t, handlers.EventDeletedMessage, nil)

	bob.Emit(t, handlers.EventMarkMessagesRead, map[string]any{"chatId": "abc", "messageIds": []string{}})
	bob.Expect(t, chat.EventValidationError, nil)
}

func TestUpstreamErrorPassesCodeThrough(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.edit_message", func(*rpc.Call) (any, error) {
		return nil, &errs.UpstreamError{Method: "message.edit_message", Code: "FORBIDDEN", Message: "not your message"}
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	alice.Emit(t, handlers.EventEditMessage, map[string]string{"messageId": "m1", "chatId": "abc", "content": "x"})
	var ex chat.ExceptionPayload
	alice.Expect(t, chat.EventException, &ex)
	assert.Equal(t, chat.ExceptionPayload{Event: "edit_message", Code: "FORBIDDEN", Message: "not your message"}, ex)
}

func TestUnreadCount(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.get_unread_messages_count", func(*rpc.Call) (any, error) {
		return map[string]int{"count": 7}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")

	alice.Emit(t, handlers.EventGetUnreadCount, map[string]string{"chatId": "abc"})
	var uc handlers.UnreadCount
	alice.Expect(t, handlers.EventUnreadCount, &uc)
	assert.Equal(t, handlers.UnreadCount{ChatID: "abc", Count: 7}, uc)
}

func TestTyping_ExcludesSender(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	alice := online(t, env, "alice")
	bob := online(t, env, "bob")
	alice.Until(t, chat.EventUserStatusUpdated, nil)
	joined(t, alice, "abc")
	joined(t, bob, "abc")

	alice.Emit(t, handlers.EventUserIsTyping, map[string]any{"chatId": "abc", "isTyping": true})
	var typing handlers.Typing
	bob.Expect(t, handlers.EventUserIsTyping, &typing)
	assert.Equal(t, handlers.Typing{UserID: "alice", IsTyping: true}, typing)
	quiet(t, alice)
}

func TestLeaveRoom_StopsDelivery(t *testing.T) {
	fake := (&chattest.FakeRPC{}).On("message.create_message", func(*rpc.Call) (any, error) {
		return map[string]string{"id": "m1"}, nil
	})
	env := newEnv(t, fake)
	alice := online(t, env, "alice")
	bob := online(t, env, "bob")
	alice.Until(t, chat.EventUserStatusUpdated, nil)
	joined(t, alice, "abc")
	joined(t, bob, "abc")

	bob.Emit(t, handlers.EventLeaveRoom, map[string]string{"chatId": "abc"})
	quiet(t, bob)

	alice.Emit(t, handlers.EventSendMessage, map[string]string{"chatId": "abc", "content": "hi"})
	alice.Expect(t, handlers.EventNewMessage, nil)
	bob.Expect(t, handlers.EventNewMessageNotice, nil)
	quiet(t, bob)
}

func TestUserStatusChange(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	bob := online(t, env, "bob")
	alice := online(t, env, "alice")

	var st chat.UserStatus
	bob.Expect(t, chat.EventUserStatusUpdated, &st)
	assert.Equal(t, "online", st.Status)

	alice.Emit(t, handlers.EventUserStatusChange, map[string]string{"status": "offline"})
	bob.Expect(t, chat.EventUserStatusUpdated, &st)
	assert.Equal(t, chat.UserStatus{UserID: "alice", Status: "offline"}, st)
	alice.Expect(t, chat.EventUserStatusUpdated, nil)

	// repeating it is not a transition
	alice.Emit(t, handlers.EventUserStatusChange, map[string]string{"status": "offline"})
	quiet(t, alice)
	quiet(t, bob)

	alice.Emit(t, handlers.EventUserStatusChange, map[string]string{"status": "online"})
	bob.Expect(t, chat.EventUserStatusUpdated, &st)
	assert.Equal(t, chat.UserStatus{UserID: "alice", Status: "online"}, st)

	alice.Emit(t, handlers.EventUserStatusChange, map[string]string{"status": "away"})
	alice.Until(t, chat.EventValidationError, nil)
}

func TestHeartbeat_NoDuplicateBroadcast(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	bob := online(t, env, "bob")
	alice := online(t, env, "alice")
	bob.Until(t, chat.EventUserStatusUpdated, nil)

	for i := 0; i < 3; i++ {
		alice.Emit(t, handlers.EventHeartbeat, nil)
		var ack handlers.HeartbeatAck
		alice.Expect(t, handlers.EventHeartbeatAck, &ack)
		assert.NotZero(t, ack.TS)
	}
	quiet(t, alice)
	quiet(t, bob)
}

func TestHeartbeat_RestoresExpiredStatus(t *testing.T) {
	env := newEnv(t, &chattest.FakeRPC{})
	bob := online(t, env, "bob")
	alice := online(t, env, "alice")
	bob.Until(t, chat.EventUserStatusUpdated, nil)

	// status key expires silently; nobody is told
	env.Redis.Del("user:alice")
	quiet(t, bob)

	alice.Emit(t, handlers.EventHeartbeat, nil)
	var st chat.UserStatus
	bob.Expect(t, chat.EventUserStatusUpdated, &st)
	assert.Equal(t, chat.UserStatus{UserID: "alice", Status: "online"}, st)
}

// stuckProducer never accepts input, like a producer stalled on an
// unreachable broker.
type stuckProducer struct {
	sarama.AsyncProducer
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func (s *stuckProducer) Input() chan<- *sarama.ProducerMessage { return s.input }
func (s *stuckProducer) Errors() <-chan *sarama.ProducerError  { return s.errors }
func (s *stuckProducer) AsyncClose()                           { close(s.errors) }

func TestHeartbeat_AckedWhilePresenceStreamStalls(t *testing.T) {
	stream := kafka.NewPresenceProducer(&stuckProducer{
		input:  make(chan *sarama.ProducerMessage),
		errors: make(chan *sarama.ProducerError),
	}, "gateway.presence", "node-test")
	t.Cleanup(func() { _ = stream.Close() })

	d := chat.NewDispatcher()
	handlers.Register(d)
	env := chattest.New(t, d, chattest.Options{RPC: &chattest.FakeRPC{}, Stream: stream})
	alice := online(t, env, "alice")

	// the expired status makes the heartbeat publish a transition as well
	env.Redis.Del("user:alice")
	start := time.Now()
	alice.Emit(t, handlers.EventHeartbeat, nil)
	alice.Until(t, handlers.EventHeartbeatAck, nil)
	assert.Less(t, time.Since(start), time.Second)
}
