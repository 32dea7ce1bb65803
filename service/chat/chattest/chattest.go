// Package chattest runs a gateway on httptest with a miniredis-backed
// session store and presence tracker, for end-to-end websocket tests.
package chattest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PPGateway/global/config"
	"PPGateway/middleware/security"
	"PPGateway/service/chat"
	"PPGateway/service/presence"
	"PPGateway/service/relay"
	"PPGateway/service/rpc"
	"PPGateway/service/session"
	"PPGateway/tools/ids"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	CookieName    = "connect.sid"
	SessionPrefix = "sess:"
	readTimeout   = 2 * time.Second
)

var nextNode atomic.Int64

type Options struct {
	RPC    chat.RPC // default: a *FakeRPC answering every call with empty data
	Relay  relay.Relay
	NodeID string
	Stream chat.PresenceStream
	Redis  *miniredis.Miniredis // share one store between nodes
}

type Env struct {
	Redis    *miniredis.Miniredis
	RDB      *redis.Client
	Presence *presence.Tracker
	Server   *chat.Server
	HTTP     *httptest.Server
}

// New starts a gateway serving disp on /ws. Everything is torn down with t.
func New(t *testing.T, disp *chat.Dispatcher, opts Options) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := opts.Redis
	if mr == nil {
		mr = miniredis.RunT(t)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if opts.RPC == nil {
		opts.RPC = &FakeRPC{}
	}
	if opts.NodeID == "" {
		opts.NodeID = "node-test"
	}

	tracker := presence.NewTracker(rdb, presence.Config{StatusTTL: 30 * time.Second, SocketsTTL: 60 * time.Second})
	srv := chat.NewServer(chat.Deps{
		WS:       config.WSConfig{PingInterval: time.Second, PongWait: 5 * time.Second, WriteWait: time.Second},
		NodeID:   opts.NodeID,
		Presence: tracker,
		RPC:      opts.RPC,
		Relay:    opts.Relay,
		Stream:   opts.Stream,
		IDs:      ids.NewGenerator(nextNode.Add(1) % 1024),
	}, disp)
	require.NoError(t, srv.Start(context.Background()))

	engine := gin.New()
	engine.GET("/ws",
		security.Middleware(session.NewValidator(rdb, SessionPrefix), &security.Options{CookieName: CookieName, Timeout: time.Second}),
		srv.HandleWS)
	ts := httptest.NewServer(engine)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return &Env{Redis: mr, RDB: rdb, Presence: tracker, Server: srv, HTTP: ts}
}

func (e *Env) URL() string {
	return "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/ws"
}

// Login stores a session for userID and returns its cookie header value.
func (e *Env) Login(t *testing.T, userID string) string {
	t.Helper()
	token := "tok-" + userID
	require.NoError(t, e.Redis.Set(SessionPrefix+token, `{"cookie":{},"userId":"`+userID+`"}`))
	return CookieName + "=s%3A" + token + ".signature"
}

// Conn is a test client.
type Conn struct {
	*websocket.Conn
	SocketID string
}

// Dial connects as userID and consumes connection_success.
func (e *Env) Dial(t *testing.T, userID string) *Conn {
	t.Helper()
	h := http.Header{}
	h.Set("Cookie", e.Login(t, userID))
	ws, _, err := websocket.DefaultDialer.Dial(e.URL(), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &Conn{Conn: ws}
	f := c.Next(t)
	require.Equal(t, chat.EventConnectionSuccess, f.Event)
	var cs chat.ConnectionSuccess
	require.NoError(t, json.Unmarshal(f.Data, &cs))
	require.Equal(t, userID, cs.UserID)
	c.SocketID = cs.SocketID
	return c
}

// Emit sends one frame.
func (c *Conn) Emit(t *testing.T, event string, data any) {
	t.Helper()
	b, err := chat.EncodeFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

// Next reads the next frame.
func (c *Conn) Next(t *testing.T) chat.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	var f chat.Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// Expect reads the next frame and requires it to be event.
func (c *Conn) Expect(t *testing.T, event string, out any) {
	t.Helper()
	f := c.Next(t)
	require.Equal(t, event, f.Event, "payload: %s", f.Data)
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Data, out))
	}
}

// Until skips frames until event arrives.
func (c *Conn) Until(t *testing.T, event string, out any) {
	t.Helper()
	for {
		f := c.Next(t)
		if f.Event != event {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(f.Data, out))
		}
		return
	}
}

// Reply answers one RPC call: data is sent back as the reply data, err as
// the call error.
type Reply func(call *rpc.Call) (data any, err error)

// FakeRPC records calls and answers them with the Reply registered for
// "<service>.<method>".
type FakeRPC struct {
	mu      sync.Mutex
	replies map[string]Reply
	calls   []rpc.Call
	emitted []rpc.Call
}

func (f *FakeRPC) On(subject string, r Reply) *FakeRPC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = make(map[string]Reply)
	}
	f.replies[subject] = r
	return f
}

// Call records call, marks it sent, then answers it.
func (f *FakeRPC) Call(ctx context.Context, call *rpc.Call, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, *call)
	r := f.replies[call.Subject()]
	f.mu.Unlock()
	rpc.Sent(ctx)
	if r == nil {
		return nil
	}
	data, err := r(call)
	if err != nil {
		return err
	}
	if out == nil || data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *FakeRPC) Emit(_ context.Context, call *rpc.Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, *call)
}

func (f *FakeRPC) Calls() []rpc.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpc.Call(nil), f.calls...)
}

func (f *FakeRPC) Emitted() []rpc.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpc.Call(nil), f.emitted...)
}
