package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PPGateway/global/config"
	"PPGateway/service/natsx"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) handle(env Envelope) {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func TestRedisRelay_CrossNode(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	a := NewRedisRelay(rdb, "gateway.broadcast", "node-a")
	b := NewRedisRelay(rdb, "gateway.broadcast", "node-b")
	defer a.Close()
	defer b.Close()

	var gotA, gotB collector
	require.NoError(t, a.Subscribe(ctx, gotA.handle))
	require.NoError(t, b.Subscribe(ctx, gotB.handle))
	require.Error(t, a.Subscribe(ctx, gotA.handle))

	require.NoError(t, a.Publish(ctx, Envelope{
		Event:  "receive_message",
		Data:   json.RawMessage(`{"content":"hi"}`),
		Room:   "chat_1",
		Except: "sock-1",
	}))

	require.Eventually(t, func() bool { return len(gotB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	env := gotB.snapshot()[0]
	assert.Equal(t, "node-a", env.NodeID)
	assert.Equal(t, "receive_message", env.Event)
	assert.Equal(t, "chat_1", env.Room)
	assert.Equal(t, "sock-1", env.Except)
	assert.JSONEq(t, `{"content":"hi"}`, string(env.Data))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, gotA.snapshot(), "a node ignores its own envelopes")
}

func TestRedisRelay_CloseWithoutSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	assert.NoError(t, NewRedisRelay(rdb, "x", "n").Close())
}

type fakeNats struct {
	mu       sync.Mutex
	handlers map[string][]natsx.NatsxHandler
}

func (f *fakeNats) Publish(ctx context.Context, subject string, data []byte, _ map[string]string) error {
	f.mu.Lock()
	hs := append([]natsx.NatsxHandler(nil), f.handlers[subject]...)
	f.mu.Unlock()
	for _, h := range hs {
		_ = h(ctx, natsx.NatsxMessage{Subject: subject, Data: data})
	}
	return nil
}

func (f *fakeNats) Subscribe(subject, queue string, h natsx.NatsxHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string][]natsx.NatsxHandler{}
	}
	f.handlers[subject] = append(f.handlers[subject], h)
	return nil
}

func TestNatsRelay_CrossNode(t *testing.T) {
	nc := &fakeNats{}
	ctx := context.Background()
	a := NewNatsRelay(nc, "gateway.broadcast", "node-a")
	b := NewNatsRelay(nc, "gateway.broadcast", "node-b")

	var gotA, gotB collector
	require.NoError(t, a.Subscribe(ctx, gotA.handle))
	require.NoError(t, b.Subscribe(ctx, gotB.handle))

	require.NoError(t, b.Publish(ctx, Envelope{Event: "user_status_change", All: true, Data: json.RawMessage(`{"userId":"u1","status":"online"}`)}))

	require.Len(t, gotA.snapshot(), 1)
	assert.True(t, gotA.snapshot()[0].All)
	assert.Equal(t, "node-b", gotA.snapshot()[0].NodeID)
	assert.Empty(t, gotB.snapshot())
}

func TestNatsRelay_DropsGarbage(t *testing.T) {
	nc := &fakeNats{}
	r := NewNatsRelay(nc, "s", "node-a")
	var got collector
	require.NoError(t, r.Subscribe(context.Background(), got.handle))
	require.NoError(t, nc.Publish(context.Background(), "s", []byte("nope"), nil))
	assert.Empty(t, got.snapshot())
}

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	a, b, c := bus.Node("a"), bus.Node("b"), bus.Node("c")
	var gotA, gotB, gotC collector
	ctx := context.Background()
	require.NoError(t, a.Subscribe(ctx, gotA.handle))
	require.NoError(t, b.Subscribe(ctx, gotB.handle))
	require.NoError(t, c.Subscribe(ctx, gotC.handle))

	require.NoError(t, a.Publish(ctx, Envelope{Event: "e", Room: "r"}))
	assert.Empty(t, gotA.snapshot())
	assert.Len(t, gotB.snapshot(), 1)
	assert.Len(t, gotC.snapshot(), 1)
}

func TestNew(t *testing.T) {
	r, err := New(config.RelayConfig{Driver: config.RelayNone}, "n", Deps{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, r)

	_, err = New(config.RelayConfig{Driver: config.RelayNats, Subject: "s"}, "n", Deps{})
	assert.Error(t, err)
	_, err = New(config.RelayConfig{Driver: config.RelayRedis, Subject: "s"}, "n", Deps{})
	assert.Error(t, err)
	_, err = New(config.RelayConfig{Driver: "kafka"}, "n", Deps{})
	assert.Error(t, err)

	r, err = New(config.RelayConfig{Driver: config.RelayNats, Subject: "s"}, "n", Deps{Nats: &fakeNats{}})
	require.NoError(t, err)
	assert.IsType(t, &NatsRelay{}, r)
}
