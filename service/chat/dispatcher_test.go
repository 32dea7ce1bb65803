package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubHandler struct {
	event  string
	inline bool
	fn     func(c *Context, data json.RawMessage) error
}

func (h *stubHandler) Event() string { return h.event }
func (h *stubHandler) Inline() bool  { return h.inline }
func (h *stubHandler) Handle(c *Context, data json.RawMessage) error {
	if h.fn == nil {
		return nil
	}
	return h.fn(c, data)
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	d.Register(&stubHandler{event: "b"}, &stubHandler{event: "a"})

	h, ok := d.GetHandler("a")
	assert.True(t, ok)
	assert.Equal(t, "a", h.Event())
	_, ok = d.GetHandler("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, d.Events())
}

func TestDispatcher_RegisterPanics(t *testing.T) {
	d := NewDispatcher()
	d.Register(&stubHandler{event: "a"})
	assert.Panics(t, func() { d.Register(&stubHandler{event: "a"}) })
	assert.Panics(t, func() { d.Register(&stubHandler{}) })
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"join_room","data":{"chatId":"abc"}}`))
	assert.NoError(t, err)
	assert.Equal(t, "join_room", f.Event)
	assert.JSONEq(t, `{"chatId":"abc"}`, string(f.Data))

	_, err = ParseFrame([]byte(`{"data":{}}`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`not json`))
	assert.Error(t, err)
}
