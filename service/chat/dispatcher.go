package chat

import (
	"fmt"
	"sort"
)

// Dispatcher maps an inbound event name to its handler.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register panics on an empty or duplicate event name; both are wiring bugs.
func (d *Dispatcher) Register(hs ...Handler) {
	for _, h := range hs {
		ev := h.Event()
		if ev == "" {
			panic("chat: handler with empty event name")
		}
		if _, dup := d.handlers[ev]; dup {
			panic(fmt.Sprintf("chat: duplicate handler for event %q", ev))
		}
		d.handlers[ev] = h
	}
}

func (d *Dispatcher) GetHandler(event string) (Handler, bool) {
	h, ok := d.handlers[event]
	return h, ok
}

// Events lists registered events, sorted.
func (d *Dispatcher) Events() []string {
	out := make([]string, 0, len(d.handlers))
	for ev := range d.handlers {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}
