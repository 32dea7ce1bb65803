package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBus joins several in-process relays as if they were separate nodes.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []memorySub
}

type memorySub struct {
	nodeID string
	h      Handler
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

// Node returns a Relay that publishes on the bus as nodeID.
func (b *MemoryBus) Node(nodeID string) *MemoryRelay {
	return &MemoryRelay{bus: b, nodeID: nodeID}
}

func (b *MemoryBus) publish(raw []byte) {
	b.mu.RLock()
	subs := append([]memorySub(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		accept(raw, s.nodeID, s.h)
	}
}

type MemoryRelay struct {
	bus    *MemoryBus
	nodeID string
}

// Publish delivers synchronously to every other node on the bus.
func (r *MemoryRelay) Publish(_ context.Context, env Envelope) error {
	env.NodeID = r.nodeID
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "relay: encode envelope")
	}
	r.bus.publish(raw)
	return nil
}

func (r *MemoryRelay) Subscribe(_ context.Context, h Handler) error {
	r.bus.mu.Lock()
	r.bus.subs = append(r.bus.subs, memorySub{nodeID: r.nodeID, h: h})
	r.bus.mu.Unlock()
	return nil
}

func (r *MemoryRelay) Close() error { return nil }
