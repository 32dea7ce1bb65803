package chat

import (
	"sync"
)

// Hub indexes this node's clients by socket, by user and by joined room.
// Room membership is node-local; other nodes learn about room traffic
// through the relay.
type Hub struct {
	mu     sync.RWMutex
	byConn map[string]*Client            // socket id -> client
	byUser map[string]map[string]*Client // user -> socket id -> client
	rooms  map[string]map[string]*Client // chat id -> socket id -> client
}

func NewHub() *Hub {
	return &Hub{
		byConn: make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
		rooms:  make(map[string]map[string]*Client),
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byConn[c.ID] = c
	m := h.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		h.byUser[c.UserID] = m
	}
	m[c.ID] = c
}

// Remove unregisters c and drops it from every room it joined.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	delete(h.byConn, c.ID)
}

// Join is idempotent.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byConn[c.ID]; !ok {
		return
	}
	m := h.rooms[room]
	if m == nil {
		m = make(map[string]*Client)
		h.rooms[room] = m
	}
	m[c.ID] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if m := h.rooms[room]; m != nil {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) Get(socketID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byConn[socketID]
}

func (h *Hub) RoomMembers(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return values(h.rooms[room])
}

func (h *Hub) All() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return values(h.byConn)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

func values(m map[string]*Client) []*Client {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
