package ids

import (
	"strconv"
	"sync"
	"time"
)

// Generator produces 63-bit snowflake ids: 41 bits of milliseconds since
// epoch, 10 bits of node id, 12 bits of sequence.
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() time.Time
}

var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewGenerator returns a generator for nodeID; out-of-range ids (not in
// 0..1023) are folded into range.
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 {
		nodeID = -nodeID
	}
	return &Generator{
		epochMS: defaultEpoch.UnixMilli(),
		nodeID:  nodeID & 0x3FF,
		now:     time.Now,
	}
}

func (g *Generator) NodeID() int64 { return g.nodeID }

// Next returns the next id. Ids are strictly increasing per generator.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.lastTSMS {
		// clock moved backwards: keep issuing from the last timestamp
		now = g.lastTSMS
	}
	if now == g.lastTSMS {
		g.seq = (g.seq + 1) & 0xFFF
		if g.seq == 0 {
			now++
		}
	} else {
		g.seq = 0
	}
	g.lastTSMS = now

	ts := (now - g.epochMS) & ((1 << 41) - 1)
	return (ts << 22) | (g.nodeID << 12) | g.seq
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}
