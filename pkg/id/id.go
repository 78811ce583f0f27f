package id

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// Generator produces process-unique, sortable identifiers. Ripple assigns
// them to delivery connections and to stories created without an explicit ID.
// Each identifier encodes [8 bytes ms_timestamp][8 bytes sequence] as 32 hex
// digits, so identifiers sort in the order they were issued.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new identifier. A backwards clock step reuses the last seen
// millisecond so ordering never regresses; a sequence wrap within one
// millisecond advances the timestamp instead.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		g.seq++
		if g.seq == 0 {
			ms++
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	var raw [16]byte
	binary.BigEndian.PutUint64(raw[0:8], uint64(ms))
	binary.BigEndian.PutUint64(raw[8:16], g.seq)
	return hex.EncodeToString(raw[:])
}
