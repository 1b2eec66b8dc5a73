package relay

import (
	"sync"

	"framecast/internal/core/domain"
)

// ssrcBase seeds per-channel synchronization source identifiers. Each
// channel gets one fixed SSRC for its lifetime; multiple sources sharing
// a channel are out of scope.
const ssrcBase uint32 = 0x46430001

// ChannelRegistry owns every ChannelBuffer for the process lifetime.
// Iteration order is insertion order, stable within a run.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID]*ChannelBuffer
	order    []domain.ChannelID
	nextSSRC uint32
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[domain.ChannelID]*ChannelBuffer),
		nextSSRC: ssrcBase,
	}
}

// Create registers a new channel. Creating an existing id fails with
// ErrDuplicateChannel; existing channels are never silently replaced.
func (r *ChannelRegistry) Create(id domain.ChannelID, kind domain.ChannelKind, codec string, maxFrames int, payloadType uint8) (*ChannelBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[id]; exists {
		return nil, domain.ErrDuplicateChannel
	}

	ch := newChannelBuffer(id, kind, codec, maxFrames, payloadType, r.nextSSRC)
	r.nextSSRC++
	r.channels[id] = ch
	r.order = append(r.order, id)
	return ch, nil
}

// Get returns the channel for id, if registered.
func (r *ChannelRegistry) Get(id domain.ChannelID) (*ChannelBuffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Snapshot returns all channels in insertion order.
func (r *ChannelRegistry) Snapshot() []*ChannelBuffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ChannelBuffer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.channels[id])
	}
	return out
}

// Len returns the number of registered channels.
func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
