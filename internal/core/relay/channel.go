package relay

import (
	"sync"

	"framecast/internal/core/domain"
)

type queuedFrame struct {
	seq   uint64
	frame domain.EncodedFrame
}

// ChannelBuffer is the bounded per-channel frame queue plus, for video
// channels, the last-known-good H.264 parameter sets. The producer is the
// single writer, the delivery engine the single reader; both go through
// the channel's own mutex so unrelated channels never contend.
type ChannelBuffer struct {
	id          domain.ChannelID
	kind        domain.ChannelKind
	codec       string
	maxFrames   int
	payloadType uint8
	ssrc        uint32

	mu      sync.Mutex
	queue   []queuedFrame
	nextSeq uint64

	// Parameter-set caches survive queue eviction. They are replaced
	// wholesale on each new occurrence, never mutated in place, so
	// references handed out stay valid.
	sps          []byte
	pps          []byte
	seenKeyframe bool
}

func newChannelBuffer(id domain.ChannelID, kind domain.ChannelKind, codec string, maxFrames int, payloadType uint8, ssrc uint32) *ChannelBuffer {
	return &ChannelBuffer{
		id:          id,
		kind:        kind,
		codec:       codec,
		maxFrames:   maxFrames,
		payloadType: payloadType,
		ssrc:        ssrc,
	}
}

func (b *ChannelBuffer) ID() domain.ChannelID     { return b.id }
func (b *ChannelBuffer) Kind() domain.ChannelKind { return b.kind }
func (b *ChannelBuffer) Codec() string            { return b.codec }
func (b *ChannelBuffer) MaxFrames() int           { return b.maxFrames }
func (b *ChannelBuffer) PayloadType() uint8       { return b.payloadType }
func (b *ChannelBuffer) SSRC() uint32             { return b.ssrc }

// Push enqueues a frame, evicting the oldest queued frame first when the
// buffer is full. For video channels it also refreshes the SPS/PPS and
// seen-keyframe caches from the frame's NAL type before enqueueing.
// Returns whether an older frame was evicted.
func (b *ChannelBuffer) Push(frame domain.EncodedFrame) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.kind == domain.KindVideo {
		switch domain.NALType(frame.Data) {
		case domain.NALTypeSPS:
			b.sps = append([]byte(nil), frame.Data...)
		case domain.NALTypePPS:
			b.pps = append([]byte(nil), frame.Data...)
		case domain.NALTypeIDR:
			b.seenKeyframe = true
		}
	}

	if b.maxFrames > 0 && len(b.queue) >= b.maxFrames {
		b.queue = b.queue[1:]
		evicted = true
	}
	b.queue = append(b.queue, queuedFrame{seq: b.nextSeq, frame: frame})
	b.nextSeq++
	return evicted
}

// Front returns the oldest queued frame and its sequence number without
// removing it.
func (b *ChannelBuffer) Front() (domain.EncodedFrame, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return domain.EncodedFrame{}, 0, false
	}
	return b.queue[0].frame, b.queue[0].seq, true
}

// PopIfFront removes the front frame only if it still carries the given
// sequence number. A concurrent drop-oldest eviction between Front and
// PopIfFront otherwise would make the engine pop a frame it never
// delivered.
func (b *ChannelBuffer) PopIfFront(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 || b.queue[0].seq != seq {
		return false
	}
	b.queue = b.queue[1:]
	return true
}

// Len returns the current queue depth.
func (b *ChannelBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ParameterSets returns the cached SPS and PPS frames, either of which may
// be nil if not yet seen.
func (b *ChannelBuffer) ParameterSets() (sps, pps []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sps, b.pps
}

// SeenKeyframe reports whether an IDR frame has ever been pushed.
func (b *ChannelBuffer) SeenKeyframe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seenKeyframe
}
