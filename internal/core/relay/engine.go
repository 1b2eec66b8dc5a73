package relay

import (
	"context"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"

	"go.uber.org/zap"
)

// Engine is the single delivery worker. It blocks until woken by a push
// (or shutdown), then walks every channel in registry order and drains
// ready frames oldest-first. A frame is only popped once it reached at
// least one peer with an open endpoint; otherwise the channel stalls until
// the next wake or until drop-oldest evicts the frame from under the loop.
type Engine struct {
	channels *ChannelRegistry
	peers    *PeerRegistry
	metrics  ports.MetricsSink
	logger   *zap.SugaredLogger

	notify chan struct{}
}

func NewEngine(channels *ChannelRegistry, peers *PeerRegistry, metrics ports.MetricsSink, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		channels: channels,
		peers:    peers,
		metrics:  metrics,
		logger:   logger,
		notify:   make(chan struct{}, 1),
	}
}

// Wake signals that new work may be ready. Never blocks; coalesces with a
// pending wake.
func (e *Engine) Wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Run processes wakes until ctx is cancelled. All delivery failures are
// contained here; nothing escapes the loop.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Infow("delivery engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("delivery engine stopped")
			return
		case <-e.notify:
		}
		e.drainAll(ctx)
	}
}

func (e *Engine) drainAll(ctx context.Context) {
	for _, ch := range e.channels.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		e.drainChannel(ch)
	}
}

func (e *Engine) drainChannel(ch *ChannelBuffer) {
	for {
		frame, seq, ok := ch.Front()
		if !ok {
			return
		}

		// Empty payload is a no-op marker, consumed without delivery.
		if len(frame.Data) == 0 {
			ch.PopIfFront(seq)
			continue
		}

		if !e.deliver(ch, frame) {
			// Stalled: retry on the next wake rather than busy-spin.
			return
		}
		ch.PopIfFront(seq)
		e.metrics.QueueDepth(ch.ID(), ch.Len())
	}
}

// deliver fans one frame out to every peer holding an open endpoint for
// the channel. Reports whether the frame counts as delivered (reached at
// least one peer).
func (e *Engine) deliver(ch *ChannelBuffer, frame domain.EncodedFrame) bool {
	peers := e.peers.Snapshot()

	var packets [][]byte
	if ch.Kind().IsMedia() {
		var sps, pps []byte
		if ch.Kind() == domain.KindVideo {
			sps, pps = ch.ParameterSets()
		}
		packets = Repacketize(frame, sps, pps, ch.PayloadType(), ch.SSRC())
	}

	reached := 0
	for _, peer := range peers {
		ep, ok := peer.Endpoints[ch.ID()]
		if !ok || !ep.IsOpen() {
			// Not a failure: the peer never negotiated this channel
			// or the endpoint is not open yet.
			continue
		}

		if ch.Kind() == domain.KindData {
			if err := ep.Send(frame.Data); err != nil {
				e.metrics.SendFailure(ch.ID())
				e.logger.Warnw("data send failed",
					"channel_id", ch.ID(),
					"peer_id", peer.ID,
					"error", err,
				)
				continue
			}
			reached++
			continue
		}

		sent := true
		for _, pkt := range packets {
			if err := ep.Send(pkt); err != nil {
				e.metrics.SendFailure(ch.ID())
				e.logger.Warnw("media send failed",
					"channel_id", ch.ID(),
					"peer_id", peer.ID,
					"error", err,
				)
				sent = false
				break
			}
		}
		if sent {
			reached++
		}
	}

	if reached == 0 {
		return false
	}
	e.metrics.FrameDelivered(ch.ID(), reached)
	return true
}
