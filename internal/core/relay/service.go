package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"
	"framecast/pkg/utils"

	"go.uber.org/zap"
)

// ServiceConfig carries the relay-level defaults.
type ServiceConfig struct {
	DefaultMaxFrames int
	VideoPayloadType uint8
	AudioPayloadType uint8
	EventBuffer      int
}

// DefaultServiceConfig returns the defaults used when config is absent.
// Payload type 109 matches the H.264 profile negotiated for this relay.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultMaxFrames: 200,
		VideoPayloadType: 109,
		AudioPayloadType: 111,
		EventBuffer:      64,
	}
}

// Service is the relay's outward API: channel creation, frame ingest, peer
// setup and the signaling passthrough. It owns the channel and peer
// registries and the delivery engine worker.
type Service struct {
	cfg       ServiceConfig
	transport ports.Transport
	channels  *ChannelRegistry
	peers     *PeerRegistry
	engine    *Engine
	metrics   ports.MetricsSink
	logger    *zap.SugaredLogger

	events chan domain.SignalEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewService(cfg ServiceConfig, transport ports.Transport, metrics ports.MetricsSink, logger *zap.SugaredLogger) *Service {
	if cfg.DefaultMaxFrames <= 0 {
		cfg.DefaultMaxFrames = DefaultServiceConfig().DefaultMaxFrames
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultServiceConfig().EventBuffer
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	channels := NewChannelRegistry()
	peers := NewPeerRegistry()

	return &Service{
		cfg:       cfg,
		transport: transport,
		channels:  channels,
		peers:     peers,
		engine:    NewEngine(channels, peers, metrics, logger),
		metrics:   metrics,
		logger:    logger,
		events:    make(chan domain.SignalEvent, cfg.EventBuffer),
	}
}

// Start launches the delivery worker. Safe to call once.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.engine.Run(ctx)
	}()
}

// Close stops the delivery worker and tears down every peer session.
// In-flight undelivered frames are abandoned.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	for _, peer := range s.peers.Snapshot() {
		if _, ok := s.peers.Remove(peer.ID); !ok {
			continue
		}
		if err := peer.Session.Close(); err != nil {
			s.logger.Warnw("session close failed", "peer_id", peer.ID, "error", err)
		}
		s.metrics.PeerRemoved()
	}
}

// AddChannel registers a new logical stream. maxFrames <= 0 falls back to
// the configured default.
func (s *Service) AddChannel(id domain.ChannelID, kind domain.ChannelKind, codec string, maxFrames int) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind)
	}
	if maxFrames <= 0 {
		maxFrames = s.cfg.DefaultMaxFrames
	}

	var payloadType uint8
	switch kind {
	case domain.KindVideo:
		payloadType = s.cfg.VideoPayloadType
	case domain.KindAudio:
		payloadType = s.cfg.AudioPayloadType
	}

	ch, err := s.channels.Create(id, kind, codec, maxFrames, payloadType)
	if err != nil {
		return err
	}

	s.logger.Infow("channel created",
		"channel_id", id,
		"kind", kind,
		"codec", codec,
		"max_frames", maxFrames,
		"ssrc", ch.SSRC(),
	)
	return nil
}

// PushFrame buffers one encoded frame and wakes the delivery engine.
// Always succeeds from the producer's point of view: an unknown channel is
// a silent no-op, a full buffer evicts its oldest frame.
func (s *Service) PushFrame(id domain.ChannelID, data []byte, keyframe bool, timestampUs uint64) {
	ch, ok := s.channels.Get(id)
	if !ok {
		s.logger.Debugw("frame for unknown channel dropped", "channel_id", id)
		return
	}

	evicted := ch.Push(domain.EncodedFrame{Data: data, Keyframe: keyframe, TimestampUs: timestampUs})
	if evicted {
		s.metrics.FrameEvicted(id)
	}
	s.metrics.FramePushed(id, ch.Kind(), len(data))
	s.metrics.QueueDepth(id, ch.Len())
	s.engine.Wake()
}

// CreatePeer creates a transport session and wires one send endpoint per
// channel present in the registry right now. The peer is registered before
// negotiation completes; its endpoints report not-open until then.
func (s *Service) CreatePeer(ctx context.Context) (domain.PeerID, error) {
	peerID := domain.PeerID(utils.GeneratePeerID())

	session, err := s.transport.CreateSession(ports.SessionCallbacks{
		OnLocalDescription: func(sdpType, sdp string) {
			s.emit(domain.SignalEvent{
				PeerID:  peerID,
				Kind:    domain.EventLocalDescription,
				SDPType: sdpType,
				SDP:     sdp,
			})
		},
		OnLocalCandidate: func(candidate string) {
			s.emit(domain.SignalEvent{
				PeerID:    peerID,
				Kind:      domain.EventLocalCandidate,
				Candidate: candidate,
			})
		},
		OnStateChange: func(state string) {
			s.logger.Infow("peer state changed", "peer_id", peerID, "state", state)
		},
		OnDataMessage: func(channelID domain.ChannelID, data []byte) {
			s.logger.Debugw("data message received",
				"peer_id", peerID,
				"channel_id", channelID,
				"bytes", len(data),
			)
		},
	})
	if err != nil {
		return "", fmt.Errorf("create transport session: %w", err)
	}

	endpoints := make(map[domain.ChannelID]ports.SendEndpoint)
	for _, ch := range s.channels.Snapshot() {
		var (
			ep     ports.SendEndpoint
			attach error
		)
		if ch.Kind().IsMedia() {
			ep, attach = session.AttachMediaEndpoint(ch.ID(), ch.Kind(), ch.Codec())
		} else {
			ep, attach = session.AttachDataEndpoint(ch.ID())
		}
		if attach != nil {
			session.Close()
			return "", fmt.Errorf("attach endpoint for channel %s: %w", ch.ID(), attach)
		}
		endpoints[ch.ID()] = ep
	}

	s.peers.Add(&Peer{
		ID:        peerID,
		Session:   session,
		Endpoints: endpoints,
		CreatedAt: time.Now(),
	})
	s.metrics.PeerAdded()

	s.logger.Infow("peer created", "peer_id", peerID, "endpoints", len(endpoints))
	return peerID, nil
}

// HandleOffer applies a remote offer; the generated answer comes back
// asynchronously through the local-description event.
func (s *Service) HandleOffer(ctx context.Context, peerID domain.PeerID, sdp string) error {
	_, err := s.HandleOfferSync(ctx, peerID, sdp)
	return err
}

// HandleOfferSync applies a remote offer and returns the answer SDP
// directly, in addition to the event emission.
func (s *Service) HandleOfferSync(ctx context.Context, peerID domain.PeerID, sdp string) (string, error) {
	peer, ok := s.peers.Get(peerID)
	if !ok {
		return "", domain.ErrPeerNotFound
	}
	if err := peer.Session.SetRemoteDescription("offer", sdp); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := peer.Session.CreateAnswer()
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

// HandleCandidate adds a remote ICE candidate to the peer's session.
func (s *Service) HandleCandidate(peerID domain.PeerID, candidate string) error {
	peer, ok := s.peers.Get(peerID)
	if !ok {
		return domain.ErrPeerNotFound
	}
	if err := peer.Session.AddRemoteCandidate(candidate); err != nil {
		return fmt.Errorf("add remote candidate: %w", err)
	}
	return nil
}

// RemovePeer tears down a peer's session and unregisters it.
func (s *Service) RemovePeer(peerID domain.PeerID) error {
	peer, ok := s.peers.Remove(peerID)
	if !ok {
		return domain.ErrPeerNotFound
	}
	if err := peer.Session.Close(); err != nil {
		s.logger.Warnw("session close failed", "peer_id", peerID, "error", err)
	}
	s.metrics.PeerRemoved()
	s.logger.Infow("peer removed", "peer_id", peerID)
	return nil
}

// Events exposes the outward signaling events (local descriptions and
// candidates) for the host signaling layer to forward.
func (s *Service) Events() <-chan domain.SignalEvent {
	return s.events
}

// Peers returns the ids of currently connected peers.
func (s *Service) Peers() []domain.PeerID {
	snapshot := s.peers.Snapshot()
	ids := make([]domain.PeerID, 0, len(snapshot))
	for _, p := range snapshot {
		ids = append(ids, p.ID)
	}
	return ids
}

// Channels returns the channel registry for read-only inspection.
func (s *Service) Channels() []*ChannelBuffer {
	return s.channels.Snapshot()
}

// emit forwards an event without ever blocking a transport callback. When
// the consumer lags behind the buffer, the event is dropped and logged.
func (s *Service) emit(ev domain.SignalEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warnw("signal event dropped, buffer full",
			"peer_id", ev.PeerID,
			"kind", ev.Kind,
		)
	}
}
