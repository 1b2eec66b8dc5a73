package webrtc

import (
	"fmt"
	"strings"
	"sync/atomic"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds the transport-level WebRTC settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Transport implements ports.Transport on pion. One session per consumer;
// each session owns one PeerConnection.
type Transport struct {
	config  Config
	metrics ports.MetricsSink
	logger  *zap.SugaredLogger
}

func NewTransport(config Config, metrics ports.MetricsSink, logger *zap.SugaredLogger) *Transport {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Transport{
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateSession creates a new peer connection wired to the given
// callbacks. Negotiation is driven by the caller through the session.
func (t *Transport) CreateSession(callbacks ports.SessionCallbacks) (ports.TransportSession, error) {
	pc, err := t.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	session := &Session{
		pc:        pc,
		callbacks: callbacks,
		metrics:   t.metrics,
		logger:    t.logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		if callbacks.OnLocalCandidate != nil {
			callbacks.OnLocalCandidate(c.ToJSON().Candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		session.connected.Store(state == webrtc.PeerConnectionStateConnected)
		t.logger.Infow("peer connection state changed", "state", state.String())
		if callbacks.OnStateChange != nil {
			callbacks.OnStateChange(state.String())
		}
	})

	return session, nil
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   t.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if t.config.PortRange.Min > 0 && t.config.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(t.config.PortRange.Min, t.config.PortRange.Max)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// Session is one consumer's transport session.
type Session struct {
	pc        *webrtc.PeerConnection
	callbacks ports.SessionCallbacks
	metrics   ports.MetricsSink
	logger    *zap.SugaredLogger
	connected atomic.Bool
}

// AttachMediaEndpoint adds a send-only RTP track for the channel.
func (s *Session) AttachMediaEndpoint(channelID domain.ChannelID, kind domain.ChannelKind, codec string) (ports.SendEndpoint, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: mimeTypeFor(kind, codec)},
		string(channelID),
		"framecast",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create track for %s: %w", channelID, err)
	}

	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track for %s: %w", channelID, err)
	}

	go s.readRTCP(channelID, sender)

	return &mediaEndpoint{track: track, session: s}, nil
}

// AttachDataEndpoint adds a data channel for the channel.
func (s *Session) AttachDataEndpoint(channelID domain.ChannelID) (ports.SendEndpoint, error) {
	dc, err := s.pc.CreateDataChannel(string(channelID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel for %s: %w", channelID, err)
	}

	ep := &dataEndpoint{dc: dc}

	dc.OnOpen(func() {
		ep.open.Store(true)
		s.logger.Infow("data channel open", "channel_id", channelID)
	})
	dc.OnClose(func() {
		ep.open.Store(false)
		s.logger.Infow("data channel closed", "channel_id", channelID)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.callbacks.OnDataMessage != nil {
			s.callbacks.OnDataMessage(channelID, msg.Data)
		}
	})

	return ep, nil
}

// SetRemoteDescription applies the remote offer or answer.
func (s *Session) SetRemoteDescription(sdpType, sdp string) error {
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(sdpType),
		SDP:  sdp,
	})
}

// CreateAnswer generates and applies the local answer, emitting it through
// the local-description callback, and returns its SDP.
func (s *Session) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	if s.callbacks.OnLocalDescription != nil {
		s.callbacks.OnLocalDescription(strings.ToLower(answer.Type.String()), answer.SDP)
	}
	return answer.SDP, nil
}

// AddRemoteCandidate adds a trickled remote ICE candidate.
func (s *Session) AddRemoteCandidate(candidate string) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// Close tears down the peer connection; endpoint reads and sends fail from
// here on.
func (s *Session) Close() error {
	s.connected.Store(false)
	return s.pc.Close()
}

// readRTCP drains receiver reports for a sender. PLI is surfaced as a
// keyframe-request metric; everything else is discarded.
func (s *Session) readRTCP(channelID domain.ChannelID, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if _, ok := packet.(*rtcp.PictureLossIndication); ok {
				s.metrics.KeyframeRequested()
				s.logger.Debugw("keyframe requested", "channel_id", channelID)
			}
		}
	}
}

// mediaEndpoint sends pre-packetized RTP out on a local track. Open once
// the peer connection is connected.
type mediaEndpoint struct {
	track   *webrtc.TrackLocalStaticRTP
	session *Session
}

func (m *mediaEndpoint) Send(payload []byte) error {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(payload); err != nil {
		return fmt.Errorf("malformed rtp packet: %w", err)
	}
	return m.track.WriteRTP(packet)
}

func (m *mediaEndpoint) IsOpen() bool {
	return m.session.connected.Load()
}

// dataEndpoint sends raw payloads on a data channel.
type dataEndpoint struct {
	dc   *webrtc.DataChannel
	open atomic.Bool
}

func (d *dataEndpoint) Send(payload []byte) error {
	return d.dc.Send(payload)
}

func (d *dataEndpoint) IsOpen() bool {
	return d.open.Load() && d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func mimeTypeFor(kind domain.ChannelKind, codec string) string {
	switch kind {
	case domain.KindVideo:
		switch strings.ToUpper(codec) {
		case "VP8":
			return webrtc.MimeTypeVP8
		case "VP9":
			return webrtc.MimeTypeVP9
		default:
			return webrtc.MimeTypeH264
		}
	case domain.KindAudio:
		switch strings.ToUpper(codec) {
		case "G722":
			return webrtc.MimeTypeG722
		case "PCMU":
			return webrtc.MimeTypePCMU
		default:
			return webrtc.MimeTypeOpus
		}
	}
	return webrtc.MimeTypeH264
}
