package ports

import (
	"framecast/internal/core/domain"
)

// SendEndpoint is one outbound, send-capable leg of a transport session:
// a media track for video/audio channels, a datagram channel for data
// channels. Open state is asynchronous and owned by the transport layer;
// callers must treat a not-yet-open endpoint like an absent one.
type SendEndpoint interface {
	Send(payload []byte) error
	IsOpen() bool
}

// SessionCallbacks carries the asynchronous transport callbacks the relay
// re-emits outward. Implementations must not block.
type SessionCallbacks struct {
	OnLocalDescription func(sdpType, sdp string)
	OnLocalCandidate   func(candidate string)
	OnStateChange      func(state string)

	// OnDataMessage fires for inbound messages on a data endpoint. The
	// relay itself only sends, but consumers may talk back.
	OnDataMessage func(channelID domain.ChannelID, data []byte)
}

// TransportSession is one negotiated connection to a single consumer.
// Endpoint attachment happens once, at connection-setup time; the relay
// never re-wires endpoints after negotiation starts.
type TransportSession interface {
	AttachMediaEndpoint(channelID domain.ChannelID, kind domain.ChannelKind, codec string) (SendEndpoint, error)
	AttachDataEndpoint(channelID domain.ChannelID) (SendEndpoint, error)

	SetRemoteDescription(sdpType, sdp string) error
	CreateAnswer() (string, error)
	AddRemoteCandidate(candidate string) error

	Close() error
}

// Transport creates sessions. The relay owns no negotiation logic; offer,
// answer and candidate exchange are driven by the caller through the
// session and observed through the callbacks.
type Transport interface {
	CreateSession(callbacks SessionCallbacks) (TransportSession, error)
}
