package domain

// SignalEventKind discriminates the two outward signaling events the relay
// re-emits from the transport layer.
type SignalEventKind string

const (
	EventLocalDescription SignalEventKind = "local_description"
	EventLocalCandidate   SignalEventKind = "local_candidate"
)

// SignalEvent is forwarded to whatever host layer handles signaling
// (websocket server, embedding runtime). The relay does not interpret
// negotiation semantics itself.
type SignalEvent struct {
	PeerID    PeerID
	Kind      SignalEventKind
	SDPType   string
	SDP       string
	Candidate string
}
