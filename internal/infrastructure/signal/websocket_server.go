package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"framecast/internal/core/domain"
	"framecast/internal/core/relay"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // trusted, cooperative consumers; tighten for exposure
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SignalMessage is the JSON envelope on the signaling socket, both ways.
type SignalMessage struct {
	Type      string        `json:"type"`
	PeerID    domain.PeerID `json:"peer_id,omitempty"`
	SDPType   string        `json:"sdp_type,omitempty"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate string        `json:"candidate,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Options configures socket keepalive and inbound rate limiting.
type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MessagesPerSecond float64
	Burst             int
}

func DefaultOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		MessagesPerSecond: 0, // disabled
		Burst:             0,
	}
}

// WebSocketServer runs the signaling surface: one consumer per socket.
// Connecting creates a peer; offers and candidates flow in as JSON, the
// relay's outward events (answer descriptions, local candidates) flow back
// out on the same socket.
type WebSocketServer struct {
	relay *relay.Service
	opts  Options

	connections map[domain.PeerID]*peerConn
	mu          sync.RWMutex

	logger *zap.SugaredLogger
}

// peerConn serializes writes; gorilla connections allow one writer at a
// time and both the ping ticker and the event dispatcher write.
type peerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (pc *peerConn) writeJSON(v interface{}, deadline time.Duration) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.conn.SetWriteDeadline(time.Now().Add(deadline))
	return pc.conn.WriteJSON(v)
}

func (pc *peerConn) ping(deadline time.Duration) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(deadline))
}

func NewWebSocketServer(relayService *relay.Service, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultOptions().PingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = DefaultOptions().PongTimeout
	}
	return &WebSocketServer{
		relay:       relayService,
		opts:        opts,
		connections: make(map[domain.PeerID]*peerConn),
		logger:      logger,
	}
}

// Run forwards the relay's outward signaling events to the owning sockets
// until ctx is cancelled. Events for peers without a registered socket
// (peers created through the HTTP API) are dropped here; the HTTP flow
// returns the answer synchronously instead.
func (s *WebSocketServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.relay.Events():
			s.dispatch(ev)
		}
	}
}

func (s *WebSocketServer) dispatch(ev domain.SignalEvent) {
	s.mu.RLock()
	pc, ok := s.connections[ev.PeerID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	var msg SignalMessage
	switch ev.Kind {
	case domain.EventLocalDescription:
		msg = SignalMessage{Type: "description", PeerID: ev.PeerID, SDPType: ev.SDPType, SDP: ev.SDP}
	case domain.EventLocalCandidate:
		msg = SignalMessage{Type: "candidate", PeerID: ev.PeerID, Candidate: ev.Candidate}
	default:
		return
	}

	if err := pc.writeJSON(msg, 10*time.Second); err != nil {
		s.logger.Warnw("failed to forward signal event", "peer_id", ev.PeerID, "error", err)
	}
}

// HandleWebSocket upgrades the connection, creates a peer for it and
// relays signaling both ways until the socket closes.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	peerID, err := s.relay.CreatePeer(r.Context())
	if err != nil {
		s.logger.Errorw("peer creation failed", "error", err)
		conn.WriteJSON(SignalMessage{Type: "error", Error: "peer creation failed"})
		return
	}

	pc := &peerConn{conn: conn}
	s.mu.Lock()
	s.connections[peerID] = pc
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.connections, peerID)
		s.mu.Unlock()
		if err := s.relay.RemovePeer(peerID); err != nil {
			s.logger.Debugw("peer already removed", "peer_id", peerID)
		}
		s.logger.Infow("peer disconnected", "peer_id", peerID)
	}()

	s.logger.Infow("peer connected via WebSocket", "peer_id", peerID)

	// Tell the client its peer id first so it can correlate events.
	if err := pc.writeJSON(SignalMessage{Type: "peer", PeerID: peerID}, 10*time.Second); err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(r.Context())
	defer cancelPing()
	go s.pingLoop(pingCtx, pc)

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("websocket read failed", "peer_id", peerID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.logger.Warnw("signaling message rate limit exceeded", "peer_id", peerID)
			pc.writeJSON(SignalMessage{Type: "error", Error: "rate limit exceeded"}, 10*time.Second)
			continue
		}

		s.handleMessage(r.Context(), peerID, pc, msg)
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, peerID domain.PeerID, pc *peerConn, msg SignalMessage) {
	switch msg.Type {
	case "offer":
		// Answer comes back through the event dispatcher.
		if err := s.relay.HandleOffer(ctx, peerID, msg.SDP); err != nil {
			s.logger.Warnw("offer handling failed", "peer_id", peerID, "error", err)
			pc.writeJSON(SignalMessage{Type: "error", Error: "offer rejected"}, 10*time.Second)
		}
	case "candidate":
		if err := s.relay.HandleCandidate(peerID, msg.Candidate); err != nil {
			s.logger.Warnw("candidate handling failed", "peer_id", peerID, "error", err)
		}
	default:
		s.logger.Debugw("unknown signal message type", "peer_id", peerID, "type", msg.Type)
	}
}

func (s *WebSocketServer) pingLoop(ctx context.Context, pc *peerConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pc.ping(10 * time.Second); err != nil {
				return
			}
		}
	}
}

// HealthCheck reports liveness for load balancers.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
