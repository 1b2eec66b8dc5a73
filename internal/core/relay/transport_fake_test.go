package relay

import (
	"errors"
	"sync"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"
)

// fakeEndpoint records sends and lets tests flip the open flag.
type fakeEndpoint struct {
	mu       sync.Mutex
	open     bool
	failSend bool
	sent     [][]byte
}

func (f *fakeEndpoint) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("transport send failure")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeEndpoint) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeEndpoint) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

func (f *fakeEndpoint) packets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeSession implements ports.TransportSession in-memory.
type fakeSession struct {
	mu         sync.Mutex
	callbacks  ports.SessionCallbacks
	endpoints  map[domain.ChannelID]*fakeEndpoint
	remoteSDP  string
	candidates []string
	closed     bool
	failAttach bool
}

func newFakeSession(callbacks ports.SessionCallbacks) *fakeSession {
	return &fakeSession{
		callbacks: callbacks,
		endpoints: make(map[domain.ChannelID]*fakeEndpoint),
	}
}

func (s *fakeSession) AttachMediaEndpoint(channelID domain.ChannelID, kind domain.ChannelKind, codec string) (ports.SendEndpoint, error) {
	return s.attach(channelID)
}

func (s *fakeSession) AttachDataEndpoint(channelID domain.ChannelID) (ports.SendEndpoint, error) {
	return s.attach(channelID)
}

func (s *fakeSession) attach(channelID domain.ChannelID) (ports.SendEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAttach {
		return nil, errors.New("attach failed")
	}
	ep := &fakeEndpoint{}
	s.endpoints[channelID] = ep
	return ep, nil
}

func (s *fakeSession) endpoint(channelID domain.ChannelID) *fakeEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[channelID]
}

func (s *fakeSession) SetRemoteDescription(sdpType, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.remoteSDP = sdp
	return nil
}

func (s *fakeSession) CreateAnswer() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", domain.ErrSessionClosed
	}
	cb := s.callbacks.OnLocalDescription
	s.mu.Unlock()

	if cb != nil {
		cb("answer", "fake-answer-sdp")
	}
	return "fake-answer-sdp", nil
}

func (s *fakeSession) AddRemoteCandidate(candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.candidates = append(s.candidates, candidate)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeTransport hands out fakeSessions and remembers them.
type fakeTransport struct {
	mu         sync.Mutex
	sessions   []*fakeSession
	failCreate bool
	failAttach bool
}

func (t *fakeTransport) CreateSession(callbacks ports.SessionCallbacks) (ports.TransportSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failCreate {
		return nil, errors.New("session creation failed")
	}
	session := newFakeSession(callbacks)
	session.failAttach = t.failAttach
	t.sessions = append(t.sessions, session)
	return session, nil
}

func (t *fakeTransport) lastSession() *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return nil
	}
	return t.sessions[len(t.sessions)-1]
}
