package relay

import (
	"sync"
	"time"

	"framecast/internal/core/domain"
	"framecast/internal/core/ports"
)

// Peer is one connected consumer: its transport session plus one send
// endpoint per channel that existed when the peer was set up. Channels
// added later are not retroactively wired to already-connected peers.
type Peer struct {
	ID        domain.PeerID
	Session   ports.TransportSession
	Endpoints map[domain.ChannelID]ports.SendEndpoint
	CreatedAt time.Time
}

// PeerRegistry holds all connected peers behind a single lock. The lock is
// only held to copy the peer list; fanout sends run against the snapshot
// so a blocking transport call never stalls registry mutation.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*Peer
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[domain.PeerID]*Peer)}
}

// Add registers a peer. Peers are added eagerly, before negotiation
// completes; their endpoints simply report not-open until then.
func (r *PeerRegistry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID] = p
}

// Get returns the peer for id, if registered.
func (r *PeerRegistry) Get(id domain.PeerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Remove unregisters and returns the peer so the caller can tear down its
// session outside the lock.
func (r *PeerRegistry) Remove(id domain.PeerID) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	return p, ok
}

// Snapshot returns a copy of the current peer list.
func (r *PeerRegistry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the number of connected peers.
func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
