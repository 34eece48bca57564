// Package peer maintains the peer related information such as the set of
// known peers, their trust scores, and their outstanding request counts.
package peer

import (
	"sync"
)

// banScore is the accumulated misbehavior score at which a peer is dropped
// from the set.
const banScore = 100

// Peer represents information about a node in the network.
type Peer struct {
	Host string
}

// New constructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents information about the chain state of any given peer.
// It doubles as the ping/pong exchange and carries peer discovery.
type Status struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// record holds the mutable bookkeeping for one known peer. It is owned by
// the set and only read through copies.
type record struct {
	score    int
	inFlight int
}

// PeerSet represents the data representation to maintain a set of known
// peers and their request bookkeeping.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]*record
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]*record),
	}
}

// Add adds a new node to the set with a clean score.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; !exists {
		ps.set[peer] = &record{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a list of the known peers, excluding the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}

// =============================================================================

// Downgrade adds penalty to the peer's misbehavior score. When the score
// crosses the ban threshold the peer is dropped from the set and true is
// returned.
func (ps *PeerSet) Downgrade(peer Peer, penalty int) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	rec, exists := ps.set[peer]
	if !exists {
		return false
	}

	rec.score += penalty
	if rec.score >= banScore {
		delete(ps.set, peer)
		return true
	}

	return false
}

// BeginRequest records an outstanding request against the peer.
func (ps *PeerSet) BeginRequest(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if rec, exists := ps.set[peer]; exists {
		rec.inFlight++
	}
}

// EndRequest releases an outstanding request slot for the peer.
func (ps *PeerSet) EndRequest(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if rec, exists := ps.set[peer]; exists && rec.inFlight > 0 {
		rec.inFlight--
	}
}

// LeastBusy returns the known peer with the fewest outstanding requests,
// excluding the specified host. Used to load balance block body fetches.
func (ps *PeerSet) LeastBusy(host string) (Peer, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var best Peer
	found := false
	lowest := 0

	for peer, rec := range ps.set {
		if peer.Match(host) {
			continue
		}
		if !found || rec.inFlight < lowest {
			best = peer
			lowest = rec.inFlight
			found = true
		}
	}

	return best, found
}
