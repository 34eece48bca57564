// Package state is the core API for the beacon node and implements all the
// consensus rules and processing.
package state

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/genesis"
	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
	"github.com/pulsebeacon/pulse/foundation/metrics"
)

// invalidCacheSize bounds the cache of hashes already known to violate
// consensus rules. A peer re-sending junk is dismissed without re-running
// proof verification.
const invalidCacheSize = 1024

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer synchronization, and orphan
// maintenance.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalSync(pr peer.Peer)
}

// =============================================================================

// Config represents the configuration required to start the beacon node.
type Config struct {
	Host       string
	Genesis    genesis.Genesis
	Storage    database.Storage
	KnownPeers *peer.PeerSet
	EvHandler  EventHandler
}

// State manages the chain of delay-proof blocks. Every mutation, whether it
// originates from a peer or from the local producer, funnels through the one
// mutex held here.
type State struct {
	mu sync.Mutex

	host       string
	evHandler  EventHandler
	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	db         *database.Database
	invalid    *lru.Cache
	reorgsSeen uint64

	orphanMu sync.Mutex
	orphans  map[chainhash.Hash][]orphan

	degradedMu sync.RWMutex
	degraded   bool

	Worker Worker
}

// New constructs a new state for chain management.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	invalid, err := lru.New(invalidCacheSize)
	if err != nil {
		return nil, err
	}

	state := State{
		host:       cfg.Host,
		evHandler:  ev,
		genesis:    cfg.Genesis,
		knownPeers: cfg.KnownPeers,
		db:         db,
		invalid:    invalid,
		orphans:    make(map[chainhash.Hash][]orphan),
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	defer func() {
		s.db.Close()
	}()

	// Stop all chain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// Host returns a copy of host information.
func (s *State) Host() string {
	return s.host
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// KnownExternalPeers retrieves a copy of the known peer list without
// including this node.
func (s *State) KnownExternalPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to the known peer
// list. Returns true if the peer was not already known.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	return s.knownPeers.Add(pr)
}

// RemoveKnownPeer provides the ability to remove a peer from the known peer
// list.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.knownPeers.Remove(pr)
}

// DowngradePeer adds penalty to the peer's misbehavior score, dropping the
// peer when the score crosses the ban threshold. Reports whether the peer
// was dropped.
func (s *State) DowngradePeer(pr peer.Peer, penalty int) bool {
	return s.knownPeers.Downgrade(pr, penalty)
}

// LeastBusyPeer returns the known peer with the fewest outstanding
// requests.
func (s *State) LeastBusyPeer() (peer.Peer, bool) {
	return s.knownPeers.LeastBusy(s.host)
}

// =============================================================================

// flagDegraded records that a durability write failed. The node keeps
// operating on its in-memory state but operators need to know persistence
// can no longer be trusted.
func (s *State) flagDegraded(err error) {
	s.degradedMu.Lock()
	defer s.degradedMu.Unlock()

	if !s.degraded {
		s.evHandler("state: persistence degraded: %s", err)
	}
	s.degraded = true
}

// DegradedPersistence reports whether a durability write has failed since
// startup.
func (s *State) DegradedPersistence() bool {
	s.degradedMu.RLock()
	defer s.degradedMu.RUnlock()

	return s.degraded
}

// =============================================================================

// orphan represents a header whose parent is not yet known, waiting a
// bounded time for the parent to arrive.
type orphan struct {
	header database.Header
	block  *database.Block
	seen   time.Time
}

// addOrphan parks a header (and its body when one arrived with it) keyed by
// the parent reference it is waiting for.
func (s *State) addOrphan(header database.Header, block *database.Block) {
	s.orphanMu.Lock()
	defer s.orphanMu.Unlock()

	for _, o := range s.orphans[header.ParentHash] {
		if o.header.Hash() == header.Hash() {
			return
		}
	}

	s.orphans[header.ParentHash] = append(s.orphans[header.ParentHash], orphan{
		header: header,
		block:  block,
		seen:   time.Now(),
	})
}

// takeOrphans removes and returns the orphans waiting on the specified
// parent.
func (s *State) takeOrphans(parent chainhash.Hash) []orphan {
	s.orphanMu.Lock()
	defer s.orphanMu.Unlock()

	orphans := s.orphans[parent]
	delete(s.orphans, parent)
	return orphans
}

// OrphanCount returns the number of headers parked in the orphan set.
func (s *State) OrphanCount() int {
	s.orphanMu.Lock()
	defer s.orphanMu.Unlock()

	return count(s.orphans)
}

// PruneOrphans discards orphans older than the configured age bound so the
// set cannot grow without limit. Returns how many were discarded.
func (s *State) PruneOrphans() int {
	ttl := time.Duration(s.genesis.OrphanTTL) * time.Second
	cutoff := time.Now().Add(-ttl)

	s.orphanMu.Lock()
	defer s.orphanMu.Unlock()

	pruned := 0
	for parent, orphans := range s.orphans {
		keep := orphans[:0]
		for _, o := range orphans {
			if o.seen.Before(cutoff) {
				pruned++
				continue
			}
			keep = append(keep, o)
		}

		if len(keep) == 0 {
			delete(s.orphans, parent)
			continue
		}
		s.orphans[parent] = keep
	}

	if pruned > 0 {
		s.evHandler("state: pruneOrphans: discarded[%d]", pruned)
	}
	metrics.OrphanPoolSize.Set(float64(count(s.orphans)))

	return pruned
}

// count totals the orphans across every parent bucket. Callers hold the
// orphan mutex.
func count(orphans map[chainhash.Hash][]orphan) int {
	total := 0
	for _, list := range orphans {
		total += len(list)
	}
	return total
}
