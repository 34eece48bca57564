package worker

import (
	"errors"

	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
	"github.com/pulsebeacon/pulse/foundation/beacon/state"
	"github.com/pulsebeacon/pulse/foundation/metrics"
)

// Penalties applied to a peer's trust score. Crossing the ban threshold
// drops the peer from the set.
const (
	penaltyInvalidHeader = 20
	penaltyBadBlock      = 50
)

// Synchronization states a peer moves through. Purely informational; the
// chain index is the arbiter of what gets accepted.
const (
	stateConnected  = "connected"
	stateHeaderSync = "headersync"
	stateBlockSync  = "blocksync"
	stateSynced     = "synced"
)

// =============================================================================

// Sync runs a full synchronization pass against every known peer: exchange
// status, adopt newly discovered peers, download headers we are missing,
// then fill in block bodies.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.KnownExternalPeers() {
		w.syncWithPeer(pr)
	}

	metrics.KnownPeers.Set(float64(len(w.state.KnownExternalPeers())))
}

// syncWithPeer catches this node up against a single peer, walking the
// Connected -> HeaderSync -> BlockSync -> Synced progression.
func (w *Worker) syncWithPeer(pr peer.Peer) {
	w.evHandler("worker: syncWithPeer: %s: state[%s]", pr.Host, stateConnected)

	peerStatus, err := w.state.NetRequestPeerStatus(pr)
	if err != nil {

		// A network failure releases anything outstanding against this
		// peer; the work is simply retried elsewhere or next tick.
		w.evHandler("worker: syncWithPeer: %s: ERROR: %s", pr.Host, err)
		return
	}

	w.addNewPeers(peerStatus.KnownPeers)

	if peerStatus.LatestBlockNumber > w.state.QueryHeight() {
		w.evHandler("worker: syncWithPeer: %s: state[%s]: peer height[%d] local height[%d]",
			pr.Host, stateHeaderSync, peerStatus.LatestBlockNumber, w.state.QueryHeight())

		if !w.headerSync(pr) {
			return
		}
	}

	w.evHandler("worker: syncWithPeer: %s: state[%s]", pr.Host, stateBlockSync)
	w.blockSync(pr)

	w.evHandler("worker: syncWithPeer: %s: state[%s]: height[%d]", pr.Host, stateSynced, w.state.QueryHeight())
}

// =============================================================================

// headerSync downloads headers from the peer in bounded batches until the
// peer has nothing newer. Returns false when the peer misbehaved badly
// enough that synchronization with it should stop.
func (w *Worker) headerSync(pr peer.Peer) bool {
	for {
		headers, err := w.state.NetRequestHeaders(pr)
		if err != nil {
			w.evHandler("worker: headerSync: %s: ERROR: %s", pr.Host, err)
			return false
		}

		if len(headers) == 0 {
			return true
		}

		// Within one batch headers are processed in the order received:
		// each one's parent is the previous. Anything out of order lands
		// in the orphan set rather than being reordered here.
		accepted := 0
		for _, header := range headers {
			status, err := w.state.ProcessPeerHeader(header)

			switch status {
			case database.Accepted:
				accepted++

			case database.Rejected:
				if !errors.Is(err, state.ErrKnownInvalid) {
					w.evHandler("worker: headerSync: %s: invalid header[%s]: %s", pr.Host, header.Hash(), err)
				}
				if w.state.DowngradePeer(pr, penaltyInvalidHeader) {
					w.evHandler("worker: headerSync: %s: trust exhausted, peer dropped", pr.Host)
					return false
				}

			case database.Faulted:

				// The disk failed, not the peer. End the pass; the
				// headers will be requested again on the next one.
				w.evHandler("worker: headerSync: %s: storage fault on header[%s]: %s", pr.Host, header.Hash(), err)
				return true
			}
		}

		// A batch that moved nothing forward means the locator can't
		// advance; asking again would loop forever.
		if accepted == 0 {
			return true
		}

		if len(headers) < w.state.Genesis().HeadersPerBatch {
			return true
		}
	}
}

// blockSync fetches bodies for accepted headers that don't have them yet.
// Each fetch goes to the peer with the fewest outstanding requests, falling
// back to the peer that triggered this pass.
func (w *Worker) blockSync(pr peer.Peer) {
	for _, hash := range w.state.QueryMissingBodies() {
		source, found := w.state.LeastBusyPeer()
		if !found {
			source = pr
		}

		block, err := w.state.NetRequestBlock(source, hash)
		if err != nil {
			w.evHandler("worker: blockSync: %s: block[%s]: ERROR: %s", source.Host, hash, err)

			// Reassign this fetch to the originating peer before giving
			// up on the body until the next pass. From here on source
			// names the peer that actually delivered, so a bad block is
			// charged to its server and not the peer that merely failed
			// to respond.
			if source == pr {
				continue
			}
			source = pr

			block, err = w.state.NetRequestBlock(source, hash)
			if err != nil {
				continue
			}
		}

		if status, err := w.state.ProcessPeerBlock(block); err != nil {
			w.evHandler("worker: blockSync: %s: block[%s]: REJECTED: %s", source.Host, hash, err)
			if status != database.Faulted {
				w.state.DowngradePeer(source, penaltyBadBlock)
			}
		}
	}
}

// addNewPeers takes the list of known peers received in a status exchange
// and adds any not already known.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	for _, pr := range knownPeers {
		if pr.Match(w.state.Host()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer-node %s", pr.Host)
		}
	}

	metrics.KnownPeers.Set(float64(len(w.state.KnownExternalPeers())))
}
