// Package worker implements the different workflows for the beacon node
// such as mining, peer synchronization, and orphan maintenance.
package worker

import (
	"sync"
	"time"

	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
	"github.com/pulsebeacon/pulse/foundation/beacon/state"
)

// peerUpdateInterval represents the interval for polling peer status and
// catching up on anything announcements missed.
const peerUpdateInterval = time.Minute

// orphanSweepInterval represents the interval for discarding orphans whose
// parent never arrived.
const orphanSweepInterval = 30 * time.Second

// maxPendingSyncs bounds the queue of per-peer sync requests signaled by
// announcements.
const maxPendingSyncs = 16

// Worker manages the delay-computation and synchronization workflows for
// the node.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	orphanTicker *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	syncPeer     chan peer.Peer
	evHandler    state.EventHandler
}

// Run creates a worker, registers it to the state, and starts all the
// operational goroutines. Run doesn't return until every goroutine reports
// it is running.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:        st,
		ticker:       time.NewTicker(peerUpdateInterval),
		orphanTicker: time.NewTicker(orphanSweepInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		syncPeer:     make(chan peer.Peer, maxPendingSyncs),
		evHandler:    evHandler,
	}

	// Register this worker with the state. During initialization the state
	// needs the worker for the cancel-mining handshake.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations needed to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.syncOperations,
		w.orphanOperations,
	}

	// Set waitgroup to match the number of G's needed for the set of
	// operations.
	g := len(operations)
	w.wg.Add(g)

	// Don't return until all G's are up and running.
	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// A beacon node drives the delay function continuously.
	w.SignalStartMining()
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.ticker.Stop()
	w.orphanTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// =============================================================================

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not return from the function until done
// is called. This allows the caller to complete any state changes before a
// new mining operation takes place.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: cancel mining signaled")

	return func() { close(wait) }
}

// SignalSync queues a synchronization pass against the specified peer. Used
// when an announcement shows the peer is ahead of us, which re-enters header
// synchronization for that peer.
func (w *Worker) SignalSync(pr peer.Peer) {
	select {
	case w.syncPeer <- pr:
		w.evHandler("worker: SignalSync: sync signaled: %s", pr.Host)
	default:
		w.evHandler("worker: SignalSync: queue full, sync not scheduled: %s", pr.Host)
	}
}

// =============================================================================

// peerOperations handles polling peers for status and finding new peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.Sync()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// miningOperations handles driving the delay computation.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// syncOperations handles announcement-driven synchronization requests.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case pr := <-w.syncPeer:
			if !w.isShutdown() {
				w.syncWithPeer(pr)
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}

// orphanOperations handles discarding orphans past their age bound.
func (w *Worker) orphanOperations() {
	w.evHandler("worker: orphanOperations: G started")
	defer w.evHandler("worker: orphanOperations: G completed")

	for {
		select {
		case <-w.orphanTicker.C:
			if !w.isShutdown() {
				w.state.PruneOrphans()
			}
		case <-w.shut:
			w.evHandler("worker: orphanOperations: received shut signal")
			return
		}
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
