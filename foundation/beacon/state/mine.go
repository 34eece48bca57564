package state

import (
	"context"
	"errors"

	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/metrics"
)

// ErrStaleWork is returned when a locally produced candidate was computed
// against a tip that moved before the candidate finished. The result is
// discarded and mining restarts from the new tip; this is not a failure.
var ErrStaleWork = errors.New("candidate stale, tip advanced during computation")

// =============================================================================

// MineNextBlock assembles a candidate extending the current best tip and
// drives the delay computation for it. The computation runs without holding
// the state mutex so peer traffic keeps flowing. Before submitting, the tip
// is re-checked: the delay computation takes long enough that the chain may
// well have moved, and submitting the stale candidate would waste a write
// and an announcement on a block that loses immediately.
func (s *State) MineNextBlock(ctx context.Context) (database.Block, error) {
	parent, err := s.db.BestHeader()
	if err != nil {
		return database.Block{}, err
	}
	parentHash := parent.Hash()
	prescribed := s.db.NextDifficulty()

	s.evHandler("state: MineNextBlock: MINING: height[%d] parent[%s] difficulty[%d]", parent.Number+1, parentHash, prescribed)

	// The payload folds the parent's randomness back in, so the committed
	// content is itself unpredictable before the parent exists.
	payload := []database.Record{
		{Origin: s.host, Data: parent.BeaconOutput()},
	}

	block, err := database.Produce(ctx, parent, prescribed, payload)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Mandatory stale-tip re-check. A peer block may have arrived while the
	// computation ran.
	if s.db.BestEntry().Hash != parentHash {
		metrics.StaleCandidates.Inc()
		return database.Block{}, ErrStaleWork
	}

	s.evHandler("state: MineNextBlock: MINING: update local state")

	status, err := s.appendHeader(block.Header, &block)
	if err != nil {
		return database.Block{}, err
	}
	if status != database.Accepted {
		return database.Block{}, errors.New("mined block not accepted: " + status.String())
	}

	metrics.BlocksMined.Inc()

	return block, nil
}
