package state

import (
	"encoding/hex"
	"errors"

	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/metrics"
)

// ErrKnownInvalid is returned when a candidate's hash is already cached as
// consensus-invalid, so no verification work was repeated.
var ErrKnownInvalid = errors.New("header already known to be invalid")

// =============================================================================

// ProcessPeerHeader takes a header received from a peer and offers it to the
// chain. Orphans waiting on this header are retried immediately upon its
// acceptance.
func (s *State) ProcessPeerHeader(header database.Header) (database.AppendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendHeader(header, nil)
}

// ProcessPeerBlock takes a full block received from a peer, offers its
// header to the chain and stores the body. An in-progress local mining
// operation is cancelled when the block moves the tip, since its candidate
// is now stale.
func (s *State) ProcessPeerBlock(block database.Block) (database.AppendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipBefore := s.db.BestEntry().Hash

	status, err := s.appendHeader(block.Header, &block)
	if err != nil {
		return status, err
	}

	if status == database.Accepted && s.db.BestEntry().Hash != tipBefore && s.Worker != nil {

		// If the runMiningOperation function is being executed it needs to
		// stop immediately. The G executing runMiningOperation will not
		// return from the function until done is called. That allows this
		// function to complete its state changes before a new mining
		// operation takes place.
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessPeerBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	return status, err
}

// =============================================================================

// appendHeader runs a candidate through the chain and handles the outcome:
// orphans are parked, rejections are cached, and on acceptance any orphans
// waiting on this header are retried. Callers hold the state mutex.
func (s *State) appendHeader(header database.Header, block *database.Block) (database.AppendStatus, error) {
	hash := header.Hash()

	if s.invalid.Contains(hash) {
		return database.Rejected, ErrKnownInvalid
	}

	status, err := s.db.TryAppend(header)
	switch status {
	case database.Accepted:

	case database.Duplicate:
		if block != nil {
			return status, s.storeBody(*block)
		}
		return status, nil

	case database.Orphaned:
		s.evHandler("state: appendHeader: ORPHAN: height[%d] hash[%s] parent[%s]", header.Number, hash, header.ParentHash)
		s.addOrphan(header, block)
		metrics.OrphanPoolSize.Set(float64(s.OrphanCount()))
		return status, nil

	case database.Faulted:
		s.flagDegraded(err)
		s.evHandler("state: appendHeader: FAULT: height[%d] hash[%s]: %s", header.Number, hash, err)
		return status, err

	default:
		if database.IsConsensusError(err) {
			s.invalid.Add(hash, struct{}{})
		}
		metrics.BlocksRejected.Inc()
		s.evHandler("state: appendHeader: REJECT: height[%d] hash[%s]: %s", header.Number, hash, err)
		return status, err
	}

	metrics.BlocksAccepted.Inc()
	metrics.BestHeight.Set(float64(s.db.BestHeight()))
	if reorgs := s.db.ReorgCount(); reorgs > s.reorgsSeen {
		metrics.Reorgs.Add(float64(reorgs - s.reorgsSeen))
		s.reorgsSeen = reorgs
	}
	s.blockEvent(header)

	if block != nil {
		if err := s.storeBody(*block); err != nil {
			return database.Accepted, err
		}
	}

	// The arrival of this header may unblock orphans that were waiting on
	// it. Each retry can in turn unblock its own children.
	for _, o := range s.takeOrphans(hash) {
		if _, err := s.appendHeader(o.header, o.block); err != nil {
			s.evHandler("state: appendHeader: orphan retry: WARNING: %s", err)
		}
	}
	metrics.OrphanPoolSize.Set(float64(s.OrphanCount()))

	return database.Accepted, nil
}

// storeBody persists a block body, flagging degraded persistence rather
// than failing the chain when durability is the only problem. A payload
// that fails its commitment is the peer's fault, not the disk's.
func (s *State) storeBody(block database.Block) error {
	if err := s.db.StoreBlock(block); err != nil {
		if !database.IsConsensusError(err) {
			s.flagDegraded(err)
		}
		return err
	}

	return nil
}

// blockEvent provides a specific event about a newly accepted block for
// application specific support.
func (s *State) blockEvent(header database.Header) {
	s.evHandler(`viewer: block: {"height":%d,"hash":%q,"beacon":%q}`,
		header.Number, header.Hash(), hex.EncodeToString(header.BeaconOutput()))
}
