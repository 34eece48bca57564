package state

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
)

// QueryHeight returns the height of the canonical tip. Non-blocking
// snapshot read; a reorganization in flight shows either the old or the new
// tip, never a torn intermediate.
func (s *State) QueryHeight() uint64 {
	return s.db.BestHeight()
}

// QueryBestHeader returns the header the best-chain pointer references.
func (s *State) QueryBestHeader() (database.Header, error) {
	return s.db.BestHeader()
}

// QueryHeaderByHeight returns the canonical header at the specified height.
func (s *State) QueryHeaderByHeight(height uint64) (database.Header, error) {
	return s.db.HeaderByHeight(height)
}

// QueryBlockByHash returns the stored block with the specified hash.
func (s *State) QueryBlockByHash(hash chainhash.Hash) (database.Block, error) {
	return s.db.BlockByHash(hash)
}

// QueryBeaconOutput returns the randomness the chain produced at the
// specified height on the canonical chain.
func (s *State) QueryBeaconOutput(height uint64) ([]byte, error) {
	header, err := s.db.HeaderByHeight(height)
	if err != nil {
		return nil, err
	}

	return header.BeaconOutput(), nil
}

// QueryStatus assembles the status exchanged with peers: our tip and the
// peers we know.
func (s *State) QueryStatus() (peer.Status, error) {
	entry := s.db.BestEntry()

	status := peer.Status{
		LatestBlockHash:   entry.Hash.String(),
		LatestBlockNumber: entry.Height,
		KnownPeers:        s.knownPeers.Copy(s.host),
	}

	return status, nil
}

// QueryHeadersAfter returns up to the genesis-configured batch size of
// canonical headers following the locator. This is the serving side of
// header synchronization.
func (s *State) QueryHeadersAfter(locator []chainhash.Hash) ([]database.Header, error) {
	return s.db.HeadersAfter(locator, s.genesis.HeadersPerBatch)
}

// QueryMissingBodies returns the canonical headers accepted without bodies.
func (s *State) QueryMissingBodies() []chainhash.Hash {
	return s.db.MissingBodies()
}

// IsAncestor reports whether block a is an ancestor of block b on any path
// in the index.
func (s *State) IsAncestor(a chainhash.Hash, b chainhash.Hash) bool {
	return s.db.IsAncestor(a, b)
}

// HasBlockBody reports whether a body is stored for the specified hash.
func (s *State) HasBlockBody(hash chainhash.Hash) bool {
	return s.db.HasBlock(hash)
}
