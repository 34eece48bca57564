package database

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// IndexEntry represents one accepted header within the chain index. Entries
// form a tree rooted at genesis. Parent links are lookups into the index
// arena by hash, never owning pointers, so a malicious parent reference can
// not create a cycle that outlives a reachability check.
type IndexEntry struct {
	Hash       chainhash.Hash
	ParentHash chainhash.Hash
	Height     uint64
	Difficulty uint64
	TimeStamp  uint64
	Work       *big.Int // Cumulative work from genesis through this entry.
	MainChain  bool

	// parent is resolved once at insert from the arena. nil for genesis.
	parent *IndexEntry
}

// ancestorAt walks the parent links back to the entry at the specified
// height. Returns nil when height is above this entry.
func (e *IndexEntry) ancestorAt(height uint64) *IndexEntry {
	if height > e.Height {
		return nil
	}

	entry := e
	for entry != nil && entry.Height > height {
		entry = entry.parent
	}

	return entry
}

// toData converts the entry to its persisted form.
func (e *IndexEntry) toData() IndexEntryData {
	return IndexEntryData{
		Hash:       e.Hash.String(),
		Parent:     e.ParentHash.String(),
		Height:     e.Height,
		Difficulty: e.Difficulty,
		TimeStamp:  e.TimeStamp,
		Work:       e.Work.String(),
		MainChain:  e.MainChain,
	}
}

// toIndexEntry converts a persisted form back to an entry. Parent linkage is
// resolved by the caller once the whole index is loaded.
func toIndexEntry(data IndexEntryData) (*IndexEntry, error) {
	hash, err := chainhash.NewHashFromStr(data.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: index entry hash: %s", ErrCorruption, err)
	}

	parentHash, err := chainhash.NewHashFromStr(data.Parent)
	if err != nil {
		return nil, fmt.Errorf("%w: index entry parent: %s", ErrCorruption, err)
	}

	work, ok := new(big.Int).SetString(data.Work, 10)
	if !ok {
		return nil, fmt.Errorf("%w: index entry work %q", ErrCorruption, data.Work)
	}

	entry := IndexEntry{
		Hash:       *hash,
		ParentHash: *parentHash,
		Height:     data.Height,
		Difficulty: data.Difficulty,
		TimeStamp:  data.TimeStamp,
		Work:       work,
		MainChain:  data.MainChain,
	}

	return &entry, nil
}
