package database

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Errors the storage layer reports. ErrNotFound means the reference does not
// exist. ErrCorruption means stored bytes failed decoding and the record is
// unrecoverable; the caller decides whether the node can keep operating.
var (
	ErrNotFound   = errors.New("not found")
	ErrCorruption = errors.New("storage corruption")
)

// Storage interface represents the behavior required to be implemented by
// any package providing durable support for the chain. Every mutation is
// atomic with respect to a single record and durable before the call
// returns; concurrent readers never observe a half-written record.
type Storage interface {
	WriteHeader(header Header) error
	GetHeader(hash chainhash.Hash) (Header, error)
	WriteBlock(blockData BlockData) error
	GetBlock(hash chainhash.Hash) (BlockData, error)
	HasBlock(hash chainhash.Hash) bool
	WriteIndexEntry(entry IndexEntryData) error
	ForEachIndexEntry() Iterator
	WriteBestPointer(pointer BestPointer) error
	GetBestPointer() (BestPointer, error)
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the stored index entries.
// No ordering is guaranteed; the caller links entries by parent reference.
type Iterator interface {
	Next() (IndexEntryData, error)
	Done() bool
}

// =============================================================================

// IndexEntryData represents what is written to storage for one chain index
// entry.
type IndexEntryData struct {
	Hash       string `json:"hash"`
	Parent     string `json:"parent"`
	Height     uint64 `json:"height"`
	Difficulty uint64 `json:"difficulty"`
	TimeStamp  uint64 `json:"timestamp"`
	Work       string `json:"work"` // Cumulative work, decimal big integer.
	MainChain  bool   `json:"main_chain"`
}

// BestPointer represents the single record naming the tip of the canonical
// chain. Corruption of this record is not automatically repairable.
type BestPointer struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
}
