// Package database handles all the lower level support for maintaining the
// chain of delay-proof headers on disk and the in-memory index used to pick
// the canonical chain.
package database

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pulsebeacon/pulse/foundation/beacon/genesis"
)

// AppendStatus describes the outcome of offering a header to the chain.
type AppendStatus int

// The set of outcomes TryAppend can report.
const (
	Accepted  AppendStatus = iota // Header entered the index.
	Duplicate                     // Header already in the index, no state change.
	Orphaned                      // Parent unknown, caller may retry when it arrives.
	Rejected                      // Header violates consensus rules, never retried.
	Faulted                       // Storage failed during the attempt, header may be retried.
)

// String implements the fmt.Stringer interface.
func (s AppendStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Orphaned:
		return "orphaned"
	case Rejected:
		return "rejected"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// ErrBestPointer is returned when the stored best-chain pointer cannot be
// resolved against the index. There is no safe automatic repair for the
// canonicity record, so this is fatal for the node.
var ErrBestPointer = errors.New("best pointer unrecoverable")

// =============================================================================

// Database manages the chain index and the durable record of every accepted
// header and block. All mutations are expected to arrive through a single
// serialized caller; the internal lock exists so readers observe a
// consistent snapshot while the best pointer swaps.
type Database struct {
	mu sync.RWMutex

	genesis       genesis.Genesis
	genesisHeader Header
	index         map[chainhash.Hash]*IndexEntry
	heights       map[uint64]chainhash.Hash
	best          *IndexEntry
	storage       Storage
	evHandler     func(v string, args ...any)
	reorgs        uint64
}

// New constructs a new database, synthesizing the genesis block from the
// genesis parameters and loading any previously accepted chain from storage.
// Every loaded entry is re-linked and checked for dangling parents.
func New(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:   gen,
		index:     make(map[chainhash.Hash]*IndexEntry),
		heights:   make(map[uint64]chainhash.Hash),
		storage:   storage,
		evHandler: evHandler,
	}

	db.genesisHeader = Header{
		Difficulty: gen.Difficulty,
		TimeStamp:  uint64(gen.Date.UTC().Unix()),
		Number:     0,
	}

	// Read every index entry from storage. Ordering on disk is arbitrary,
	// so link parents in a second pass.
	loaded := make(map[chainhash.Hash]*IndexEntry)
	iter := db.storage.ForEachIndexEntry()
	for data, err := iter.Next(); !iter.Done(); data, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		entry, err := toIndexEntry(data)
		if err != nil {
			return nil, err
		}
		loaded[entry.Hash] = entry
	}

	if len(loaded) == 0 {
		if err := db.bootstrap(); err != nil {
			return nil, err
		}
		return &db, nil
	}

	genesisHash := db.genesisHeader.Hash()
	for _, entry := range loaded {
		if entry.Hash == genesisHash {
			continue
		}

		parent, exists := loaded[entry.ParentHash]
		if !exists {
			return nil, fmt.Errorf("%w: entry %s references unknown parent %s", ErrCorruption, entry.Hash, entry.ParentHash)
		}
		entry.parent = parent
	}

	if _, exists := loaded[genesisHash]; !exists {
		return nil, fmt.Errorf("%w: genesis entry missing from index", ErrCorruption)
	}
	db.index = loaded

	// The best pointer is the canonicity record. If it cannot be resolved
	// the operator has to intervene; guessing a tip would be worse.
	pointer, err := db.storage.GetBestPointer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBestPointer, err)
	}

	bestHash, err := chainhash.NewHashFromStr(pointer.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBestPointer, err)
	}

	best, exists := db.index[*bestHash]
	if !exists {
		return nil, fmt.Errorf("%w: pointer %s not in index", ErrBestPointer, pointer.Hash)
	}
	db.best = best

	for entry := best; entry != nil; entry = entry.parent {
		db.heights[entry.Height] = entry.Hash
	}

	db.evHandler("database: load: height[%d] tip[%s] entries[%d]", best.Height, best.Hash, len(db.index))

	return &db, nil
}

// bootstrap writes the genesis records for a chain starting empty.
func (db *Database) bootstrap() error {
	entry := IndexEntry{
		Hash:       db.genesisHeader.Hash(),
		Height:     0,
		Difficulty: db.genesisHeader.Difficulty,
		TimeStamp:  db.genesisHeader.TimeStamp,
		Work:       big.NewInt(0),
		MainChain:  true,
	}

	if err := db.storage.WriteHeader(db.genesisHeader); err != nil {
		return err
	}
	if err := db.storage.WriteIndexEntry(entry.toData()); err != nil {
		return err
	}
	if err := db.storage.WriteBestPointer(BestPointer{Hash: entry.Hash.String(), Height: 0}); err != nil {
		return err
	}

	db.index[entry.Hash] = &entry
	db.heights[0] = entry.Hash
	db.best = &entry

	db.evHandler("database: bootstrap: genesis[%s]", entry.Hash)

	return nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	db.storage.Close()
}

// =============================================================================

// TryAppend offers a header to the chain. On acceptance the header's entry
// is inserted with its cumulative work and, if that work exceeds the current
// best, the canonical chain is reorganized onto it. The caller is expected
// to serialize calls; peers and the local producer share this one path.
// Rejected is a verdict about the header and is permanent; Faulted means
// storage failed and the same header may be offered again later.
func (db *Database) TryAppend(header Header) (AppendStatus, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	hash := header.Hash()

	if _, exists := db.index[hash]; exists {
		return Duplicate, nil
	}

	parent, exists := db.index[header.ParentHash]
	if !exists {
		return Orphaned, nil
	}

	parentHeader, err := db.storage.GetHeader(parent.Hash)
	if err != nil {
		return Faulted, err
	}

	prescribed := db.prescribedDifficulty(parent)
	now := time.Now().UTC()
	maxDrift := time.Duration(db.genesis.MaxClockDrift) * time.Second

	if err := header.ValidateAgainst(parentHeader, prescribed, now, maxDrift); err != nil {
		return Rejected, err
	}

	entry := IndexEntry{
		Hash:       hash,
		ParentHash: header.ParentHash,
		Height:     header.Number,
		Difficulty: header.Difficulty,
		TimeStamp:  header.TimeStamp,
		Work:       new(big.Int).Add(parent.Work, new(big.Int).SetUint64(header.Difficulty)),
		parent:     parent,
	}

	if err := db.storage.WriteHeader(header); err != nil {
		return Faulted, err
	}
	if err := db.storage.WriteIndexEntry(entry.toData()); err != nil {
		return Faulted, err
	}
	db.index[hash] = &entry

	db.evHandler("database: append: height[%d] hash[%s] work[%s]", entry.Height, hash, entry.Work)

	// Ties keep the incumbent: strictly more work is required to move the
	// pointer, which makes the tie-break earliest-seen on this node.
	if entry.Work.Cmp(db.best.Work) > 0 {
		if err := db.reorganize(&entry, now, maxDrift); err != nil {
			if IsConsensusError(err) {
				return Rejected, err
			}
			return Faulted, err
		}
	}

	return Accepted, nil
}

// reorganize moves the canonical chain onto newTip. Both paths are walked
// back to their common ancestor; the connect side is re-verified against the
// current context before the pointer swaps. Callers hold the write lock.
func (db *Database) reorganize(newTip *IndexEntry, now time.Time, maxDrift time.Duration) error {
	oldTip := db.best
	ancestor := commonAncestor(oldTip, newTip)
	if ancestor == nil {
		return fmt.Errorf("%w: no common ancestor for %s", ErrCorruption, newTip.Hash)
	}

	var disconnect []*IndexEntry
	for entry := oldTip; entry != ancestor; entry = entry.parent {
		disconnect = append(disconnect, entry)
	}

	var connect []*IndexEntry
	for entry := newTip; entry != ancestor; entry = entry.parent {
		connect = append(connect, entry)
	}
	for i, j := 0, len(connect)-1; i < j; i, j = i+1, j-1 {
		connect[i], connect[j] = connect[j], connect[i]
	}

	// A deep fork may contain a header that was valid when first inserted
	// as a side entry but is invalidated by the context it would now join,
	// so every connect-side header re-verifies before any flag flips.
	for _, entry := range connect {
		header, err := db.storage.GetHeader(entry.Hash)
		if err != nil {
			return err
		}

		parentHeader, err := db.storage.GetHeader(entry.ParentHash)
		if err != nil {
			return err
		}

		if err := header.ValidateAgainst(parentHeader, db.prescribedDifficulty(entry.parent), now, maxDrift); err != nil {
			return fmt.Errorf("reorg aborted, connect-side header %s invalid: %w", entry.Hash, err)
		}
	}

	if len(disconnect) > 0 {
		db.reorgs++
		db.evHandler("database: reorganize: fork[%d] disconnect[%d] connect[%d] old[%s] new[%s]",
			ancestor.Height, len(disconnect), len(connect), oldTip.Hash, newTip.Hash)
	}

	for _, entry := range disconnect {
		entry.MainChain = false
		delete(db.heights, entry.Height)
		if err := db.storage.WriteIndexEntry(entry.toData()); err != nil {
			return err
		}
	}

	for _, entry := range connect {
		entry.MainChain = true
		db.heights[entry.Height] = entry.Hash
		if err := db.storage.WriteIndexEntry(entry.toData()); err != nil {
			return err
		}
	}

	// The pointer write is the commit point for the whole reorganization.
	if err := db.storage.WriteBestPointer(BestPointer{Hash: newTip.Hash.String(), Height: newTip.Height}); err != nil {
		return err
	}
	db.best = newTip

	return nil
}

// commonAncestor returns the deepest entry reachable from both a and b.
func commonAncestor(a *IndexEntry, b *IndexEntry) *IndexEntry {
	if a.Height > b.Height {
		a = a.ancestorAt(b.Height)
	}
	if b.Height > a.Height {
		b = b.ancestorAt(a.Height)
	}

	for a != nil && b != nil && a != b {
		a = a.parent
		b = b.parent
	}

	if a == nil || b == nil {
		return nil
	}

	return a
}

// =============================================================================

// StoreBlock persists a block body whose header has already been accepted
// into the index. The payload must match the commitment in the header.
func (db *Database) StoreBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	hash := block.Hash()
	if _, exists := db.index[hash]; !exists {
		return fmt.Errorf("block %s has no accepted header", hash)
	}

	root, err := block.Payload.RootHash()
	if err != nil {
		return err
	}
	if root != block.Header.PayloadRoot {
		return fmt.Errorf("%w: payload does not match commitment for %s", ErrBadSeed, hash)
	}

	return db.storage.WriteBlock(NewBlockData(block))
}

// HasBlock reports whether a block body is stored for the specified hash.
func (db *Database) HasBlock(hash chainhash.Hash) bool {
	return db.storage.HasBlock(hash)
}

// =============================================================================

// GenesisHeader returns the synthesized genesis header.
func (db *Database) GenesisHeader() Header {
	return db.genesisHeader
}

// BestEntry returns a copy of the entry the best-chain pointer references.
func (db *Database) BestEntry() IndexEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entry := *db.best
	entry.Work = new(big.Int).Set(db.best.Work)
	entry.parent = nil
	return entry
}

// NextDifficulty returns the difficulty the consensus rules prescribe for a
// block extending the canonical tip.
func (db *Database) NextDifficulty() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.prescribedDifficulty(db.best)
}

// ReorgCount returns how many reorganizations have moved the pointer off a
// previously canonical path since startup.
func (db *Database) ReorgCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.reorgs
}

// BestHeight returns the height of the canonical tip.
func (db *Database) BestHeight() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.best.Height
}

// BestHeader returns the header of the canonical tip.
func (db *Database) BestHeader() (Header, error) {
	db.mu.RLock()
	best := db.best.Hash
	db.mu.RUnlock()

	return db.storage.GetHeader(best)
}

// Entry returns a copy of the index entry for the specified hash.
func (db *Database) Entry(hash chainhash.Hash) (IndexEntry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entry, exists := db.index[hash]
	if !exists {
		return IndexEntry{}, false
	}

	cp := *entry
	cp.Work = new(big.Int).Set(entry.Work)
	cp.parent = nil
	return cp, true
}

// HeaderByHash returns the stored header for the specified hash.
func (db *Database) HeaderByHash(hash chainhash.Hash) (Header, error) {
	return db.storage.GetHeader(hash)
}

// HeaderByHeight returns the canonical header at the specified height.
func (db *Database) HeaderByHeight(height uint64) (Header, error) {
	db.mu.RLock()
	hash, exists := db.heights[height]
	db.mu.RUnlock()

	if !exists {
		return Header{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}

	return db.storage.GetHeader(hash)
}

// BlockByHash returns the stored block for the specified hash.
func (db *Database) BlockByHash(hash chainhash.Hash) (Block, error) {
	blockData, err := db.storage.GetBlock(hash)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (db *Database) IsAncestor(a chainhash.Hash, b chainhash.Hash) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entryB, exists := db.index[b]
	if !exists {
		return false
	}

	entryA, exists := db.index[a]
	if !exists {
		return false
	}

	return entryB.ancestorAt(entryA.Height) == entryA
}

// =============================================================================

// Locator returns a sparse list of canonical header hashes, dense near the
// tip and exponentially sparser toward genesis, used by a peer to find the
// common ancestor efficiently.
func (db *Database) Locator() []chainhash.Hash {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var locator []chainhash.Hash

	step := uint64(1)
	height := db.best.Height
	for {
		locator = append(locator, db.heights[height])
		if height == 0 {
			break
		}

		if len(locator) >= 8 {
			step *= 2
		}

		if height < step {
			height = 0
			continue
		}
		height -= step
	}

	return locator
}

// HeadersAfter returns up to limit canonical headers following the first
// locator hash found on the canonical chain. An empty locator, or one with
// no canonical match, starts from the block after genesis.
func (db *Database) HeadersAfter(locator []chainhash.Hash, limit int) ([]Header, error) {
	db.mu.RLock()

	start := uint64(0)
	for _, hash := range locator {
		entry, exists := db.index[hash]
		if exists && entry.MainChain {
			start = entry.Height
			break
		}
	}

	var hashes []chainhash.Hash
	for height := start + 1; height <= db.best.Height && len(hashes) < limit; height++ {
		hashes = append(hashes, db.heights[height])
	}
	db.mu.RUnlock()

	var headers []Header
	for _, hash := range hashes {
		header, err := db.storage.GetHeader(hash)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}

	return headers, nil
}

// MissingBodies walks the canonical chain and returns the hashes of
// accepted headers whose block bodies are not stored. Used at startup to
// resume an interrupted body download.
func (db *Database) MissingBodies() []chainhash.Hash {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var missing []chainhash.Hash
	for height := uint64(1); height <= db.best.Height; height++ {
		hash := db.heights[height]
		if !db.storage.HasBlock(hash) {
			missing = append(missing, hash)
		}
	}

	return missing
}
