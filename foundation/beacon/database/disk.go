package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DiskStorage implements the Storage interface using one file per record.
// Records are written to a temp file, synced, and renamed into place so a
// crash mid-write never leaves a partial record where a reader can see it.
type DiskStorage struct {
	dbPath string
	mu     sync.RWMutex
}

// NewDiskStorage constructs the storage rooted at the specified path,
// creating the table directories as needed.
func NewDiskStorage(dbPath string) (*DiskStorage, error) {
	for _, table := range []string{"headers", "blocks", "index"} {
		if err := os.MkdirAll(filepath.Join(dbPath, table), 0755); err != nil {
			return nil, err
		}
	}

	return &DiskStorage{dbPath: dbPath}, nil
}

// Close releases the storage. Nothing is held open between calls.
func (ds *DiskStorage) Close() error {
	return nil
}

// Reset removes every record and re-creates the empty table layout.
func (ds *DiskStorage) Reset() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := os.RemoveAll(ds.dbPath); err != nil {
		return err
	}

	for _, table := range []string{"headers", "blocks", "index"} {
		if err := os.MkdirAll(filepath.Join(ds.dbPath, table), 0755); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// WriteHeader stores a header keyed by its content hash.
func (ds *DiskStorage) WriteHeader(header Header) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.writeRecord(filepath.Join("headers", header.Hash().String()), header)
}

// GetHeader retrieves a header by its content hash.
func (ds *DiskStorage) GetHeader(hash chainhash.Hash) (Header, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var header Header
	if err := ds.readRecord(filepath.Join("headers", hash.String()), &header); err != nil {
		return Header{}, err
	}

	// A record whose bytes decode but describe different content than its
	// key was tampered with or corrupted below the codec.
	if header.Hash() != hash {
		return Header{}, fmt.Errorf("%w: header %s content mismatch", ErrCorruption, hash)
	}

	return header, nil
}

// WriteBlock stores a full block keyed by its header hash.
func (ds *DiskStorage) WriteBlock(blockData BlockData) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.writeRecord(filepath.Join("blocks", blockData.Hash), blockData)
}

// GetBlock retrieves a full block by its header hash.
func (ds *DiskStorage) GetBlock(hash chainhash.Hash) (BlockData, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var blockData BlockData
	if err := ds.readRecord(filepath.Join("blocks", hash.String()), &blockData); err != nil {
		return BlockData{}, err
	}

	return blockData, nil
}

// HasBlock reports whether a block body exists for the specified hash.
func (ds *DiskStorage) HasBlock(hash chainhash.Hash) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	_, err := os.Stat(filepath.Join(ds.dbPath, "blocks", hash.String()))
	return err == nil
}

// WriteIndexEntry stores one chain index entry keyed by its header hash.
func (ds *DiskStorage) WriteIndexEntry(entry IndexEntryData) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.writeRecord(filepath.Join("index", entry.Hash), entry)
}

// ForEachIndexEntry returns an iterator to walk every stored index entry.
func (ds *DiskStorage) ForEachIndexEntry() Iterator {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(ds.dbPath, "index"))
	if err != nil {
		return &indexIterator{done: true}
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			names = append(names, entry.Name())
		}
	}

	return &indexIterator{ds: ds, names: names}
}

// WriteBestPointer stores the single best-chain pointer record.
func (ds *DiskStorage) WriteBestPointer(pointer BestPointer) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.writeRecord("best", pointer)
}

// GetBestPointer retrieves the best-chain pointer record.
func (ds *DiskStorage) GetBestPointer() (BestPointer, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var pointer BestPointer
	if err := ds.readRecord("best", &pointer); err != nil {
		return BestPointer{}, err
	}

	return pointer, nil
}

// =============================================================================

// writeRecord marshals v and moves it into place atomically. The rename is
// the commit point; everything before it is invisible to readers.
func (ds *DiskStorage) writeRecord(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	path := filepath.Join(ds.dbPath, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// readRecord reads and unmarshals the record stored under name.
func (ds *DiskStorage) readRecord(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(ds.dbPath, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrCorruption, name, err)
	}

	return nil
}

// =============================================================================

// indexIterator walks the stored index entries in directory order.
type indexIterator struct {
	ds    *DiskStorage
	names []string
	next  int
	done  bool
}

// Next retrieves the next index entry from disk.
func (it *indexIterator) Next() (IndexEntryData, error) {
	if it.done || it.next >= len(it.names) {
		it.done = true
		return IndexEntryData{}, errors.New("done")
	}

	name := it.names[it.next]
	it.next++

	var entry IndexEntryData
	if err := it.ds.readRecord(filepath.Join("index", name), &entry); err != nil {
		return IndexEntryData{}, err
	}

	return entry, nil
}

// Done returns the end of index value.
func (it *indexIterator) Done() bool {
	return it.done
}
