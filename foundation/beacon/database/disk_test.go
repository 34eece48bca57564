package database_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(t *testing.T, origin string) database.Header {
	t.Helper()

	parent := database.Header{
		Difficulty: 1024,
		TimeStamp:  uint64(time.Now().UTC().Unix()) - 60,
		Number:     0,
	}

	block, err := database.Produce(context.Background(), parent, parent.Difficulty, []database.Record{{Origin: origin}})
	require.NoError(t, err)

	return block.Header
}

func TestDiskHeaderRoundTrip(t *testing.T) {
	ds, err := database.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	header := testHeader(t, "node1")

	require.NoError(t, ds.WriteHeader(header))

	got, err := ds.GetHeader(header.Hash())
	require.NoError(t, err)
	assert.Equal(t, header.Hash(), got.Hash())
}

func TestDiskNotFound(t *testing.T) {
	ds, err := database.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	header := testHeader(t, "node1")

	_, err = ds.GetHeader(header.Hash())
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = ds.GetBlock(header.Hash())
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = ds.GetBestPointer()
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.False(t, ds.HasBlock(header.Hash()))
}

func TestDiskCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	ds, err := database.NewDiskStorage(dir)
	require.NoError(t, err)
	defer ds.Close()

	header := testHeader(t, "node1")
	require.NoError(t, ds.WriteHeader(header))

	// Bytes that fail decoding must surface as corruption, not absence.
	path := filepath.Join(dir, "headers", header.Hash().String())
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err = ds.GetHeader(header.Hash())
	assert.ErrorIs(t, err, database.ErrCorruption)

	// Bytes that decode but describe different content than their key are
	// corruption as well.
	other := testHeader(t, "node2")
	require.NoError(t, ds.WriteHeader(other))

	data, err := os.ReadFile(filepath.Join(dir, "headers", other.Hash().String()))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = ds.GetHeader(header.Hash())
	assert.ErrorIs(t, err, database.ErrCorruption)
}

func TestDiskBestPointer(t *testing.T) {
	ds, err := database.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	pointer := database.BestPointer{Hash: "00aa", Height: 7}
	require.NoError(t, ds.WriteBestPointer(pointer))

	got, err := ds.GetBestPointer()
	require.NoError(t, err)
	assert.Equal(t, pointer, got)

	// The pointer write is a replace, not an append.
	pointer.Height = 8
	require.NoError(t, ds.WriteBestPointer(pointer))

	got, err = ds.GetBestPointer()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got.Height)
}

func TestDiskIndexIteration(t *testing.T) {
	dir := t.TempDir()
	ds, err := database.NewDiskStorage(dir)
	require.NoError(t, err)
	defer ds.Close()

	entries := []database.IndexEntryData{
		{Hash: "aa01", Height: 1, Work: "1024", MainChain: true},
		{Hash: "aa02", Height: 2, Work: "2048", MainChain: true},
		{Hash: "aa03", Height: 2, Work: "2048"},
	}
	for _, entry := range entries {
		require.NoError(t, ds.WriteIndexEntry(entry))
	}

	// A leftover temp file from an interrupted write must not surface as
	// an entry.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index", "aa04.tmp"), []byte("{"), 0644))

	seen := make(map[string]database.IndexEntryData)
	iter := ds.ForEachIndexEntry()
	for entry, err := iter.Next(); !iter.Done(); entry, err = iter.Next() {
		require.NoError(t, err)
		seen[entry.Hash] = entry
	}

	assert.Len(t, seen, len(entries))
	for _, entry := range entries {
		assert.Equal(t, entry, seen[entry.Hash])
	}
}

func TestDiskReset(t *testing.T) {
	ds, err := database.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	header := testHeader(t, "node1")
	require.NoError(t, ds.WriteHeader(header))
	require.NoError(t, ds.Reset())

	_, err = ds.GetHeader(header.Hash())
	assert.ErrorIs(t, err, database.ErrNotFound)
}
