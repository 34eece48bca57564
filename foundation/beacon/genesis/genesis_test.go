package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pulsebeacon/pulse/foundation/beacon/genesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
    "date": "2026-01-01T00:00:00Z",
    "chain_id": 1,
    "difficulty": 262144,
    "block_interval": 30,
    "retarget_interval": 120,
    "max_clock_drift": 15,
    "orphan_ttl": 600,
    "headers_per_batch": 512
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0644))

	gen, err := genesis.Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), gen.ChainID)
	assert.Equal(t, uint64(262144), gen.Difficulty)
	assert.Equal(t, 512, gen.HeadersPerBatch)
}

func TestLoadRejectsBadParameters(t *testing.T) {
	tt := []struct {
		name string
		doc  string
	}{
		{"difficulty below floor", `{"date":"2026-01-01T00:00:00Z","chain_id":1,"difficulty":512,"block_interval":30,"retarget_interval":120,"max_clock_drift":15,"orphan_ttl":600,"headers_per_batch":512}`},
		{"missing chain id", `{"date":"2026-01-01T00:00:00Z","difficulty":262144,"block_interval":30,"retarget_interval":120,"max_clock_drift":15,"orphan_ttl":600,"headers_per_batch":512}`},
		{"not json", `{`},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "genesis.json")
			require.NoError(t, os.WriteFile(path, []byte(tst.doc), 0644))

			_, err := genesis.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := genesis.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
