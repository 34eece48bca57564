// Package genesis maintains access to the genesis file and the chain
// parameters it prescribes.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Genesis represents the genesis file. Every consensus parameter that peers
// must agree on lives here, not in the node configuration.
type Genesis struct {
	Date             time.Time `json:"date" validate:"required"`
	ChainID          uint16    `json:"chain_id" validate:"required"`
	Difficulty       uint64    `json:"difficulty" validate:"required,gte=1024"`      // Starting number of sequential iterations per block.
	BlockInterval    uint64    `json:"block_interval" validate:"required,gte=1"`     // Target seconds between blocks.
	RetargetInterval uint64    `json:"retarget_interval" validate:"required,gte=2"`  // Blocks between difficulty adjustments.
	MaxClockDrift    uint64    `json:"max_clock_drift" validate:"required"`          // Seconds a header timestamp may lead the local clock.
	OrphanTTL        uint64    `json:"orphan_ttl" validate:"required"`               // Seconds an orphan may wait for its parent.
	HeadersPerBatch  int       `json:"headers_per_batch" validate:"required,gte=16"` // Max headers served per locator request.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	// A genesis file with a missing or absurd parameter would fork us off
	// the network on the very first block, so fail loudly at startup.
	if err := validator.New().Struct(genesis); err != nil {
		return Genesis{}, fmt.Errorf("invalid genesis file %q: %w", path, err)
	}

	return genesis, nil
}
