package database

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pulsebeacon/pulse/foundation/beacon/delay"
	"github.com/pulsebeacon/pulse/foundation/beacon/merkle"
)

// Rejection reasons returned when a candidate header fails a consensus rule.
// A header rejected with one of these is permanently invalid and never
// retried.
var (
	ErrBadLinkage      = errors.New("parent reference does not match parent header")
	ErrBadSeed         = errors.New("seed does not derive from parent and payload")
	ErrWrongDifficulty = errors.New("difficulty does not match the chain's prescription")
	ErrBadProof        = errors.New("delay proof failed verification")
	ErrBadTimestamp    = errors.New("timestamp outside the accepted window")
)

// IsConsensusError reports whether err is a permanent verdict about a header
// itself rather than a storage fault. Only these verdicts may be cached as
// known-invalid; a storage fault says nothing about the header.
func IsConsensusError(err error) bool {
	return errors.Is(err, ErrBadLinkage) ||
		errors.Is(err, ErrBadSeed) ||
		errors.Is(err, ErrWrongDifficulty) ||
		errors.Is(err, ErrBadProof) ||
		errors.Is(err, ErrBadTimestamp)
}

// =============================================================================

// Header represents the consensus-relevant information for each block. A
// header is immutable once accepted and its content hash is its identity.
type Header struct {
	ParentHash  chainhash.Hash `json:"parent_hash"`  // Identity of the parent header.
	PayloadRoot chainhash.Hash `json:"payload_root"` // Merkle root committing the block payload.
	Seed        chainhash.Hash `json:"seed"`         // Delay-function input, derived from parent and payload.
	Difficulty  uint64         `json:"difficulty"`   // Sequential iterations the proof must represent.
	Proof       delay.Proof    `json:"proof"`        // Verifiable result of the delay computation.
	TimeStamp   uint64         `json:"timestamp"`    // Time the block was produced.
	Number      uint64         `json:"number"`       // Height of this block in the chain.
}

// Hash returns the unique hash for the Header.
func (h Header) Hash() chainhash.Hash {
	data, err := json.Marshal(h)
	if err != nil {
		return chainhash.Hash{}
	}

	return chainhash.DoubleHashH(data)
}

// BeaconOutput derives the publicly verifiable randomness for this header.
// The output binds the proof to the seed so two headers can never share an
// output unless they share the full delay computation.
func (h Header) BeaconOutput() []byte {
	return crypto.Keccak256(h.Seed[:], h.Proof.Output[:])
}

// DeriveSeed computes the delay-function input for a block extending parent
// and committing payloadRoot. Deriving the seed from both prevents a proof
// computed for one chain position from being replayed at another.
func DeriveSeed(parentHash chainhash.Hash, payloadRoot chainhash.Hash) chainhash.Hash {
	return chainhash.DoubleHashH(append(parentHash[:], payloadRoot[:]...))
}

// ValidateAgainst checks the header against the consensus rules given its
// parent and the difficulty the chain prescribes at this height. The checks
// run in order and the first failure wins. None of the checks mutate state.
func (h Header) ValidateAgainst(parent Header, prescribed uint64, now time.Time, maxDrift time.Duration) error {
	if h.Number != parent.Number+1 {
		return fmt.Errorf("%w: got number %d, exp %d", ErrBadLinkage, h.Number, parent.Number+1)
	}

	if h.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: got parent %s, exp %s", ErrBadLinkage, h.ParentHash, parent.Hash())
	}

	if h.Seed != DeriveSeed(h.ParentHash, h.PayloadRoot) {
		return ErrBadSeed
	}

	if h.Difficulty != prescribed {
		return fmt.Errorf("%w: got %d, exp %d", ErrWrongDifficulty, h.Difficulty, prescribed)
	}

	if err := delay.Verify(h.Seed, h.Difficulty, h.Proof); err != nil {
		return fmt.Errorf("%w: %s", ErrBadProof, err)
	}

	if h.TimeStamp <= parent.TimeStamp {
		return fmt.Errorf("%w: not after parent", ErrBadTimestamp)
	}

	if limit := now.Add(maxDrift); h.TimeStamp > uint64(limit.Unix()) {
		return fmt.Errorf("%w: too far in the future", ErrBadTimestamp)
	}

	return nil
}

// =============================================================================

// Record represents a single payload entry committed into a block. The data
// is opaque to consensus; only the commitment matters.
type Record struct {
	Origin string `json:"origin"` // Host that contributed the record.
	Data   []byte `json:"data"`
}

// Hash implements the merkle Hashable interface for providing a hash of a
// record.
func (r Record) Hash() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(data)
	return hash[:], nil
}

// Equals implements the merkle Hashable interface for comparing two records.
func (r Record) Equals(other Record) bool {
	return r.Origin == other.Origin && bytes.Equal(r.Data, other.Data)
}

// =============================================================================

// Block represents a header plus the payload it commits to. Identity of a
// block is the identity of its header.
type Block struct {
	Header  Header
	Payload *merkle.Tree[Record]
}

// Produce constructs a new Block extending parent and drives the delay
// computation for it. The context is threaded into the computation so a
// caller can abandon the block when the chain moves underneath it.
func Produce(ctx context.Context, parent Header, prescribed uint64, payload []Record) (Block, error) {
	tree, err := merkle.NewTree(payload)
	if err != nil {
		return Block{}, err
	}

	payloadRoot, err := tree.RootHash()
	if err != nil {
		return Block{}, err
	}

	seed := DeriveSeed(parent.Hash(), payloadRoot)

	proof, err := delay.Compute(ctx, seed, prescribed)
	if err != nil {
		return Block{}, err
	}

	// Timestamps carry second granularity, so a block finished within the
	// same second as its parent claims the next second instead.
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp <= parent.TimeStamp {
		timeStamp = parent.TimeStamp + 1
	}

	nb := Block{
		Header: Header{
			ParentHash:  parent.Hash(),
			PayloadRoot: payloadRoot,
			Seed:        seed,
			Difficulty:  prescribed,
			Proof:       proof,
			TimeStamp:   timeStamp,
			Number:      parent.Number + 1,
		},
		Payload: tree,
	}

	return nb, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() chainhash.Hash {
	return b.Header.Hash()
}

// ValidateBlock takes a block and validates its payload commitment on top of
// the header rules.
func (b Block) ValidateBlock(parent Header, prescribed uint64, now time.Time, maxDrift time.Duration) error {
	if err := b.Header.ValidateAgainst(parent, prescribed, now, maxDrift); err != nil {
		return err
	}

	root, err := b.Payload.RootHash()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruption, err)
	}

	if b.Header.PayloadRoot != root {
		return fmt.Errorf("%w: payload root does not match payload", ErrBadSeed)
	}

	return nil
}

// =============================================================================

// BlockData represents what is written to storage and what travels between
// peers for a full block.
type BlockData struct {
	Hash    string   `json:"hash"`
	Header  Header   `json:"header"`
	Payload []Record `json:"payload"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:    block.Hash().String(),
		Header:  block.Header,
		Payload: block.Payload.Values(),
	}
}

// ToBlock converts a BlockData into a Block, rebuilding the payload tree.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Payload)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header:  blockData.Header,
		Payload: tree,
	}

	return nb, nil
}
