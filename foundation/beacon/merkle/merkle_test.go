package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/pulsebeacon/pulse/foundation/beacon/merkle"
)

// entry implements the Hashable interface and represents the content stored
// in the tree for these tests.
type entry struct {
	value string
}

// Hash hashes the value of an entry.
func (e entry) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(e.value))
	return h[:], nil
}

// Equals tests for equality of two entries.
func (e entry) Equals(other entry) bool {
	return e.value == other.value
}

// =============================================================================

func TestNewTree(t *testing.T) {
	values := []entry{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}}

	tree, err := merkle.NewTree(values)
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	if len(tree.MerkleRoot) == 0 {
		t.Fatal("error: expected a non empty merkle root")
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("error: expected the tree to verify: %v", err)
	}

	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}
	if !bytes.Equal(root[:], tree.MerkleRoot) {
		t.Fatal("error: expected RootHash to carry the merkle root bytes")
	}
}

func TestOddLeafCount(t *testing.T) {
	values := []entry{{"alpha"}, {"beta"}, {"gamma"}}

	tree, err := merkle.NewTree(values)
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("error: expected the tree to verify: %v", err)
	}

	if got := len(tree.Values()); got != len(values) {
		t.Fatalf("error: expected %d values got %d, duplicate leaf must not leak", len(values), got)
	}
}

func TestRootChangesWithContent(t *testing.T) {
	treeA, err := merkle.NewTree([]entry{{"alpha"}, {"beta"}})
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	treeB, err := merkle.NewTree([]entry{{"alpha"}, {"mutated"}})
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	if bytes.Equal(treeA.MerkleRoot, treeB.MerkleRoot) {
		t.Fatal("error: expected different content to produce different roots")
	}
}

func TestProof(t *testing.T) {
	values := []entry{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}}

	tree, err := merkle.NewTree(values)
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	path, order, err := tree.Proof(values[2])
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}
	if len(path) == 0 || len(path) != len(order) {
		t.Fatalf("error: expected a proof path with matching order, got %d/%d", len(path), len(order))
	}

	if _, _, err := tree.Proof(entry{"missing"}); err == nil {
		t.Fatal("error: expected a proof request for absent content to fail")
	}
}
