// Package delay implements the sequential delay function the consensus rules
// are built on. Producing a proof requires iterating a hash chain for the
// prescribed number of steps, which cannot be parallelized since every step
// consumes the previous digest. The elapsed wall-clock work is what makes the
// chain's output unpredictable.
package delay

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CheckpointInterval is the number of iterations between digests recorded
// into the proof. Checkpoints bound how much of the chain a verifier must
// recompute before it can call a proof bogus, and each segment between two
// checkpoints can be verified independently of the others.
const CheckpointInterval = 4096

// cancelCheckInterval is the number of iterations between cooperative
// cancellation checks while computing.
const cancelCheckInterval = 1024

// ErrEmptyProof is returned when verification is asked to check a proof with
// no output.
var ErrEmptyProof = errors.New("empty proof")

// Proof is the verifiable result of running the delay function. Identity of
// the proof is carried by the header that embeds it.
type Proof struct {
	Checkpoints []chainhash.Hash `json:"checkpoints"`
	Output      chainhash.Hash   `json:"output"`
}

// Compute runs the delay function for the specified number of iterations
// starting from seed. The context is checked cooperatively so a caller can
// abandon a computation whose result is no longer wanted.
func Compute(ctx context.Context, seed chainhash.Hash, difficulty uint64) (Proof, error) {
	var proof Proof

	h := seed
	for i := uint64(1); i <= difficulty; i++ {
		h = chainhash.HashH(h[:])

		if i%CheckpointInterval == 0 && i != difficulty {
			proof.Checkpoints = append(proof.Checkpoints, h)
		}

		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return Proof{}, ctx.Err()
		}
	}

	proof.Output = h
	return proof, nil
}

// Verify checks that proof is the result of running the delay function from
// seed for the specified number of iterations. The chain is recomputed
// sequentially and compared against each checkpoint along the way, so a
// corrupt proof fails at its first bad checkpoint rather than only at the
// final output.
func Verify(seed chainhash.Hash, difficulty uint64, proof Proof) error {
	if proof.Output == (chainhash.Hash{}) {
		return ErrEmptyProof
	}

	if want := checkpointCount(difficulty); len(proof.Checkpoints) != want {
		return errors.New("wrong checkpoint count")
	}

	h := seed
	next := 0
	for i := uint64(1); i <= difficulty; i++ {
		h = chainhash.HashH(h[:])

		if i%CheckpointInterval == 0 && i != difficulty {
			if proof.Checkpoints[next] != h {
				return errors.New("checkpoint mismatch")
			}
			next++
		}
	}

	if proof.Output != h {
		return errors.New("output mismatch")
	}

	return nil
}

// checkpointCount returns how many checkpoints a valid proof for the
// specified difficulty carries.
func checkpointCount(difficulty uint64) int {
	n := int(difficulty / CheckpointInterval)
	if difficulty%CheckpointInterval == 0 && n > 0 {
		n--
	}
	return n
}
