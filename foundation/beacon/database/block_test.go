package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsebeacon/pulse/foundation/beacon/database"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func testParent() database.Header {
	return database.Header{
		Difficulty: 1024,
		TimeStamp:  uint64(time.Now().UTC().Unix()) - 60,
		Number:     0,
	}
}

func produce(t *testing.T, parent database.Header, origin string) database.Block {
	t.Helper()

	payload := []database.Record{{Origin: origin, Data: parent.BeaconOutput()}}

	block, err := database.Produce(context.Background(), parent, parent.Difficulty, payload)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to produce a block: %v", failed, err)
	}

	return block
}

// =============================================================================

func Test_HeaderValidation(t *testing.T) {
	now := time.Now().UTC()
	const drift = 15 * time.Second

	t.Log("Given the need to validate candidate headers against their parent.")
	{
		t.Log("\tTest 0:\tWhen validating a well formed header.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			if err := block.Header.ValidateAgainst(parent, parent.Difficulty, now, drift); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the header.", success)
		}

		t.Log("\tTest 1:\tWhen the linkage is broken.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			header := block.Header
			header.Number++
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadLinkage) {
				t.Fatalf("\t%s\tTest 1:\tShould reject a wrong block number: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a wrong block number.", success)

			header = block.Header
			header.ParentHash[0] ^= 0x01
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadLinkage) {
				t.Fatalf("\t%s\tTest 1:\tShould reject a wrong parent reference: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a wrong parent reference.", success)
		}

		t.Log("\tTest 2:\tWhen the seed does not derive from parent and payload.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			header := block.Header
			header.PayloadRoot[0] ^= 0x01
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadSeed) {
				t.Fatalf("\t%s\tTest 2:\tShould reject a non derived seed: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a non derived seed.", success)
		}

		t.Log("\tTest 3:\tWhen the difficulty is not the prescribed one.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			if err := block.Header.ValidateAgainst(parent, parent.Difficulty*2, now, drift); !errors.Is(err, database.ErrWrongDifficulty) {
				t.Fatalf("\t%s\tTest 3:\tShould reject a wrong difficulty: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject a wrong difficulty.", success)
		}

		t.Log("\tTest 4:\tWhen the delay proof is tampered with.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			header := block.Header
			header.Proof.Output[0] ^= 0x01
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadProof) {
				t.Fatalf("\t%s\tTest 4:\tShould reject a tampered proof: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould reject a tampered proof.", success)
		}

		t.Log("\tTest 5:\tWhen the timestamp is outside the accepted window.")
		{
			parent := testParent()
			block := produce(t, parent, "node1")

			header := block.Header
			header.TimeStamp = parent.TimeStamp
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadTimestamp) {
				t.Fatalf("\t%s\tTest 5:\tShould reject a timestamp not after the parent: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould reject a timestamp not after the parent.", success)

			header = block.Header
			header.TimeStamp = uint64(now.Add(drift).Unix()) + 10
			if err := header.ValidateAgainst(parent, parent.Difficulty, now, drift); !errors.Is(err, database.ErrBadTimestamp) {
				t.Fatalf("\t%s\tTest 5:\tShould reject a timestamp too far in the future: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould reject a timestamp too far in the future.", success)
		}
	}
}

func Test_BeaconOutput(t *testing.T) {
	t.Log("Given the need to derive the beacon output from a header.")
	{
		t.Log("\tTest 0:\tWhen deriving from two different headers.")
		{
			parent := testParent()
			blockA := produce(t, parent, "node1")
			blockB := produce(t, parent, "node2")

			outA := blockA.Header.BeaconOutput()
			outB := blockB.Header.BeaconOutput()

			if len(outA) == 0 || len(outB) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould produce non empty outputs.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce non empty outputs.", success)

			if bytes.Equal(outA, outB) {
				t.Fatalf("\t%s\tTest 0:\tShould produce distinct outputs for distinct payloads.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce distinct outputs for distinct payloads.", success)

			if !bytes.Equal(outA, blockA.Header.BeaconOutput()) {
				t.Fatalf("\t%s\tTest 0:\tShould derive deterministically.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould derive deterministically.", success)
		}
	}
}

// =============================================================================

func Test_TimestampMonotonic(t *testing.T) {
	parent := testParent()
	parent.TimeStamp = uint64(time.Now().UTC().Unix()) + 2

	// The producer must never emit a timestamp at or before its parent,
	// even when finishing within the same second.
	block := produce(t, parent, "node1")
	if block.Header.TimeStamp <= parent.TimeStamp {
		t.Fatalf("timestamp %d not after parent %d", block.Header.TimeStamp, parent.TimeStamp)
	}
}
