package database_test

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pulsebeacon/pulse/foundation/beacon/database"
	"github.com/pulsebeacon/pulse/foundation/beacon/genesis"
)

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:             time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:          1,
		Difficulty:       1024,
		BlockInterval:    30,
		RetargetInterval: 1000,
		MaxClockDrift:    3600,
		OrphanTTL:        600,
		HeadersPerBatch:  16,
	}
}

func testDB(t *testing.T) (*database.Database, database.Storage) {
	t.Helper()

	storage, err := database.NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(testGenesis(), storage, func(v string, args ...any) {})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	return db, storage
}

// extend produces and appends count blocks on top of parent, failing the
// test unless every one is accepted. It returns the headers in order.
func extend(t *testing.T, db *database.Database, parent database.Header, origin string, count int) []database.Header {
	t.Helper()

	headers := make([]database.Header, 0, count)
	for i := 0; i < count; i++ {
		block := produce(t, parent, origin)

		status, err := db.TryAppend(block.Header)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to append block %d: %v", failed, i, err)
		}
		if status != database.Accepted {
			t.Fatalf("\t%s\tShould get an accepted status for block %d, got %s.", failed, i, status)
		}

		headers = append(headers, block.Header)
		parent = block.Header
	}

	return headers
}

// =============================================================================

func Test_Append(t *testing.T) {
	t.Log("Given the need to append headers to the chain.")
	{
		t.Log("\tTest 0:\tWhen offering headers in every possible state.")
		{
			db, _ := testDB(t)
			gen := db.GenesisHeader()

			block1 := produce(t, gen, "node1")

			status, err := db.TryAppend(block1.Header)
			if err != nil || status != database.Accepted {
				t.Fatalf("\t%s\tTest 0:\tShould accept a valid header: %s %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept a valid header.", success)

			status, err = db.TryAppend(block1.Header)
			if err != nil || status != database.Duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould report a duplicate on re-offer: %s %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report a duplicate on re-offer.", success)

			block2 := produce(t, block1.Header, "node1")
			block3 := produce(t, block2.Header, "node1")

			status, err = db.TryAppend(block3.Header)
			if err != nil || status != database.Orphaned {
				t.Fatalf("\t%s\tTest 0:\tShould orphan a header with an unknown parent: %s %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 0:\tShould orphan a header with an unknown parent.", success)

			bad := block2.Header
			bad.Proof.Output[0] ^= 0x01

			status, err = db.TryAppend(bad)
			if status != database.Rejected || !errors.Is(err, database.ErrBadProof) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a tampered header: %s %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a tampered header.", success)

			if db.BestHeight() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the best height at 1, got %d.", failed, db.BestHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould keep the best height at 1.", success)
		}
	}
}

func Test_Reorganization(t *testing.T) {
	t.Log("Given the need to follow the chain with the most cumulative work.")
	{
		t.Log("\tTest 0:\tWhen a competing branch overtakes the canonical one.")
		{
			db, _ := testDB(t)
			gen := db.GenesisHeader()

			branchA := extend(t, db, gen, "nodeA", 2)

			if db.BestHeight() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould be at height 2 on branch A, got %d.", failed, db.BestHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould be at height 2 on branch A.", success)

			// A shorter competing branch is stored but cannot take over.
			blockB1 := produce(t, gen, "nodeB")
			status, err := db.TryAppend(blockB1.Header)
			if err != nil || status != database.Accepted {
				t.Fatalf("\t%s\tTest 0:\tShould accept the competing header: %s %v", failed, status, err)
			}
			if tip := db.BestEntry(); tip.Hash != branchA[1].Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould keep branch A as canonical.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep branch A as canonical.", success)

			branchB := extend(t, db, blockB1.Header, "nodeB", 2)

			if tip := db.BestEntry(); tip.Hash != branchB[1].Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould switch to branch B once it has more work.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould switch to branch B once it has more work.", success)

			if db.ReorgCount() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count exactly one reorganization, got %d.", failed, db.ReorgCount())
			}
			t.Logf("\t%s\tTest 0:\tShould count exactly one reorganization.", success)

			header, err := db.HeaderByHeight(1)
			if err != nil || header.Hash() != blockB1.Header.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould resolve height 1 to the new branch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould resolve height 1 to the new branch.", success)

			if !db.IsAncestor(blockB1.Header.Hash(), branchB[1].Hash()) {
				t.Fatalf("\t%s\tTest 0:\tShould report the new branch root as an ancestor of the tip.", failed)
			}
			if db.IsAncestor(branchA[0].Hash(), branchB[1].Hash()) {
				t.Fatalf("\t%s\tTest 0:\tShould not report the old branch as an ancestor of the tip.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould track ancestry across the reorganization.", success)

			// Equal cumulative work must never displace the incumbent tip.
			blockA3 := produce(t, branchA[1], "nodeA")
			status, err = db.TryAppend(blockA3.Header)
			if err != nil || status != database.Accepted {
				t.Fatalf("\t%s\tTest 0:\tShould accept the equal work header: %s %v", failed, status, err)
			}
			if tip := db.BestEntry(); tip.Hash != branchB[1].Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould keep the incumbent tip on an equal work tie.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the incumbent tip on an equal work tie.", success)
		}
	}
}

func Test_Persistence(t *testing.T) {
	t.Log("Given the need to survive a restart from storage alone.")
	{
		t.Log("\tTest 0:\tWhen reopening a database with an existing chain.")
		{
			dir := t.TempDir()

			storage, err := database.NewDiskStorage(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open storage: %v", failed, err)
			}

			db, err := database.New(testGenesis(), storage, func(v string, args ...any) {})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}

			headers := extend(t, db, db.GenesisHeader(), "node1", 3)
			db.Close()

			storage2, err := database.NewDiskStorage(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reopen storage: %v", failed, err)
			}

			db2, err := database.New(testGenesis(), storage2, func(v string, args ...any) {})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reopen database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to reopen database.", success)

			if db2.BestHeight() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould restore the best height, got %d.", failed, db2.BestHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould restore the best height.", success)

			for i, header := range headers {
				restored, err := db2.HeaderByHeight(uint64(i + 1))
				if err != nil || restored.Hash() != header.Hash() {
					t.Fatalf("\t%s\tTest 0:\tShould restore the header at height %d: %v", failed, i+1, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould restore every header by height.", success)
		}
	}
}

func Test_LocatorAndHeadersAfter(t *testing.T) {
	t.Log("Given the need to serve headers following a peer's locator.")
	{
		t.Log("\tTest 0:\tWhen a fresh peer asks with a genesis only locator.")
		{
			db, _ := testDB(t)
			headers := extend(t, db, db.GenesisHeader(), "node1", 5)

			locator := []chainhash.Hash{db.GenesisHeader().Hash()}

			got, err := db.HeadersAfter(locator, 16)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to serve headers: %v", failed, err)
			}
			if len(got) != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould serve 5 headers, got %d.", failed, len(got))
			}
			t.Logf("\t%s\tTest 0:\tShould serve 5 headers.", success)

			for i, header := range got {
				if header.Hash() != headers[i].Hash() {
					t.Fatalf("\t%s\tTest 0:\tShould serve headers in ascending height order.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould serve headers in ascending height order.", success)

			limited, err := db.HeadersAfter(locator, 2)
			if err != nil || len(limited) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould honor the batch limit: %d %v", failed, len(limited), err)
			}
			t.Logf("\t%s\tTest 0:\tShould honor the batch limit.", success)
		}

		t.Log("\tTest 1:\tWhen the locator names the tip.")
		{
			db, _ := testDB(t)
			extend(t, db, db.GenesisHeader(), "node1", 3)

			got, err := db.HeadersAfter(db.Locator(), 16)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to serve headers: %v", failed, err)
			}
			if len(got) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould serve nothing past the tip, got %d.", failed, len(got))
			}
			t.Logf("\t%s\tTest 1:\tShould serve nothing past the tip.", success)
		}

		t.Log("\tTest 2:\tWhen inspecting the locator itself.")
		{
			db, _ := testDB(t)
			headers := extend(t, db, db.GenesisHeader(), "node1", 5)

			locator := db.Locator()
			if len(locator) == 0 {
				t.Fatalf("\t%s\tTest 2:\tShould produce a non empty locator.", failed)
			}
			if locator[0] != headers[4].Hash() {
				t.Fatalf("\t%s\tTest 2:\tShould start the locator at the tip.", failed)
			}
			if locator[len(locator)-1] != db.GenesisHeader().Hash() {
				t.Fatalf("\t%s\tTest 2:\tShould end the locator at genesis.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould run from tip to genesis.", success)
		}
	}
}

func Test_BlockBodies(t *testing.T) {
	t.Log("Given the need to track block bodies separately from headers.")
	{
		t.Log("\tTest 0:\tWhen a header is accepted without its body.")
		{
			db, _ := testDB(t)
			block := produce(t, db.GenesisHeader(), "node1")

			status, err := db.TryAppend(block.Header)
			if err != nil || status != database.Accepted {
				t.Fatalf("\t%s\tTest 0:\tShould accept the header: %s %v", failed, status, err)
			}

			missing := db.MissingBodies()
			if len(missing) != 1 || missing[0] != block.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould report the body as missing.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the body as missing.", success)

			if err := db.StoreBlock(block); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to store the body: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to store the body.", success)

			if len(db.MissingBodies()) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould report no missing bodies after storing.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report no missing bodies after storing.", success)

			stored, err := db.BlockByHash(block.Hash())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the block back: %v", failed, err)
			}
			if stored.Hash() != block.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould read back the identical block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould read back the identical block.", success)
		}

		t.Log("\tTest 1:\tWhen a body is offered for an unknown header.")
		{
			db, _ := testDB(t)
			block := produce(t, db.GenesisHeader(), "node1")

			if err := db.StoreBlock(block); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould refuse a body without an accepted header.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse a body without an accepted header.", success)
		}
	}
}
