package database

// minDifficulty is the floor for the retarget rule. Below this the delay
// computation is too short to act as a clock at all.
const minDifficulty = 1024

// retargetClamp bounds how far one adjustment can move the difficulty in
// either direction.
const retargetClamp = 4

// prescribedDifficulty returns the difficulty the consensus rules demand for
// the block extending parent. Outside a retarget boundary the difficulty is
// inherited. On a boundary it is scaled by how fast the last interval was
// produced against the target, clamped to retargetClamp either way.
func (db *Database) prescribedDifficulty(parent *IndexEntry) uint64 {
	interval := db.genesis.RetargetInterval
	height := parent.Height + 1

	if height%interval != 0 {
		return parent.Difficulty
	}

	first := parent.ancestorAt(height - interval)
	if first == nil {
		return parent.Difficulty
	}

	target := interval * db.genesis.BlockInterval
	actual := parent.TimeStamp - first.TimeStamp
	if actual == 0 {
		actual = 1
	}

	if actual < target/retargetClamp {
		actual = target / retargetClamp
	}
	if actual > target*retargetClamp {
		actual = target * retargetClamp
	}

	difficulty := parent.Difficulty * target / actual
	if difficulty < minDifficulty {
		difficulty = minDifficulty
	}

	return difficulty
}
