package public

import "github.com/pulsebeacon/pulse/foundation/beacon/database"

type tip struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

type headerInfo struct {
	Hash   string          `json:"hash"`
	Header database.Header `json:"header"`
}

type beaconInfo struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
	Output string `json:"output"`
}
