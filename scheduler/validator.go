package scheduler

import (
	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
)

// Validate re-derives, for every location a transaction's execution
// touched, the read-origin chain a fresh read would produce right now and
// compares it byte-for-byte against what execution actually observed
// (spec §4.6: "Read Origin sequences must match exactly"). Any mismatch —
// including hitting an Estimate left by a still-in-flight incarnation —
// means the incarnation is stale and must be re-executed.
func Validate(mv *mvmemory.MVMemory, txIdx mvtypes.TxIdx, readSet mvtypes.ReadSet) bool {
	for loc, recorded := range readSet {
		replayed, ok := replayOrigins(mv, loc, txIdx)
		if !ok || !replayed.Equal(recorded) {
			return false
		}
	}
	return true
}

// replayOrigins walks MV-Memory for loc exactly as the original read did:
// repeatedly narrowing the upper bound to the tx index of whatever entry
// it lands on, and continuing past lazy deltas until a concrete value (or
// the absence of one) is reached. ok is false if the walk hits an
// Estimate, meaning the location is currently unsettled and cannot
// possibly match a previously recorded origin chain.
func replayOrigins(mv *mvmemory.MVMemory, loc mvtypes.LocationHash, upper mvtypes.TxIdx) (mvtypes.ReadOrigins, bool) {
	var origins mvtypes.ReadOrigins
	for {
		res := mv.Read(loc, upper)
		switch res.Kind {
		case mvmemory.ReadNotFound:
			return append(origins, mvtypes.StorageOrigin), true
		case mvmemory.ReadEstimate:
			return nil, false
		default: // mvmemory.ReadData
			origins = append(origins, mvtypes.MvMemoryOrigin(res.Version))
			if !res.Value.IsLazy() {
				return origins, true
			}
			upper = res.Version.TxIdx
		}
	}
}
