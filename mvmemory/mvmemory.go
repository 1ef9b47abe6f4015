// Package mvmemory implements the multi-version write log (spec §3, §4.3):
// a concurrent hash map, sharded by location hash, of per-location sorted
// maps from tx_idx to a versioned write or an abort tombstone.
package mvmemory

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/paraxVM/pevm/mvtypes"
)

// ReadResultKind tags what MVMemory.Read found.
type ReadResultKind uint8

const (
	// ReadNotFound means no entry exists below upperTxIdx; the caller
	// should fall back to Storage.
	ReadNotFound ReadResultKind = iota
	// ReadData means a concrete or lazy Data entry was found.
	ReadData
	// ReadEstimate means the nearest prior writer was aborted; the
	// caller must treat it as a dependency and block on BlockingTxIdx.
	ReadEstimate
)

// ReadResult is the outcome of one MVMemory.Read call.
type ReadResult struct {
	Kind          ReadResultKind
	Version       mvtypes.TxVersion // meaningful when Kind == ReadData
	Value         mvtypes.MemoryValue
	BlockingTxIdx mvtypes.TxIdx // meaningful when Kind == ReadEstimate
}

// MVMemory is the block-scoped multi-version store. Its lifecycle matches
// one block's execution (spec §3 "Lifecycles").
type MVMemory struct {
	data sync.Map // map[mvtypes.LocationHash]*locationLog

	lazyMu         sync.Mutex
	lazyLocations  mapset.Set[mvtypes.LocationHash]
	newBytecodes   sync.Map // map[common.Hash][]byte
}

// New constructs an empty MV-Memory ready to back one block's execution.
func New() *MVMemory {
	return &MVMemory{
		lazyLocations: mapset.NewSet[mvtypes.LocationHash](),
	}
}

func (m *MVMemory) logFor(hash mvtypes.LocationHash) *locationLog {
	if v, ok := m.data.Load(hash); ok {
		return v.(*locationLog)
	}
	l := newLocationLog()
	actual, _ := m.data.LoadOrStore(hash, l)
	return actual.(*locationLog)
}

// Contains reports whether hash currently has at least one entry. The
// read-intercepting DB uses this to decide whether a raw-transfer lazy
// fast-path is worth taking (spec §4.4: "avoids unnecessarily lazy-ing cold
// paths").
func (m *MVMemory) Contains(hash mvtypes.LocationHash) bool {
	v, ok := m.data.Load(hash)
	if !ok {
		return false
	}
	return !v.(*locationLog).isEmpty()
}

// Read returns the nearest entry strictly below upperTxIdx for hash, per
// spec §4.3.
func (m *MVMemory) Read(hash mvtypes.LocationHash, upperTxIdx mvtypes.TxIdx) ReadResult {
	v, ok := m.data.Load(hash)
	if !ok {
		return ReadResult{Kind: ReadNotFound}
	}
	txIdx, entry, found := v.(*locationLog).readBelow(upperTxIdx)
	if !found {
		return ReadResult{Kind: ReadNotFound}
	}
	if entry.Kind == mvtypes.EntryEstimate {
		return ReadResult{Kind: ReadEstimate, BlockingTxIdx: txIdx}
	}
	return ReadResult{
		Kind:    ReadData,
		Version: mvtypes.TxVersion{TxIdx: txIdx, Incarnation: entry.Incarnation},
		Value:   entry.Value,
	}
}

// Record commits the outcome of one successful execution (spec §4.3). It
// removes entries previously authored by version.TxIdx at locations no
// longer written (converting them to estimates if a concrete successor
// already read past them would be unsafe — here we simply drop them, since
// any dependent reader would already have recorded the old origin and will
// be caught by validation), then inserts the new write-set.
//
// wroteNewLocation is true iff any location in writeSet previously had no
// entry at all, which the scheduler uses to decide how aggressively to
// rewind validation (spec §4.7).
func (m *MVMemory) Record(version mvtypes.TxVersion, writeSet mvtypes.WriteSet, previouslyWritten []mvtypes.LocationHash) (wroteNewLocation bool) {
	written := make(map[mvtypes.LocationHash]struct{}, len(writeSet))
	for _, wd := range writeSet {
		written[wd.Location] = struct{}{}
	}

	// Drop stale entries this incarnation no longer writes.
	for _, hash := range previouslyWritten {
		if _, stillWrites := written[hash]; stillWrites {
			continue
		}
		m.logFor(hash).remove(version.TxIdx)
	}

	for _, wd := range writeSet {
		log := m.logFor(wd.Location)
		wasEmpty := log.isEmpty()
		log.set(version.TxIdx, mvtypes.DataEntry(version.Incarnation, wd.Value))
		if wasEmpty {
			wroteNewLocation = true
		}
	}
	return wroteNewLocation
}

// MarkEstimate converts every entry authored by txIdx across all locations
// into an Estimate tombstone (spec §4.3, called on abort). Because the
// top-level map is sharded by hash and we don't track per-tx authored
// locations globally here, the caller passes the locations the aborted
// incarnation's last-known write-set touched (pevm's worker does this on a
// failed validation) and MarkEstimate marks each of them.
func (m *MVMemory) MarkEstimate(txIdx mvtypes.TxIdx, locations []mvtypes.LocationHash) {
	for _, h := range locations {
		m.logFor(h).markEstimate(txIdx)
	}
}

// AddLazyLocations registers that locs now host pending lazy deltas.
func (m *MVMemory) AddLazyLocations(locs []mvtypes.LocationHash) {
	m.lazyMu.Lock()
	defer m.lazyMu.Unlock()
	for _, h := range locs {
		m.lazyLocations.Add(h)
	}
}

// SetBytecode memoises in-block-deployed code, first-write-wins.
func (m *MVMemory) SetBytecode(codeHash [32]byte, code []byte) {
	m.newBytecodes.LoadOrStore(codeHash, code)
}

// Bytecode returns previously memoised in-block-deployed code, if any.
func (m *MVMemory) Bytecode(codeHash [32]byte) ([]byte, bool) {
	v, ok := m.newBytecodes.Load(codeHash)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Snapshot returns every LocationHash that currently has at least one
// entry. The returned order is unspecified; callers sort or otherwise make
// a walk over it deterministic per-location before aggregating.
func (m *MVMemory) Snapshot() []mvtypes.LocationHash {
	var out []mvtypes.LocationHash
	m.data.Range(func(key, value any) bool {
		if !value.(*locationLog).isEmpty() {
			out = append(out, key.(mvtypes.LocationHash))
		}
		return true
	})
	return out
}

// EntriesFor returns every (txIdx, Entry) pair recorded for hash, sorted by
// txIdx ascending. Used by finalization to resolve a location's final
// value by folding its whole write log in transaction order.
func (m *MVMemory) EntriesFor(hash mvtypes.LocationHash) []struct {
	TxIdx mvtypes.TxIdx
	Entry mvtypes.Entry
} {
	v, ok := m.data.Load(hash)
	if !ok {
		return nil
	}
	l := v.(*locationLog)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]struct {
		TxIdx mvtypes.TxIdx
		Entry mvtypes.Entry
	}, len(l.entries))
	for i, e := range l.entries {
		out[i] = struct {
			TxIdx mvtypes.TxIdx
			Entry mvtypes.Entry
		}{e.txIdx, e.entry}
	}
	return out
}
