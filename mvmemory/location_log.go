package mvmemory

import (
	"sort"
	"sync"

	"github.com/paraxVM/pevm/mvtypes"
)

// locationLog is the per-location sorted map from tx_idx to Entry (spec
// §3, §9: "a lock + ordered tree pair"). It is written only by the
// authoring tx_idx and read via lower-bound-to-the-left queries, so a single
// mutex guarding a slice kept sorted by TxIdx is sufficient: contention is
// dominated by MV-Memory as a whole, not by any one location (spec §5).
type locationLog struct {
	mu      sync.RWMutex
	entries []indexedEntry // sorted by txIdx ascending
}

type indexedEntry struct {
	txIdx mvtypes.TxIdx
	entry mvtypes.Entry
}

func newLocationLog() *locationLog {
	return &locationLog{}
}

// search returns the index in l.entries at which txIdx would sit, and
// whether an exact entry for txIdx already exists there. Caller must hold
// at least a read lock.
func (l *locationLog) search(txIdx mvtypes.TxIdx) (int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].txIdx >= txIdx
	})
	if i < len(l.entries) && l.entries[i].txIdx == txIdx {
		return i, true
	}
	return i, false
}

// readBelow returns the entry for the greatest txIdx strictly less than
// upperTxIdx, or ok=false if there is none.
func (l *locationLog) readBelow(upperTxIdx mvtypes.TxIdx) (txIdx mvtypes.TxIdx, entry mvtypes.Entry, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, _ := l.search(upperTxIdx)
	if i == 0 {
		return 0, mvtypes.Entry{}, false
	}
	e := l.entries[i-1]
	return e.txIdx, e.entry, true
}

// set writes (or overwrites) the entry authored by txIdx.
func (l *locationLog) set(txIdx mvtypes.TxIdx, entry mvtypes.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, found := l.search(txIdx)
	if found {
		l.entries[i].entry = entry
		return
	}
	l.entries = append(l.entries, indexedEntry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = indexedEntry{txIdx: txIdx, entry: entry}
}

// remove deletes the entry authored by txIdx, if any. Returns true if an
// entry was removed.
func (l *locationLog) remove(txIdx mvtypes.TxIdx) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, found := l.search(txIdx)
	if !found {
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return true
}

// markEstimate converts the entry authored by txIdx (if any Data entry
// exists) into an Estimate tombstone. Returns true if it did so.
func (l *locationLog) markEstimate(txIdx mvtypes.TxIdx) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, found := l.search(txIdx)
	if !found {
		return false
	}
	l.entries[i].entry = mvtypes.EstimateEntry
	return true
}

// isEmpty reports whether the log currently has no entries.
func (l *locationLog) isEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries) == 0
}
