package mvtypes

// ReadOriginKind tags whether a read was satisfied from pre-block Storage or
// from a specific prior incarnation recorded in MV-Memory.
type ReadOriginKind uint8

const (
	OriginStorage ReadOriginKind = iota
	OriginMvMemory
)

// ReadOrigin records where a single read was resolved from. Version is only
// meaningful when Kind == OriginMvMemory.
type ReadOrigin struct {
	Kind    ReadOriginKind
	Version TxVersion
}

// StorageOrigin is the shared value for reads satisfied from pre-block
// state.
var StorageOrigin = ReadOrigin{Kind: OriginStorage}

// MvMemoryOrigin builds the origin for a read satisfied by a specific prior
// incarnation.
func MvMemoryOrigin(v TxVersion) ReadOrigin {
	return ReadOrigin{Kind: OriginMvMemory, Version: v}
}

// ReadOrigins is the ordered list of origins a single location's read
// traversed — more than one entry only happens when resolving a chain of
// lazy deltas before reaching (or failing to reach) concrete data.
type ReadOrigins []ReadOrigin

// Equal reports whether a and b record the exact same traversal.
func (a ReadOrigins) Equal(b ReadOrigins) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadSet is the read-set of one execution: for every location touched, the
// ordered list of origins that satisfied it.
type ReadSet map[LocationHash]ReadOrigins

// WriteDescriptor is one entry of an execution's write-set. Loc is kept
// alongside the hash so finalization can translate a location's folded
// write history back into a concrete account/slot update without having
// to invert the (deliberately one-way, collision-tolerant) hash.
type WriteDescriptor struct {
	Location LocationHash
	Loc      MemoryLocation
	Value    MemoryValue
}

// WriteSet is the ordered write-set of one execution.
type WriteSet []WriteDescriptor

// EntryKind tags an MV-Memory entry as live data or an abort tombstone.
type EntryKind uint8

const (
	EntryData EntryKind = iota
	EntryEstimate
)

// Entry is what MV-Memory stores for one (location, tx_idx) pair: either
// Data(incarnation, value) or an Estimate tombstone left behind by an
// aborted incarnation (spec §3 "MV-Memory entry").
type Entry struct {
	Kind        EntryKind
	Incarnation Incarnation // meaningful only when Kind == EntryData
	Value       MemoryValue // meaningful only when Kind == EntryData
}

func DataEntry(incarnation Incarnation, v MemoryValue) Entry {
	return Entry{Kind: EntryData, Incarnation: incarnation, Value: v}
}

var EstimateEntry = Entry{Kind: EntryEstimate}
