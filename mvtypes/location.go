package mvtypes

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// LocationKind distinguishes the three flavors of memory location the
// executor tracks. See MemoryLocation.
type LocationKind uint8

const (
	// LocationBasic addresses an account's balance, nonce and code-hash
	// pointer.
	LocationBasic LocationKind = iota
	// LocationCodeHash addresses the hash of an account's deployed
	// bytecode (or a self-destruct tombstone).
	LocationCodeHash
	// LocationStorage addresses a single 256-bit storage slot.
	LocationStorage
)

// MemoryLocation is one of Basic(address), CodeHash(address) or
// Storage(address, slot), per spec §3.
type MemoryLocation struct {
	Kind    LocationKind
	Address common.Address
	Slot    common.Hash // only meaningful when Kind == LocationStorage
}

// Basic builds the Basic(address) location.
func Basic(addr common.Address) MemoryLocation {
	return MemoryLocation{Kind: LocationBasic, Address: addr}
}

// CodeHashLocation builds the CodeHash(address) location.
func CodeHashLocation(addr common.Address) MemoryLocation {
	return MemoryLocation{Kind: LocationCodeHash, Address: addr}
}

// StorageLocation builds the Storage(address, slot) location.
func StorageLocation(addr common.Address, slot common.Hash) MemoryLocation {
	return MemoryLocation{Kind: LocationStorage, Address: addr, Slot: slot}
}

// LocationHash is the 64-bit projection of a MemoryLocation used to index
// MV-Memory. Per spec §3 it is produced by a process-wide salted hasher
// chosen once per block: good enough to make collisions vanishingly rare
// without needing cryptographic strength, since correctness depends on
// comparing the abstract (hash, origin) read-set, not raw hash equality.
type LocationHash uint64

// Hasher projects MemoryLocations to LocationHash values. A fresh Hasher
// must be created per block (or at minimum per execution of the scheduler
// tests) so that an adversarial block cannot precompute collisions across
// runs.
type Hasher struct {
	seed uint64
}

// NewHasher returns a Hasher salted with seed. Callers should derive seed
// from a source of per-block randomness; passing the same seed twice
// reproduces the same hash assignment, which test code relies on.
func NewHasher(seed uint64) Hasher {
	return Hasher{seed: seed}
}

// Hash projects loc to its LocationHash.
func (h Hasher) Hash(loc MemoryLocation) LocationHash {
	var buf [41]byte
	buf[0] = byte(loc.Kind)
	copy(buf[1:21], loc.Address[:])
	copy(buf[21:41], loc.Slot[:20])
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	if loc.Kind == LocationStorage {
		var rest [12]byte
		copy(rest[:], loc.Slot[20:])
		_, _ = d.Write(rest[:])
	}
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], h.seed)
	_, _ = d.Write(seedBytes[:])
	return LocationHash(d.Sum64())
}
