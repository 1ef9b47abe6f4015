// Package kvstore adapts a persistent key-value backend into the
// executor's Storage capability, for chains too large to keep in memory.
// Grounded on original_source/src/storage/on_disk.rs's table layout
// (balance / nonce / code_hash / bytecode / storage, each keyed by
// address or code hash) — translated from a bespoke libmdbx wrapper into
// go-ethereum's own ethdb.KeyValueReader, since go-ethereum is already
// this module's dependency and ethdb is the interface go-ethereum's own
// state trie backends (leveldb, pebble) satisfy. Using it here means a
// caller can plug in any existing go-ethereum-compatible key-value store
// without pevm introducing a second, unrelated storage dependency.
package kvstore

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/holiman/uint256"

	"github.com/paraxVM/pevm/state"
)

var (
	balancePrefix  = []byte("pevm-balance-")
	noncePrefix    = []byte("pevm-nonce-")
	codeHashPrefix = []byte("pevm-codehash-")
	bytecodePrefix = []byte("pevm-bytecode-")
	storagePrefix  = []byte("pevm-storage-")
)

// Reader is the subset of ethdb.KeyValueStore this package needs: point
// lookups plus prefix iteration for the storage-slot existence check.
type Reader interface {
	ethdb.KeyValueReader
	ethdb.Iteratee
}

// Storage reads pre-block state from a go-ethereum key-value backend.
type Storage struct {
	db Reader
}

var _ state.Storage = (*Storage)(nil)

// New wraps an already-open key-value reader. Storage never writes; the
// writer half of the backend is the block producer's concern, not the
// executor's.
func New(db Reader) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Basic(addr common.Address) (*state.Basic, error) {
	balanceBytes, err := s.db.Get(append(balancePrefix, addr.Bytes()...))
	if err != nil {
		if !s.has(balancePrefix, addr) {
			return nil, nil
		}
		return nil, err
	}
	if balanceBytes == nil {
		return nil, nil
	}
	nonceBytes, err := s.db.Get(append(noncePrefix, addr.Bytes()...))
	if err != nil {
		return nil, err
	}
	var nonce uint64
	if len(nonceBytes) == 8 {
		nonce = binary.BigEndian.Uint64(nonceBytes)
	}
	return &state.Basic{
		Balance: new(uint256.Int).SetBytes(balanceBytes),
		Nonce:   nonce,
	}, nil
}

func (s *Storage) has(prefix []byte, addr common.Address) bool {
	ok, err := s.db.Has(append(prefix, addr.Bytes()...))
	return err == nil && ok
}

func (s *Storage) CodeHash(addr common.Address) (*common.Hash, error) {
	b, err := s.db.Get(append(codeHashPrefix, addr.Bytes()...))
	if err != nil || len(b) != common.HashLength {
		return nil, nil
	}
	h := common.BytesToHash(b)
	return &h, nil
}

func (s *Storage) CodeByHash(hash common.Hash) ([]byte, error) {
	code, err := s.db.Get(append(bytecodePrefix, hash.Bytes()...))
	if err != nil {
		return nil, nil
	}
	return code, nil
}

func (s *Storage) HasStorage(addr common.Address) (bool, error) {
	it := s.db.NewIterator(append(storagePrefix, addr.Bytes()...), nil)
	defer it.Release()
	return it.Next(), nil
}

func (s *Storage) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	key := append(append([]byte{}, storagePrefix...), addr.Bytes()...)
	key = append(key, slot.Bytes()...)
	b, err := s.db.Get(key)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, nil
	}
	return common.BytesToHash(b), nil
}

// BlockHash has no dedicated table in the on-disk layout this is
// grounded on; it derives a stand-in the same way the reference storage's
// TODO'd implementation does, hashing the big-endian block number. Callers
// needing real ancestor hashes should layer a header-chain-backed Storage
// on top instead.
func (s *Storage) BlockHash(number uint64) (common.Hash, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return crypto.Keccak256Hash(buf[:]), nil
}
