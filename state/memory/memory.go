// Package memory is a plain-map Storage implementation for tests and for
// chains small enough to fit entirely in RAM. Grounded on the account/
// storage map shape used throughout go-ethereum's own test fixtures
// (core/genesis style account maps), guarded by a single RWMutex since
// the whole point is simplicity, not the sharding mvmemory.MVMemory
// needs for hot-path contention.
package memory

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/paraxVM/pevm/state"
)

// Account is the seed data for one address.
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Storage is an in-memory, read-only (after construction) Storage.
type Storage struct {
	mu        sync.RWMutex
	accounts  map[common.Address]Account
	code      map[common.Hash][]byte
	blockHash map[uint64]common.Hash
}

var _ state.Storage = (*Storage)(nil)

// New builds a Storage from a seed account map. The returned Storage does
// not retain aliasing surprises: callers may mutate the input map after
// New returns.
func New(accounts map[common.Address]Account) *Storage {
	s := &Storage{
		accounts:  make(map[common.Address]Account, len(accounts)),
		code:      make(map[common.Hash][]byte),
		blockHash: make(map[uint64]common.Hash),
	}
	for addr, acct := range accounts {
		s.accounts[addr] = acct
		if len(acct.Code) > 0 {
			s.code[crypto.Keccak256Hash(acct.Code)] = acct.Code
		}
	}
	return s
}

// SetBlockHash seeds an ancestor block hash for BLOCKHASH lookups.
func (s *Storage) SetBlockHash(number uint64, hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockHash[number] = hash
}

func (s *Storage) Basic(addr common.Address) (*state.Basic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return nil, nil
	}
	balance := acct.Balance
	if balance == nil {
		balance = uint256.NewInt(0)
	}
	return &state.Basic{Balance: balance.Clone(), Nonce: acct.Nonce}, nil
}

func (s *Storage) CodeHash(addr common.Address) (*common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok || len(acct.Code) == 0 {
		return nil, nil
	}
	h := crypto.Keccak256Hash(acct.Code)
	return &h, nil
}

func (s *Storage) CodeByHash(hash common.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code[hash], nil
}

func (s *Storage) HasStorage(addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	return ok && len(acct.Storage) > 0, nil
}

func (s *Storage) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return common.Hash{}, nil
	}
	return acct.Storage[slot], nil
}

func (s *Storage) BlockHash(number uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockHash[number], nil
}
