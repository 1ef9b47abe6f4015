// Package state defines the read-only, concurrency-safe view of
// pre-block chain state that the executor's read-intercepting DB falls
// back to whenever the multi-version store has nothing for a location
// (spec §4.2, §4.4).
package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Basic is the pre-block balance and nonce of an account (spec §2).
type Basic struct {
	Balance *uint256.Int
	Nonce   uint64
}

// Storage is implemented once per underlying backend (in-memory fixtures
// in state/memory, a local key-value store in state/kvstore). Every method must
// be safe for concurrent use by many worker goroutines, since the
// scheduler calls into it from every execution task without
// synchronization of its own (spec §4.2 "Storage ... read-only,
// pre-block; implementations must be safe for concurrent reads").
type Storage interface {
	// Basic returns the account's balance and nonce, or nil if the
	// account does not exist.
	Basic(addr common.Address) (*Basic, error)

	// CodeHash returns the account's code hash, or nil if the account
	// does not exist or has no code.
	CodeHash(addr common.Address) (*common.Hash, error)

	// CodeByHash returns the contract bytecode for a previously returned
	// code hash, or nil if unknown.
	CodeByHash(hash common.Hash) ([]byte, error)

	// HasStorage reports whether addr has ever had any storage slot set.
	// The executor passes it through to the evaluator (Database.HasStorage).
	HasStorage(addr common.Address) (bool, error)

	// Storage returns the value at addr's storage slot, defaulting to
	// the zero hash when unset.
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)

	// BlockHash returns the hash of the ancestor block at number, for
	// the BLOCKHASH opcode.
	BlockHash(number uint64) (common.Hash, error)
}
