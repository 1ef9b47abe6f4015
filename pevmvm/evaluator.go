// Package pevmvm drives exactly one (TxIdx, Incarnation) through the
// evaluator contract: build a read-intercepting Database, hand it and the
// transaction to the pluggable Evaluator, then translate the result into
// a multi-version write-set (spec §4.4, §4.5). Grounded on
// original_source/src/vm.rs, with the REVM-specific `Database` trait and
// `Evm` construction replaced by a small Go interface any EVM
// implementation — go-ethereum's core/vm, a test double, or a future
// native evaluator — can satisfy, since this design has no FFI boundary
// to a fixed Rust executor the way the teacher (clydemeng-bsc) does.
package pevmvm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// AccountInfo is what the evaluator observes when it reads an account's
// basic fields through Database.Basic.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// Database is the read surface the evaluator is handed for one
// transaction. vmDb is the executor's own implementation; tests may
// supply a simpler fake.
type Database interface {
	Basic(addr common.Address) (*AccountInfo, error)
	CodeByHash(hash common.Hash) ([]byte, error)
	HasStorage(addr common.Address) (bool, error)
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)
	BlockHash(number uint64) (common.Hash, error)
}

// StorageChange is one slot's before/after value, mirroring revm's
// changed-slot bookkeeping.
type StorageChange struct {
	Original common.Hash
	Present  common.Hash
}

// AccountUpdate is one account's observed state transition after a
// transaction, ready to be folded into a multi-version write-set.
type AccountUpdate struct {
	Address        common.Address
	Touched        bool
	SelfDestructed bool
	Balance        *uint256.Int
	Nonce          uint64
	CodeHash       common.Hash
	Code           []byte
	IsNewCode      bool
	Storage        map[common.Hash]StorageChange
}

// StateDelta is the full account-level state transition resulting from
// one transaction's evaluation (spec §4.4 "the evaluator returns
// (ExecutionResult, StateDelta)").
type StateDelta struct {
	Accounts []AccountUpdate
}

// ExecutionResult is the EVM-level outcome of one transaction: success
// flag, gas used, logs and return data, independent of how it gets
// folded into the block's receipts.
type ExecutionResult struct {
	Success    bool
	GasUsed    uint64
	Logs       []*types.Log
	ReturnData []byte
}

// EvmError is returned by an Evaluator when a read could not be
// satisfied — not a genuine EVM failure — so the executor can tell the
// scheduler to recover rather than record a failed transaction (spec §7).
type EvmError struct {
	Err error
}

func (e *EvmError) Error() string { return e.Err.Error() }
func (e *EvmError) Unwrap() error { return e.Err }

// Evaluator is the pluggable black box: given a read-intercepting
// Database and an environment, it executes exactly one transaction and
// reports its result plus the state it touched. Implementations must
// treat every error from db as terminal and propagate it wrapped in
// EvmError rather than retrying internally — retries are the scheduler's
// job, not the evaluator's.
type Evaluator func(db Database, env ExecutionEnv, tx *types.Transaction) (*ExecutionResult, *StateDelta, error)

// ExecutionEnv carries the per-block context an Evaluator needs beyond
// the transaction itself.
type ExecutionEnv struct {
	Header    *types.Header
	ChainID   *uint256.Int
	BaseFee   *uint256.Int
	Coinbase  common.Address
	GasPrice  *uint256.Int
	SenderNonceHint uint64
}
