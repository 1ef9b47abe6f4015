// Package chain isolates everything about block execution that varies by
// chain: hardfork selection, gas-price extraction, reward policy, and the
// hint the scheduler uses to size its initial concurrency (spec §4.1). The
// core treats Spec as an opaque capability set — new chains are added by
// implementing the same interface, not by branching inside the scheduler.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/paraxVM/pevm/mvtypes"
)

// RewardPolicyKind tags which beneficiary-crediting scheme a Spec uses.
type RewardPolicyKind uint8

const (
	RewardEthereum RewardPolicyKind = iota
	RewardOptimism
)

// RewardPolicy drives how the executor folds block rewards into a
// transaction's write-set after execution (spec §4.1, §4.5 step 4).
type RewardPolicy struct {
	Kind RewardPolicyKind

	// Optimism-only: the base-fee vault credited alongside the ordinary
	// coinbase tip. There is no L1FeeRecipientHash here: crediting the L1
	// data fee needs an L1 gas-price oracle this package does not model
	// (original_source/src/chain/optimism.rs's own get_block_spec carries
	// the same gap, rejecting blocks "when L1Block is not available"), so
	// that vault is out of scope rather than faked with an invented
	// formula.
	BaseFeeVaultHash    mvtypes.LocationHash
	BaseFeeVaultAddress common.Address
}

// EstimatedLocation is a hint the scheduler can use to widen or narrow its
// guess at how many leading transactions are likely to conflict on a given
// location (spec §4.1 "seeds MV-Memory with estimated hot locations").
type EstimatedLocation struct {
	Hash mvtypes.LocationHash
	// TxIdxs lists which transactions are expected to touch Hash, in
	// ascending order.
	TxIdxs []mvtypes.TxIdx
}

// Spec is the per-chain capability set (spec §4.1). All methods are pure
// functions of their inputs so the scheduler can call them concurrently
// from any worker without synchronization.
type Spec interface {
	// Name identifies the chain for logging, e.g. "ethereum" or "optimism".
	Name() string

	// BlockSpec selects the active hardfork for header.
	BlockSpec(header *types.Header) (params.Rules, error)

	// GasPrice extracts the effective gas price paid by tx under header's
	// base fee regime.
	GasPrice(tx *types.Transaction, header *types.Header) (*big.Int, error)

	// RewardPolicy reports how beneficiary accounts should be credited
	// after each transaction. hasher must be the same salted hasher the
	// block is executing under, so the returned location hashes actually
	// match entries the rest of the block writes into MV-Memory.
	RewardPolicy(hasher mvtypes.Hasher) RewardPolicy

	// BuildMVMemory returns hot-location hints the scheduler may use to
	// seed its concurrency heuristics (spec §4.1). Returning nil is
	// always valid; it just forgoes the optimization.
	BuildMVMemory(header *types.Header, txs []*types.Transaction, hasher mvtypes.Hasher) []EstimatedLocation

	// CoinbaseAddress returns the beneficiary of header, used to compute
	// the Basic(coinbase) location that almost every transaction's reward
	// write touches.
	CoinbaseAddress(header *types.Header) common.Address
}
