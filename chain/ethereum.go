package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/paraxVM/pevm/mvtypes"
)

// EthereumSpec is the default Spec: mainnet-style hardfork rules, legacy
// single-beneficiary block rewards, no L1-fee or base-fee vault accounting.
// Grounded on the hardfork ladder in core/vm/spec.go, adapted to return
// go-ethereum's params.Rules instead of a numeric FFI-facing SpecID —
// this design has no FFI boundary to match.
type EthereumSpec struct {
	Config *params.ChainConfig
}

var _ Spec = (*EthereumSpec)(nil)

func (s *EthereumSpec) Name() string { return "ethereum" }

func (s *EthereumSpec) BlockSpec(header *types.Header) (params.Rules, error) {
	if header == nil {
		return params.Rules{}, fmt.Errorf("chain: nil header")
	}
	num := header.Number
	isMerge := s.Config.TerminalTotalDifficulty != nil
	return s.Config.Rules(num, isMerge, header.Time), nil
}

func (s *EthereumSpec) GasPrice(tx *types.Transaction, header *types.Header) (*big.Int, error) {
	if header.BaseFee == nil {
		return tx.GasPrice(), nil
	}
	tip, err := tx.EffectiveGasTip(header.BaseFee)
	if err != nil {
		return nil, fmt.Errorf("chain: effective gas tip: %w", err)
	}
	return new(big.Int).Add(tip, header.BaseFee), nil
}

func (s *EthereumSpec) RewardPolicy(hasher mvtypes.Hasher) RewardPolicy {
	return RewardPolicy{Kind: RewardEthereum}
}

// BuildMVMemory seeds the coinbase location as a hot write for every
// transaction, since nearly all of them credit the beneficiary (spec §4.1).
// No stronger hints are available without simulating the block.
func (s *EthereumSpec) BuildMVMemory(header *types.Header, txs []*types.Transaction, hasher mvtypes.Hasher) []EstimatedLocation {
	if len(txs) == 0 {
		return nil
	}
	coinbaseHash := hasher.Hash(mvtypes.Basic(header.Coinbase))
	idxs := make([]mvtypes.TxIdx, len(txs))
	for i := range txs {
		idxs[i] = mvtypes.TxIdx(i)
	}
	return []EstimatedLocation{{Hash: coinbaseHash, TxIdxs: idxs}}
}

func (s *EthereumSpec) CoinbaseAddress(header *types.Header) common.Address {
	return header.Coinbase
}
