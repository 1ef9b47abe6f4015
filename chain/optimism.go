package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/paraxVM/pevm/mvtypes"
)

// baseFeeVaultAddress is the OP Stack predeploy that receives a cut of
// every transaction's fee, in addition to the ordinary coinbase
// (sequencer) reward. Grounded on original_source/src/chain/optimism.rs's
// revm::optimism::BASE_FEE_RECIPIENT. L1_FEE_RECIPIENT has no Go-side
// counterpart here: see RewardPolicy's doc comment for why.
var baseFeeVaultAddress = common.HexToAddress("0x4200000000000000000000000000000000000019")

// OptimismSpec layers OP Stack's two-way fee split (sequencer tip, base fee
// vault) on top of Ethereum hardfork rules.
type OptimismSpec struct {
	Config *params.ChainConfig
}

var _ Spec = (*OptimismSpec)(nil)

func (s *OptimismSpec) Name() string { return "optimism" }

func (s *OptimismSpec) BlockSpec(header *types.Header) (params.Rules, error) {
	if header == nil {
		return params.Rules{}, fmt.Errorf("chain: nil header")
	}
	isMerge := s.Config.TerminalTotalDifficulty != nil
	return s.Config.Rules(header.Number, isMerge, header.Time), nil
}

// GasPrice returns zero for deposit transactions (type 0x7E), which pay no
// gas price by definition, and the ordinary effective-tip formula otherwise.
func (s *OptimismSpec) GasPrice(tx *types.Transaction, header *types.Header) (*big.Int, error) {
	if tx.Type() == types.DepositTxType {
		return big.NewInt(0), nil
	}
	if header.BaseFee == nil {
		return tx.GasPrice(), nil
	}
	tip, err := tx.EffectiveGasTip(header.BaseFee)
	if err != nil {
		return nil, fmt.Errorf("chain: effective gas tip: %w", err)
	}
	return new(big.Int).Add(tip, header.BaseFee), nil
}

func (s *OptimismSpec) RewardPolicy(hasher mvtypes.Hasher) RewardPolicy {
	return RewardPolicy{
		Kind:                RewardOptimism,
		BaseFeeVaultHash:    hasher.Hash(mvtypes.Basic(baseFeeVaultAddress)),
		BaseFeeVaultAddress: baseFeeVaultAddress,
	}
}

// BuildMVMemory seeds coinbase and the base fee vault as hot locations —
// every non-deposit transaction writes both.
func (s *OptimismSpec) BuildMVMemory(header *types.Header, txs []*types.Transaction, hasher mvtypes.Hasher) []EstimatedLocation {
	if len(txs) == 0 {
		return nil
	}
	idxs := make([]mvtypes.TxIdx, len(txs))
	for i := range txs {
		idxs[i] = mvtypes.TxIdx(i)
	}
	return []EstimatedLocation{
		{Hash: hasher.Hash(mvtypes.Basic(header.Coinbase)), TxIdxs: idxs},
		{Hash: hasher.Hash(mvtypes.Basic(baseFeeVaultAddress)), TxIdxs: idxs},
	}
}

func (s *OptimismSpec) CoinbaseAddress(header *types.Header) common.Address {
	return header.Coinbase
}
