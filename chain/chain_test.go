package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/mvtypes"
)

func testHeader() *types.Header {
	return &types.Header{
		Number:   big.NewInt(100),
		Time:     1_700_000_000,
		BaseFee:  big.NewInt(10),
		Coinbase: common.HexToAddress("0xC0FFEE"),
	}
}

func TestEthereumSpecBlockSpec(t *testing.T) {
	spec := &EthereumSpec{Config: params.MainnetChainConfig}
	rules, err := spec.BlockSpec(testHeader())
	require.NoError(t, err)
	require.True(t, rules.IsCancun || rules.IsLondon || rules.IsBerlin || rules.IsHomestead)
}

func TestEthereumSpecRewardPolicyIsPlain(t *testing.T) {
	spec := &EthereumSpec{Config: params.MainnetChainConfig}
	rp := spec.RewardPolicy(mvtypes.Hasher{})
	require.Equal(t, RewardEthereum, rp.Kind)
}

func TestEthereumSpecBuildMVMemorySeedsCoinbase(t *testing.T) {
	spec := &EthereumSpec{Config: params.MainnetChainConfig}
	header := testHeader()
	txs := []*types.Transaction{
		types.NewTx(&types.LegacyTx{}),
		types.NewTx(&types.LegacyTx{}),
	}
	hints := spec.BuildMVMemory(header, txs, mvtypes.Hasher{})
	require.Len(t, hints, 1)
	require.Equal(t, []mvtypes.TxIdx{0, 1}, hints[0].TxIdxs)
}

func TestOptimismSpecRewardPolicyHasBaseFeeVault(t *testing.T) {
	spec := &OptimismSpec{Config: params.MainnetChainConfig}
	rp := spec.RewardPolicy(mvtypes.Hasher{})
	require.Equal(t, RewardOptimism, rp.Kind)
	require.NotZero(t, rp.BaseFeeVaultHash)
	require.Equal(t, baseFeeVaultAddress, rp.BaseFeeVaultAddress)
}

func TestOptimismSpecGasPriceZeroForDeposit(t *testing.T) {
	spec := &OptimismSpec{Config: params.MainnetChainConfig}
	tx := types.NewTx(&types.DepositTx{})
	price, err := spec.GasPrice(tx, testHeader())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), price)
}

func TestOptimismSpecBuildMVMemorySeedsTwoVaults(t *testing.T) {
	spec := &OptimismSpec{Config: params.MainnetChainConfig}
	header := testHeader()
	txs := []*types.Transaction{types.NewTx(&types.LegacyTx{})}
	hints := spec.BuildMVMemory(header, txs, mvtypes.Hasher{})
	require.Len(t, hints, 2)
}
