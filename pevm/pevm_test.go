package pevm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/chain"
	"github.com/paraxVM/pevm/pevmvm"
	"github.com/paraxVM/pevm/state/memory"
)

type ecdsaPriv struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

func signedTransfer(t *testing.T, sender *ecdsaPriv, nonce uint64, to common.Address, value int64) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.HomesteadSigner{}, sender.priv)
	require.NoError(t, err)
	return signed
}

func TestExecuteAppliesTwoIndependentTransfersAndCoinbaseReward(t *testing.T) {
	sender1 := newKey(t)
	sender2 := newKey(t)
	recipient := common.HexToAddress("0xD00D")
	coinbase := common.HexToAddress("0xC0FFEE")

	storage := memory.New(map[common.Address]memory.Account{
		sender1.address: {Balance: uint256.NewInt(1_000_000)},
		sender2.address: {Balance: uint256.NewInt(2_000_000)},
	})

	header := &types.Header{Number: big.NewInt(1), Coinbase: coinbase}
	txs := []*types.Transaction{
		signedTransfer(t, sender1, 0, recipient, 1000),
		signedTransfer(t, sender2, 0, recipient, 2000),
	}

	spec := &chain.EthereumSpec{Config: params.TestChainConfig}
	results, finalized, err := Execute(context.Background(), storage, spec, header, txs, plainTransferEvaluator, ExecuteConfig{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Success)
	}

	byAddr := make(map[common.Address]FinalizedAccount, len(finalized))
	for _, fa := range finalized {
		byAddr[fa.Address] = fa
	}

	recipientAcc, ok := byAddr[recipient]
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(3000), recipientAcc.Balance)

	coinbaseAcc, ok := byAddr[coinbase]
	require.True(t, ok)
	require.True(t, coinbaseAcc.Balance.Sign() > 0)

	sender1Acc, ok := byAddr[sender1.address]
	require.True(t, ok)
	require.Equal(t, uint64(1), sender1Acc.Nonce)
}

func TestExecuteSingleWorkerMatchesParallel(t *testing.T) {
	sender := newKey(t)
	recipient := common.HexToAddress("0xBEEF")

	buildStorage := func() *memory.Storage {
		return memory.New(map[common.Address]memory.Account{
			sender.address: {Balance: uint256.NewInt(500_000)},
		})
	}
	header := &types.Header{Number: big.NewInt(1), Coinbase: common.HexToAddress("0xC0FFEE")}
	spec := &chain.EthereumSpec{Config: params.TestChainConfig}

	txs := []*types.Transaction{signedTransfer(t, sender, 0, recipient, 500)}

	_, seqFinal, err := Execute(context.Background(), buildStorage(), spec, header, txs, plainTransferEvaluator, ExecuteConfig{Concurrency: 1})
	require.NoError(t, err)
	_, parFinal, err := Execute(context.Background(), buildStorage(), spec, header, txs, plainTransferEvaluator, ExecuteConfig{Concurrency: 4})
	require.NoError(t, err)

	require.Equal(t, seqFinal, parFinal)
}

// plainTransferEvaluator mirrors pevmvm's own test fake: a minimal stand-in
// for a real EVM that only models a value transfer with a fixed gas cost.
func plainTransferEvaluator(db pevmvm.Database, env pevmvm.ExecutionEnv, tx *types.Transaction) (*pevmvm.ExecutionResult, *pevmvm.StateDelta, error) {
	from, _ := types.Sender(types.HomesteadSigner{}, tx)
	senderInfo, err := db.Basic(from)
	if err != nil {
		return nil, nil, err
	}
	to := *tx.To()
	recipientInfo, err := db.Basic(to)
	if err != nil {
		return nil, nil, err
	}

	gasUsed := uint64(21000)
	cost := new(uint256.Int).Mul(uint256.NewInt(gasUsed), uint256.NewInt(1))
	value, _ := uint256.FromBig(tx.Value())

	newSenderBalance := new(uint256.Int).Sub(senderInfo.Balance, value)
	newSenderBalance = newSenderBalance.Sub(newSenderBalance, cost)

	recipientBalance := uint256.NewInt(0)
	if recipientInfo != nil {
		recipientBalance = recipientInfo.Balance
	}
	newRecipientBalance := new(uint256.Int).Add(recipientBalance, value)

	delta := &pevmvm.StateDelta{
		Accounts: []pevmvm.AccountUpdate{
			{Address: from, Touched: true, Balance: newSenderBalance, Nonce: senderInfo.Nonce + 1},
			{Address: to, Touched: true, Balance: newRecipientBalance, Nonce: 0},
		},
	}
	return &pevmvm.ExecutionResult{Success: true, GasUsed: gasUsed}, delta, nil
}

func newKey(t *testing.T) *ecdsaPriv {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &ecdsaPriv{priv: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}
}
