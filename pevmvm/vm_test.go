package pevmvm

import (
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
	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
	"github.com/paraxVM/pevm/state/memory"
)

func signedLegacyTx(t *testing.T, key *ecdsaKey, nonce uint64, to common.Address, value int64, gasPrice int64) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(gasPrice),
	})
	signed, err := types.SignTx(tx, types.HomesteadSigner{}, key.priv)
	require.NoError(t, err)
	return signed
}

func TestVmExecutePlainTransferCreditsRecipientAndCoinbase(t *testing.T) {
	sender := newEcdsaKey(t)
	recipient := common.HexToAddress("0xCAFE")
	coinbase := common.HexToAddress("0xC0FFEE")

	storage := memory.New(map[common.Address]memory.Account{
		sender.address: {Balance: uint256.NewInt(1_000_000)},
	})

	header := &types.Header{Number: big.NewInt(1), Coinbase: coinbase}
	tx := signedLegacyTx(t, sender, 0, recipient, 1000, 1)

	mv := mvmemory.New()
	spec := &chain.EthereumSpec{Config: params.TestChainConfig}
	vm := NewVm(mvtypes.NewHasher(1), storage, mv, spec, header, params.Rules{}, []*types.Transaction{tx}, plainTransferEvaluator)

	res := vm.Execute(mvtypes.TxVersion{TxIdx: 0}, nil)
	require.Equal(t, VmOk, res.Kind)
	require.True(t, res.Result.Success)
	require.NotEmpty(t, res.WriteSet)
}

// plainTransferEvaluator is a minimal fake Evaluator standing in for a
// real EVM: it only models a value transfer with a fixed gas cost, enough
// to exercise Vm's write-set and reward-folding logic end to end.
func plainTransferEvaluator(db Database, env ExecutionEnv, tx *types.Transaction) (*ExecutionResult, *StateDelta, error) {
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

	delta := &StateDelta{
		Accounts: []AccountUpdate{
			{Address: from, Touched: true, Balance: newSenderBalance, Nonce: senderInfo.Nonce + 1},
			{Address: to, Touched: true, Balance: newRecipientBalance, Nonce: 0},
		},
	}
	return &ExecutionResult{Success: true, GasUsed: gasUsed}, delta, nil
}

type ecdsaKey struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

func newEcdsaKey(t *testing.T) *ecdsaKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &ecdsaKey{priv: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}
