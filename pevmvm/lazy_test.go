package pevmvm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDetectLazyStrategyRawTransferWhenNoCode(t *testing.T) {
	s := detectLazyStrategy(common.HexToAddress("0x1"), nil, nil)
	require.Equal(t, lazyRawTransfer, s.kind)
}

func TestDetectLazyStrategyERC20Transfer(t *testing.T) {
	codeHash := common.HexToHash("0xaa")
	input := make([]byte, 68)
	copy(input[:4], erc20TransferSelector[:])
	recipient := common.HexToAddress("0xBEEF")
	copy(input[16:36], recipient.Bytes())
	input[67] = 100 // amount = 100

	s := detectLazyStrategy(common.HexToAddress("0x1"), &codeHash, input)
	require.Equal(t, lazyERC20Transfer, s.kind)
	require.Equal(t, uint64(100), s.amount.Uint64())
	require.Equal(t, erc20BalanceSlot(recipient), s.recipientBalanceSlot)
}

func TestDetectLazyStrategyNoneForOtherCalls(t *testing.T) {
	codeHash := common.HexToHash("0xaa")
	input := []byte{0x01, 0x02, 0x03, 0x04}
	s := detectLazyStrategy(common.HexToAddress("0x1"), &codeHash, input)
	require.Equal(t, lazyNone, s.kind)
}

func TestDetectLazyStrategyWrongLengthIsNotERC20(t *testing.T) {
	codeHash := common.HexToHash("0xaa")
	input := make([]byte, 68+1)
	copy(input[:4], erc20TransferSelector[:])
	s := detectLazyStrategy(common.HexToAddress("0x1"), &codeHash, input)
	require.Equal(t, lazyNone, s.kind)
}
