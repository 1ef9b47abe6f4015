package pevmvm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256)
// (spec §4.4, §6.2). Trusting it without also trusting the recipient's
// bytecode is an acknowledged false-positive source the spec documents as
// a limitation (a non-ERC20 contract could expose a same-shaped function
// and be mis-classified); mitigating it would require a bytecode
// whitelist, which is future work, not implemented here.
var erc20TransferSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}

// lazyStrategyKind tags which lazy-evaluation shortcut, if any, applies to
// one transaction's sender/recipient accounting (spec §4.4).
type lazyStrategyKind uint8

const (
	lazyNone lazyStrategyKind = iota
	lazyRawTransfer
	lazyERC20Transfer
)

type lazyStrategy struct {
	kind                  lazyStrategyKind
	senderBalanceSlot     common.Hash
	recipientBalanceSlot  common.Hash
	amount                *uint256.Int
}

// erc20BalanceSlot computes the storage slot of balances[addr] for the
// conventional `mapping(address => uint256) balances` layout at slot 0
// (spec §4.4, §6.2): keccak256(left-padded address ++ left-padded slot).
func erc20BalanceSlot(addr common.Address) common.Hash {
	var buf [64]byte
	copy(buf[12:32], addr.Bytes())
	return crypto.Keccak256Hash(buf[:])
}

// detectLazyStrategy decides whether tx qualifies for a lazy-evaluation
// shortcut. A nil recipientCodeHash means a plain account (no contract),
// which always takes the raw-transfer path; a recipient with code only
// qualifies if its calldata exactly matches the ERC-20 transfer shape.
func detectLazyStrategy(sender common.Address, recipientCodeHash *common.Hash, input []byte) lazyStrategy {
	if recipientCodeHash == nil {
		return lazyStrategy{kind: lazyRawTransfer}
	}
	if len(input) == 4+32+32 && [4]byte(input[:4]) == erc20TransferSelector {
		recipient := common.BytesToAddress(input[16:36])
		amount := new(uint256.Int).SetBytes(input[36:68])
		return lazyStrategy{
			kind:                 lazyERC20Transfer,
			senderBalanceSlot:    erc20BalanceSlot(sender),
			recipientBalanceSlot: erc20BalanceSlot(recipient),
			amount:               amount,
		}
	}
	return lazyStrategy{kind: lazyNone}
}
