package mvtypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountBasic is the concrete Basic(address) payload: balance, nonce and a
// pointer to the account's code hash.
type AccountBasic struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
}

// Clone returns a deep copy so callers may mutate the balance in place
// without aliasing entries already committed to MV-Memory.
func (b AccountBasic) Clone() AccountBasic {
	out := b
	if b.Balance != nil {
		out.Balance = new(uint256.Int).Set(b.Balance)
	}
	return out
}

// ValueKind tags which variant a MemoryValue holds.
type ValueKind uint8

const (
	ValueBasic ValueKind = iota
	ValueCodeHash
	ValueSelfDestructed
	ValueStorage
	ValueLazySender
	ValueLazyRecipient
	ValueERC20TransferSender
	ValueERC20TransferRecipient
)

// MemoryValue is the write-log payload for one (tx, location) write, per
// spec §3. Exactly one field is meaningful, selected by Kind; the rest are
// zero. A struct-of-variants (rather than separate wrapper types) keeps the
// MV-Memory entry type a plain comparable-free value that can sit directly
// in a sorted map without boxing.
type MemoryValue struct {
	Kind ValueKind

	Basic    AccountBasic // ValueBasic
	CodeHash common.Hash  // ValueCodeHash

	Storage common.Hash // ValueStorage

	// Lazy deltas. Native transfer: applied to the Basic(address) location.
	// ERC-20 transfer: applied to a token-balance Storage(address, slot).
	LazySenderSub  *uint256.Int // ValueLazySender
	LazyRecipAdd   *uint256.Int // ValueLazyRecipient
	ERC20SenderSub *uint256.Int // ValueERC20TransferSender
	ERC20RecipAdd  *uint256.Int // ValueERC20TransferRecipient
}

func NewBasicValue(b AccountBasic) MemoryValue {
	return MemoryValue{Kind: ValueBasic, Basic: b}
}

func NewCodeHashValue(h common.Hash) MemoryValue {
	return MemoryValue{Kind: ValueCodeHash, CodeHash: h}
}

func NewSelfDestructedValue() MemoryValue {
	return MemoryValue{Kind: ValueSelfDestructed}
}

func NewStorageValue(v common.Hash) MemoryValue {
	return MemoryValue{Kind: ValueStorage, Storage: v}
}

func NewLazySenderValue(sub *uint256.Int) MemoryValue {
	return MemoryValue{Kind: ValueLazySender, LazySenderSub: sub}
}

func NewLazyRecipientValue(add *uint256.Int) MemoryValue {
	return MemoryValue{Kind: ValueLazyRecipient, LazyRecipAdd: add}
}

func NewERC20TransferSenderValue(sub *uint256.Int) MemoryValue {
	return MemoryValue{Kind: ValueERC20TransferSender, ERC20SenderSub: sub}
}

func NewERC20TransferRecipientValue(add *uint256.Int) MemoryValue {
	return MemoryValue{Kind: ValueERC20TransferRecipient, ERC20RecipAdd: add}
}

// IsLazy reports whether v is a pending additive delta rather than a
// concrete value.
func (v MemoryValue) IsLazy() bool {
	switch v.Kind {
	case ValueLazySender, ValueLazyRecipient, ValueERC20TransferSender, ValueERC20TransferRecipient:
		return true
	default:
		return false
	}
}
