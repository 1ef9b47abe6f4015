package pevm

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
	"github.com/paraxVM/pevm/state"
)

// FinalizedAccount is one account's fully resolved post-block state, ready
// to commit to a writable backend (spec §4.7 "finalization"). Storage only
// lists slots this block actually touched.
type FinalizedAccount struct {
	Address common.Address
	Balance *uint256.Int
	Nonce   uint64
	// CodeHash and SelfDestructed are only meaningful when CodeHashChanged
	// is true: a Basic-only write (a plain balance/nonce change) leaves an
	// account's existing code hash alone, and a zero CodeHash here does
	// not mean the account actually has none.
	CodeHashChanged bool
	CodeHash        common.Hash
	SelfDestructed  bool
	// Code is only set when IsNewCode is true, i.e. this block deployed
	// bytecode under CodeHash that storage doesn't already have.
	Code      []byte
	IsNewCode bool
	Storage   map[common.Hash]common.Hash
}

type accountAccumulator struct {
	addr            common.Address
	balance         *uint256.Int
	nonce           uint64
	codeHash        common.Hash
	codeHashChanged bool
	selfDestructed  bool
	isNewCode       bool
	storage         map[common.Hash]common.Hash
}

// Finalize folds every location mv recorded during a block's execution
// into one concrete, committable value per account, using registry to
// recover the (address, slot) identity a location's hash can no longer
// express on its own. Locations that were never written (Snapshot/
// EntriesFor only ever report written ones) don't appear.
func Finalize(storage state.Storage, mv *mvmemory.MVMemory, registry map[mvtypes.LocationHash]mvtypes.MemoryLocation) ([]FinalizedAccount, error) {
	accs := make(map[common.Address]*accountAccumulator)
	get := func(addr common.Address) *accountAccumulator {
		a, ok := accs[addr]
		if !ok {
			a = &accountAccumulator{addr: addr, storage: make(map[common.Hash]common.Hash)}
			accs[addr] = a
		}
		return a
	}

	for hash, loc := range registry {
		entries := mv.EntriesFor(hash)
		if len(entries) == 0 {
			continue
		}

		switch loc.Kind {
		case mvtypes.LocationBasic:
			acc := get(loc.Address)
			basic, err := storage.Basic(loc.Address)
			if err != nil {
				return nil, fmt.Errorf("basic(%s): %w", loc.Address, err)
			}
			balance := new(uint256.Int)
			var nonce uint64
			if basic != nil {
				balance.Set(basic.Balance)
				nonce = basic.Nonce
			}
			for _, e := range entries {
				if e.Entry.Kind != mvtypes.EntryData {
					continue
				}
				v := e.Entry.Value
				switch v.Kind {
				case mvtypes.ValueBasic:
					balance = new(uint256.Int).Set(v.Basic.Balance)
					nonce = v.Basic.Nonce
				case mvtypes.ValueLazySender:
					if balance.Lt(v.LazySenderSub) {
						return nil, fmt.Errorf("basic(%s): lazy sender delta of tx %d underflows balance", loc.Address, e.TxIdx)
					}
					balance = balance.Sub(balance, v.LazySenderSub)
					nonce++
				case mvtypes.ValueLazyRecipient:
					balance = balance.Add(balance, v.LazyRecipAdd)
				}
			}
			acc.balance = balance
			acc.nonce = nonce

		case mvtypes.LocationCodeHash:
			acc := get(loc.Address)
			for _, e := range entries {
				if e.Entry.Kind != mvtypes.EntryData {
					continue
				}
				acc.codeHashChanged = true
				switch e.Entry.Value.Kind {
				case mvtypes.ValueCodeHash:
					acc.codeHash = e.Entry.Value.CodeHash
					acc.isNewCode = true
					acc.selfDestructed = false
				case mvtypes.ValueSelfDestructed:
					acc.selfDestructed = true
				}
			}

		case mvtypes.LocationStorage:
			acc := get(loc.Address)
			present, err := storage.Storage(loc.Address, loc.Slot)
			if err != nil {
				return nil, fmt.Errorf("storage(%s, %s): %w", loc.Address, loc.Slot, err)
			}
			for _, e := range entries {
				if e.Entry.Kind != mvtypes.EntryData {
					continue
				}
				v := e.Entry.Value
				switch v.Kind {
				case mvtypes.ValueStorage:
					present = v.Storage
				case mvtypes.ValueERC20TransferSender:
					if new(uint256.Int).SetBytes32(present[:]).Lt(v.ERC20SenderSub) {
						return nil, fmt.Errorf("storage(%s, %s): ERC-20 sender delta of tx %d underflows slot", loc.Address, loc.Slot, e.TxIdx)
					}
					present = subHashDelta(present, v.ERC20SenderSub)
				case mvtypes.ValueERC20TransferRecipient:
					present = addHashDelta(present, v.ERC20RecipAdd)
				}
			}
			acc.storage[loc.Slot] = present
		}
	}

	out := make([]FinalizedAccount, 0, len(accs))
	for _, acc := range accs {
		fa := FinalizedAccount{
			Address:         acc.addr,
			SelfDestructed:  acc.selfDestructed,
			Balance:         acc.balance,
			Nonce:           acc.nonce,
			CodeHashChanged: acc.codeHashChanged,
			CodeHash:        acc.codeHash,
			IsNewCode:       acc.isNewCode,
			Storage:         acc.storage,
		}
		if fa.Balance == nil {
			fa.Balance = new(uint256.Int)
		}
		if fa.IsNewCode {
			if code, ok := mv.Bytecode(acc.codeHash); ok {
				fa.Code = code
			}
		}
		out = append(out, fa)
	}

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

// addHashDelta and subHashDelta fold a lazy ERC-20 transfer delta into a
// storage-slot sized hash, mirroring the literal add/subtract pevmvm's
// read path (vmDb.Storage) applies when resolving the same deltas live:
// a recipient's delta is added, a sender's is subtracted, both stored as
// plain (not pre-negated) magnitudes.
func addHashDelta(base common.Hash, delta *uint256.Int) common.Hash {
	v := new(uint256.Int).SetBytes32(base[:])
	v = v.Add(v, delta)
	return common.Hash(v.Bytes32())
}

func subHashDelta(base common.Hash, delta *uint256.Int) common.Hash {
	v := new(uint256.Int).SetBytes32(base[:])
	v = v.Sub(v, delta)
	return common.Hash(v.Bytes32())
}
