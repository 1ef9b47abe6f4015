package pevmvm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
)

// vmDb intercepts one transaction's reads, resolving them from MV-Memory
// first and falling back to pre-block Storage, while recording the exact
// origin sequence each location resolved through (spec §4.4). It
// implements Database so any Evaluator can consume it transparently.
type vmDb struct {
	vm       *Vm
	txIdx    mvtypes.TxIdx
	nonce    uint64
	from     common.Address
	fromHash mvtypes.LocationHash
	to       *common.Address
	toHash   *mvtypes.LocationHash

	strategy lazyStrategy

	readSet      mvtypes.ReadSet
	readAccounts map[mvtypes.LocationHash]mvtypes.AccountBasic
}

var _ Database = (*vmDb)(nil)

func newVmDb(vm *Vm, txIdx mvtypes.TxIdx, nonce uint64, from common.Address, to *common.Address, input []byte) (*vmDb, error) {
	db := &vmDb{
		vm:           vm,
		txIdx:        txIdx,
		nonce:        nonce,
		from:         from,
		fromHash:     vm.hashBasic(from),
		to:           to,
		readSet:      make(mvtypes.ReadSet, 2),
		readAccounts: make(map[mvtypes.LocationHash]mvtypes.AccountBasic, 2),
	}

	if to != nil {
		h := vm.hashBasic(*to)
		db.toHash = &h

		toCodeHash, err := db.getCodeHash(*to)
		if err != nil {
			return nil, err
		}
		db.strategy = detectLazyStrategy(from, toCodeHash, input)

		// Only take the raw-transfer shortcut when the sender or
		// recipient already has entries in MV-Memory: evaluating a
		// cold location lazily is more expensive than just computing
		// it once, concurrently (spec §4.4).
		if db.strategy.kind == lazyRawTransfer {
			if !vm.mvMemory.Contains(db.fromHash) && !vm.mvMemory.Contains(h) {
				db.strategy = lazyStrategy{kind: lazyNone}
			}
		}
	}

	return db, nil
}

func (db *vmDb) hashBasic(addr common.Address) mvtypes.LocationHash {
	if addr == db.from {
		return db.fromHash
	}
	if db.to != nil && addr == *db.to {
		return *db.toHash
	}
	return db.vm.hashBasic(addr)
}

// pushOrigin appends origin to an in-progress read, failing the execution
// immediately if it conflicts with an origin already recorded for this
// location by a previous read within the same incarnation (spec §4.4 "a
// mismatch forces InconsistentRead").
func pushOrigin(origins *mvtypes.ReadOrigins, origin mvtypes.ReadOrigin) error {
	if len(*origins) > 0 {
		if (*origins)[len(*origins)-1] != origin {
			return mvtypes.InconsistentRead()
		}
		return nil
	}
	*origins = append(*origins, origin)
	return nil
}

func (db *vmDb) getCodeHash(addr common.Address) (*common.Hash, error) {
	locHash := db.vm.hasher.Hash(mvtypes.CodeHashLocation(addr))
	origins := db.readSet[locHash]

	res := db.vm.mvMemory.Read(locHash, db.txIdx)
	switch res.Kind {
	case mvmemory.ReadEstimate:
		return nil, mvtypes.BlockingIndex(res.BlockingTxIdx)
	case mvmemory.ReadData:
		switch res.Value.Kind {
		case mvtypes.ValueSelfDestructed:
			return nil, mvtypes.SelfDestructedRead()
		case mvtypes.ValueCodeHash:
			if err := pushOrigin(&origins, mvtypes.MvMemoryOrigin(res.Version)); err != nil {
				return nil, err
			}
			db.readSet[locHash] = origins
			h := res.Value.CodeHash
			return &h, nil
		}
	}

	if err := pushOrigin(&origins, mvtypes.StorageOrigin); err != nil {
		return nil, err
	}
	db.readSet[locHash] = origins
	h, err := db.vm.storage.CodeHash(addr)
	if err != nil {
		return nil, mvtypes.StorageReadError(err.Error())
	}
	return h, nil
}

// Basic resolves an account's balance and nonce, folding any pending lazy
// deltas left by earlier transactions into a single accumulated addition
// before combining it with the concrete base value (spec §4.4, §6.1).
func (db *vmDb) Basic(addr common.Address) (*AccountInfo, error) {
	locHash := db.hashBasic(addr)

	// Non-contract sender/recipient accounts are never actually read by a
	// raw-transfer shortcut's EVM execution; mock them out so the
	// evaluator doesn't pay to fully evaluate a lazily-updated balance
	// it's about to overwrite anyway (spec §4.4).
	if db.strategy.kind == lazyRawTransfer {
		if locHash == db.fromHash {
			return &AccountInfo{Nonce: db.nonce, Balance: maxUint256()}, nil
		}
		if db.toHash != nil && locHash == *db.toHash {
			return nil, nil
		}
	}

	origins := db.readSet[locHash]
	hasPrev := len(origins) > 0
	var newOrigins mvtypes.ReadOrigins

	var final *mvtypes.AccountBasic
	balanceAddition := new(uint256.Int)
	positiveAddition := true
	var nonceAddition uint64

	if db.txIdx > 0 {
		upper := db.txIdx
		for {
			res := db.vm.mvMemory.Read(locHash, upper)
			if res.Kind == mvmemory.ReadNotFound {
				break
			}
			if res.Kind == mvmemory.ReadEstimate {
				return nil, mvtypes.BlockingIndex(res.BlockingTxIdx)
			}

			origin := mvtypes.MvMemoryOrigin(res.Version)
			if hasPrev {
				if len(newOrigins) >= len(origins) || origins[len(newOrigins)] != origin {
					return nil, mvtypes.InconsistentRead()
				}
			}
			newOrigins = append(newOrigins, origin)

			switch res.Value.Kind {
			case mvtypes.ValueBasic:
				b := res.Value.Basic.Clone()
				final = &b
			case mvtypes.ValueLazyRecipient:
				if positiveAddition {
					balanceAddition.Add(balanceAddition, res.Value.LazyRecipAdd)
				} else {
					if balanceAddition.Cmp(res.Value.LazyRecipAdd) <= 0 {
						positiveAddition = true
						balanceAddition.Sub(res.Value.LazyRecipAdd, balanceAddition)
					} else {
						balanceAddition.Sub(balanceAddition, res.Value.LazyRecipAdd)
					}
				}
			case mvtypes.ValueLazySender:
				if positiveAddition {
					if balanceAddition.Cmp(res.Value.LazySenderSub) >= 0 {
						balanceAddition.Sub(balanceAddition, res.Value.LazySenderSub)
					} else {
						positiveAddition = false
						balanceAddition.Sub(res.Value.LazySenderSub, balanceAddition)
					}
				} else {
					balanceAddition.Add(balanceAddition, res.Value.LazySenderSub)
				}
				nonceAddition++
			default:
				return nil, mvtypes.InvalidMemoryLocationType()
			}

			if final != nil {
				break
			}
			upper = res.Version.TxIdx
		}
	}

	if final == nil {
		if !hasPrev {
			newOrigins = append(newOrigins, mvtypes.StorageOrigin)
		} else if len(origins) != len(newOrigins)+1 || origins[len(origins)-1] != mvtypes.StorageOrigin {
			return nil, mvtypes.InconsistentRead()
		}

		basic, err := db.vm.storage.Basic(addr)
		if err != nil {
			return nil, mvtypes.StorageReadError(err.Error())
		}
		if basic == nil {
			if !balanceAddition.IsZero() {
				final = &mvtypes.AccountBasic{Balance: new(uint256.Int)}
			}
		} else {
			final = &mvtypes.AccountBasic{Balance: new(uint256.Int).Set(basic.Balance), Nonce: basic.Nonce}
		}
	}

	if !hasPrev {
		db.readSet[locHash] = newOrigins
	}

	if final == nil {
		return nil, nil
	}

	final.Nonce += nonceAddition
	if locHash == db.fromHash && final.Nonce != db.nonce {
		if db.txIdx > 0 {
			return nil, mvtypes.BlockingIndex(db.txIdx - 1)
		}
		return nil, mvtypes.InvalidNonce()
	}

	if positiveAddition {
		final.Balance.Add(final.Balance, balanceAddition)
	} else {
		final.Balance.Sub(final.Balance, balanceAddition)
	}

	codeHash, err := db.getCodeHash(addr)
	if err != nil {
		return nil, err
	}
	var code []byte
	if codeHash != nil {
		if c, ok := db.vm.mvMemory.Bytecode(*codeHash); ok {
			code = c
		} else {
			code, err = db.vm.storage.CodeByHash(*codeHash)
			if err != nil {
				return nil, mvtypes.StorageReadError(err.Error())
			}
		}
	}

	cached := final.Clone()
	if codeHash != nil {
		cached.CodeHash = *codeHash
	}
	db.readAccounts[locHash] = cached

	info := &AccountInfo{Balance: final.Balance, Nonce: final.Nonce, Code: code}
	if codeHash != nil {
		info.CodeHash = *codeHash
	}
	return info, nil
}

func (db *vmDb) CodeByHash(hash common.Hash) ([]byte, error) {
	if code, ok := db.vm.mvMemory.Bytecode(hash); ok {
		return code, nil
	}
	code, err := db.vm.storage.CodeByHash(hash)
	if err != nil {
		return nil, mvtypes.StorageReadError(err.Error())
	}
	return code, nil
}

func (db *vmDb) HasStorage(addr common.Address) (bool, error) {
	ok, err := db.vm.storage.HasStorage(addr)
	if err != nil {
		return false, mvtypes.StorageReadError(err.Error())
	}
	return ok, nil
}

// Storage resolves a single slot, summing any ERC-20 transfer deltas left
// at it before falling through to a concrete value (spec §4.4, §6.2). A
// repeated read of the same slot within one incarnation fails with
// InconsistentRead if it resolves through a different origin sequence.
func (db *vmDb) Storage(addr common.Address, slot common.Hash) (value common.Hash, err error) {
	if db.strategy.kind == lazyERC20Transfer {
		if slot == db.strategy.senderBalanceSlot || slot == db.strategy.recipientBalanceSlot {
			v, err := db.vm.storage.Storage(addr, slot)
			if err != nil {
				return common.Hash{}, mvtypes.StorageReadError(err.Error())
			}
			return v, nil
		}
	}

	locHash := db.vm.hasher.Hash(mvtypes.StorageLocation(addr, slot))
	prevOrigins, hasPrev := db.readSet[locHash]
	db.readSet[locHash] = nil
	defer func() {
		if err == nil && hasPrev && !prevOrigins.Equal(db.readSet[locHash]) {
			value, err = common.Hash{}, mvtypes.InconsistentRead()
		}
	}()

	accumulated := new(uint256.Int)

	if db.txIdx > 0 {
		upper := db.txIdx
		for {
			res := db.vm.mvMemory.Read(locHash, upper)
			if res.Kind == mvmemory.ReadNotFound {
				db.readSet[locHash] = append(db.readSet[locHash], mvtypes.StorageOrigin)
				v, err := db.vm.storage.Storage(addr, slot)
				if err != nil {
					return common.Hash{}, mvtypes.StorageReadError(err.Error())
				}
				return addHashDelta(v, accumulated), nil
			}
			if res.Kind == mvmemory.ReadEstimate {
				return common.Hash{}, mvtypes.BlockingIndex(res.BlockingTxIdx)
			}

			db.readSet[locHash] = append(db.readSet[locHash], mvtypes.MvMemoryOrigin(res.Version))
			switch res.Value.Kind {
			case mvtypes.ValueStorage:
				return addHashDelta(res.Value.Storage, accumulated), nil
			case mvtypes.ValueERC20TransferRecipient:
				accumulated.Add(accumulated, res.Value.ERC20RecipAdd)
			case mvtypes.ValueERC20TransferSender:
				accumulated.Sub(accumulated, res.Value.ERC20SenderSub)
			default:
				return common.Hash{}, mvtypes.InvalidMemoryLocationType()
			}
			upper = res.Version.TxIdx
		}
	}

	db.readSet[locHash] = append(db.readSet[locHash], mvtypes.StorageOrigin)
	v, err := db.vm.storage.Storage(addr, slot)
	if err != nil {
		return common.Hash{}, mvtypes.StorageReadError(err.Error())
	}
	return v, nil
}

func (db *vmDb) BlockHash(number uint64) (common.Hash, error) {
	h, err := db.vm.storage.BlockHash(number)
	if err != nil {
		return common.Hash{}, mvtypes.StorageReadError(err.Error())
	}
	return h, nil
}

func addHashDelta(base common.Hash, delta *uint256.Int) common.Hash {
	if delta.IsZero() {
		return base
	}
	v := new(uint256.Int).SetBytes32(base[:])
	v.Add(v, delta)
	return common.Hash(v.Bytes32())
}

func maxUint256() *uint256.Int {
	max := new(uint256.Int)
	return max.Not(max)
}

// readAccount returns the Basic value this incarnation observed for hash,
// if it read it, so the caller can tell whether a post-execution account
// changed relative to what was actually read (spec §4.5 step 2).
func (db *vmDb) readAccount(hash mvtypes.LocationHash) (mvtypes.AccountBasic, bool) {
	b, ok := db.readAccounts[hash]
	return b, ok
}
