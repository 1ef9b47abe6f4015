package pevmvm

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/paraxVM/pevm/chain"
	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
	"github.com/paraxVM/pevm/state"
)

var emptyCodeHash = crypto.Keccak256Hash(nil)

// Sentinel errors an Evaluator may return for conditions the scheduler
// can resolve by waiting on a lower transaction rather than failing the
// block outright (spec §7, grounded on vm.rs's optimistic retry for
// LackOfFundForMaxFee / NonceTooHigh): an internal transaction below this
// one may still credit funds or bump the nonce before it finishes.
var (
	ErrInsufficientFunds = errors.New("pevm: insufficient funds for gas * price + value")
	ErrNonceTooHigh      = errors.New("pevm: nonce too high")
)

// VmExecutionResultKind tags the outcome of one Vm.Execute call.
type VmExecutionResultKind uint8

const (
	VmRetry VmExecutionResultKind = iota
	VmFallbackToSequential
	VmBlocked
	VmExecutionError
	VmOk
)

// VmExecutionResult is the outcome of executing exactly one incarnation
// (spec §4.5).
type VmExecutionResult struct {
	Kind          VmExecutionResultKind
	BlockingTxIdx mvtypes.TxIdx // meaningful when Kind == VmBlocked

	Err error // meaningful when Kind == VmExecutionError

	Result            *ExecutionResult // meaningful when Kind == VmOk
	ReadSet           mvtypes.ReadSet
	WriteSet          mvtypes.WriteSet
	WroteNewLocation  bool
	NextValidationIdx mvtypes.TxIdx
}

// Vm drives one block's worth of transactions through the evaluator,
// sharing the block-scoped state every incarnation needs: MV-Memory, the
// chain's reward policy, and the location hasher (spec §4.4).
type Vm struct {
	hasher    mvtypes.Hasher
	storage   state.Storage
	mvMemory  *mvmemory.MVMemory
	chainSpec chain.Spec
	header    *types.Header
	rules     params.Rules
	txs       []*types.Transaction
	evaluator Evaluator

	beneficiaryHash mvtypes.LocationHash
	rewardPolicy    chain.RewardPolicy
}

// NewVm constructs a Vm ready to execute any transaction in txs against
// storage and mv, under header's rules.
func NewVm(hasher mvtypes.Hasher, storage state.Storage, mv *mvmemory.MVMemory, spec chain.Spec, header *types.Header, rules params.Rules, txs []*types.Transaction, evaluator Evaluator) *Vm {
	return &Vm{
		hasher:          hasher,
		storage:         storage,
		mvMemory:        mv,
		chainSpec:       spec,
		header:          header,
		rules:           rules,
		txs:             txs,
		evaluator:       evaluator,
		beneficiaryHash: hasher.Hash(mvtypes.Basic(spec.CoinbaseAddress(header))),
		rewardPolicy:    spec.RewardPolicy(hasher),
	}
}

func (vm *Vm) hashBasic(addr common.Address) mvtypes.LocationHash {
	return vm.hasher.Hash(mvtypes.Basic(addr))
}

// Execute runs exactly one incarnation of version's transaction.
// prevWriteLocations lists the locations the last incarnation of this
// tx_idx wrote to (nil for the first incarnation ever), so a successful
// run can tell MV-Memory which stale entries to drop (spec §4.3, §4.7).
func (vm *Vm) Execute(version mvtypes.TxVersion, prevWriteLocations []mvtypes.LocationHash) VmExecutionResult {
	tx := vm.txs[version.TxIdx]
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return VmExecutionResult{Kind: VmExecutionError, Err: err}
	}

	to := tx.To()
	db, err := newVmDb(vm, version.TxIdx, tx.Nonce(), from, to, tx.Data())
	if err != nil {
		if readErr, ok := asReadError(err); ok {
			return vm.classifyReadError(readErr)
		}
		return VmExecutionResult{Kind: VmFallbackToSequential}
	}

	env := ExecutionEnv{
		Header:   vm.header,
		ChainID:  u256FromBig(tx.ChainId()),
		BaseFee:  u256FromBig(vm.header.BaseFee),
		Coinbase: vm.chainSpec.CoinbaseAddress(vm.header),
	}
	if price, perr := vm.chainSpec.GasPrice(tx, vm.header); perr == nil {
		env.GasPrice = u256FromBig(price)
	}

	result, delta, err := vm.evaluator(db, env, tx)
	if err != nil {
		if readErr, ok := asReadError(err); ok {
			return vm.classifyReadError(readErr)
		}
		if version.TxIdx > 0 && (errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNonceTooHigh)) {
			return VmExecutionResult{Kind: VmBlocked, BlockingTxIdx: version.TxIdx - 1}
		}
		return VmExecutionResult{Kind: VmExecutionError, Err: err}
	}

	writeSet := vm.buildWriteSet(db, version, tx, from, to, delta, result.GasUsed)

	switch db.strategy.kind {
	case lazyERC20Transfer:
		vm.mvMemory.AddLazyLocations([]mvtypes.LocationHash{
			vm.hasher.Hash(mvtypes.StorageLocation(*to, db.strategy.senderBalanceSlot)),
			vm.hasher.Hash(mvtypes.StorageLocation(*to, db.strategy.recipientBalanceSlot)),
		})
	case lazyRawTransfer:
		vm.mvMemory.AddLazyLocations([]mvtypes.LocationHash{db.fromHash, *db.toHash})
	}

	wroteNewLocation := vm.mvMemory.Record(version, writeSet, prevWriteLocations)

	nextValidationIdx := version.TxIdx
	if db.strategy.kind != lazyNone {
		nextValidationIdx = 0
	}

	return VmExecutionResult{
		Kind:              VmOk,
		Result:            result,
		ReadSet:           db.readSet,
		WriteSet:          writeSet,
		WroteNewLocation:  wroteNewLocation,
		NextValidationIdx: nextValidationIdx,
	}
}

func (vm *Vm) classifyReadError(e *mvtypes.ReadError) VmExecutionResult {
	switch e.Kind {
	case mvtypes.ReadErrorInconsistentRead:
		return VmExecutionResult{Kind: VmRetry}
	case mvtypes.ReadErrorSelfDestructed:
		return VmExecutionResult{Kind: VmFallbackToSequential}
	case mvtypes.ReadErrorBlockingIndex:
		return VmExecutionResult{Kind: VmBlocked, BlockingTxIdx: e.BlockingTxIdx}
	default:
		return VmExecutionResult{Kind: VmExecutionError, Err: e}
	}
}

func asReadError(err error) (*mvtypes.ReadError, bool) {
	var re *mvtypes.ReadError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// buildWriteSet folds the evaluator's StateDelta into the block's write
// log, translating plain balance/nonce writes into lazy deltas whenever
// db took a lazy-evaluation shortcut, then applies the beneficiary reward
// on top (spec §4.5 steps 3-4, grounded on vm.rs's write-set loop).
func (vm *Vm) buildWriteSet(db *vmDb, version mvtypes.TxVersion, tx *types.Transaction, from common.Address, to *common.Address, delta *StateDelta, gasUsed uint64) mvtypes.WriteSet {
	writeSet := make(mvtypes.WriteSet, 0, 3)

	for _, acct := range delta.Accounts {
		if acct.SelfDestructed {
			codeHashLoc := mvtypes.CodeHashLocation(acct.Address)
			writeSet = append(writeSet, mvtypes.WriteDescriptor{
				Location: vm.hasher.Hash(codeHashLoc),
				Loc:      codeHashLoc,
				Value:    mvtypes.NewSelfDestructedValue(),
			})
			continue
		}
		if !acct.Touched {
			continue
		}

		accountHash := db.hashBasic(acct.Address)
		readAccount, hasRead := db.readAccount(accountHash)

		hasCode := acct.CodeHash != (common.Hash{}) && acct.CodeHash != emptyCodeHash
		isNewCode := hasCode && (!hasRead || readAccount.CodeHash == (common.Hash{}))

		changed := isNewCode || !hasRead ||
			readAccount.Nonce != acct.Nonce ||
			(readAccount.Balance != nil && acct.Balance != nil && readAccount.Balance.Cmp(acct.Balance) != 0)

		basicLoc := mvtypes.Basic(acct.Address)
		if changed {
			switch {
			case db.strategy.kind == lazyRawTransfer && accountHash == db.fromHash:
				sub := new(uint256.Int).Sub(maxUint256(), acct.Balance)
				writeSet = append(writeSet, mvtypes.WriteDescriptor{
					Location: accountHash,
					Loc:      basicLoc,
					Value:    mvtypes.NewLazySenderValue(sub),
				})
			case db.strategy.kind == lazyRawTransfer && db.toHash != nil && accountHash == *db.toHash:
				writeSet = append(writeSet, mvtypes.WriteDescriptor{
					Location: accountHash,
					Loc:      basicLoc,
					Value:    mvtypes.NewLazyRecipientValue(u256FromBig(tx.Value())),
				})
			default:
				writeSet = append(writeSet, mvtypes.WriteDescriptor{
					Location: accountHash,
					Loc:      basicLoc,
					Value: mvtypes.NewBasicValue(mvtypes.AccountBasic{
						Balance:  acct.Balance,
						Nonce:    acct.Nonce,
						CodeHash: acct.CodeHash,
					}),
				})
			}
		}

		if isNewCode {
			codeHashLoc := mvtypes.CodeHashLocation(acct.Address)
			writeSet = append(writeSet, mvtypes.WriteDescriptor{
				Location: vm.hasher.Hash(codeHashLoc),
				Loc:      codeHashLoc,
				Value:    mvtypes.NewCodeHashValue(acct.CodeHash),
			})
			vm.mvMemory.SetBytecode([32]byte(acct.CodeHash), acct.Code)
		}

		for slot, change := range acct.Storage {
			storageLoc := mvtypes.StorageLocation(acct.Address, slot)
			locHash := vm.hasher.Hash(storageLoc)
			switch {
			case db.strategy.kind == lazyERC20Transfer && slot == db.strategy.senderBalanceSlot:
				sub := subHash(change.Original, change.Present)
				writeSet = append(writeSet, mvtypes.WriteDescriptor{Location: locHash, Loc: storageLoc, Value: mvtypes.NewERC20TransferSenderValue(sub)})
			case db.strategy.kind == lazyERC20Transfer && slot == db.strategy.recipientBalanceSlot:
				add := subHash(change.Present, change.Original)
				writeSet = append(writeSet, mvtypes.WriteDescriptor{Location: locHash, Loc: storageLoc, Value: mvtypes.NewERC20TransferRecipientValue(add)})
			default:
				writeSet = append(writeSet, mvtypes.WriteDescriptor{Location: locHash, Loc: storageLoc, Value: mvtypes.NewStorageValue(change.Present)})
			}
		}
	}

	vm.applyRewards(&writeSet, tx, gasUsed)
	return writeSet
}

// applyRewards credits the beneficiary (and, under Optimism's policy, the
// base-fee vault) with this transaction's fee, folding the reward into an
// existing write-set entry in place when one already exists for that
// location (spec §4.5 step 4, grounded on vm.rs's apply_rewards).
func (vm *Vm) applyRewards(writeSet *mvtypes.WriteSet, tx *types.Transaction, gasUsed uint64) {
	gasUsedU256 := uint256.NewInt(gasUsed)

	type credit struct {
		location mvtypes.LocationHash
		loc      mvtypes.MemoryLocation
		amount   *uint256.Int
	}

	gasPrice := effectiveGasPrice(tx, vm.header, vm.rules.IsLondon)
	credits := []credit{{
		location: vm.beneficiaryHash,
		loc:      mvtypes.Basic(vm.chainSpec.CoinbaseAddress(vm.header)),
		amount:   new(uint256.Int).Mul(gasPrice, gasUsedU256),
	}}

	if vm.rewardPolicy.Kind == chain.RewardOptimism && vm.rules.IsLondon && vm.header.BaseFee != nil {
		// Post-London, gasPrice above already excludes the base fee (it is
		// the effective tip only), so the base fee that plain Ethereum
		// burns is instead redirected to the base fee vault here. There is
		// no equivalent L1-fee-recipient credit: see RewardPolicy's doc
		// comment for why that one is out of scope.
		baseFeeAmount := new(uint256.Int).Mul(u256FromBig(vm.header.BaseFee), gasUsedU256)
		credits = append(credits, credit{
			location: vm.rewardPolicy.BaseFeeVaultHash,
			loc:      mvtypes.Basic(vm.rewardPolicy.BaseFeeVaultAddress),
			amount:   baseFeeAmount,
		})
	}

	for _, c := range credits {
		applied := false
		for i, wd := range *writeSet {
			if wd.Location != c.location {
				continue
			}
			applied = true
			switch wd.Value.Kind {
			case mvtypes.ValueBasic:
				(*writeSet)[i].Value.Basic.Balance = new(uint256.Int).Add(wd.Value.Basic.Balance, c.amount)
			case mvtypes.ValueLazySender:
				(*writeSet)[i].Value.LazySenderSub = new(uint256.Int).Sub(wd.Value.LazySenderSub, c.amount)
			case mvtypes.ValueLazyRecipient:
				(*writeSet)[i].Value.LazyRecipAdd = new(uint256.Int).Add(wd.Value.LazyRecipAdd, c.amount)
			}
		}
		if !applied {
			*writeSet = append(*writeSet, mvtypes.WriteDescriptor{
				Location: c.location,
				Loc:      c.loc,
				Value:    mvtypes.NewLazyRecipientValue(c.amount),
			})
		}
	}
}

func effectiveGasPrice(tx *types.Transaction, header *types.Header, isLondon bool) *uint256.Int {
	gasPrice := tx.GasPrice()
	if header.BaseFee != nil {
		tip, err := tx.EffectiveGasTip(header.BaseFee)
		if err == nil {
			gasPrice = tip
			if !isLondon {
				gasPrice = gasPrice.Add(gasPrice, header.BaseFee)
			}
		}
	}
	return u256FromBig(gasPrice)
}

func subHash(a, b common.Hash) *uint256.Int {
	x := new(uint256.Int).SetBytes32(a[:])
	y := new(uint256.Int).SetBytes32(b[:])
	return x.Sub(x, y)
}

func u256FromBig(v interface{ Bytes() []byte }) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(v.Bytes())
}

