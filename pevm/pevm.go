// Package pevm is the executor's public entry point: it wires chain,
// state, mvmemory, pevmvm, scheduler and inspector together into one
// parallel block execution (spec §4, §7), grounded on
// clydemeng-bsc/core/tx_executor.go and revm_state_processor.go's
// Process() for the overall shape of "iterate a block's transactions,
// accumulate receipts, finalize" — generalized from their sequential (or
// single-CGO-call) loop into a worker pool, in the same spirit as
// other_examples' rohansbansal-go-ethereum state_processor.go, which
// already shows this corpus's idiom for a goroutine-per-slot,
// errgroup-driven parallel transaction loop.
package pevm

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/paraxVM/pevm/chain"
	"github.com/paraxVM/pevm/inspector"
	"github.com/paraxVM/pevm/mvmemory"
	"github.com/paraxVM/pevm/mvtypes"
	"github.com/paraxVM/pevm/pevmvm"
	"github.com/paraxVM/pevm/scheduler"
	"github.com/paraxVM/pevm/state"
)

// DefaultMaxRetries bounds how many times a single transaction may be
// re-executed before the block is abandoned as pathological (spec's
// Open Question on retry budgets, decided in DESIGN.md).
const DefaultMaxRetries = 16

var (
	// ErrTooManyRetries is returned wrapped in a *PevmError when a
	// transaction exceeds its retry budget.
	ErrTooManyRetries = errors.New("pevm: exceeded retry budget")

	errFallbackToSequential = errors.New("pevm: evaluator requires sequential fallback")
)

// PevmError reports which transaction the block failed on.
type PevmError struct {
	TxIdx int
	Err   error
}

func (e *PevmError) Error() string { return fmt.Sprintf("pevm: tx %d: %v", e.TxIdx, e.Err) }
func (e *PevmError) Unwrap() error { return e.Err }

// ExecuteConfig tunes one Execute call.
type ExecuteConfig struct {
	// Concurrency is the number of worker goroutines. Values <= 1 run a
	// single worker, which executes transactions one at a time in index
	// order (execution tasks take priority, so validations follow once no
	// execution is pending); this is also what Execute falls back to
	// automatically when the evaluator reports VmFallbackToSequential.
	Concurrency int
	// MaxRetries caps, per transaction, the re-executions caused by an
	// inconsistent read or by a read dependency on a transaction that has
	// already executed; beyond it Execute fails with ErrTooManyRetries.
	// Re-executions after a failed validation are not counted. Zero
	// selects DefaultMaxRetries.
	MaxRetries int
	// Inspector, if set, records a timeline of every execute/validate
	// task for later rendering via Inspector.ToSVG.
	Inspector *inspector.Inspector
}

// TxExecutionResult is one transaction's final, validated outcome.
type TxExecutionResult struct {
	TxIdx   int
	Success bool
	GasUsed uint64
	// CumulativeGasUsed is the running total of GasUsed across every
	// transaction up to and including this one, in block order (spec
	// §4.7, §6.2). It is filled in once the whole block has executed
	// successfully, not as each incarnation finishes, since incarnations
	// complete out of block order under speculative execution.
	CumulativeGasUsed uint64
	Logs              []*types.Log
	ReturnData        []byte
}

// Execute runs txs against storage under header's rules, speculatively in
// parallel, and returns each transaction's result together with the final
// per-account state the block produced (spec §4, §4.7). If the evaluator
// ever reports that a read cannot be safely resolved without full
// sequential ordering (e.g. a read that raced a self-destruct), Execute
// transparently restarts the block with Concurrency forced to 1.
func Execute(ctx context.Context, storage state.Storage, spec chain.Spec, header *types.Header, txs []*types.Transaction, evaluator pevmvm.Evaluator, cfg ExecuteConfig) ([]TxExecutionResult, []FinalizedAccount, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	results, finalized, err := run(ctx, storage, spec, header, txs, evaluator, cfg)
	if errors.Is(err, errFallbackToSequential) {
		log.Warn("pevm: evaluator forced sequential fallback", "block", header.Number)
		seqCfg := cfg
		seqCfg.Concurrency = 1
		return run(ctx, storage, spec, header, txs, evaluator, seqCfg)
	}
	return results, finalized, err
}

func run(ctx context.Context, storage state.Storage, spec chain.Spec, header *types.Header, txs []*types.Transaction, evaluator pevmvm.Evaluator, cfg ExecuteConfig) ([]TxExecutionResult, []FinalizedAccount, error) {
	rules, err := spec.BlockSpec(header)
	if err != nil {
		return nil, nil, fmt.Errorf("pevm: resolve block spec: %w", err)
	}

	hasher := mvtypes.NewHasher(header.Number.Uint64())
	mv := mvmemory.New()

	concurrency := sizeConcurrency(cfg.Concurrency, spec.BuildMVMemory(header, txs, hasher), len(txs))

	vmInstance := pevmvm.NewVm(hasher, storage, mv, spec, header, rules, txs, evaluator)
	sched := scheduler.New(len(txs))

	var (
		mu       sync.Mutex
		results  = make([]TxExecutionResult, len(txs))
		readSets = make([]mvtypes.ReadSet, len(txs))
		lastWrites = make([][]mvtypes.LocationHash, len(txs))
		retries  = make([]int, len(txs))
		registry = make(map[mvtypes.LocationHash]mvtypes.MemoryLocation)
	)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		workerID := w
		eg.Go(func() error {
			return runWorker(egCtx, workerID, cfg, sched, vmInstance, mv, &mu, results, readSets, lastWrites, retries, registry)
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var cumulative uint64
	for i := range results {
		cumulative += results[i].GasUsed
		results[i].CumulativeGasUsed = cumulative
	}

	finalized, err := Finalize(storage, mv, registry)
	if err != nil {
		return nil, nil, fmt.Errorf("pevm: finalize: %w", err)
	}

	log.Debug("pevm: block executed", "block", header.Number, "txs", len(txs), "concurrency", concurrency, "accounts", len(finalized))
	return results, finalized, nil
}

func runWorker(
	ctx context.Context,
	workerID int,
	cfg ExecuteConfig,
	sched *scheduler.Scheduler,
	vmInstance *pevmvm.Vm,
	mv *mvmemory.MVMemory,
	mu *sync.Mutex,
	results []TxExecutionResult,
	readSets []mvtypes.ReadSet,
	lastWrites [][]mvtypes.LocationHash,
	retries []int,
	registry map[mvtypes.LocationHash]mvtypes.MemoryLocation,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if sched.Done() {
			return nil
		}

		task := sched.NextTask()
		switch task.Kind {
		case scheduler.TaskNone:
			runtime.Gosched()

		case scheduler.TaskExecute:
			idx := task.Version.TxIdx
			mu.Lock()
			prevWrites := lastWrites[idx]
			mu.Unlock()

			var res pevmvm.VmExecutionResult
			exec := func() { res = vmInstance.Execute(task.Version, prevWrites) }
			if cfg.Inspector != nil {
				cfg.Inspector.Measure(workerID, inspector.Task{Kind: inspector.TaskExecution, Version: task.Version}, exec)
			} else {
				exec()
			}

			switch res.Kind {
			case pevmvm.VmOk:
				mu.Lock()
				readSets[idx] = res.ReadSet
				lastWrites[idx] = writeLocations(res.WriteSet)
				for _, wd := range res.WriteSet {
					if _, ok := registry[wd.Location]; !ok {
						registry[wd.Location] = wd.Loc
					}
				}
				results[idx] = TxExecutionResult{
					TxIdx:      int(idx),
					Success:    res.Result.Success,
					GasUsed:    res.Result.GasUsed,
					Logs:       res.Result.Logs,
					ReturnData: res.Result.ReturnData,
				}
				mu.Unlock()
				sched.FinishExecution(task.Version, res.NextValidationIdx)

			case pevmvm.VmBlocked:
				if !sched.AddDependency(idx, res.BlockingTxIdx) {
					// The blocking transaction has already executed, so this
					// one is re-executed at once; that counts as a retry.
					mu.Lock()
					retries[idx]++
					exceeded := retries[idx] > cfg.MaxRetries
					mu.Unlock()
					if exceeded {
						return &PevmError{TxIdx: int(idx), Err: ErrTooManyRetries}
					}
					sched.AbortExecution(task.Version)
				}

			case pevmvm.VmRetry:
				mu.Lock()
				retries[idx]++
				exceeded := retries[idx] > cfg.MaxRetries
				mu.Unlock()
				if exceeded {
					return &PevmError{TxIdx: int(idx), Err: ErrTooManyRetries}
				}
				sched.AbortExecution(task.Version)

			case pevmvm.VmFallbackToSequential:
				return errFallbackToSequential

			case pevmvm.VmExecutionError:
				return &PevmError{TxIdx: int(idx), Err: res.Err}
			}

		case scheduler.TaskValidate:
			idx := task.Version.TxIdx
			mu.Lock()
			rs := readSets[idx]
			mu.Unlock()

			var valid bool
			val := func() { valid = scheduler.Validate(mv, idx, rs) }
			if cfg.Inspector != nil {
				cfg.Inspector.Measure(workerID, inspector.Task{Kind: inspector.TaskValidation, Version: task.Version}, val)
			} else {
				val()
			}

			if !valid {
				mu.Lock()
				locs := lastWrites[idx]
				mu.Unlock()
				mv.MarkEstimate(idx, locs)
			}
			sched.FinishValidation(idx, task.Version.Incarnation, valid)
		}
	}
}

// sizeConcurrency narrows the caller's requested worker count using the
// chain Spec's estimated hot locations (spec §4.1: these hints exist so
// "the scheduler can choose its initial execution concurrency wisely").
// A location every transaction is predicted to touch — the common case,
// since it is usually the coinbase — promises heavy abort/re-validate
// traffic near the front of the block regardless of width, so running
// more than a handful of workers there buys aborts, not throughput.
func sizeConcurrency(requested int, hints []chain.EstimatedLocation, numTxs int) int {
	if requested <= 1 || numTxs == 0 {
		return requested
	}
	hottest := 0
	for _, h := range hints {
		if len(h.TxIdxs) > hottest {
			hottest = len(h.TxIdxs)
		}
	}
	if hottest < numTxs {
		return requested
	}
	if requested > 4 {
		return 4
	}
	return requested
}

func writeLocations(ws mvtypes.WriteSet) []mvtypes.LocationHash {
	out := make([]mvtypes.LocationHash, len(ws))
	for i, wd := range ws {
		out[i] = wd.Location
	}
	return out
}
