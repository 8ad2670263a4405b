// Package simulation implements C4, the one-shot EVM transaction evaluator
// that every higher-level protocol (C6 adapter calls, C5 slot discovery
// probes) executes through.
package simulation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dexsim/protosim/pkg/account"
	"github.com/dexsim/protosim/pkg/evmdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// DefaultGasLimit is the ceiling applied whenever a caller omits (or
// exceeds) GasLimit, matching §4.4's "gas_limit ≤ 8_000_000 default".
const DefaultGasLimit uint64 = 8_000_000

// Params describes a single call or contract creation to execute. A zero
// To address, or IsCreation set, signals contract creation.
type Params struct {
	Caller      common.Address
	To          common.Address
	IsCreation  bool
	Data        []byte
	Value       *uint256.Int
	Overrides   map[common.Address]map[common.Hash]common.Hash
	GasLimit    uint64
	BlockNumber uint64
	Timestamp   uint64
	Trace       bool
}

// Result is the classified outcome of a successful (non-reverted,
// non-halted) simulation.
type Result struct {
	Output       []byte
	StateUpdates map[common.Address]account.StateUpdate
	GasUsed      uint64
}

// TransactionError covers EVM-level failures: reverts, halts, and any
// other host error that isn't a DB-tier failure. Data mirrors revm's
// convention: "0x"-prefixed hex for a revert payload, the halt-reason name
// otherwise.
type TransactionError struct {
	Data    string
	GasUsed *uint64
}

func (e *TransactionError) Error() string {
	if e.GasUsed != nil {
		return fmt.Sprintf("simulation: transaction error: %s (gas_used=%d)", e.Data, *e.GasUsed)
	}
	return fmt.Sprintf("simulation: transaction error: %s", e.Data)
}

// StorageError wraps a failure from the underlying DB tier (RPC transport,
// missing indexer account). Always recoverable by retry per §7.
type StorageError struct {
	Message string
}

func (e *StorageError) Error() string { return fmt.Sprintf("simulation: storage error: %s", e.Message) }

func (e *StorageError) Unwrap() error { return errors.New(e.Message) }

// Engine is the one-shot transaction evaluator (C4). It never retains
// mutable EVM state across calls: every Simulate call builds a fresh
// StateDB adapter bound to the same underlying DB reference, so calls are
// re-entrant at the DB but not at the engine.
type Engine struct {
	db     evmdb.ReadThroughDB
	config *params.ChainConfig
	log    *zap.SugaredLogger
}

// New builds an Engine over db. chainConfig selects which fork rules are
// active at the block numbers/timestamps callers will simulate against; use
// params.MainnetChainConfig to simulate real deployed mainnet contracts.
func New(db evmdb.ReadThroughDB, chainConfig *params.ChainConfig, log *zap.SugaredLogger) *Engine {
	if chainConfig == nil {
		chainConfig = params.MainnetChainConfig
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{db: db, config: chainConfig, log: log}
}

// Simulate executes p against the engine's DB reference and classifies the
// outcome per §4.4.
func (e *Engine) Simulate(p Params) (*Result, error) {
	gasLimit := p.GasLimit
	if gasLimit == 0 || gasLimit > DefaultGasLimit {
		gasLimit = DefaultGasLimit
	}
	value := p.Value
	if value == nil {
		value = uint256.NewInt(0)
	}

	dbView := e.db
	if len(p.Overrides) > 0 {
		dbView = evmdb.NewOverriddenDB(e.db, p.Overrides)
	}
	stateDB := NewStateDB(dbView)

	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    common.Address{},
		GasLimit:    gasLimit,
		BlockNumber: new(big.Int).SetUint64(p.BlockNumber),
		Time:        p.Timestamp,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
	}

	evm := vm.NewEVM(blockCtx, stateDB, e.config, vm.Config{})

	var to *common.Address
	if !p.IsCreation && p.To != (common.Address{}) {
		dst := p.To
		to = &dst
	}

	msg := &core.Message{
		From:              p.Caller,
		To:                to,
		Value:             value.ToBig(),
		GasLimit:          gasLimit,
		GasPrice:          new(big.Int),
		GasFeeCap:         new(big.Int),
		GasTipCap:         new(big.Int),
		Data:              p.Data,
		SkipAccountChecks: true,
	}

	gp := new(core.GasPool).AddGas(gasLimit)
	execResult, err := core.ApplyMessage(evm, msg, gp)

	if p.Trace {
		e.logTrace(p, stateDB, execResult, err)
	}

	if dbErr := stateDB.Err(); dbErr != nil {
		return nil, &StorageError{Message: dbErr.Error()}
	}
	if err != nil {
		return nil, &TransactionError{Data: err.Error()}
	}

	if execResult.Failed() {
		gasUsed := execResult.UsedGas
		if errors.Is(execResult.Err, vm.ErrExecutionReverted) {
			return nil, &TransactionError{
				Data:    "0x" + common.Bytes2Hex(execResult.ReturnData),
				GasUsed: &gasUsed,
			}
		}
		return nil, &TransactionError{
			Data:    execResult.Err.Error(),
			GasUsed: &gasUsed,
		}
	}

	return &Result{
		Output:       execResult.ReturnData,
		StateUpdates: stateDB.StateUpdates(),
		GasUsed:      execResult.UsedGas,
	}, nil
}

// logTrace prints a human-readable summary of a call: its inputs, the
// resulting logs, and the touched accounts. Debug aid only, no semantic
// effect on the returned Result.
func (e *Engine) logTrace(p Params, stateDB *StateDB, execResult *core.ExecutionResult, err error) {
	fields := []interface{}{
		"caller", p.Caller,
		"to", p.To,
		"creation", p.IsCreation,
		"value", p.Value,
		"num_logs", len(stateDB.Logs()),
		"num_touched_accounts", len(stateDB.StateUpdates()),
	}
	if err != nil {
		fields = append(fields, "apply_error", err)
	} else {
		fields = append(fields, "used_gas", execResult.UsedGas, "failed", execResult.Failed())
	}
	e.log.Debugw("simulation call trace", fields...)
}
