package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"mcn/interfaces"
	"mcn/jsonx"
	"mcn/types"
)

// WasmExecutor runs user operations inside a wazero sandbox. The guest
// module exports `alloc(size) -> ptr` and `apply(ptr, len) -> packed`, where
// packed is (outPtr << 32) | outLen pointing at a JSON TransactionOutcome.
// System operations and bundles are delegated to the wrapped executor.
type WasmExecutor struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
	system  interfaces.ExecutionOracle
}

type wasmInput struct {
	ChainID types.ChainID `json:"chain_id"`
	Height  uint64        `json:"height"`
	Payload []byte        `json:"payload"`
}

type wasmOutcome struct {
	Messages        []types.OutgoingMessage `json:"messages"`
	Events          []types.Event           `json:"events"`
	OracleResponses []types.OracleResponse  `json:"oracle_responses"`
	Blobs           []types.Blob            `json:"blobs"`
	Result          []byte                  `json:"result"`
}

func NewWasmExecutor(ctx context.Context, wasmBytes []byte, system interfaces.ExecutionOracle) (*WasmExecutor, error) {
	runtime := wazero.NewRuntime(ctx)
	module, err := runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasm module: %w", err)
	}
	for _, export := range []string{"alloc", "apply"} {
		if module.ExportedFunction(export) == nil {
			runtime.Close(ctx)
			return nil, fmt.Errorf("wasm module does not export %q", export)
		}
	}
	return &WasmExecutor{runtime: runtime, module: module, system: system}, nil
}

func (e *WasmExecutor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *WasmExecutor) Apply(ctx context.Context, chainID types.ChainID, height uint64,
	tx interfaces.Transaction) (*interfaces.TransactionOutcome, error) {
	if tx.Operation == nil || tx.Operation.IsSystem() {
		return e.system.Apply(ctx, chainID, height, tx)
	}

	// Guest calls are serialized: the module instance owns one linear memory.
	e.mu.Lock()
	defer e.mu.Unlock()

	input := jsonx.MustMarshal(wasmInput{ChainID: chainID, Height: height, Payload: tx.Operation.User})
	allocRes, err := e.module.ExportedFunction("alloc").Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("wasm alloc failed: %w", err)
	}
	ptr := uint32(allocRes[0])
	if !e.module.Memory().Write(ptr, input) {
		return nil, fmt.Errorf("wasm input write out of bounds at %d", ptr)
	}
	applyRes, err := e.module.ExportedFunction("apply").Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("wasm apply failed: %w", err)
	}
	packed := applyRes[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed)
	data, ok := e.module.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("wasm output read out of bounds at %d+%d", outPtr, outLen)
	}
	var out wasmOutcome
	if err := jsonx.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("wasm outcome decode failed: %w", err)
	}
	return &interfaces.TransactionOutcome{
		Messages:        out.Messages,
		Events:          out.Events,
		OracleResponses: out.OracleResponses,
		Blobs:           out.Blobs,
		Result:          types.OperationResult{Bytes: out.Result},
	}, nil
}
