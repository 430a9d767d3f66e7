package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Guest exports a scoring plugin must provide. Strings cross the boundary
// NUL-terminated; risk_analyze returns 0 on failure and risk_last_error
// then points at the message.
const (
	exportAlloc     = "alloc"
	exportDealloc   = "dealloc"
	exportAnalyze   = "risk_analyze"
	exportFree      = "risk_free_string"
	exportLastError = "risk_last_error"
)

// pluginRequest is the JSON document handed to the guest
type pluginRequest struct {
	Patient models.Patient        `json:"patient"`
	Input   models.AnalysisInput `json:"input"`
}

// WasmAnalyzer runs a risk-scoring plugin compiled to WebAssembly
type WasmAnalyzer struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
}

// NewWasmAnalyzer loads and instantiates the plugin at wasmPath
func NewWasmAnalyzer(ctx context.Context, wasmPath string) (*WasmAnalyzer, error) {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	return newWasmAnalyzer(ctx, wasmBytes)
}

func newWasmAnalyzer(ctx context.Context, wasmBytes []byte) (*WasmAnalyzer, error) {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to compile wasm module: %w", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithStderr(os.Stderr))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasm module: %w", err)
	}

	for _, name := range []string{exportAlloc, exportDealloc, exportAnalyze, exportFree, exportLastError} {
		if mod.ExportedFunction(name) == nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("%s not exported", name)
		}
	}

	return &WasmAnalyzer{runtime: r, module: mod}, nil
}

// Close releases the runtime
func (w *WasmAnalyzer) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

// Analyze serializes the input, calls the guest and decodes its assessment
func (w *WasmAnalyzer) Analyze(ctx context.Context, patient models.Patient, input models.AnalysisInput) (models.RiskAssessment, error) {
	req, err := json.Marshal(pluginRequest{Patient: patient, Input: input})
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("failed to encode plugin request: %w", err)
	}

	w.mu.Lock()
	out, err := w.call(ctx, string(req))
	w.mu.Unlock()
	if err != nil {
		return models.RiskAssessment{}, err
	}

	var assessment models.RiskAssessment
	if err := json.Unmarshal([]byte(out), &assessment); err != nil {
		return models.RiskAssessment{}, fmt.Errorf("failed to decode plugin response: %w", err)
	}
	if assessment.RiskScore < 0 || assessment.RiskScore > 100 {
		return models.RiskAssessment{}, fmt.Errorf("plugin returned risk score %d outside 0-100", assessment.RiskScore)
	}
	if assessment.RiskLevel == "" {
		assessment.RiskLevel = LevelFor(assessment.RiskScore)
	}
	return assessment, nil
}

func (w *WasmAnalyzer) call(ctx context.Context, payload string) (string, error) {
	ptr, size, err := w.writeString(ctx, payload)
	if err != nil {
		return "", err
	}
	defer w.dealloc(ctx, ptr, size)

	results, err := w.module.ExportedFunction(exportAnalyze).Call(ctx, uint64(ptr))
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", exportAnalyze, err)
	}

	resPtr := uint32(results[0])
	if resPtr == 0 {
		return "", w.lastError(ctx)
	}
	defer w.freeString(ctx, resPtr)

	return w.readString(resPtr)
}

func (w *WasmAnalyzer) writeString(ctx context.Context, s string) (uint32, uint32, error) {
	buf := append([]byte(s), 0)
	size := uint32(len(buf))

	results, err := w.module.ExportedFunction(exportAlloc).Call(ctx, uint64(size))
	if err != nil {
		return 0, 0, fmt.Errorf("alloc failed: %w", err)
	}
	ptr := uint32(results[0])
	if !w.module.Memory().Write(ptr, buf) {
		return 0, 0, fmt.Errorf("failed to write %d bytes at %d", size, ptr)
	}
	return ptr, size, nil
}

func (w *WasmAnalyzer) dealloc(ctx context.Context, ptr, size uint32) {
	_, _ = w.module.ExportedFunction(exportDealloc).Call(ctx, uint64(ptr), uint64(size))
}

func (w *WasmAnalyzer) freeString(ctx context.Context, ptr uint32) {
	_, _ = w.module.ExportedFunction(exportFree).Call(ctx, uint64(ptr))
}

func (w *WasmAnalyzer) lastError(ctx context.Context) error {
	results, err := w.module.ExportedFunction(exportLastError).Call(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last error: %w", err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return fmt.Errorf("plugin failed without an error message")
	}
	msg, err := w.readString(ptr)
	if err != nil {
		return fmt.Errorf("failed to read error message: %w", err)
	}
	return fmt.Errorf("plugin error: %s", msg)
}

func (w *WasmAnalyzer) readString(ptr uint32) (string, error) {
	mem := w.module.Memory()
	buf, ok := mem.Read(ptr, mem.Size()-ptr)
	if !ok {
		return "", fmt.Errorf("failed to read from memory at %d", ptr)
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", fmt.Errorf("string not null-terminated")
}
