//go:build llama

package lifecycle

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"gptd/internal/registry"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaBackend loads GGUF weights from a local models directory via
// go-llama.cpp. The quantization method is taken from the weight file's
// filename tag; the lifecycle manager verifies it against the required mode.
type llamaBackend struct {
	modelsDir string
	ctxSize   int
	threads   int
	gpuLayers int
}

// NewLlamaBackend constructs the llama.cpp-backed Backend. gpuLayers > 0
// offloads to the accelerator; 0 keeps the model on CPU.
func NewLlamaBackend(modelsDir string, ctxSize, threads, gpuLayers int) Backend {
	return &llamaBackend{modelsDir: modelsDir, ctxSize: ctxSize, threads: threads, gpuLayers: gpuLayers}
}

func (b *llamaBackend) Load(ctx context.Context, canonicalID string, opts LoadOptions) (Handle, error) {
	if strings.TrimSpace(canonicalID) == "" {
		return nil, errors.New("model id is empty")
	}
	path, quant, err := registry.Locate(b.modelsDir, canonicalID)
	if err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.SetContext(b.ctxSize),
	}
	if b.gpuLayers > 0 {
		mo = append(mo, llama.SetGPULayers(b.gpuLayers))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	device := "cpu"
	if b.gpuLayers > 0 {
		device = "gpu"
	}
	return &llamaHandle{model: m, threads: b.threads, quant: quant, device: device}, nil
}

// llamaHandle owns one loaded model.
type llamaHandle struct {
	model   *llama.LLama
	threads int
	quant   string
	device  string
}

func (h *llamaHandle) Generate(ctx context.Context, prompt string, params GenParams) (Result, error) {
	if h.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}

	// Count completion tokens as they stream; respect cancellation.
	completion := 0
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		completion++
		return true
	})

	po := mapGenParamsToPredictOptions(params, h.threads)
	text, err := h.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	// Prompt token counts are not exposed by this runtime; report only the
	// generated span so usage floors at zero.
	return Result{Text: text, PromptTokens: 0, TotalTokens: completion}, nil
}

func (h *llamaHandle) Quantization() (QuantInfo, bool) {
	if h.quant == "" {
		return QuantInfo{}, false
	}
	return QuantInfo{Method: h.quant, Dequantize: false}, true
}

func (h *llamaHandle) Device() string { return h.device }

func (h *llamaHandle) Close() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

// mapGenParamsToPredictOptions converts generation params into go-llama.cpp
// options. Pointer fields are appended only when supplied so the runtime's
// own defaults apply otherwise. eos/pad token id overrides have no
// counterpart in this runtime and are ignored.
func mapGenParamsToPredictOptions(params GenParams, threads int) []llama.PredictOption {
	temp := float32(params.Temperature)
	if !params.DoSample {
		temp = 0 // greedy
	}
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, params.MaxNewTokens)),
		llama.SetThreads(maxInt(1, threads)),
		llama.SetTemperature(temp),
		llama.SetTopP(float32(params.TopP)),
	}
	if params.TopK != nil {
		po = append(po, llama.SetTopK(*params.TopK))
	}
	if params.RepetitionPenalty != nil {
		po = append(po, llama.SetPenalty(float32(*params.RepetitionPenalty)))
	}
	if params.Seed != nil {
		po = append(po, llama.SetSeed(int(*params.Seed)))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
