package lifecycle

import "context"

// Backend abstracts the model runtime used by the Manager. Concrete
// implementations (e.g., llama.cpp) should satisfy this interface.
type Backend interface {
	// Load fetches the model and tokenizer for the canonical id and returns a
	// handle ready for generation. Implementations honor LoadOptions: when a
	// quantization mode is required they must request it with dequantization
	// disabled, and place the model on the best available device.
	Load(ctx context.Context, canonicalID string, opts LoadOptions) (Handle, error)
}

// LoadOptions captures constraints passed to Backend.Load.
type LoadOptions struct {
	// RequiredQuant is the quantization method the loaded model must use
	// (e.g., "mxfp4"). Empty disables enforcement.
	RequiredQuant string
	// Dequantize must remain false when RequiredQuant is set.
	Dequantize bool
	// DeviceMap selects device placement; "auto" prefers the best available
	// accelerator and falls back to CPU.
	DeviceMap string
}

// Handle is a loaded model/tokenizer pair. A Handle is replaced wholesale
// when a different model id is loaded; it is never partially mutated.
type Handle interface {
	// Generate runs one blocking decode call. Callers must not invoke
	// Generate concurrently on the same Handle.
	Generate(ctx context.Context, prompt string, params GenParams) (Result, error)
	// Quantization reports the quantizer attached to the loaded model.
	// ok is false when the model ended up unquantized.
	Quantization() (QuantInfo, bool)
	// Device reports where the model was placed (e.g., "cuda", "cpu").
	Device() string
	// Close releases model resources.
	Close() error
}

// QuantInfo describes the quantization state observed on a loaded model.
type QuantInfo struct {
	Method     string
	Dequantize bool
}

// GenParams captures generation parameters for one decode call. Pointer
// fields are forwarded to the decoder only when non-nil so the decoder's own
// defaults apply otherwise.
type GenParams struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	DoSample          bool
	TopK              *int
	RepetitionPenalty *float64
	EOSTokenID        *int
	PadTokenID        *int
	Seed              *int64
	Stop              []string
}

// Result is the raw outcome of one decode call, before the gateway trims the
// prompt echo and applies stop sequences.
type Result struct {
	// Text is the decoded output. Depending on the backend it may still
	// include the echoed prompt prefix.
	Text string
	// PromptTokens is the tokenized prompt length (0 when the backend cannot
	// report it).
	PromptTokens int
	// TotalTokens is the total sequence length after decoding.
	TotalTokens int
}
