package types

// GenerateRequest represents a generation request payload.
// Optional sampling fields are pointers so that "omitted" is distinguishable
// from an explicit zero; omitted fields are not forwarded to the decoder.
// Unknown extra fields in the JSON body are ignored.
type GenerateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional model identifier. Honored only when the server allows
	// per-request model selection; otherwise the configured default is used.
	// example: gpt-oss:120b
	Model string `json:"model,omitempty" example:"gpt-oss:120b"`
	// Maximum number of new tokens to generate. Defaults to 512.
	// example: 128
	MaxNewTokens *int `json:"max_new_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random). Defaults to 0.7.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability. Defaults to 0.95.
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Top-K sampling: limit candidates to top K tokens. Decoder default when omitted.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Repetition penalty. Decoder default when omitted.
	// example: 1.1
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty" example:"1.1"`
	// Whether to sample (true) or decode greedily (false). Defaults to true.
	// example: true
	DoSample *bool `json:"do_sample,omitempty" example:"true"`
	// End-of-sequence token id override. Decoder default when omitted.
	EOSTokenID *int `json:"eos_token_id,omitempty"`
	// Padding token id override. Decoder default when omitted.
	PadTokenID *int `json:"pad_token_id,omitempty"`
	// Optional stop sequences. Generated text is truncated at the first match.
	// example: ["STOP"]
	Stop []string `json:"stop,omitempty" example:"[\"STOP\"]"`
	// Random seed for reproducibility; omitted lets the decoder choose.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Caller-supplied request id used in logs. A uuid is generated when absent.
	// example: 6f1c2a7e-1a2b-4c3d-9e8f-0a1b2c3d4e5f
	RequestID string `json:"request_id,omitempty" example:"6f1c2a7e-1a2b-4c3d-9e8f-0a1b2c3d4e5f"`
	// Free-form metadata; accepted and ignored.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Usage contains token accounting for one generation.
type Usage struct {
	// Number of tokens in the prompt.
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// Number of newly generated tokens (total minus prompt, floored at zero).
	// example: 48
	CompletionTokens int `json:"completion_tokens" example:"48"`
	// Total tokens processed.
	// example: 60
	TotalTokens int `json:"total_tokens" example:"60"`
	// Wall-clock decode time in milliseconds.
	// example: 950
	ElapsedMS int64 `json:"elapsed_ms" example:"950"`
}

// GenerateResponse is returned by POST /generate on success.
type GenerateResponse struct {
	// Generated text with the prompt echo removed and stop sequences applied.
	Text string `json:"text"`
	// Token usage counters for this request.
	Usage *Usage `json:"usage,omitempty"`
}

// LoadingResponse is returned by POST /generate with HTTP 202 while the model
// is still loading (cold start). Callers should retry.
type LoadingResponse struct {
	// Always "loading".
	// example: loading
	Status string `json:"status" example:"loading"`
	// Resolved canonical model id being loaded.
	// example: openai/gpt-oss-120b
	Model string `json:"model" example:"openai/gpt-oss-120b"`
	// Last load error; empty while no attempt has failed. Always present.
	Error string `json:"error"`
}

// UnavailableResponse is returned with HTTP 503 when the model cannot be served.
type UnavailableResponse struct {
	// Always "error".
	// example: error
	Status string `json:"status" example:"error"`
	// Error text, verbatim from the failing load or decode.
	Error string `json:"error"`
	// Operator hint for resolving the failure.
	Hint string `json:"hint,omitempty"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	// Tri-state readiness: ready, loading, or error.
	// example: ready
	Status string `json:"status" example:"ready"`
	// Resolved canonical model id the server targets.
	// example: openai/gpt-oss-120b
	Model string `json:"model" example:"openai/gpt-oss-120b"`
	// Whether the target model is resident and verified.
	// example: true
	Loaded bool `json:"loaded" example:"true"`
	// Whether a load is currently in flight.
	// example: false
	Loading bool `json:"loading" example:"false"`
	// Quantization method observed on the loaded model.
	// example: mxfp4
	QuantMethod string `json:"quant_method,omitempty" example:"mxfp4"`
	// Last load error; empty while no attempt has failed. Always present.
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health, unconditionally.
type HealthResponse struct {
	// Always "ok".
	// example: ok
	Status string `json:"status" example:"ok"`
}

// StatusResponse is returned by GET /status with operational details.
type StatusResponse struct {
	// Overall lifecycle state (unloaded, loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Canonical id of the resident model, empty when none.
	// example: openai/gpt-oss-120b
	Model string `json:"model,omitempty" example:"openai/gpt-oss-120b"`
	// Whether a load is in flight.
	Loading bool `json:"loading"`
	// Quantization method observed on the loaded model.
	// example: mxfp4
	QuantMethod string `json:"quant_method,omitempty" example:"mxfp4"`
	// Device the model was placed on.
	// example: cuda
	Device string `json:"device,omitempty" example:"cuda"`
	// Last error observed by the lifecycle manager, if any.
	LastError string `json:"last_error,omitempty"`
	// Current generation queue length.
	QueueLen int `json:"queue_len"`
	// In-flight generations (0 or 1).
	Inflight int `json:"inflight"`
	// Maximum queued requests before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total successful model loads since start.
	LoadsTotal uint64 `json:"loads_total"`
	// Whether the binary was compiled with llama runtime support.
	LlamaBuilt bool `json:"llama_built"`
}

// ErrorResponse is a consistent JSON error payload for client errors.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
