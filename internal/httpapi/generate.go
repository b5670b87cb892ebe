package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gptd/internal/config"
	"gptd/internal/lifecycle"
	"gptd/pkg/types"
)

// Generation parameter defaults applied when the request omits them.
// top_k, repetition_penalty, eos/pad token ids and seed are forwarded only
// when supplied so the decoder's own defaults apply.
const (
	defaultMaxNewTokens = 512
	defaultTemperature  = 0.7
	defaultTopP         = 0.95
	defaultDoSample     = true
)

// Generate godoc
// @Summary     Generate a completion for a prompt
// @Accept      json
// @Produce     json
// @Param       request body types.GenerateRequest true "generation request"
// @Success     200 {object} types.GenerateResponse
// @Success     202 {object} types.LoadingResponse "model still loading; retry"
// @Failure     400 {object} types.ErrorResponse
// @Failure     429 {object} types.ErrorResponse
// @Failure     503 {object} types.UnavailableResponse
// @Router      /generate [post]
func generateHandler(svc Service, cfg GatewayConfig) http.HandlerFunc {
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		// Per-request model selection is a deployment policy, not a default.
		modelArg := ""
		if cfg.AllowModelOverride {
			modelArg = req.Model
		}
		target := svc.Resolve(modelArg)

		// Cold start: trigger a background load and answer immediately;
		// never block the request on the load.
		if !svc.ReadyFor(modelArg) {
			svc.EnsureLoadedAsync(modelArg)
			snap := svc.Snapshot()
			if snap.LastError != "" {
				writeJSON(w, http.StatusServiceUnavailable, types.UnavailableResponse{
					Status: "error",
					Error:  snap.LastError,
					Hint:   quantHint(cfg.RequiredQuant),
				})
				return
			}
			if !svc.ReadyFor(modelArg) {
				writeJSON(w, http.StatusAccepted, types.LoadingResponse{
					Status: "loading",
					Model:  target,
				})
				return
			}
		}

		params := buildGenParams(req)
		joined, cancel := joinContexts(baseCtx, r.Context())
		defer cancel()

		start := time.Now()
		res, err := svc.Generate(joined, req.Prompt, params)
		elapsed := time.Since(start)
		if err != nil {
			// Client disconnect or shutdown: nothing useful to write.
			if r.Context().Err() != nil || baseCtx.Err() != nil {
				return
			}
			if lifecycle.IsTooBusy(err) {
				IncrementBackpressure("queue_full")
				writeJSONError(w, http.StatusTooManyRequests, err.Error())
				return
			}
			// Decode/tokenization faults are isolated to this request.
			writeJSON(w, http.StatusServiceUnavailable, types.UnavailableResponse{
				Status: "error",
				Error:  err.Error(),
			})
			return
		}

		text := shapeText(req.Prompt, res.Text, req.Stop, cfg.TrimStrategy)
		usage := &types.Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: maxInt(0, res.TotalTokens-res.PromptTokens),
			TotalTokens:      res.TotalTokens,
			ElapsedMS:        elapsed.Milliseconds(),
		}
		logGenerate(req.RequestID, target, usage)
		writeJSON(w, http.StatusOK, types.GenerateResponse{Text: text, Usage: usage})
	}
}

// buildGenParams applies documented defaults and passes optional fields
// through untouched.
func buildGenParams(req types.GenerateRequest) lifecycle.GenParams {
	p := lifecycle.GenParams{
		MaxNewTokens:      defaultMaxNewTokens,
		Temperature:       defaultTemperature,
		TopP:              defaultTopP,
		DoSample:          defaultDoSample,
		TopK:              req.TopK,
		RepetitionPenalty: req.RepetitionPenalty,
		EOSTokenID:        req.EOSTokenID,
		PadTokenID:        req.PadTokenID,
		Seed:              req.Seed,
		Stop:              req.Stop,
	}
	if req.MaxNewTokens != nil && *req.MaxNewTokens > 0 {
		p.MaxNewTokens = *req.MaxNewTokens
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.DoSample != nil {
		p.DoSample = *req.DoSample
	}
	return p
}

// shapeText applies the configured trim strategy: "prefix" strips the echoed
// prompt, "special" leaves the backend's special-token stripping as-is. Both
// truncate at the first matching stop string.
func shapeText(prompt, text string, stop []string, strategy string) string {
	if strategy == config.TrimPrefix && strings.HasPrefix(text, prompt) {
		text = text[len(prompt):]
	}
	for _, s := range stop {
		if s == "" {
			continue
		}
		if idx := strings.Index(text, s); idx != -1 {
			text = text[:idx]
			break
		}
	}
	return text
}

// quantHint is the operator hint attached to 503 responses while the
// required quantization mode cannot be served.
func quantHint(required string) string {
	if required == "" {
		return ""
	}
	return fmt.Sprintf("%s quantization is required; ensure a supported accelerator and %s-quantized weights are available", required, required)
}

// logGenerate emits the one-line per-request record. Best-effort: logging
// must never fail the request.
func logGenerate(requestID, model string, u *types.Usage) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if zlog != nil {
		zlog.Info().
			Str("request_id", requestID).
			Str("model", model).
			Int("prompt_tokens", u.PromptTokens).
			Int("completion_tokens", u.CompletionTokens).
			Int64("elapsed_ms", u.ElapsedMS).
			Msg("generate")
		return
	}
	log.Printf("generate request_id=%s model=%s prompt_tokens=%d completion_tokens=%d elapsed_ms=%d",
		requestID, model, u.PromptTokens, u.CompletionTokens, u.ElapsedMS)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
