//go:build !llama

package lifecycle

import "context"

// This file provides a no-CGO stub for the llama backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real backend lives in backend_llama.go (tagged 'llama').

var llamaBuilt = false

type llamaBackend struct{}

// NewLlamaBackend returns a stub that satisfies Backend but refuses to load
// models without the 'llama' build tag. This avoids any mocked behavior in
// production binaries built without CGO support.
func NewLlamaBackend(modelsDir string, ctxSize, threads, gpuLayers int) Backend {
	return &llamaBackend{}
}

func (b *llamaBackend) Load(ctx context.Context, canonicalID string, opts LoadOptions) (Handle, error) {
	return nil, ErrBackendUnavailable("llama support not built (missing 'llama' build tag)")
}
