package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend is a controllable in-memory backend for tests.
type fakeBackend struct {
	loads    atomic.Int64
	loadErr  error
	quant    QuantInfo
	hasQuant bool
	device   string
	// gate, when non-nil, blocks Load until closed.
	gate chan struct{}
	// result returned by handles this backend produces.
	result    Result
	genErr    error
	genGate   chan struct{}
	panicLoad bool
	panicGen  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		quant:    QuantInfo{Method: "mxfp4", Dequantize: false},
		hasQuant: true,
		device:   "cuda",
	}
}

func (b *fakeBackend) Load(ctx context.Context, canonicalID string, opts LoadOptions) (Handle, error) {
	b.loads.Add(1)
	if b.panicLoad {
		panic("backend load boom")
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return &fakeHandle{b: b, id: canonicalID}, nil
}

type fakeHandle struct {
	b      *fakeBackend
	id     string
	closed atomic.Bool
}

func (h *fakeHandle) Generate(ctx context.Context, prompt string, params GenParams) (Result, error) {
	if h.b.panicGen {
		panic("generate boom")
	}
	if h.b.genGate != nil {
		select {
		case <-h.b.genGate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if h.b.genErr != nil {
		return Result{}, h.b.genErr
	}
	return h.b.result, nil
}

func (h *fakeHandle) Quantization() (QuantInfo, bool) { return h.b.quant, h.b.hasQuant }
func (h *fakeHandle) Device() string                  { return h.b.device }
func (h *fakeHandle) Close() error                    { h.closed.Store(true); return nil }

func newTestManager(b Backend, opts ...func(*ManagerConfig)) *Manager {
	cfg := ManagerConfig{
		Backend:       b,
		DefaultModel:  "gpt-oss:120b",
		RequiredQuant: "mxfp4",
		EnforceQuant:  true,
		Aliases:       true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg)
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", d)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
