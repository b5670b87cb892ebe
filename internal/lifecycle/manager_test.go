package lifecycle

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	m := New(ManagerConfig{Backend: newFakeBackend()})
	if cap(m.queueCh) != defaultMaxQueueDepth {
		t.Fatalf("expected default queue depth %d, got %d", defaultMaxQueueDepth, cap(m.queueCh))
	}
	if m.maxWait != defaultMaxWait {
		t.Fatalf("expected default maxWait %v, got %v", defaultMaxWait, m.maxWait)
	}
	if m.cfg.RequiredQuant != defaultRequiredQuant {
		t.Fatalf("expected default quant %q, got %q", defaultRequiredQuant, m.cfg.RequiredQuant)
	}
}

func TestReadyForInitiallyFalse(t *testing.T) {
	m := newTestManager(newFakeBackend())
	if m.ReadyFor("") || m.ReadyFor("gpt-oss:120b") {
		t.Fatal("expected not ready before any load")
	}
	snap := m.Snapshot()
	if snap.ModelID != "" || snap.Loading || snap.LastError != "" {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
}

func TestLoadSuccess(t *testing.T) {
	b := newFakeBackend()
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !m.ReadyFor("") || !m.ReadyFor("gpt-oss:120b") || !m.ReadyFor("openai/gpt-oss-120b") {
		t.Fatal("expected ready for default, alias and canonical ids")
	}
	snap := m.Snapshot()
	if snap.LastError != "" {
		t.Fatalf("expected no error, got %q", snap.LastError)
	}
	if snap.QuantMethod != "mxfp4" {
		t.Fatalf("expected observed quant mxfp4, got %q", snap.QuantMethod)
	}
	if snap.Device != "cuda" {
		t.Fatalf("expected device cuda, got %q", snap.Device)
	}
	if snap.State() != StateReady {
		t.Fatalf("expected state ready, got %s", snap.State())
	}
}

func TestLoadIdempotentForSameID(t *testing.T) {
	b := newFakeBackend()
	m := newTestManager(b)
	for i := 0; i < 3; i++ {
		if err := m.Load(testCtx(t), "gpt-oss:120b"); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if n := b.loads.Load(); n != 1 {
		t.Fatalf("expected exactly 1 backend load, got %d", n)
	}
}

func TestLoadDifferentIDReplacesHandle(t *testing.T) {
	b := newFakeBackend()
	m := newTestManager(b)
	if err := m.Load(testCtx(t), "gpt-oss:120b"); err != nil {
		t.Fatalf("load: %v", err)
	}
	prev := m.handle.(*fakeHandle)

	if err := m.Load(testCtx(t), "gpt-oss:20b"); err != nil {
		t.Fatalf("load second: %v", err)
	}
	if !m.ReadyFor("gpt-oss:20b") {
		t.Fatal("expected ready for new id")
	}
	if m.ReadyFor("gpt-oss:120b") {
		t.Fatal("single-slot cache: old id must no longer be ready")
	}
	if !prev.closed.Load() {
		t.Fatal("previous handle must be closed on replacement")
	}
}

func TestLoadQuantVerificationMissingQuantizer(t *testing.T) {
	b := newFakeBackend()
	b.hasQuant = false
	m := newTestManager(b)
	err := m.Load(testCtx(t), "")
	if err == nil || !IsQuantVerification(err) {
		t.Fatalf("expected quant verification error, got %v", err)
	}
	if m.ReadyFor("") {
		t.Fatal("unverified model must never be served")
	}
	snap := m.Snapshot()
	if snap.LastError == "" || snap.State() != StateError {
		t.Fatalf("expected sticky error state, got %+v", snap)
	}
}

func TestLoadQuantVerificationWrongMethod(t *testing.T) {
	b := newFakeBackend()
	b.quant = QuantInfo{Method: "q4_k_m", Dequantize: false}
	m := newTestManager(b)
	err := m.Load(testCtx(t), "")
	if err == nil || !IsQuantVerification(err) {
		t.Fatalf("expected quant verification error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mxfp4") {
		t.Fatalf("error should name the required mode: %v", err)
	}
}

func TestLoadQuantVerificationDequantized(t *testing.T) {
	b := newFakeBackend()
	b.quant = QuantInfo{Method: "mxfp4", Dequantize: true}
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err == nil || !IsQuantVerification(err) {
		t.Fatalf("expected quant verification error, got %v", err)
	}
}

func TestLoadQuantCaseInsensitiveMatch(t *testing.T) {
	b := newFakeBackend()
	b.quant = QuantInfo{Method: "MXFP4", Dequantize: false}
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err != nil {
		t.Fatalf("method comparison should be case-insensitive: %v", err)
	}
}

func TestLoadEnforcementDisabledSkipsVerification(t *testing.T) {
	b := newFakeBackend()
	b.hasQuant = false
	m := newTestManager(b, func(c *ManagerConfig) { c.EnforceQuant = false })
	if err := m.Load(testCtx(t), ""); err != nil {
		t.Fatalf("load without enforcement: %v", err)
	}
	if !m.ReadyFor("") {
		t.Fatal("expected ready")
	}
}

func TestLoadBackendErrorPropagates(t *testing.T) {
	b := newFakeBackend()
	b.loadErr = errors.New("weights missing")
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err == nil || !strings.Contains(err.Error(), "weights missing") {
		t.Fatalf("expected backend error verbatim, got %v", err)
	}
	if got := m.Snapshot().LastError; got != "weights missing" {
		t.Fatalf("lastErr = %q", got)
	}
}

func TestLoadWhileLoadingReturnsInProgress(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	m := newTestManager(b)
	m.EnsureLoadedAsync("")
	waitFor(t, time.Second, func() bool { return m.Snapshot().Loading })

	if err := m.Load(testCtx(t), ""); !errors.Is(err, ErrLoadInProgress) {
		t.Fatalf("expected ErrLoadInProgress, got %v", err)
	}
	close(b.gate)
	waitFor(t, time.Second, func() bool { return m.ReadyFor("") })
}

func TestStatusReport(t *testing.T) {
	b := newFakeBackend()
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	st := m.Status()
	if st.State != "ready" || st.Model != "openai/gpt-oss-120b" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.QuantMethod != "mxfp4" || st.Device != "cuda" {
		t.Fatalf("unexpected quant/device: %+v", st)
	}
	if st.LoadsTotal != 1 || st.MaxQueueDepth != defaultMaxQueueDepth {
		t.Fatalf("unexpected counters: %+v", st)
	}
	if st.LlamaBuilt != llamaBuilt {
		t.Fatalf("status must report the compiled runtime support, got %+v", st)
	}
}

func TestCloseReleasesHandle(t *testing.T) {
	b := newFakeBackend()
	m := newTestManager(b)
	if err := m.Load(testCtx(t), ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	h := m.handle.(*fakeHandle)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !h.closed.Load() {
		t.Fatal("handle not closed")
	}
	if m.ReadyFor("") {
		t.Fatal("expected not ready after close")
	}
}
