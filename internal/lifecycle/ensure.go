package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EnsureLoadedAsync kicks off a background load for the resolved target id
// if one is needed. Non-blocking: when the target is already resident or a
// load is in flight it returns immediately without starting new work. The
// check-and-flip of the loading flag is atomic under the manager mutex.
func (m *Manager) EnsureLoadedAsync(requested string) {
	target := m.Resolve(requested)

	m.mu.Lock()
	if (m.handle != nil && m.modelID == target) || m.loading {
		m.mu.Unlock()
		return
	}
	m.loading = true
	m.mu.Unlock()
	m.publishState()

	go func() {
		// loading must be cleared on every exit path, panics included, or
		// readiness would report "loading" forever.
		defer func() {
			if r := recover(); r != nil {
				m.mu.Lock()
				m.lastErr = fmt.Sprintf("model load panic: %v", r)
				m.mu.Unlock()
				loadFailuresTotal.Inc()
			}
			m.mu.Lock()
			m.loading = false
			m.mu.Unlock()
			m.publishState()
		}()
		if err := m.load(context.Background(), target); err != nil {
			m.mu.Lock()
			m.lastErr = err.Error()
			m.mu.Unlock()
			m.log.Error().Err(err).Str("model", target).Msg("background load failed")
		}
	}()
}

// Load performs the blocking load for the resolved target id, for startup
// use. No-op when already resident. Returns ErrLoadInProgress when a
// background load holds the slot.
func (m *Manager) Load(ctx context.Context, requested string) error {
	target := m.Resolve(requested)

	m.mu.Lock()
	if m.handle != nil && m.modelID == target {
		m.mu.Unlock()
		return nil
	}
	if m.loading {
		m.mu.Unlock()
		return ErrLoadInProgress
	}
	m.loading = true
	m.mu.Unlock()
	m.publishState()

	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		m.publishState()
	}()

	if err := m.load(ctx, target); err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		return err
	}
	return nil
}

// load runs the blocking backend load and quantization verification. The
// caller owns the loading flag; load itself only takes the mutex to commit.
func (m *Manager) load(ctx context.Context, target string) error {
	opts := LoadOptions{DeviceMap: "auto"}
	if m.cfg.EnforceQuant {
		opts.RequiredQuant = m.cfg.RequiredQuant
		opts.Dequantize = false
	}

	start := time.Now()
	h, err := m.cfg.Backend.Load(ctx, target, opts)
	if err != nil {
		loadFailuresTotal.Inc()
		return err
	}
	if m.cfg.EnforceQuant {
		if err := verifyQuant(h, m.cfg.RequiredQuant); err != nil {
			_ = h.Close()
			loadFailuresTotal.Inc()
			return err
		}
	}
	var quant string
	if qi, ok := h.Quantization(); ok {
		quant = qi.Method
	}

	// Commit atomically: readers must never observe a resident handle with
	// the loading flag still up.
	m.mu.Lock()
	prev := m.handle
	m.handle = h
	m.modelID = target
	m.quant = quant
	m.device = h.Device()
	m.lastErr = ""
	m.loading = false
	m.loadsTotal++
	m.mu.Unlock()

	// Single-slot cache: a newly loaded id discards the previous handle.
	if prev != nil {
		_ = prev.Close()
	}

	loadsTotal.Inc()
	loadDuration.Observe(time.Since(start).Seconds())
	m.log.Info().
		Str("model", target).
		Str("quant", quant).
		Str("device", h.Device()).
		Dur("dur", time.Since(start)).
		Msg("model loaded")
	return nil
}

// verifyQuant checks that the model actually ended up quantized in the
// required mode. A missing quantizer, a different method, or an active
// dequantize flag all fail loudly rather than silently running unquantized.
func verifyQuant(h Handle, required string) error {
	qi, ok := h.Quantization()
	if !ok {
		return ErrQuantVerification(fmt.Sprintf(
			"%s required but the loaded model reports no quantizer (dequantized)", required))
	}
	if !strings.EqualFold(qi.Method, required) || qi.Dequantize {
		return ErrQuantVerification(fmt.Sprintf(
			"%s required but quantization fell back (method=%q dequantize=%v)",
			required, qi.Method, qi.Dequantize))
	}
	return nil
}
