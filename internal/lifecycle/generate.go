package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Generate runs one decode call against the resident handle. Generation is
// serialized through the single in-flight slot; panics from the backend are
// recovered and reported as errors so they stay isolated to this request and
// never poison the cached handle.
func (m *Manager) Generate(ctx context.Context, prompt string, params GenParams) (res Result, err error) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		return Result{}, ErrNotReady
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()

	start := time.Now()
	res, err = h.Generate(ctx, prompt, params)
	if err != nil {
		return Result{}, err
	}
	generateDuration.Observe(time.Since(start).Seconds())
	generateTokensTotal.WithLabelValues("prompt").Add(float64(res.PromptTokens))
	if n := res.TotalTokens - res.PromptTokens; n > 0 {
		generateTokensTotal.WithLabelValues("completion").Add(float64(n))
	}
	return res, nil
}

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred. Queue overflow or waiting longer
// than maxWait maps to a too-busy error.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context.
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		backpressureTotal.Inc()
		return func() {}, tooBusyError{modelID: m.currentModelID()}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		backpressureTotal.Inc()
		return func() {}, tooBusyError{modelID: m.currentModelID()}
	}
}

func (m *Manager) currentModelID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelID
}
