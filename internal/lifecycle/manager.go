package lifecycle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gptd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultRequiredQuant = "mxfp4"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Backend loads models. Required.
	Backend Backend
	// DefaultModel is the id served when a request omits one. May be a
	// friendly alias.
	DefaultModel string
	// RequiredQuant is the quantization method every served model must use.
	RequiredQuant string
	// EnforceQuant enables quantization verification. When false the manager
	// serves whatever the backend loaded.
	EnforceQuant bool
	// Aliases enables the friendly-id alias table in Resolve.
	Aliases bool
	// MaxQueueDepth bounds queued generations; MaxWait bounds queue time.
	MaxQueueDepth int
	MaxWait       time.Duration
}

// Manager owns the single resident model handle and the lifecycle state
// around it. All mutable state is guarded by mu; the blocking load itself
// runs unlocked so readiness checks are never blocked by a slow load.
type Manager struct {
	mu      sync.Mutex
	handle  Handle
	modelID string
	loading bool
	lastErr string
	quant   string
	device  string

	cfg ManagerConfig

	// Single in-flight generation slot plus a bounded FIFO queue. The decode
	// call is not safe to run concurrently against one handle.
	genCh   chan struct{}
	queueCh chan struct{}
	maxWait time.Duration

	startTime  time.Time
	loadsTotal uint64

	log zerolog.Logger
}

// New constructs a Manager with defaults for required-but-unset fields.
func New(cfg ManagerConfig) *Manager {
	if cfg.RequiredQuant == "" {
		cfg.RequiredQuant = defaultRequiredQuant
	}
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	wait := cfg.MaxWait
	if wait <= 0 {
		wait = defaultMaxWait
	}
	m := &Manager{
		cfg:       cfg,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, depth),
		maxWait:   wait,
		startTime: time.Now(),
		log:       zerolog.Nop(),
	}
	m.publishState()
	return m
}

// publishState exports the derived lifecycle state as a gauge. Must be
// called without holding mu.
func (m *Manager) publishState() {
	s := m.Snapshot().State()
	for _, v := range []State{StateUnloaded, StateLoading, StateReady, StateError} {
		var g float64
		if v == s {
			g = 1
		}
		stateGauge.WithLabelValues(string(v)).Set(g)
	}
}

// SetLogger installs a structured logger used for lifecycle events.
func (m *Manager) SetLogger(l zerolog.Logger) { m.log = l }

// ReadyFor reports whether the resident model matches the resolved target id
// and no load is in flight. While loading it returns false for every id.
func (m *Manager) ReadyFor(requested string) bool {
	target := m.Resolve(requested)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.modelID == target && !m.loading
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ModelID:     m.modelID,
		Loading:     m.loading,
		QuantMethod: m.quant,
		Device:      m.device,
		LastError:   m.lastErr,
	}
}

// Status builds a detailed status response for GET /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		ModelID:     m.modelID,
		Loading:     m.loading,
		QuantMethod: m.quant,
		Device:      m.device,
		LastError:   m.lastErr,
	}
	return types.StatusResponse{
		State:          string(snap.State()),
		Model:          m.modelID,
		Loading:        m.loading,
		QuantMethod:    m.quant,
		Device:         m.device,
		LastError:      m.lastErr,
		QueueLen:       len(m.queueCh),
		Inflight:       len(m.genCh),
		MaxQueueDepth:  cap(m.queueCh),
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loadsTotal,
		LlamaBuilt:     llamaBuilt,
	}
}

// Close releases the resident handle, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.modelID = ""
	m.mu.Unlock()
	m.publishState()
	if h != nil {
		return h.Close()
	}
	return nil
}
