package lifecycle

// State represents the lifecycle state of the managed model slot.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Snapshot is a read-only projection of the manager state, taken atomically.
type Snapshot struct {
	// ModelID is the canonical id of the resident model, empty when none.
	ModelID string
	// Loading reports whether a load is in flight.
	Loading bool
	// QuantMethod is the quantization method observed on the resident model.
	QuantMethod string
	// Device is where the resident model was placed.
	Device string
	// LastError is the sticky error from the most recent failed load.
	LastError string
}

// State derives the reported lifecycle state: error wins, then ready, then
// loading while a load is in flight, otherwise unloaded.
func (s Snapshot) State() State {
	switch {
	case s.LastError != "":
		return StateError
	case s.ModelID != "" && !s.Loading:
		return StateReady
	case s.Loading:
		return StateLoading
	default:
		return StateUnloaded
	}
}
