package lifecycle

import "errors"

// ErrNotReady is returned by Generate when no model is resident.
var ErrNotReady = errors.New("model not loaded")

// ErrLoadInProgress is returned by the blocking Load when another load
// already holds the slot.
var ErrLoadInProgress = errors.New("a model load is already in progress")

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// ErrTooBusy constructs a tooBusyError for the given model id.
func ErrTooBusy(modelID string) error { return tooBusyError{modelID: modelID} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// quantVerificationError signals that a load completed but the model did not
// end up in the required quantization mode. Never served.
type quantVerificationError struct{ msg string }

func (e quantVerificationError) Error() string { return e.msg }

// ErrQuantVerification constructs a quantVerificationError.
func ErrQuantVerification(msg string) error { return quantVerificationError{msg: msg} }

// IsQuantVerification reports whether err indicates a quantization
// verification failure.
func IsQuantVerification(err error) bool {
	var e quantVerificationError
	return errors.As(err, &e)
}

// backendUnavailableError signals a missing runtime dependency (e.g., the
// binary was built without llama support) so callers can surface 503.
type backendUnavailableError struct{ msg string }

func (e backendUnavailableError) Error() string { return e.msg }

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(msg string) error { return backendUnavailableError{msg: msg} }

// IsBackendUnavailable reports whether err indicates a missing/failed
// runtime dependency.
func IsBackendUnavailable(err error) bool {
	var e backendUnavailableError
	return errors.As(err, &e)
}
