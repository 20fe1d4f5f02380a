package engine

// compileError signals that the engine rejected the source. The raw
// message is preserved for external translation.
type compileError struct{ msg string }

func (e compileError) Error() string { return e.msg }

// NewCompileError wraps a raw engine rejection message.
func NewCompileError(msg string) error { return compileError{msg: msg} }

// IsCompileError reports whether err is an engine source rejection.
func IsCompileError(err error) bool {
	_, ok := err.(compileError)
	return ok
}

// crashError signals that the worker process died mid-job.
type crashError struct{ msg string }

func (e crashError) Error() string { return "worker crashed: " + e.msg }

// NewCrashError constructs a crashError.
func NewCrashError(msg string) error { return crashError{msg: msg} }

// IsCrash reports whether err indicates worker death.
func IsCrash(err error) bool {
	_, ok := err.(crashError)
	return ok
}

// tooBusyError signals admission timeout/overflow.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "engine too busy" }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}
