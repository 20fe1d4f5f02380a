package batch

import "fmt"

// errQueueFull signals the capacity bound was hit.
type errQueueFull struct{ capacity int }

func (e errQueueFull) Error() string { return fmt.Sprintf("queue full (capacity %d)", e.capacity) }

// IsQueueFull reports whether err indicates the capacity bound.
func IsQueueFull(err error) bool {
	_, ok := err.(errQueueFull)
	return ok
}

// errJobNotFound signals an unknown job id.
type errJobNotFound struct{ id string }

func (e errJobNotFound) Error() string { return "job not found: " + e.id }

// IsJobNotFound reports whether err indicates a missing job id.
func IsJobNotFound(err error) bool {
	_, ok := err.(errJobNotFound)
	return ok
}

// errJobActive signals an operation on a job in a state that disallows it.
type errJobActive struct{ id string }

func (e errJobActive) Error() string { return "job not in a removable/cancellable state: " + e.id }

// IsJobActive reports whether err indicates the job state disallowed the op.
func IsJobActive(err error) bool {
	_, ok := err.(errJobActive)
	return ok
}

// errAlreadyProcessing signals a second concurrent Process call.
type errAlreadyProcessing struct{}

func (errAlreadyProcessing) Error() string { return "queue already processing" }

// IsAlreadyProcessing reports whether err indicates an active run.
func IsAlreadyProcessing(err error) bool {
	_, ok := err.(errAlreadyProcessing)
	return ok
}
