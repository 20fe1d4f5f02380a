package engine

// Event is a gateway notification: job progress, memory pressure, worker
// lifecycle. Minimal and stable: name plus optional fields.
type Event struct {
	Name   string
	Kind   Kind
	Fields map[string]any
}

// Well-known event names.
const (
	EventProgress       = "progress"
	EventMemoryPressure = "memory_pressure"
	EventWorkerReady    = "worker_ready"
	EventWorkerCrash    = "worker_crash"
)

// EventPublisher receives events from the engine. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
