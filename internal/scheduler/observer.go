package scheduler

import (
	"sync"

	"renderd/pkg/geom"
)

// Extra carries render details alongside a state transition.
type Extra struct {
	DurationMs int64
	Stats      *geom.Stats
	Cached     bool
}

// Observer receives scheduler notifications. Implementations should be
// lightweight and non-blocking; calls arrive from scheduler goroutines.
type Observer interface {
	OnStateChange(newState, prevState State, extra Extra)
	OnPreviewReady(artifact *geom.Artifact, cached bool)
	OnProgress(percent int, message, kind string)
	OnError(err error, kind string)
}

// noopObserver is the default; it drops notifications.
type noopObserver struct{}

func (noopObserver) OnStateChange(State, State, Extra)   {}
func (noopObserver) OnPreviewReady(*geom.Artifact, bool) {}
func (noopObserver) OnProgress(int, string, string)      {}
func (noopObserver) OnError(error, string)               {}

// Transition is one recorded state change.
type Transition struct {
	New, Prev State
	Extra     Extra
}

// MemoryObserver records notifications in-memory for tests.
type MemoryObserver struct {
	mu          sync.Mutex
	transitions []Transition
	previews    []bool // cached flag per OnPreviewReady
	errors      []error
}

func NewMemoryObserver() *MemoryObserver { return &MemoryObserver{} }

func (o *MemoryObserver) OnStateChange(n, p State, e Extra) {
	o.mu.Lock()
	o.transitions = append(o.transitions, Transition{New: n, Prev: p, Extra: e})
	o.mu.Unlock()
}

func (o *MemoryObserver) OnPreviewReady(_ *geom.Artifact, cached bool) {
	o.mu.Lock()
	o.previews = append(o.previews, cached)
	o.mu.Unlock()
}

func (o *MemoryObserver) OnProgress(int, string, string) {}

func (o *MemoryObserver) OnError(err error, _ string) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
}

func (o *MemoryObserver) Transitions() []Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Transition, len(o.transitions))
	copy(out, o.transitions)
	return out
}

func (o *MemoryObserver) Previews() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]bool, len(o.previews))
	copy(out, o.previews)
	return out
}

func (o *MemoryObserver) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]error, len(o.errors))
	copy(out, o.errors)
	return out
}
