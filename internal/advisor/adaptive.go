package advisor

import (
	"sync"
	"time"
)

// Runtime feedback thresholds. A preview this slow or this heavy forces
// subsequent previews into the fast preset for a cooldown window; memory
// pressure opens a longer window regardless of measured size.
const (
	slowRenderThreshold    = 5 * time.Second
	heavyTriangleCount     = 150_000
	slowRenderCooldown     = 30 * time.Second
	memoryPressureCooldown = 2 * time.Minute
)

// Hints is the per-document adaptive feedback state. One instance is shared
// by the scheduler (writer) and the advisor (reader); it is an explicit
// object, never package state.
type Hints struct {
	mu             sync.Mutex
	forceFastUntil time.Time
	lastDurationMs int64
	lastTriangles  int

	now func() time.Time // test seam
}

func NewHints() *Hints { return &Hints{now: time.Now} }

// NoteRender records the outcome of a preview render and opens a fast
// window when it crossed a threshold.
func (h *Hints) NoteRender(d time.Duration, triangles int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastDurationMs = d.Milliseconds()
	h.lastTriangles = triangles
	if d >= slowRenderThreshold || triangles >= heavyTriangleCount {
		until := h.now().Add(slowRenderCooldown)
		if until.After(h.forceFastUntil) {
			h.forceFastUntil = until
		}
	}
}

// NoteMemoryPressure opens the long fast window.
func (h *Hints) NoteMemoryPressure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	until := h.now().Add(memoryPressureCooldown)
	if until.After(h.forceFastUntil) {
		h.forceFastUntil = until
	}
}

// ForceFast reports whether a fast window is open.
func (h *Hints) ForceFast() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now().Before(h.forceFastUntil)
}

// Last returns the last recorded render duration and triangle count.
func (h *Hints) Last() (durationMs int64, triangles int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDurationMs, h.lastTriangles
}
