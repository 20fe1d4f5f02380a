// Package scheduler turns a stream of parameter-change events into a
// minimal, cancellable, cached sequence of compute jobs. One Scheduler per
// open document; it owns the debounce timer, the preview cache and the
// adaptive-hints object, and shares a single engine with the batch queue.
package scheduler

import (
	"context"
	"sync"
	"time"

	"renderd/internal/advisor"
	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// State is the preview lifecycle state of the document.
type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateRendering State = "rendering"
	StateCurrent   State = "current"
	StateStale     State = "stale"
	StateError     State = "error"
)

// DefaultQuietInterval is the production debounce window.
const DefaultQuietInterval = 350 * time.Millisecond

const defaultCacheCapacity = 10

// Config holds the per-document scheduler tunables.
type Config struct {
	// Quiet interval between the last parameter event and the render.
	QuietInterval time.Duration
	// Preview cache capacity (entries).
	CacheCapacity int
	// Hardware class: low|standard|high.
	HardwareLevel string
	// User preview mode: fast|balanced|fidelity|auto.
	PreviewLevel string
	// User export mode: low|medium|high|default.
	ExportLevel string
}

func (c Config) withDefaults() Config {
	if c.QuietInterval <= 0 {
		c.QuietInterval = DefaultQuietInterval
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = defaultCacheCapacity
	}
	return c
}

// Scheduler drives the per-document preview state machine.
type Scheduler struct {
	mu sync.Mutex

	eng   *engine.Engine
	adv   *advisor.Advisor
	hints *advisor.Hints
	cfg   Config
	obs   Observer

	project geom.Project
	state   State
	pending geom.ParameterSet

	timer *time.Timer
	// gen increases on every scheduling request; only a result whose
	// generation still matches is applied.
	gen     uint64
	fullGen uint64

	cache    *previewCache
	last     *geom.Artifact // last good preview, survives ERROR
	lastFull *geom.Artifact
	lastErr  error

	baseCtx    context.Context
	cancelPrev context.CancelFunc
	cancelFull context.CancelFunc
}

// New constructs a Scheduler. obs may be nil.
func New(eng *engine.Engine, adv *advisor.Advisor, hints *advisor.Hints, project geom.Project, cfg Config, obs Observer) *Scheduler {
	if obs == nil {
		obs = noopObserver{}
	}
	cfg = cfg.withDefaults()
	return &Scheduler{
		eng:     eng,
		adv:     adv,
		hints:   hints,
		cfg:     cfg,
		obs:     obs,
		project: project,
		state:   StateIdle,
		cache:   newPreviewCache(cfg.CacheCapacity),
		baseCtx: context.Background(),
	}
}

// SetBaseContext installs the process context; in-flight work is cancelled
// when it ends.
func (s *Scheduler) SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// State returns the current preview state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Project returns the open project.
func (s *Scheduler) Project() geom.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// SetProject replaces the source under edit and resets the state machine.
// The preview cache keeps entries for other signatures; keys embed the
// source signature so stale entries can never match.
func (s *Scheduler) SetProject(p geom.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
	s.gen++ // orphan any in-flight result
	s.setStateLocked(StateIdle, Extra{})
}

// SetPreviewLevel changes the user preview quality mode for subsequent
// renders. Does not invalidate the cache: keys embed the preset identity.
func (s *Scheduler) SetPreviewLevel(level string) {
	s.mu.Lock()
	s.cfg.PreviewLevel = level
	s.mu.Unlock()
}

// LastArtifact returns the last good preview artifact, if any.
func (s *Scheduler) LastArtifact() *geom.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LastFull returns the current full-quality artifact, if any.
func (s *Scheduler) LastFull() *geom.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFull
}

// Hints exposes the adaptive feedback object shared with the advisor.
func (s *Scheduler) Hints() *advisor.Hints { return s.hints }

// Apply records one parameter-change event. Bursts within the quiet
// interval coalesce; only the last snapshot renders.
func (s *Scheduler) Apply(params geom.ParameterSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = params.Clone()
	s.gen++
	gen := s.gen

	if s.state == StateCurrent {
		s.setStateLocked(StateStale, Extra{})
	}
	if s.state != StatePending {
		s.setStateLocked(StatePending, Extra{})
	}
	// Re-arm: only the most recently armed timer can fire.
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.QuietInterval, func() { s.fire(gen) })
}

// ForcePreview bypasses the debounce window and renders synchronously.
// Used on first load and for URL-restored parameters.
func (s *Scheduler) ForcePreview(params geom.ParameterSet) (*geom.Artifact, bool, error) {
	s.mu.Lock()
	s.pending = params.Clone()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateCurrent {
		s.setStateLocked(StateStale, Extra{})
	}
	s.setStateLocked(StatePending, Extra{})
	s.mu.Unlock()

	s.fire(gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil, false, nil // superseded while rendering
	}
	switch s.state {
	case StateCurrent:
		a := s.last
		return a, a != nil && a.Timing.Cached, nil
	case StateError:
		return nil, false, s.lastErr
	default:
		return nil, false, nil
	}
}

// fire runs when the quiet interval elapsed with no newer change (or on a
// forced preview). It resolves quality, consults the cache, and renders.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return // superseded arm
	}
	params := s.pending.Clone()
	project := s.project
	preset := s.adv.PreviewPreset(project, s.cfg.HardwareLevel, s.cfg.PreviewLevel, s.hints)
	key := cacheKey(params, preset, project)

	if e, ok := s.cache.get(key); ok {
		// Served from cache: straight to CURRENT, zero gateway calls.
		a := cachedCopy(e.artifact)
		s.last = a
		s.setStateLocked(StateCurrent, Extra{Stats: &a.Stats, Cached: true})
		obs := s.obs
		s.mu.Unlock()
		obs.OnPreviewReady(a, true)
		return
	}

	s.setStateLocked(StateRendering, Extra{})
	ctx, cancel := context.WithCancel(s.baseCtx)
	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	s.cancelPrev = cancel
	s.mu.Unlock()

	// Supersede any in-flight job before taking the engine.
	s.eng.Cancel()
	start := time.Now()
	res := s.eng.RenderPreview(ctx, engine.Request{
		Project: project,
		Params:  params,
		Quality: preset,
		Format:  "stl",
		Kind:    engine.KindPreview,
	})
	elapsed := time.Since(start)
	cancel()

	s.mu.Lock()
	if gen != s.gen {
		// Late result from a superseded request: discard silently.
		s.mu.Unlock()
		return
	}
	obs := s.obs
	switch res.Status {
	case engine.StatusOK:
		a := res.Artifact
		a.Timing.TotalMs = elapsed.Milliseconds()
		a.Timing.Cached = false
		s.cache.put(key, a)
		s.last = a
		s.lastErr = nil
		s.hints.NoteRender(elapsed, a.Stats.TriangleCount)
		s.setStateLocked(StateCurrent, Extra{DurationMs: elapsed.Milliseconds(), Stats: &a.Stats})
		s.mu.Unlock()
		obs.OnPreviewReady(a, false)
	case engine.StatusCancelled:
		// Routine supersession; the newer cycle owns the state machine.
		s.mu.Unlock()
	default:
		err := res.Err
		if err == nil {
			err = statusError(res.Status)
		}
		s.lastErr = err
		// Keep s.last: a failed attempt never blanks a good preview.
		s.setStateLocked(StateError, Extra{DurationMs: elapsed.Milliseconds()})
		s.mu.Unlock()
		obs.OnError(err, string(res.Status))
	}
}

// setStateLocked transitions the state machine and notifies the observer.
// Caller holds s.mu.
func (s *Scheduler) setStateLocked(newS State, extra Extra) {
	if s.state == newS {
		return
	}
	prev := s.state
	s.state = newS
	s.obs.OnStateChange(newS, prev, extra)
}

// Close stops the timer and cancels in-flight work.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	cp, cf := s.cancelPrev, s.cancelFull
	s.mu.Unlock()
	if cp != nil {
		cp()
	}
	if cf != nil {
		cf()
	}
}
