package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Engine owns the compute-worker lifecycle and enforces the
// single-outstanding-job invariant.
type Engine struct {
	mu     sync.Mutex
	worker Worker
	cfg    Config

	// Admission primitives (see admission.go).
	jobCh   chan struct{} // size 1: single in-flight job
	queueCh chan struct{} // buffered: admission slots

	// Correlation id source for worker frames.
	reqID atomic.Uint64

	// Cancel func of the in-flight job, nil when idle.
	cancelMu  sync.Mutex
	cancelCur context.CancelFunc

	publisher EventPublisher
	started   bool
}

// New constructs an Engine around a Worker. The worker is not started; call
// Start before submitting jobs.
func New(w Worker, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		worker:    w,
		cfg:       cfg,
		jobCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		publisher: noopPublisher{},
	}
}

// SetPublisher installs an event publisher. Call before Start.
func (e *Engine) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	e.publisher = p
}

// Start initializes and warms up the worker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WarmupTimeout)
	defer cancel()
	if err := e.worker.Start(wctx); err != nil {
		return err
	}
	e.started = true
	e.publisher.Publish(Event{Name: EventWorkerReady})
	return nil
}

// Close tears down the worker. Outstanding jobs are cancelled first.
func (e *Engine) Close() error {
	e.Cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	return e.worker.Close()
}

// Cancel aborts the in-flight job, if any. The superseded job resolves to
// StatusCancelled; callers waiting in admission are unaffected.
func (e *Engine) Cancel() {
	e.cancelMu.Lock()
	cancel := e.cancelCur
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Busy reports whether a job is in flight.
func (e *Engine) Busy() bool { return len(e.jobCh) > 0 }

// QueueLen reports how many callers hold admission slots (in flight plus
// waiting).
func (e *Engine) QueueLen() int { return len(e.queueCh) }

func (e *Engine) setCancel(c context.CancelFunc) {
	e.cancelMu.Lock()
	e.cancelCur = c
	e.cancelMu.Unlock()
}

// restartWorker re-initializes the worker after a crash. One attempt; the
// caller decides whether to retry the job.
func (e *Engine) restartWorker(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.worker.Close()
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WarmupTimeout)
	defer cancel()
	if err := e.worker.Start(wctx); err != nil {
		e.started = false
		return err
	}
	e.publisher.Publish(Event{Name: EventWorkerReady})
	return nil
}

// nextID returns a fresh correlation id.
func (e *Engine) nextID() uint64 { return e.reqID.Add(1) }

// now is a seam for tests.
var now = time.Now
