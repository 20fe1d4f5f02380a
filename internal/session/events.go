package session

import (
	"sync"
	"time"

	"renderd/internal/engine"
	"renderd/internal/scheduler"
	"renderd/pkg/geom"
)

// broadcaster fans scheduler notifications out to /events subscribers. A
// slow subscriber drops events rather than blocking the scheduler.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan geom.StateEvent]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan geom.StateEvent]struct{})}
}

func (b *broadcaster) subscribe() (<-chan geom.StateEvent, func()) {
	ch := make(chan geom.StateEvent, 32)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *broadcaster) emit(e geom.StateEvent) {
	e.TimeMs = time.Now().UnixMilli()
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *broadcaster) close() {
	b.mu.Lock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// scheduler.Observer implementation.

func (b *broadcaster) OnStateChange(newS, prev scheduler.State, extra scheduler.Extra) {
	b.emit(geom.StateEvent{
		State:      string(newS),
		PrevState:  string(prev),
		DurationMs: extra.DurationMs,
		Stats:      extra.Stats,
		Cached:     extra.Cached,
	})
}

func (b *broadcaster) OnPreviewReady(*geom.Artifact, bool) {}

func (b *broadcaster) OnProgress(percent int, message, kind string) {
	b.emit(geom.StateEvent{State: "progress", PrevState: kind, Percent: percent, Message: message})
}

func (b *broadcaster) OnError(error, string) {}

// Publish satisfies engine.EventPublisher so the broadcaster can sit in the
// engine fanout; only used to surface worker lifecycle to subscribers.
func (b *broadcaster) Publish(e engine.Event) {
	switch e.Name {
	case engine.EventWorkerCrash, engine.EventWorkerReady:
		b.emit(geom.StateEvent{State: e.Name})
	}
}
