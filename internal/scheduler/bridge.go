package scheduler

import "renderd/internal/engine"

// engineBridge adapts engine events to the scheduler's observer and the
// adaptive hints: progress fans out to the UI, memory pressure opens the
// long fast-mode window.
type engineBridge struct {
	s *Scheduler
}

func (b engineBridge) Publish(e engine.Event) {
	switch e.Name {
	case engine.EventProgress:
		percent, _ := e.Fields["percent"].(int)
		message, _ := e.Fields["message"].(string)
		b.s.obs.OnProgress(percent, message, string(e.Kind))
	case engine.EventMemoryPressure:
		b.s.hints.NoteMemoryPressure()
	}
}

// Publisher returns the engine event publisher that feeds this scheduler.
// Install it with Engine.SetPublisher before Start.
func (s *Scheduler) Publisher() engine.EventPublisher { return engineBridge{s: s} }
