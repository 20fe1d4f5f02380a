package engine

import (
	"context"
	"time"
)

// begin reserves an admission slot and then the single in-flight slot.
// Returns a release func to be deferred. Adapted FIFO discipline: batch
// callers park here behind the in-flight job; the scheduler cancels the
// in-flight job first so its wait is short.
func (e *Engine) begin(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context.
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(e.cfg.MaxWait)
	defer timer.Stop()
	select {
	case e.queueCh <- struct{}{}:
		// reserved admission slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-e.queueCh
		}
	}()
	// Check for cancellation again before blocking on the job slot.
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(e.cfg.MaxWait)
	defer timer2.Stop()
	select {
	case e.jobCh <- struct{}{}:
		acquired = true
		return func() { <-e.jobCh; <-e.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{}
	}
}
