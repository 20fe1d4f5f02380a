package engine

import (
	"context"
	"errors"

	"renderd/pkg/geom"
)

// RenderPreview executes a preview-quality job through the worker.
func (e *Engine) RenderPreview(ctx context.Context, req Request) Result {
	if req.Kind == "" {
		req.Kind = KindPreview
	}
	return e.run(ctx, req)
}

// RenderFull executes a full-quality job through the worker. Used by the
// export path and the batch queue.
func (e *Engine) RenderFull(ctx context.Context, req Request) Result {
	if req.Kind == "" {
		req.Kind = KindExport
	}
	return e.run(ctx, req)
}

// run is the single job execution path: admission, timeout ceiling,
// cancellation wiring, crash retry, outcome classification.
func (e *Engine) run(ctx context.Context, req Request) Result {
	release, err := e.begin(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{Status: StatusCancelled}
		}
		return Result{Status: StatusError, Err: err}
	}
	defer release()

	// jobCtx is what Cancel() aborts; tctx adds the hard ceiling.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.setCancel(cancel)
	defer e.setCancel(nil)
	tctx, tcancel := context.WithTimeout(jobCtx, e.cfg.JobTimeout)
	defer tcancel()

	wreq := WorkerRequest{
		ID:         e.nextID(),
		Op:         "render",
		Source:     req.Project.Source,
		MainFile:   req.Project.MainFile,
		Files:      req.Project.Files,
		Libraries:  req.Project.LibraryIDs(),
		Parameters: req.Params,
		Quality:    req.Quality,
		Format:     req.Format,
	}
	notify := func(n Notice) {
		switch n.Kind {
		case NoticeProgress:
			e.publisher.Publish(Event{Name: EventProgress, Kind: req.Kind, Fields: map[string]any{
				"percent": n.Percent, "message": n.Message,
			}})
		case NoticeMemory:
			e.publisher.Publish(Event{Name: EventMemoryPressure, Kind: req.Kind, Fields: map[string]any{
				"used_mb": n.UsedMB,
			}})
		}
	}

	start := now()
	var art *geom.Artifact
	retried := false
	for {
		art, err = e.worker.Render(tctx, wreq, notify)
		if err != nil && IsCrash(err) && !retried && tctx.Err() == nil {
			// Transparent one-shot re-init; a second crash fails the job.
			e.publisher.Publish(Event{Name: EventWorkerCrash, Kind: req.Kind})
			if rerr := e.restartWorker(ctx); rerr != nil {
				err = rerr
				break
			}
			wreq.ID = e.nextID()
			retried = true
			continue
		}
		break
	}
	elapsed := now().Sub(start)

	res := e.classify(ctx, tctx, art, err)
	if res.Status == StatusOK && res.Artifact != nil {
		res.Artifact.Timing.RenderMs = elapsed.Milliseconds()
	}
	observeJob(req.Kind, res.Status, elapsed)
	return res
}

// classify maps a worker return into the tagged Result. Timeout wins over
// cancellation only when our own ceiling fired; supersession by Cancel()
// and caller disconnects are both routine cancellations.
func (e *Engine) classify(outer, tctx context.Context, art *geom.Artifact, err error) Result {
	if err == nil {
		return Result{Status: StatusOK, Artifact: art}
	}
	if errors.Is(err, context.DeadlineExceeded) && outer.Err() == nil {
		return Result{Status: StatusTimeout}
	}
	if errors.Is(err, context.Canceled) || tctx.Err() == context.Canceled {
		return Result{Status: StatusCancelled}
	}
	if IsCompileError(err) {
		return Result{Status: StatusCompileError, Err: err}
	}
	return Result{Status: StatusError, Err: err}
}
