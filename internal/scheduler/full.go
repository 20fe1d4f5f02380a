package scheduler

import (
	"context"
	"time"

	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// RenderFull promotes the given parameters to a full-quality render for
// export. It is independent of the debounce path: a later export supersedes
// an earlier in-flight one without touching the preview state machine.
func (s *Scheduler) RenderFull(ctx context.Context, params geom.ParameterSet, format, level string) engine.Result {
	if format == "" {
		format = "stl"
	}
	if level == "" {
		level = s.cfg.ExportLevel
	}

	s.mu.Lock()
	project := s.project
	s.fullGen++
	gen := s.fullGen
	preset := s.adv.ExportPreset(project, s.cfg.HardwareLevel, level)
	key := cacheKey(params, preset, project)

	// Reuse an existing artifact that already satisfies full fidelity:
	// either a previous export with these parameters, or a preview rendered
	// at a fidelity level at least as fine as the export preset.
	if e, ok := s.cache.get(key); ok && e.artifact.OutputFormat == format {
		a := cachedCopy(e.artifact)
		s.lastFull = a
		s.mu.Unlock()
		return engine.Result{Status: engine.StatusOK, Artifact: a}
	}
	pvPreset := s.adv.PreviewPreset(project, s.cfg.HardwareLevel, s.cfg.PreviewLevel, nil)
	if pvPreset.CurveSegments >= preset.CurveSegments {
		if e, ok := s.cache.get(cacheKey(params, pvPreset, project)); ok && e.artifact.OutputFormat == format {
			a := cachedCopy(e.artifact)
			s.lastFull = a
			s.mu.Unlock()
			return engine.Result{Status: engine.StatusOK, Artifact: a}
		}
	}

	// Supersede any older in-flight export.
	if s.cancelFull != nil {
		s.cancelFull()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancelFull = cancel
	base := s.baseCtx
	s.mu.Unlock()
	defer cancel()

	// Stop when the process context ends, too.
	stop := context.AfterFunc(base, cancel)
	defer stop()

	start := time.Now()
	res := s.eng.RenderFull(fctx, engine.Request{
		Project: project,
		Params:  params.Clone(),
		Quality: preset,
		Format:  format,
		Kind:    engine.KindExport,
	})
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.fullGen {
		// A newer export superseded us; only the later result may become
		// the stored current full-quality artifact.
		if res.Status == engine.StatusOK {
			res.Status = engine.StatusCancelled
			res.Artifact = nil
		}
		return res
	}
	if res.Status == engine.StatusOK {
		res.Artifact.Timing.TotalMs = elapsed.Milliseconds()
		s.cache.put(key, res.Artifact)
		s.lastFull = res.Artifact
	}
	return res
}
