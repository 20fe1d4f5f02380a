// Package session wires one open document to the daemon surface: it owns
// the engine, advisor, adaptive hints, preview scheduler and batch queue,
// and exposes the operations the HTTP layer needs. External packages should
// treat this as the orchestration layer and use public methods only.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"renderd/internal/advisor"
	"renderd/internal/batch"
	"renderd/internal/engine"
	"renderd/internal/scheduler"
	"renderd/pkg/geom"
)

// Config collects session tunables.
type Config struct {
	Scheduler     scheduler.Config
	Engine        engine.Config
	QueueCapacity int
}

// Session is the per-document orchestration object.
type Session struct {
	eng       *engine.Engine
	adv       *advisor.Advisor
	hints     *advisor.Hints
	sched     *scheduler.Scheduler
	queue     *batch.Queue
	cfg       Config
	log       zerolog.Logger
	startTime time.Time

	events *broadcaster
}

// New constructs and wires a Session around the given worker and project.
// Call Start before serving.
func New(w engine.Worker, project geom.Project, cfg Config, log zerolog.Logger) *Session {
	s := &Session{
		adv:       advisor.New(),
		hints:     advisor.NewHints(),
		cfg:       cfg,
		log:       log,
		startTime: time.Now(),
		events:    newBroadcaster(),
	}
	s.eng = engine.New(w, cfg.Engine)
	s.sched = scheduler.New(s.eng, s.adv, s.hints, project, cfg.Scheduler, s.events)
	s.eng.SetPublisher(fanoutPublisher{s.sched.Publisher(), s.events})
	s.queue = batch.New(s.eng, project, s.exportPreset, cfg.QueueCapacity, log)
	return s
}

// exportPreset resolves the queue's export quality at processing time.
func (s *Session) exportPreset() geom.QualityPreset {
	return s.adv.ExportPreset(s.sched.Project(), s.cfg.Scheduler.HardwareLevel, s.cfg.Scheduler.ExportLevel)
}

// Start warms up the engine and installs the process context.
func (s *Session) Start(ctx context.Context) error {
	s.sched.SetBaseContext(ctx)
	return s.eng.Start(ctx)
}

// Close tears the session down.
func (s *Session) Close() error {
	s.sched.Close()
	s.events.close()
	return s.eng.Close()
}

// Ready reports whether the engine can take jobs.
func (s *Session) Ready() bool { return s.eng != nil }

// Libraries lists the enabled library mounts.
func (s *Session) Libraries() []geom.Library {
	return s.sched.Project().Libraries
}

// Status builds the response for GET /status.
func (s *Session) Status() geom.StatusResponse {
	project := s.sched.Project()
	prof := s.adv.AnalyzeComplexity(project)
	resp := geom.StatusResponse{
		Project:         project.Name,
		State:           string(s.sched.State()),
		Tier:            string(prof.Tier),
		EngineBusy:      s.eng.Busy(),
		FastMode:        s.hints.ForceFast(),
		QueueLen:        s.queue.Len(),
		QueueProcessing: s.queue.Processing(),
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
	}
	if a := s.sched.LastArtifact(); a != nil {
		st := a.Stats
		resp.LastPreview = &st
	}
	return resp
}

// ApplyPreview handles a parameter-change event. With Force set it bypasses
// the debounce window and blocks until the render resolves.
func (s *Session) ApplyPreview(req geom.PreviewRequest) (geom.PreviewInfo, error) {
	if req.Quality != "" {
		s.SetPreviewLevel(req.Quality)
	}
	if req.Force {
		a, cached, err := s.sched.ForcePreview(req.Parameters)
		if err != nil {
			return geom.PreviewInfo{State: string(s.sched.State())}, err
		}
		info := geom.PreviewInfo{State: string(s.sched.State()), Cached: cached}
		if a != nil {
			st := a.Stats
			info.Stats = &st
			info.DurationMs = a.Timing.TotalMs
		}
		return info, nil
	}
	s.sched.Apply(req.Parameters)
	return geom.PreviewInfo{State: string(s.sched.State())}, nil
}

// SetPreviewLevel changes the user preview quality mode. The scheduler owns
// the value; keeping a copy here would race with concurrent requests.
func (s *Session) SetPreviewLevel(level string) {
	s.sched.SetPreviewLevel(level)
}

// PreviewArtifact returns the last good preview, if any.
func (s *Session) PreviewArtifact() *geom.Artifact { return s.sched.LastArtifact() }

// Export runs a full-quality render for the given parameters.
func (s *Session) Export(ctx context.Context, req geom.ExportRequest) engine.Result {
	return s.sched.RenderFull(ctx, req.Parameters, req.Format, req.Quality)
}

// Queue operations, delegated to the batch queue.

func (s *Session) QueueAdd(name string, params geom.ParameterSet, format string) (string, error) {
	return s.queue.Add(name, params, format)
}

func (s *Session) QueueRemove(id string) error { return s.queue.Remove(id) }

func (s *Session) QueueCancel(id string) error { return s.queue.Cancel(id) }

func (s *Session) QueueJobs() []geom.RenderJob { return s.queue.Jobs() }

func (s *Session) QueueProcess(ctx context.Context) (geom.QueueSummary, error) {
	return s.queue.Process(ctx)
}

func (s *Session) QueueStop() { s.queue.Stop() }

func (s *Session) QueueExport() ([]byte, error) { return s.queue.Export() }

func (s *Session) QueueImport(data []byte) (int, error) { return s.queue.Import(data) }

// Subscribe returns a channel of scheduler state events plus a cancel func.
func (s *Session) Subscribe() (<-chan geom.StateEvent, func()) {
	return s.events.subscribe()
}

// fanoutPublisher sends engine events to multiple publishers.
type fanoutPublisher []engine.EventPublisher

func (f fanoutPublisher) Publish(e engine.Event) {
	for _, p := range f {
		p.Publish(e)
	}
}
