// Package batch holds the ordered collection of named render jobs and
// processes them unattended through the shared engine. Jobs run strictly
// FIFO; one job's failure never aborts the run.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// DefaultCapacity bounds the number of queued jobs.
const DefaultCapacity = 20

// Queue is an ordered collection of named render jobs sharing one project
// context.
type Queue struct {
	mu         sync.Mutex
	eng        *engine.Engine
	project    geom.Project
	preset     func() geom.QualityPreset
	jobs       []*geom.RenderJob
	capacity   int
	processing bool
	stopReq    bool
	log        zerolog.Logger
}

// New constructs a Queue. preset resolves the export quality for each job
// at processing time (so adaptive state applies). capacity<=0 uses the
// default.
func New(eng *engine.Engine, project geom.Project, preset func() geom.QualityPreset, capacity int, log zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{eng: eng, project: project, preset: preset, capacity: capacity, log: log}
}

// Add appends a named job. Rejects past capacity.
func (q *Queue) Add(name string, params geom.ParameterSet, format string) (string, error) {
	if format == "" {
		format = "stl"
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) >= q.capacity {
		return "", errQueueFull{capacity: q.capacity}
	}
	job := &geom.RenderJob{
		ID:           newJobID(),
		Name:         name,
		Parameters:   params.Clone(),
		OutputFormat: format,
		State:        geom.JobQueued,
	}
	q.jobs = append(q.jobs, job)
	return job.ID, nil
}

// Remove deletes a job. Disallowed while that job is actively rendering.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.jobs {
		if j.ID != id {
			continue
		}
		if j.State == geom.JobRendering {
			return errJobActive{id: id}
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return nil
	}
	return errJobNotFound{id: id}
}

// Cancel marks a queued job cancelled. Only queued jobs can be cancelled.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID != id {
			continue
		}
		if j.State != geom.JobQueued {
			return errJobActive{id: id}
		}
		j.State = geom.JobCancelled
		return nil
	}
	return errJobNotFound{id: id}
}

// Jobs returns a snapshot copy of all jobs in order.
func (q *Queue) Jobs() []geom.RenderJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]geom.RenderJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	return out
}

// Len returns the number of jobs currently held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Processing reports whether a run is active.
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Stop requests a graceful halt after the current job finishes.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopReq = true
	q.mu.Unlock()
}

// Process runs queued jobs strictly FIFO through the shared engine. The
// engine's admission discipline means a job waits behind any active
// preview rather than racing it. A failing job is marked errored and the
// run continues to the next one.
func (q *Queue) Process(ctx context.Context) (geom.QueueSummary, error) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return geom.QueueSummary{}, errAlreadyProcessing{}
	}
	q.processing = true
	q.stopReq = false
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	var sum geom.QueueSummary
	for {
		job := q.nextQueued()
		if job == nil {
			break
		}
		if ctx.Err() != nil || q.stopRequested() {
			break
		}

		q.setState(job, geom.JobRendering)
		q.log.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("batch job start")
		start := time.Now()
		res := q.eng.RenderFull(ctx, engine.Request{
			Project: q.project,
			Params:  job.Parameters,
			Quality: q.preset(),
			Format:  job.OutputFormat,
			Kind:    engine.KindBatch,
		})
		elapsed := time.Since(start)

		q.mu.Lock()
		job.RenderTimeMs = elapsed.Milliseconds()
		switch res.Status {
		case engine.StatusOK:
			res.Artifact.Timing.TotalMs = elapsed.Milliseconds()
			job.Result = res.Artifact
			job.State = geom.JobComplete
			sum.Completed++
		case engine.StatusCancelled:
			job.State = geom.JobCancelled
			sum.Cancelled++
		default:
			job.State = geom.JobError
			if res.Err != nil {
				job.Err = res.Err.Error()
			} else {
				job.Err = string(res.Status)
			}
			sum.Errored++
		}
		q.mu.Unlock()
		q.log.Info().Str("job_id", job.ID).Str("state", string(job.State)).Dur("dur", elapsed).Msg("batch job end")
	}
	return sum, ctx.Err()
}

func (q *Queue) nextQueued() *geom.RenderJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.State == geom.JobQueued {
			return j
		}
	}
	return nil
}

func (q *Queue) stopRequested() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopReq
}

func (q *Queue) setState(job *geom.RenderJob, st geom.JobState) {
	q.mu.Lock()
	job.State = st
	q.mu.Unlock()
}

// newJobID returns a fresh job identifier.
func newJobID() string { return uuid.NewString() }
