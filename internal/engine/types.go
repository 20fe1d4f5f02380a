package engine

import (
	"context"

	"renderd/pkg/geom"
)

// Kind tags a job with the path that issued it, carried into events and
// metrics labels.
type Kind string

const (
	KindPreview Kind = "preview"
	KindExport  Kind = "export"
	KindBatch   Kind = "batch"
)

// Request describes one compute job.
type Request struct {
	Project geom.Project
	Params  geom.ParameterSet
	Quality geom.QualityPreset
	Format  string
	Kind    Kind
}

// Status is the tagged outcome of a job. Cancellation and timeout are
// routine outcomes, not errors.
type Status string

const (
	StatusOK           Status = "ok"
	StatusCancelled    Status = "cancelled"
	StatusTimeout      Status = "timeout"
	StatusCompileError Status = "compile_error"
	StatusError        Status = "error"
)

// Result is what a job resolves to.
type Result struct {
	Status   Status
	Artifact *geom.Artifact
	// Err is set for StatusCompileError and StatusError. For compile
	// errors the raw engine message is preserved for external translation.
	Err error
}

// OK reports whether the job produced an artifact.
func (r Result) OK() bool { return r.Status == StatusOK }

// NoticeKind distinguishes mid-job notifications from the worker.
type NoticeKind string

const (
	NoticeProgress NoticeKind = "progress"
	NoticeMemory   NoticeKind = "memory"
)

// Notice is a mid-job notification (progress or memory pressure).
type Notice struct {
	Kind    NoticeKind
	Percent int
	Message string
	UsedMB  int
}

// NoticeFunc receives notices during a render. May be nil.
type NoticeFunc func(Notice)

// WorkerRequest is the frame handed to a Worker for one render. ID is the
// correlation id; responses carrying any other id are dropped.
type WorkerRequest struct {
	ID         uint64            `json:"id"`
	Op         string            `json:"op"`
	Source     string            `json:"source"`
	MainFile   string            `json:"main,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	Libraries  []string          `json:"libraries,omitempty"`
	Parameters geom.ParameterSet `json:"parameters,omitempty"`
	Quality    geom.QualityPreset `json:"quality"`
	Format     string            `json:"format"`
}

// Worker abstracts the compute runtime reached by the Engine. Concrete
// implementations: the NDJSON subprocess worker and the in-process sim.
type Worker interface {
	// Start spawns/initializes the worker and performs warm-up.
	Start(ctx context.Context) error
	// Render executes one job to completion, cancellation or failure.
	// Implementations must return promptly when ctx is cancelled and
	// surface engine rejections as compile errors and process death as
	// crash errors (see errors.go).
	Render(ctx context.Context, req WorkerRequest, notify NoticeFunc) (*geom.Artifact, error)
	// Close tears the worker down. Idempotent.
	Close() error
}
