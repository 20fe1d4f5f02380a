package geom

// PreviewRequest is the payload for POST /preview: one parameter-change
// event against the open project.
type PreviewRequest struct {
	// Parameter snapshot to render.
	Parameters ParameterSet `json:"parameters"`
	// Optional preview quality override: fast|balanced|fidelity|auto.
	// example: auto
	Quality string `json:"quality,omitempty" example:"auto"`
	// Bypass the debounce window (first load, URL-restored parameters).
	// example: false
	Force bool `json:"force,omitempty" example:"false"`
}

// ExportRequest is the payload for POST /export: a full-quality render.
type ExportRequest struct {
	Parameters ParameterSet `json:"parameters"`
	// Export quality: low|medium|high|default.
	// example: high
	Quality string `json:"quality,omitempty" example:"high"`
	// Output format, e.g. stl|off|3mf.
	// example: stl
	Format string `json:"format,omitempty" example:"stl"`
}

// PreviewInfo reports the outcome of an applied or forced preview.
type PreviewInfo struct {
	// Scheduler state after the call.
	// example: pending
	State string `json:"state" example:"pending"`
	// Set when the call produced or reused an artifact.
	Stats *Stats `json:"stats,omitempty"`
	// True when the artifact came from the preview cache.
	Cached bool `json:"cached"`
	// Wall time in ms when a render ran.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// QueueAddRequest adds one job to the batch queue.
type QueueAddRequest struct {
	// Display name of the job.
	// example: bracket-40mm
	Name       string       `json:"name" example:"bracket-40mm"`
	Parameters ParameterSet `json:"parameters"`
	// Output format for this job.
	// example: stl
	Format string `json:"format,omitempty" example:"stl"`
}

// QueueJobDef is the serialized definition of one queue job (no results).
type QueueJobDef struct {
	Name         string       `json:"name"`
	Parameters   ParameterSet `json:"parameters"`
	OutputFormat string       `json:"outputFormat"`
}

// QueueDocument is the JSON import/export format for queue definitions.
type QueueDocument struct {
	// Format version.
	// example: 1
	Version int           `json:"version" example:"1"`
	Jobs    []QueueJobDef `json:"jobs"`
}

// QueueSummary reports the outcome of a processing run.
type QueueSummary struct {
	// Jobs completed successfully.
	// example: 4
	Completed int `json:"completed" example:"4"`
	// Jobs that errored.
	// example: 1
	Errored int `json:"errored" example:"1"`
	// Jobs cancelled or left queued by a stop request.
	// example: 0
	Cancelled int `json:"cancelled" example:"0"`
}

// StateEvent is one scheduler state transition, streamed over /events.
type StateEvent struct {
	// New scheduler state.
	// example: rendering
	State string `json:"state" example:"rendering"`
	// Previous scheduler state.
	// example: pending
	PrevState string `json:"prev_state" example:"pending"`
	// Render duration in ms, when the transition closed a render.
	DurationMs int64 `json:"duration_ms,omitempty"`
	// Artifact statistics, when available.
	Stats *Stats `json:"stats,omitempty"`
	// True when the preview was served from cache.
	Cached bool `json:"cached,omitempty"`
	// Progress percentage, for progress events.
	Percent int `json:"percent,omitempty"`
	// Progress message, for progress events.
	Message string `json:"message,omitempty"`
	// Unix milliseconds of the transition.
	TimeMs int64 `json:"time_ms"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Name of the open project.
	// example: bracket
	Project string `json:"project" example:"bracket"`
	// Scheduler state for the open project.
	// example: current
	State string `json:"state" example:"current"`
	// Static complexity tier of the current source.
	// example: standard
	Tier string `json:"tier" example:"standard"`
	// True while the compute engine has a job in flight.
	EngineBusy bool `json:"engine_busy"`
	// True while an adaptive fast-mode window is open.
	FastMode bool `json:"fast_mode"`
	// Number of jobs currently in the batch queue.
	// example: 3
	QueueLen int `json:"queue_len" example:"3"`
	// True while the batch queue is processing.
	QueueProcessing bool `json:"queue_processing"`
	// Stats of the last good preview, if any.
	LastPreview *Stats `json:"last_preview,omitempty"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// LibrariesResponse wraps the list of mounted libraries.
type LibrariesResponse struct {
	Libraries []Library `json:"libraries"`
}
