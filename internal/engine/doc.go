// Package engine is the gateway to the external compute worker. It owns the
// single worker handle and serializes every job through it; the worker is
// single-threaded and stateful, so serialization is a correctness
// requirement, not a tuning choice. The package is structured into small
// files by concern:
//
//   - engine.go: core Engine type, constructor, lifecycle (Start/Close).
//   - config.go: Config and package defaults.
//   - types.go: Request, Result, Status, Worker interface, wire frames.
//   - errors.go: typed worker errors and helpers (IsCompileError, ...).
//   - admission.go: channel-based single-flight admission.
//   - render.go: RenderPreview/RenderFull entry points and crash retry.
//   - events.go: EventPublisher for progress/memory notifications.
//   - metrics.go: prometheus job counters and duration histogram.
//   - worker_subprocess.go: NDJSON subprocess worker with correlation ids.
//   - worker_sim.go: in-process simulation worker for dev and tests.
//
// Callers hold one Engine per daemon. The preview scheduler cancels the
// in-flight job before submitting a newer one; the batch queue waits behind
// it. Both paths funnel through the same admission channels, so scheduler
// and queue never race the worker.
package engine
