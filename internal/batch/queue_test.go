package batch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// recordWorker records rendered parameter snapshots and can fail selected
// calls.
type recordWorker struct {
	mu     sync.Mutex
	widths []float64
	failOn map[int]bool // 1-based call index -> compile error
	block  chan struct{}
}

func (w *recordWorker) Start(ctx context.Context) error { return nil }
func (w *recordWorker) Close() error                    { return nil }

func (w *recordWorker) Render(ctx context.Context, req engine.WorkerRequest, notify engine.NoticeFunc) (*geom.Artifact, error) {
	w.mu.Lock()
	if v, ok := req.Parameters["width"].(float64); ok {
		w.widths = append(w.widths, v)
	} else {
		w.widths = append(w.widths, -1)
	}
	call := len(w.widths)
	fail := w.failOn[call]
	block := w.block
	w.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, engine.NewCompileError("bad parameter value")
	}
	return &geom.Artifact{Data: []byte("mesh"), Stats: geom.Stats{TriangleCount: 100}, OutputFormat: req.Format}, nil
}

func (w *recordWorker) rendered() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(w.widths))
	copy(out, w.widths)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func exportPreset() geom.QualityPreset {
	return geom.QualityPreset{Tier: geom.TierStandard, Level: geom.LevelHigh, Usage: geom.UsageExport, CurveSegments: 96}
}

func newTestQueue(t *testing.T, w engine.Worker, capacity int) *Queue {
	t.Helper()
	eng := engine.New(w, engine.Config{})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	project := geom.Project{Name: "bracket", Source: "cube([width, 10, 2]);"}
	return New(eng, project, exportPreset, capacity, zerolog.Nop())
}

func addN(t *testing.T, q *Queue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Add("job", geom.ParameterSet{"width": float64(10 + i)}, "stl")
		if err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestProcessRunsFIFO(t *testing.T) {
	w := &recordWorker{}
	q := newTestQueue(t, w, 0)
	addN(t, q, 3)

	sum, err := q.Process(context.Background())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sum.Completed != 3 || sum.Errored != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	got := w.rendered()
	want := []float64{10, 11, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("render order = %v, want %v", got, want)
		}
	}
	for _, j := range q.Jobs() {
		if j.State != geom.JobComplete {
			t.Fatalf("job %s state = %s", j.ID, j.State)
		}
		if j.Result == nil {
			t.Fatalf("job %s has no result", j.ID)
		}
	}
}

func TestProcessIsolatesFailures(t *testing.T) {
	w := &recordWorker{failOn: map[int]bool{2: true}}
	q := newTestQueue(t, w, 0)
	addN(t, q, 3)

	sum, err := q.Process(context.Background())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sum.Completed != 2 || sum.Errored != 1 {
		t.Fatalf("summary = %+v, want 2 completed 1 errored", sum)
	}
	jobs := q.Jobs()
	if jobs[1].State != geom.JobError {
		t.Fatalf("job 2 state = %s, want error", jobs[1].State)
	}
	if !strings.Contains(jobs[1].Err, "bad parameter value") {
		t.Fatalf("job 2 err = %q", jobs[1].Err)
	}
	if jobs[0].State != geom.JobComplete || jobs[2].State != geom.JobComplete {
		t.Fatal("neighbouring jobs affected by the failure")
	}
}

func TestCapacityRejected(t *testing.T) {
	q := newTestQueue(t, &recordWorker{}, 2)
	addN(t, q, 2)
	_, err := q.Add("overflow", geom.ParameterSet{}, "stl")
	if !IsQueueFull(err) {
		t.Fatalf("err = %v, want queue-full", err)
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d after rejected add", q.Len())
	}
}

func TestCancelOnlyQueuedJobs(t *testing.T) {
	w := &recordWorker{}
	q := newTestQueue(t, w, 0)
	ids := addN(t, q, 2)

	if err := q.Cancel(ids[0]); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := q.Cancel(ids[0]); !IsJobActive(err) {
		t.Fatalf("second cancel err = %v, want job-active", err)
	}
	if err := q.Cancel("nope"); !IsJobNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}

	sum, err := q.Process(context.Background())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The cancelled job is skipped entirely.
	if sum.Completed != 1 {
		t.Fatalf("summary = %+v, want 1 completed", sum)
	}
	if got := w.rendered(); len(got) != 1 || got[0] != 11 {
		t.Fatalf("rendered = %v, want only the second job", got)
	}
}

func TestRemoveRules(t *testing.T) {
	w := &recordWorker{block: make(chan struct{})}
	q := newTestQueue(t, w, 0)
	ids := addN(t, q, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Process(context.Background())
	}()
	waitFor(t, func() bool {
		jobs := q.Jobs()
		return len(jobs) > 0 && jobs[0].State == geom.JobRendering
	})

	if err := q.Remove(ids[0]); !IsJobActive(err) {
		t.Fatalf("removing the rendering job: err = %v, want job-active", err)
	}
	if err := q.Remove(ids[1]); err != nil {
		t.Fatalf("removing a queued job: %v", err)
	}
	if err := q.Remove("nope"); !IsJobNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}

	close(w.block)
	<-done
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}
}

func TestStopHaltsAfterCurrentJob(t *testing.T) {
	w := &recordWorker{}
	q := newTestQueue(t, w, 0)
	addN(t, q, 3)
	q.Stop() // recorded before the run starts is cleared by Process

	// Stop during the run: issue it from the worker's first render by
	// blocking until we ask for the halt.
	w.block = make(chan struct{})
	done := make(chan geom.QueueSummary, 1)
	go func() {
		sum, _ := q.Process(context.Background())
		done <- sum
	}()
	waitFor(t, func() bool { return len(w.rendered()) == 1 })
	q.Stop()
	close(w.block)

	sum := <-done
	if sum.Completed != 1 {
		t.Fatalf("summary = %+v, want 1 completed before the stop", sum)
	}
	jobs := q.Jobs()
	if jobs[1].State != geom.JobQueued || jobs[2].State != geom.JobQueued {
		t.Fatal("stop did not leave the remaining jobs queued")
	}
	if q.Processing() {
		t.Fatal("still processing after stop")
	}
}

func TestConcurrentProcessRejected(t *testing.T) {
	w := &recordWorker{block: make(chan struct{})}
	q := newTestQueue(t, w, 0)
	addN(t, q, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Process(context.Background())
	}()
	waitFor(t, func() bool { return q.Processing() })

	_, err := q.Process(context.Background())
	if !IsAlreadyProcessing(err) {
		t.Fatalf("err = %v, want already-processing", err)
	}
	close(w.block)
	<-done
}

func TestContextCancelStopsRun(t *testing.T) {
	w := &recordWorker{block: make(chan struct{})}
	q := newTestQueue(t, w, 0)
	addN(t, q, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan geom.QueueSummary, 1)
	go func() {
		sum, _ := q.Process(ctx)
		done <- sum
	}()
	waitFor(t, func() bool { return len(w.rendered()) == 1 })
	cancel()

	sum := <-done
	if sum.Completed != 0 || sum.Cancelled != 1 {
		t.Fatalf("summary = %+v, want the in-flight job cancelled", sum)
	}
	jobs := q.Jobs()
	if jobs[0].State != geom.JobCancelled {
		t.Fatalf("job 1 state = %s, want cancelled", jobs[0].State)
	}
	if jobs[1].State != geom.JobQueued {
		t.Fatalf("job 2 state = %s, want still queued", jobs[1].State)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	q := newTestQueue(t, &recordWorker{}, 0)
	if _, err := q.Add("a", geom.ParameterSet{"width": float64(10)}, "stl"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Add("b", geom.ParameterSet{"width": float64(20)}, "off"); err != nil {
		t.Fatal(err)
	}

	data, err := q.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.Contains(string(data), "result") {
		t.Fatal("export leaked result fields")
	}

	q2 := newTestQueue(t, &recordWorker{}, 0)
	n, err := q2.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 || q2.Len() != 2 {
		t.Fatalf("imported %d, len %d", n, q2.Len())
	}
	jobs := q2.Jobs()
	if jobs[0].Name != "a" || jobs[1].OutputFormat != "off" {
		t.Fatalf("imported jobs = %+v", jobs)
	}
	if jobs[0].ID == "" || jobs[0].ID == jobs[1].ID {
		t.Fatal("imported jobs need fresh distinct ids")
	}
}

func TestImportRejectsBadDocuments(t *testing.T) {
	q := newTestQueue(t, &recordWorker{}, 3)
	if _, err := q.Import([]byte("{")); err == nil {
		t.Fatal("malformed JSON accepted")
	}
	if _, err := q.Import([]byte(`{"version": 2, "jobs": []}`)); err == nil {
		t.Fatal("unknown version accepted")
	}

	// Over-capacity imports are rejected atomically.
	addN(t, q, 2)
	doc := `{"version": 1, "jobs": [{"name":"x","parameters":{}},{"name":"y","parameters":{}}]}`
	if _, err := q.Import([]byte(doc)); !IsQueueFull(err) {
		t.Fatalf("err = %v, want queue-full", err)
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, partial import applied", q.Len())
	}
}

func TestImportDefaultsFormat(t *testing.T) {
	q := newTestQueue(t, &recordWorker{}, 0)
	doc := `{"version": 1, "jobs": [{"name":"x","parameters":{"width": 5}}]}`
	if _, err := q.Import([]byte(doc)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := q.Jobs()[0].OutputFormat; got != "stl" {
		t.Fatalf("format = %q, want stl default", got)
	}
}
