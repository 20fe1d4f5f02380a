package engine

import (
	"context"
	"encoding/binary"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"renderd/pkg/geom"
)

// SimWorker is an in-process stand-in for the external kernel: it produces
// a deterministic pseudo-mesh from the request so the daemon can run and be
// exercised end to end without a kernel binary. Rejects sources containing
// "syntax error" to model compile failures.
type SimWorker struct {
	// Delay per render; 0 means effectively instant.
	Delay time.Duration
}

func (w *SimWorker) Start(ctx context.Context) error { return nil }

func (w *SimWorker) Close() error { return nil }

func (w *SimWorker) Render(ctx context.Context, req WorkerRequest, notify NoticeFunc) (*geom.Artifact, error) {
	if strings.Contains(req.Source, "syntax error") {
		return nil, NewCompileError("sim: syntax error in input")
	}
	if notify != nil {
		notify(Notice{Kind: NoticeProgress, Percent: 10, Message: "compiling"})
	}
	if w.Delay > 0 {
		t := time.NewTimer(w.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h := xxhash.New()
	_, _ = h.WriteString(req.Source)
	_, _ = h.Write(req.Parameters.Canonical())
	_, _ = h.WriteString(req.Quality.Identity())
	seed := h.Sum64()

	// Deterministic blob sized by quality.
	n := 256 + req.Quality.CurveSegments*64
	data := make([]byte, n)
	for i := 0; i+8 <= n; i += 8 {
		binary.LittleEndian.PutUint64(data[i:], seed+uint64(i))
	}
	if notify != nil {
		notify(Notice{Kind: NoticeProgress, Percent: 90, Message: "meshing"})
	}
	return &geom.Artifact{
		Data:         data,
		Stats:        geom.Stats{SizeBytes: int64(n), TriangleCount: req.Quality.CurveSegments * 100},
		OutputFormat: req.Format,
	}, nil
}
