package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"renderd/internal/batch"
	"renderd/internal/engine"
	"renderd/pkg/geom"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() geom.StatusResponse
	Libraries() []geom.Library
	ApplyPreview(req geom.PreviewRequest) (geom.PreviewInfo, error)
	PreviewArtifact() *geom.Artifact
	Export(ctx context.Context, req geom.ExportRequest) engine.Result
	QueueAdd(name string, params geom.ParameterSet, format string) (string, error)
	QueueRemove(id string) error
	QueueCancel(id string) error
	QueueJobs() []geom.RenderJob
	QueueProcess(ctx context.Context) (geom.QueueSummary, error)
	QueueStop()
	QueueExport() ([]byte, error)
	QueueImport(data []byte) (int, error)
	Subscribe() (<-chan geom.StateEvent, func())
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/libraries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(geom.LibrariesResponse{Libraries: svc.Libraries()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	preview := func(force bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var req geom.PreviewRequest
			if !decodeJSONBody(w, r, &req) {
				return
			}
			if force {
				req.Force = true
			}
			if len(req.Parameters) == 0 {
				writeJSONError(w, http.StatusBadRequest, "parameters are required")
				return
			}
			lvl := requestLogLevel(r)
			start := time.Now()
			info, err := svc.ApplyPreview(req)
			if err != nil {
				status := http.StatusInternalServerError
				if engine.IsCompileError(err) {
					status = http.StatusUnprocessableEntity
				}
				logRequest(r, lvl, "preview", status, start, err)
				writeJSONError(w, status, err.Error())
				return
			}
			if info.Cached {
				cacheHitsTotal.Inc()
			}
			logRequest(r, lvl, "preview", http.StatusOK, start, nil)
			w.Header().Set("Content-Type", "application/json")
			if req.Force {
				_ = json.NewEncoder(w).Encode(info)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(info)
		}
	}
	r.Post("/preview", preview(false))
	r.Post("/preview/force", preview(true))

	r.Get("/preview/artifact", func(w http.ResponseWriter, r *http.Request) {
		a := svc.PreviewArtifact()
		if a == nil {
			writeJSONError(w, http.StatusNotFound, "no preview available")
			return
		}
		writeArtifact(w, a)
	})

	r.Post("/export", func(w http.ResponseWriter, r *http.Request) {
		var req geom.ExportRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if len(req.Parameters) == 0 {
			writeJSONError(w, http.StatusBadRequest, "parameters are required")
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		// Join server base context with request context so shutdown cancels work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res := svc.Export(joinedCtx, req)
		switch res.Status {
		case engine.StatusOK:
			logRequest(r, lvl, "export", http.StatusOK, start, nil)
			writeArtifact(w, res.Artifact)
		case engine.StatusCancelled:
			// Superseded by a newer export or client disconnect.
			if r.Context().Err() != nil {
				return
			}
			logRequest(r, lvl, "export", http.StatusConflict, start, nil)
			writeJSONError(w, http.StatusConflict, "export superseded")
		case engine.StatusTimeout:
			logRequest(r, lvl, "export", http.StatusGatewayTimeout, start, nil)
			writeJSONError(w, http.StatusGatewayTimeout, "render timed out")
		case engine.StatusCompileError:
			logRequest(r, lvl, "export", http.StatusUnprocessableEntity, start, res.Err)
			writeJSONError(w, http.StatusUnprocessableEntity, res.Err.Error())
		default:
			msg := "render failed"
			if res.Err != nil {
				msg = res.Err.Error()
				if engine.IsTooBusy(res.Err) {
					logRequest(r, lvl, "export", http.StatusTooManyRequests, start, res.Err)
					writeJSONError(w, http.StatusTooManyRequests, msg)
					return
				}
			}
			logRequest(r, lvl, "export", http.StatusInternalServerError, start, res.Err)
			writeJSONError(w, http.StatusInternalServerError, msg)
		}
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		flush := func() {}
		if fl, ok := w.(http.Flusher); ok {
			flush = fl.Flush
		}
		ch, cancel := svc.Subscribe()
		defer cancel()
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flush()
		enc := json.NewEncoder(w)
		for {
			select {
			case ev, open := <-ch:
				if !open {
					return
				}
				if err := enc.Encode(ev); err != nil {
					return
				}
				flush()
			case <-r.Context().Done():
				return
			case <-serverBaseCtx.Done():
				return
			}
		}
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"jobs": svc.QueueJobs()})
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req geom.QueueAddRequest
			if !decodeJSONBody(w, r, &req) {
				return
			}
			if strings.TrimSpace(req.Name) == "" {
				writeJSONError(w, http.StatusBadRequest, "name is required")
				return
			}
			id, err := svc.QueueAdd(req.Name, req.Parameters, req.Format)
			if err != nil {
				writeQueueError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.QueueRemove(chi.URLParam(r, "id")); err != nil {
				writeQueueError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.QueueCancel(chi.URLParam(r, "id")); err != nil {
				writeQueueError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/process", func(w http.ResponseWriter, r *http.Request) {
			joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			sum, err := svc.QueueProcess(joinedCtx)
			if err != nil && batch.IsAlreadyProcessing(err) {
				writeQueueError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sum)
		})
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			svc.QueueStop()
			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/export", func(w http.ResponseWriter, r *http.Request) {
			data, err := svc.QueueExport()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", `attachment; filename="render-queue.json"`)
			_, _ = w.Write(data)
		})
		r.Post("/import", func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			data, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			n, err := svc.QueueImport(data)
			if err != nil {
				writeQueueError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]int{"imported": n})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSONBody enforces content type and size limits, then decodes into v.
// Writes the error response itself and returns false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeArtifact streams the binary mesh with render statistics in headers.
func writeArtifact(w http.ResponseWriter, a *geom.Artifact) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Output-Format", a.OutputFormat)
	w.Header().Set("X-Triangle-Count", strconv.Itoa(a.Stats.TriangleCount))
	w.Header().Set("X-Render-Duration-Ms", strconv.FormatInt(a.Timing.TotalMs, 10))
	w.Header().Set("X-Cached", strconv.FormatBool(a.Timing.Cached))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	_, _ = w.Write(a.Data)
}

// writeQueueError maps batch package errors to status codes.
func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case batch.IsQueueFull(err):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case batch.IsJobNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case batch.IsJobActive(err), batch.IsAlreadyProcessing(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// logRequest emits one structured line per render-path request.
func logRequest(r *http.Request, lvl LogLevel, op string, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Str("op", op).Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg(op + " end")
		return
	}
	log.Printf("%s end status=%d dur=%s err=%v", op, status, time.Since(start), err)
}
