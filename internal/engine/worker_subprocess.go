package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"renderd/pkg/geom"
)

// SubprocessWorker runs the compute kernel as a child process and speaks
// newline-delimited JSON frames over its stdin/stdout. Every request
// carries a correlation id; response frames with a different id are late
// arrivals from a superseded job and are dropped.
type SubprocessWorker struct {
	bin  string
	args []string

	mu      sync.Mutex // guards cmd/stdin/process state
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	frames  chan workerFrame
	dead    chan struct{}
	quit    chan struct{}
	deadMsg string
}

// workerFrame is one stdout line from the kernel process.
type workerFrame struct {
	ID        uint64 `json:"id"`
	Type      string `json:"type"`
	Percent   int    `json:"percent,omitempty"`
	Message   string `json:"message,omitempty"`
	UsedMB    int    `json:"used_mb,omitempty"`
	ErrKind   string `json:"kind,omitempty"`
	Data      []byte `json:"data,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Triangles int    `json:"triangles,omitempty"`
	ParseMs   int64  `json:"parse_ms,omitempty"`
}

// NewSubprocessWorker constructs a subprocess-backed worker.
func NewSubprocessWorker(bin string, args ...string) *SubprocessWorker {
	return &SubprocessWorker{bin: bin, args: args}
}

// Start spawns the kernel process and waits for it to answer a ping.
func (w *SubprocessWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cmd != nil {
		w.mu.Unlock()
		return nil
	}
	cmd := exec.Command(w.bin, w.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	cmd.Stderr = &stderrLogger{}
	if err := cmd.Start(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("spawn %s: %w", w.bin, err)
	}
	w.cmd = cmd
	w.stdin = stdin
	w.enc = json.NewEncoder(stdin)
	w.frames = make(chan workerFrame, 16)
	w.dead = make(chan struct{})
	w.quit = make(chan struct{})
	frames, dead, quit := w.frames, w.dead, w.quit
	w.mu.Unlock()

	go w.readLoop(stdout, frames, dead, quit, cmd)

	// Warm-up: the kernel signals readiness by answering a ping.
	if err := w.send(workerPing{Op: "ping"}); err != nil {
		return err
	}
	for {
		select {
		case f := <-frames:
			if f.Type == "pong" {
				return nil
			}
			// pre-ready noise, ignore
		case <-dead:
			return NewCrashError(w.exitMessage())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type workerPing struct {
	Op string `json:"op"`
}

type workerCancel struct {
	ID uint64 `json:"id"`
	Op string `json:"op"`
}

func (w *SubprocessWorker) readLoop(stdout io.Reader, frames chan workerFrame, dead, quit chan struct{}, cmd *exec.Cmd) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
scan:
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var f workerFrame
		if err := json.Unmarshal(line, &f); err != nil {
			log.Printf("worker: undecodable frame: %v", err)
			continue
		}
		select {
		case frames <- f:
		default:
			// Slow consumer; drop non-terminal frames rather than block.
			// Terminal frames must land, but give up once the worker has
			// been abandoned so the goroutine never parks for good.
			if f.Type == "result" || f.Type == "error" || f.Type == "cancelled" {
				select {
				case frames <- f:
				case <-quit:
					break scan
				}
			}
		}
	}
	err := cmd.Wait()
	w.mu.Lock()
	if err != nil {
		w.deadMsg = err.Error()
	} else {
		w.deadMsg = "process exited"
	}
	w.mu.Unlock()
	close(dead)
}

func (w *SubprocessWorker) exitMessage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deadMsg == "" {
		return "process exited"
	}
	return w.deadMsg
}

func (w *SubprocessWorker) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return NewCrashError("worker not running")
	}
	if err := w.enc.Encode(v); err != nil {
		return NewCrashError(err.Error())
	}
	return nil
}

// Render submits one job and consumes frames until a terminal one arrives
// for the job's correlation id.
func (w *SubprocessWorker) Render(ctx context.Context, req WorkerRequest, notify NoticeFunc) (*geom.Artifact, error) {
	w.mu.Lock()
	frames, dead := w.frames, w.dead
	w.mu.Unlock()
	if frames == nil {
		return nil, NewCrashError("worker not running")
	}
	if err := w.send(req); err != nil {
		return nil, err
	}
	cancelSent := false
	for {
		select {
		case f := <-frames:
			if f.ID != req.ID {
				// late frame from a superseded job
				continue
			}
			switch f.Type {
			case "progress":
				if notify != nil {
					notify(Notice{Kind: NoticeProgress, Percent: f.Percent, Message: f.Message})
				}
			case "memory":
				if notify != nil {
					notify(Notice{Kind: NoticeMemory, UsedMB: f.UsedMB})
				}
			case "result":
				size := f.SizeBytes
				if size == 0 {
					size = int64(len(f.Data))
				}
				return &geom.Artifact{
					Data:         f.Data,
					Stats:        geom.Stats{SizeBytes: size, TriangleCount: f.Triangles},
					OutputFormat: req.Format,
					Timing:       geom.Timing{ParseMs: f.ParseMs},
				}, nil
			case "cancelled":
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, context.Canceled
			case "error":
				if f.ErrKind == "compile" {
					return nil, NewCompileError(f.Message)
				}
				return nil, errors.New(f.Message)
			}
		case <-dead:
			return nil, NewCrashError(w.exitMessage())
		case <-ctx.Done():
			if !cancelSent {
				// Ask the kernel to abort, then drain until it confirms so
				// the stream stays in sync for the next job.
				_ = w.send(workerCancel{ID: req.ID, Op: "cancel"})
				cancelSent = true
				grace := time.NewTimer(2 * time.Second)
				defer grace.Stop()
				for {
					select {
					case f := <-frames:
						if f.ID == req.ID && (f.Type == "cancelled" || f.Type == "result" || f.Type == "error") {
							return nil, ctx.Err()
						}
					case <-dead:
						return nil, ctx.Err()
					case <-grace.C:
						return nil, ctx.Err()
					}
				}
			}
			return nil, ctx.Err()
		}
	}
}

// Close terminates the process. Best effort.
func (w *SubprocessWorker) Close() error {
	w.mu.Lock()
	cmd := w.cmd
	stdin := w.stdin
	quit := w.quit
	w.cmd = nil
	w.stdin = nil
	w.enc = nil
	w.frames = nil
	w.quit = nil
	w.mu.Unlock()
	if quit != nil {
		close(quit)
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

// stderrLogger forwards kernel stderr lines to the standard logger.
type stderrLogger struct {
	buf []byte
}

func (sl *stderrLogger) Write(p []byte) (int, error) {
	sl.buf = append(sl.buf, p...)
	for {
		idx := indexByte(sl.buf, '\n')
		if idx < 0 {
			break
		}
		if line := string(sl.buf[:idx]); len(line) > 0 {
			log.Printf("worker> %s", line)
		}
		sl.buf = sl.buf[idx+1:]
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}
