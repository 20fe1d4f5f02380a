package engine

import (
	"io"
	"os/exec"
	"testing"
	"time"
)

// A terminal frame must not strand the read loop when the worker has been
// abandoned and nobody consumes frames anymore.
func TestReadLoopExitsOnQuitWithNoConsumer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	w := &SubprocessWorker{}
	frames := make(chan workerFrame) // unbuffered, never read
	dead := make(chan struct{})
	quit := make(chan struct{})
	go w.readLoop(pr, frames, dead, quit, exec.Command("false"))

	go func() {
		_, _ = pw.Write([]byte(`{"id":1,"type":"result"}` + "\n"))
	}()
	// Let the loop reach the blocking terminal send, then abandon it.
	time.Sleep(20 * time.Millisecond)
	close(quit)

	select {
	case <-dead:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop still parked after quit")
	}
}

// Non-terminal frames are dropped, not queued, when the consumer lags.
func TestReadLoopDropsProgressWhenSlow(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	w := &SubprocessWorker{}
	frames := make(chan workerFrame, 1)
	dead := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go w.readLoop(pr, frames, dead, quit, exec.Command("false"))

	lines := `{"id":1,"type":"progress","percent":10}` + "\n" +
		`{"id":1,"type":"progress","percent":20}` + "\n" +
		`{"id":1,"type":"progress","percent":30}` + "\n"
	if _, err := pw.Write([]byte(lines)); err != nil {
		t.Fatal(err)
	}
	_ = pw.Close()

	select {
	case <-dead:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not finish")
	}
	if f := <-frames; f.Percent != 10 {
		t.Fatalf("first buffered frame percent = %d, want 10", f.Percent)
	}
	select {
	case f := <-frames:
		t.Fatalf("lagging consumer still got percent %d", f.Percent)
	default:
	}
}
