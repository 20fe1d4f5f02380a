package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil { t.Fatalf("listen: %v", err) }
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil { t.Fatalf("split: %v", err) }
	cleanup := func(){ _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok { t.Fatal("runtime.Caller failed") }
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	root := filepath.Dir(filepath.Dir(bbDir))
	return root
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "renderd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/renderd")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// createProjectFile writes a model source file for the daemon to open.
func createProjectFile(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "bracket.scad")
	if err := os.WriteFile(p, []byte(source), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return p
}

func createLibrariesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("// library"), 0o644); err != nil {
			t.Fatalf("write library %s: %v", p, err)
		}
	}
	return dir
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, projectPath, librariesDir string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{
		"--addr", addr,
		"--project", projectPath,
		"--quiet-ms", "50",
	}
	if librariesDir != "" {
		args = append(args, "--libraries-dir", librariesDir)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	// Wait for healthz
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK { break }
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func(){ _ = cmd.Process.Kill() })
	return sp
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil { t.Fatalf("new req: %v", err) }
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do: %v", err) }
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil { t.Fatalf("new req: %v", err) }
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do: %v", err) }
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	projectPath := createProjectFile(t, "cube([width, 10, 2]);\nsphere(r=width/4);\n")
	libsDir := createLibrariesDir(t, "gears.scad", "threads.scad")
	// Reserve a free port, then release listener before starting the server
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, projectPath, libsDir, port)

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/healthz %d %s", resp.StatusCode, string(body)) }

	// /readyz: the built-in sim worker warms up instantly
	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/readyz %d %s", resp.StatusCode, string(body)) }

	// /libraries
	resp, body = get(t, sp.base+"/libraries")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/libraries %d %s", resp.StatusCode, string(body)) }
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") { t.Fatalf("/libraries content-type=%s", ct) }
	var libsResp struct{ Libraries []struct{ ID string `json:"id"` } `json:"libraries"` }
	if err := json.Unmarshal(body, &libsResp); err != nil { t.Fatalf("/libraries json: %v body=%s", err, string(body)) }
	if len(libsResp.Libraries) != 2 { t.Fatalf("expected 2 libraries, got %d", len(libsResp.Libraries)) }

	// /status
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/status %d %s", resp.StatusCode, string(body)) }
	var statusResp struct {
		Project string `json:"project"`
		Tier    string `json:"tier"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil { t.Fatalf("/status json: %v body=%s", err, string(body)) }
	if statusResp.Project != "bracket" { t.Fatalf("project=%q", statusResp.Project) }
	if statusResp.Tier == "" { t.Fatalf("missing tier in %s", string(body)) }

	// Forced preview renders synchronously and returns 200
	resp, body = postJSON(t, sp.base+"/preview", []byte(`{"parameters":{"width":50},"force":true}`))
	if resp.StatusCode != http.StatusOK { t.Fatalf("/preview force %d %s", resp.StatusCode, string(body)) }
	var info struct {
		State  string `json:"state"`
		Cached bool   `json:"cached"`
	}
	if err := json.Unmarshal(body, &info); err != nil { t.Fatalf("/preview json: %v", err) }
	if info.State != "current" { t.Fatalf("preview state=%q", info.State) }

	// Debounced preview returns 202 and lands on its own
	resp, body = postJSON(t, sp.base+"/preview", []byte(`{"parameters":{"width":60}}`))
	if resp.StatusCode != http.StatusAccepted { t.Fatalf("/preview debounced %d %s", resp.StatusCode, string(body)) }
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, body = get(t, sp.base+"/status")
		var st struct{ State string `json:"state"` }
		_ = json.Unmarshal(body, &st)
		if st.State == "current" { break }
		if time.Now().After(deadline) { t.Fatalf("debounced preview never landed; state=%s", st.State) }
		time.Sleep(25 * time.Millisecond)
	}

	// Re-sending an already rendered snapshot is a cache hit
	resp, body = postJSON(t, sp.base+"/preview", []byte(`{"parameters":{"width":50},"force":true}`))
	if resp.StatusCode != http.StatusOK { t.Fatalf("/preview repeat %d %s", resp.StatusCode, string(body)) }
	if err := json.Unmarshal(body, &info); err != nil { t.Fatalf("json: %v", err) }
	if !info.Cached { t.Fatalf("repeat preview not cached: %s", string(body)) }

	// /preview/artifact streams the mesh with stats headers
	resp, body = get(t, sp.base+"/preview/artifact")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/preview/artifact %d", resp.StatusCode) }
	if len(body) == 0 { t.Fatal("empty artifact body") }
	if resp.Header.Get("X-Triangle-Count") == "" { t.Fatal("missing X-Triangle-Count") }

	// /export produces a binary in the requested format
	resp, body = postJSON(t, sp.base+"/export", []byte(`{"parameters":{"width":50},"format":"off","quality":"high"}`))
	if resp.StatusCode != http.StatusOK { t.Fatalf("/export %d %s", resp.StatusCode, string(body)) }
	if got := resp.Header.Get("X-Output-Format"); got != "off" { t.Fatalf("X-Output-Format=%q", got) }
	if len(body) == 0 { t.Fatal("empty export body") }

	// Queue: add two jobs, process, verify completion
	resp, body = postJSON(t, sp.base+"/queue", []byte(`{"name":"a","parameters":{"width":10}}`))
	if resp.StatusCode != http.StatusCreated { t.Fatalf("queue add %d %s", resp.StatusCode, string(body)) }
	resp, body = postJSON(t, sp.base+"/queue", []byte(`{"name":"b","parameters":{"width":20},"format":"off"}`))
	if resp.StatusCode != http.StatusCreated { t.Fatalf("queue add %d %s", resp.StatusCode, string(body)) }
	resp, body = postJSON(t, sp.base+"/queue/process", nil)
	if resp.StatusCode != http.StatusOK { t.Fatalf("queue process %d %s", resp.StatusCode, string(body)) }
	var sum struct{ Completed int `json:"completed"` }
	if err := json.Unmarshal(body, &sum); err != nil { t.Fatalf("summary json: %v", err) }
	if sum.Completed != 2 { t.Fatalf("completed=%d body=%s", sum.Completed, string(body)) }
	resp, body = get(t, sp.base+"/queue")
	var listing struct{ Jobs []struct{ State string `json:"state"` } `json:"jobs"` }
	if err := json.Unmarshal(body, &listing); err != nil { t.Fatalf("queue json: %v", err) }
	for i, j := range listing.Jobs {
		if j.State != "complete" { t.Fatalf("job %d state=%s", i, j.State) }
	}

	// /metrics exposes the render counters
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/metrics %d", resp.StatusCode) }
	if !bytes.Contains(body, []byte("renderd_")) { t.Fatal("missing renderd metrics") }
}

func TestBlackbox_CompileError_422(t *testing.T) {
	bin := buildBinary(t)
	projectPath := createProjectFile(t, "cube(; // syntax error\n")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, projectPath, "", port)

	resp, body := postJSON(t, sp.base+"/preview", []byte(`{"parameters":{"width":5},"force":true}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d, body=%s", resp.StatusCode, string(body))
	}
	if !bytes.Contains(body, []byte("syntax error")) {
		t.Fatalf("raw engine message missing: %s", string(body))
	}
}

func TestBlackbox_Preview_MissingParameters_400(t *testing.T) {
	bin := buildBinary(t)
	projectPath := createProjectFile(t, "cube(1);\n")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, projectPath, "", port)

	resp, body := postJSON(t, sp.base+"/preview", []byte(`{"parameters":{}}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, string(body))
	}
}
