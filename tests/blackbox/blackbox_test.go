package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	binPath := filepath.Join(outDir, "gptd")
	// No llama build tag: the stub backend makes every load fail fast with a
	// deterministic error, which is exactly what these flows exercise.
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/gptd")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin string, modelsDir string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{
		"--addr", addr,
		"--models-dir", modelsDir,
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	// Wait for /health
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
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
	modelsDir := createTempModelsDir(t, "openai--gpt-oss-120b-mxfp4.gguf")
	// Reserve a free port, then release the listener before starting the server
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, modelsDir, port)

	// /health
	resp, body := get(t, sp.base+"/health")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/health %d %s", resp.StatusCode, string(body)) }
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") { t.Fatalf("/health content-type=%s", ct) }

	// /ready triggers a background load; the stub backend fails it, so the
	// probe converges on status=error while staying HTTP 200.
	resp, body = get(t, sp.base+"/ready")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/ready %d %s", resp.StatusCode, string(body)) }
	var ready struct {
		Status string `json:"status"`
		Model  string `json:"model"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &ready); err != nil { t.Fatalf("/ready json: %v body=%s", err, string(body)) }
	if ready.Model != "openai/gpt-oss-120b" { t.Fatalf("/ready model=%q", ready.Model) }

	deadline := time.Now().Add(2 * time.Second)
	for ready.Status != "error" {
		if time.Now().After(deadline) { t.Fatalf("/ready did not surface the load failure; last=%+v", ready) }
		time.Sleep(25 * time.Millisecond)
		_, body = get(t, sp.base+"/ready")
		if err := json.Unmarshal(body, &ready); err != nil { t.Fatalf("/ready json: %v body=%s", err, string(body)) }
	}
	if !strings.Contains(ready.Error, "llama") { t.Fatalf("/ready error=%q", ready.Error) }

	// /generate with a sticky load error answers 503 with an operator hint
	resp, body = postJSON(t, sp.base+"/generate", []byte(`{"prompt":"hello"}`))
	if resp.StatusCode != http.StatusServiceUnavailable { t.Fatalf("/generate %d %s", resp.StatusCode, string(body)) }
	var unavail struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Hint   string `json:"hint"`
	}
	if err := json.Unmarshal(body, &unavail); err != nil { t.Fatalf("/generate json: %v body=%s", err, string(body)) }
	if unavail.Status != "error" || !strings.Contains(unavail.Hint, "mxfp4") {
		t.Fatalf("/generate body=%s", string(body))
	}

	// /status reflects the error state
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/status %d %s", resp.StatusCode, string(body)) }
	var status struct {
		State     string `json:"state"`
		LastError string `json:"last_error"`
	}
	if err := json.Unmarshal(body, &status); err != nil { t.Fatalf("/status json: %v body=%s", err, string(body)) }
	if status.State != "error" || status.LastError == "" { t.Fatalf("/status body=%s", string(body)) }

	// /metrics exposes the request counters
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK { t.Fatalf("/metrics %d", resp.StatusCode) }
	if !bytes.Contains(body, []byte("gptd_http_requests_total")) {
		t.Fatalf("/metrics missing request counter")
	}
}

func TestBlackbox_EagerLoadFailureExitsNonZero(t *testing.T) {
	bin := buildBinary(t)
	// Empty models dir: the startup load cannot succeed, and with --eager a
	// supervisor must see a non-zero exit instead of a degraded instance.
	modelsDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, "--eager", "--addr", "127.0.0.1:0", "--models-dir", modelsDir)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected non-zero exit, output: %s", string(out))
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("run: %v", err)
	}
	if ee.ExitCode() == 0 {
		t.Fatalf("exit code = %d, output: %s", ee.ExitCode(), string(out))
	}
}

func TestBlackbox_Generate_BadRequests(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := createTempModelsDir(t, "openai--gpt-oss-120b-mxfp4.gguf")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, modelsDir, port)

	resp, body := postJSON(t, sp.base+"/generate", []byte(`{"prompt":""}`))
	if resp.StatusCode != http.StatusBadRequest { t.Fatalf("empty prompt: %d %s", resp.StatusCode, string(body)) }

	resp, body = postJSON(t, sp.base+"/generate", []byte(`{"prompt":`))
	if resp.StatusCode != http.StatusBadRequest { t.Fatalf("bad json: %d %s", resp.StatusCode, string(body)) }

	req, err := http.NewRequest(http.MethodPost, sp.base+"/generate", strings.NewReader(`{"prompt":"hi"}`))
	if err != nil { t.Fatalf("new req: %v", err) }
	req.Header.Set("Content-Type", "text/plain")
	r2, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do: %v", err) }
	_ = r2.Body.Close()
	if r2.StatusCode != http.StatusUnsupportedMediaType { t.Fatalf("content type: %d", r2.StatusCode) }
}
