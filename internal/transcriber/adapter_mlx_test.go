package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/models/mlx"
)

type fakeStore struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	release chan struct{} // when set, Ensure blocks until closed
}

func (f *fakeStore) Ensure(ctx context.Context, modelID string, onProgress mlx.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "/models/" + modelID, nil
}

func (f *fakeStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEngine struct {
	text     string
	modelDir string
	wavPath  string
	wavSeen  bool
	closed   bool
}

func (f *fakeEngine) Run(ctx context.Context, modelDir, wavPath, language string) (string, error) {
	f.modelDir = modelDir
	f.wavPath = wavPath
	data, err := os.ReadFile(wavPath)
	f.wavSeen = err == nil && len(data) > 44
	return f.text, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func mlxRequest(n int) Request {
	return Request{PCM: make([]byte, n), Format: audio.DefaultFormat()}
}

func TestMLXAdapterLoadsModelOnce(t *testing.T) {
	store := &fakeStore{}
	engine := &fakeEngine{text: " hello world\n"}
	a := newMLXAdapter("distil-medium.en", store, engine)

	for i := 0; i < 2; i++ {
		res, err := a.Transcribe(context.Background(), mlxRequest(9600))
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if res.Text != "hello world" {
			t.Errorf("unexpected text %q", res.Text)
		}
	}
	if store.Calls() != 1 {
		t.Errorf("model should be resolved once, got %d", store.Calls())
	}
	if engine.modelDir != "/models/distil-medium.en" {
		t.Errorf("engine got model dir %s", engine.modelDir)
	}
	if !engine.wavSeen {
		t.Error("engine should receive a WAV file")
	}
	if _, err := os.Stat(engine.wavPath); !os.IsNotExist(err) {
		t.Error("temporary WAV should be removed after the call")
	}
}

func TestMLXAdapterRetriesFailedLoad(t *testing.T) {
	store := &fakeStore{errs: []error{mlx.ErrUnauthorized}}
	a := newMLXAdapter("distil-medium.en", store, &fakeEngine{text: "ok"})

	_, err := a.Transcribe(context.Background(), mlxRequest(960))
	if !errors.Is(err, mlx.ErrUnauthorized) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if !IsPermanent(err) {
		t.Error("model load failure should be permanent")
	}

	res, err := a.Transcribe(context.Background(), mlxRequest(960))
	if err != nil {
		t.Fatalf("second attempt should load the model, got %v", err)
	}
	if res.Text != "ok" || store.Calls() != 2 {
		t.Errorf("unexpected result %q after %d loads", res.Text, store.Calls())
	}
}

func TestMLXAdapterDownloadOutlivesDeadline(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	a := newMLXAdapter("tiny", store, &fakeEngine{text: "ready"})
	b := Resilient(a, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, Timeout: 20 * time.Millisecond})

	_, err := b.Transcribe(context.Background(), mlxRequest(960))
	if !errors.Is(err, ErrNotReady) || !IsPermanent(err) {
		t.Fatalf("Transcribe during download = %v, want permanent not-ready error", err)
	}

	close(store.release)
	res, err := b.Transcribe(context.Background(), mlxRequest(960))
	if err != nil {
		t.Fatalf("Transcribe after download = %v", err)
	}
	if res.Text != "ready" {
		t.Errorf("text = %q", res.Text)
	}
	if store.Calls() != 1 {
		t.Errorf("download started %d times, want 1", store.Calls())
	}
}

func TestMLXAdapterCloseStopsDownload(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	engine := &fakeEngine{}
	a := newMLXAdapter("tiny", store, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := a.Transcribe(ctx, mlxRequest(960)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Transcribe = %v, want not ready", err)
	}

	if err := Resilient(a, RetryConfig{}).(interface{ Close() error }).Close(); err != nil {
		t.Fatal(err)
	}
	if !engine.closed {
		t.Error("engine not closed")
	}
	if _, err := a.Transcribe(context.Background(), mlxRequest(960)); !errors.Is(err, context.Canceled) {
		t.Errorf("Transcribe after Close = %v, want cancelled download", err)
	}
}

// slowModelServer serves every file of a model in small delayed pieces.
func slowModelServer(t *testing.T, size int, served *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		piece := make([]byte, 4096)
		for sent := 0; sent < size; sent += len(piece) {
			if _, err := w.Write(piece); err != nil {
				return
			}
			served.Add(int64(len(piece)))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMLXAdapterSlowDownloadCompletesAcrossSessions(t *testing.T) {
	const size = 64 * 1024 // 16 pieces, about 80 ms per file
	var served atomic.Int64
	srv := slowModelServer(t, size, &served)
	store := &mlx.Store{Dir: t.TempDir(), BaseURL: srv.URL, Client: srv.Client()}
	b := Resilient(newMLXAdapter("tiny", store, &fakeEngine{text: "hi"}), RetryConfig{Timeout: 50 * time.Millisecond})

	var sessions int
	for ; sessions < 100; sessions++ {
		if _, err := b.Transcribe(context.Background(), mlxRequest(960)); err == nil {
			break
		} else if !errors.Is(err, ErrNotReady) {
			t.Fatalf("session %d: %v", sessions+1, err)
		}
	}
	if sessions == 0 || sessions == 100 {
		t.Fatalf("model ready after %d failed sessions", sessions)
	}
	if !store.IsInstalled("tiny") {
		t.Error("model not installed")
	}
	files := int64(len(mlx.GetModel("tiny").Files))
	if got := served.Load(); got != files*size {
		t.Errorf("served %d bytes, want %d (download restarted)", got, files*size)
	}
}

// fakeWorker writes a stand-in for the Python interpreter that runs body.
// Every launch appends a line to the starts file.
func fakeWorker(t *testing.T, body string) (python, starts string) {
	t.Helper()
	dir := t.TempDir()
	starts = filepath.Join(dir, "starts")
	script := "#!/bin/sh\necho started >> " + starts + "\n" + body
	python = filepath.Join(dir, "python3")
	if err := os.WriteFile(python, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return python, starts
}

func countStarts(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "started")
}

func TestMLXWorkerStaysLoaded(t *testing.T) {
	python, starts := fakeWorker(t, `while read -r line; do echo '{"text":" hello world"}'; done`+"\n")
	w := newMLXWorker(python)
	defer w.Close()

	for i := 0; i < 3; i++ {
		text, err := w.Run(context.Background(), "/models/tiny", "/tmp/a.wav", "en")
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if text != " hello world" {
			t.Errorf("text = %q", text)
		}
	}
	if n := countStarts(t, starts); n != 1 {
		t.Errorf("worker started %d times, want 1", n)
	}

	if _, err := w.Run(context.Background(), "/models/other", "/tmp/a.wav", ""); err != nil {
		t.Fatal(err)
	}
	if n := countStarts(t, starts); n != 2 {
		t.Errorf("changing the model should restart the worker, starts = %d", n)
	}
}

func TestMLXWorkerRestartsAfterExit(t *testing.T) {
	python, starts := fakeWorker(t, `read -r line; echo '{"text":"once"}'`+"\n")
	w := newMLXWorker(python)
	defer w.Close()

	for i := 0; i < 2; i++ {
		text, err := w.Run(context.Background(), "/models/tiny", "/tmp/a.wav", "")
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if text != "once" {
			t.Errorf("text = %q", text)
		}
	}
	if n := countStarts(t, starts); n != 2 {
		t.Errorf("worker started %d times, want 2", n)
	}
}

func TestMLXWorkerErrors(t *testing.T) {
	t.Run("reply error keeps worker", func(t *testing.T) {
		python, starts := fakeWorker(t, `while read -r line; do echo '{"error":"bad audio"}'; done`+"\n")
		w := newMLXWorker(python)
		defer w.Close()

		for i := 0; i < 2; i++ {
			_, err := w.Run(context.Background(), "/m", "/tmp/a.wav", "")
			if err == nil || !strings.Contains(err.Error(), "bad audio") {
				t.Fatalf("Run = %v, want worker error", err)
			}
		}
		if n := countStarts(t, starts); n != 1 {
			t.Errorf("starts = %d, want 1", n)
		}
	})

	t.Run("import failure", func(t *testing.T) {
		python, _ := fakeWorker(t, "echo \"No module named 'mlx_whisper'\" >&2\nexit 1\n")
		w := newMLXWorker(python)
		defer w.Close()

		_, err := w.Run(context.Background(), "/m", "/tmp/a.wav", "")
		if !errors.Is(err, errWorkerExited) || !strings.Contains(err.Error(), "mlx_whisper") {
			t.Errorf("Run = %v, want exit with stderr", err)
		}
	})

	t.Run("deadline kills worker", func(t *testing.T) {
		python, starts := fakeWorker(t, "while read -r line; do sleep 5; done\n")
		w := newMLXWorker(python)
		defer w.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := w.Run(ctx, "/m", "/tmp/a.wav", ""); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Run = %v, want deadline", err)
		}
		w.mu.Lock()
		running := w.cmd != nil
		w.mu.Unlock()
		if running {
			t.Error("worker should be stopped after a deadline")
		}
		if n := countStarts(t, starts); n != 1 {
			t.Errorf("starts = %d", n)
		}
	})

	t.Run("missing interpreter", func(t *testing.T) {
		w := newMLXWorker(filepath.Join(t.TempDir(), "python3"))
		if _, err := w.Run(context.Background(), "/m", "/tmp/a.wav", ""); err == nil {
			t.Error("expected an error")
		}
	})
}
