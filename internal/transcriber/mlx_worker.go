package transcriber

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

// mlxWorkerScript serves transcriptions for the model directory given as
// its argument. Requests and replies are JSON lines; mlx_whisper keeps the
// loaded model between requests. Library output goes to stderr so stdout
// only carries replies.
const mlxWorkerScript = `import json, sys
replies = sys.stdout
sys.stdout = sys.stderr
import mlx_whisper
model = sys.argv[1]
for line in sys.stdin:
    req = json.loads(line)
    try:
        out = mlx_whisper.transcribe(req["audio"], path_or_hf_repo=model, language=req.get("language") or None, verbose=None)
        reply = {"text": out.get("text", "")}
    except Exception as e:
        reply = {"error": str(e)}
    replies.write(json.dumps(reply) + "\n")
    replies.flush()
`

var errWorkerExited = errors.New("mlx worker exited")

type workerRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
}

type workerReply struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// mlxWorker owns one long-lived Python process with the model in memory.
// Requests are serialized. The process is replaced when the model changes
// and restarted after it dies.
type mlxWorker struct {
	python string
	log    zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailWriter
	model  string
}

func newMLXWorker(python string) *mlxWorker {
	return &mlxWorker{python: python, log: logging.For("mlx-worker")}
}

func (w *mlxWorker) Run(ctx context.Context, modelDir, wavPath, language string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd != nil && w.model != modelDir {
		w.stopLocked()
	}
	reused := w.cmd != nil
	if !reused {
		if err := w.startLocked(modelDir); err != nil {
			return "", err
		}
	}

	req := workerRequest{Audio: wavPath, Language: language}
	text, err := w.roundTrip(ctx, req)
	if errors.Is(err, errWorkerExited) && reused && ctx.Err() == nil {
		// died while idle, one fresh start
		w.log.Warn().Err(err).Msg("restarting worker")
		if err := w.startLocked(modelDir); err != nil {
			return "", err
		}
		text, err = w.roundTrip(ctx, req)
	}
	return text, err
}

func (w *mlxWorker) roundTrip(ctx context.Context, req workerRequest) (string, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		w.stopLocked()
		return "", fmt.Errorf("%w: %v: %s", errWorkerExited, err, w.stderr.String())
	}

	type read struct {
		line []byte
		err  error
	}
	ch := make(chan read, 1)
	out := w.stdout
	go func() {
		b, err := out.ReadBytes('\n')
		ch <- read{b, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			w.stopLocked()
			return "", fmt.Errorf("%w: %v: %s", errWorkerExited, r.err, w.stderr.String())
		}
		var reply workerReply
		if err := json.Unmarshal(r.line, &reply); err != nil {
			w.stopLocked()
			return "", fmt.Errorf("malformed worker reply %q: %w", strings.TrimSpace(string(r.line)), err)
		}
		if reply.Error != "" {
			return "", fmt.Errorf("mlx_whisper: %s", reply.Error)
		}
		return reply.Text, nil
	case <-ctx.Done():
		// a late reply would answer the next request
		w.stopLocked()
		return "", ctx.Err()
	}
}

func (w *mlxWorker) startLocked(modelDir string) error {
	path, err := exec.LookPath(w.python)
	if err != nil {
		return fmt.Errorf("%s not found: install Python 3 and `pip install mlx-whisper`", w.python)
	}

	cmd := exec.Command(path, "-u", "-c", mlxWorkerScript, modelDir)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	stderr := &tailWriter{max: 2048}
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", w.python, err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.stdout = bufio.NewReader(stdout)
	w.stderr = stderr
	w.model = modelDir
	w.log.Info().Int("pid", cmd.Process.Pid).Str("model", modelDir).Msg("worker started")
	return nil
}

func (w *mlxWorker) stopLocked() {
	if w.cmd == nil {
		return
	}
	w.stdin.Close()
	_ = w.cmd.Process.Kill()
	_ = w.cmd.Wait()
	w.log.Debug().Int("pid", w.cmd.Process.Pid).Msg("worker stopped")
	w.cmd, w.stdin, w.stdout = nil, nil, nil
}

// Close stops the worker process.
func (w *mlxWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	return nil
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
