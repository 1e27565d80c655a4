package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/models/mlx"
)

const DefaultMLXPython = "python3"

type modelStore interface {
	Ensure(ctx context.Context, modelID string, onProgress mlx.ProgressFunc) (string, error)
}

// mlxEngine runs inference on a WAV file with a resolved model directory.
type mlxEngine interface {
	Run(ctx context.Context, modelDir, wavPath, language string) (string, error)
	Close() error
}

// modelLoad is one attempt at resolving the model. dir and err are set
// before done is closed.
type modelLoad struct {
	done chan struct{}
	dir  string
	err  error
}

func (l *modelLoad) failed() bool {
	select {
	case <-l.done:
		return l.err != nil
	default:
		return false
	}
}

// MLXAdapter runs Whisper locally on Apple Silicon. The model is resolved
// on the first transcription and reused for the life of the process; a
// failed resolution is retried on the next call.
//
// Resolution may download hundreds of megabytes, so it runs on the
// adapter's own context. A transcription whose deadline expires while the
// download is still running fails, and the download carries on for the
// next one.
type MLXAdapter struct {
	modelID string
	store   modelStore
	engine  mlxEngine
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	load *modelLoad
}

func NewMLXAdapter(cfg MLXConfig) (*MLXAdapter, error) {
	modelID := cfg.Model
	if modelID == "" {
		modelID = mlx.DefaultModel
	}
	if mlx.GetModel(modelID) == nil {
		return nil, fmt.Errorf("unknown MLX model: %s", modelID)
	}
	store, err := mlx.NewStore(cfg.ModelsDir, cfg.HFToken)
	if err != nil {
		return nil, err
	}
	python := cfg.Python
	if python == "" {
		python = DefaultMLXPython
	}
	return newMLXAdapter(modelID, store, newMLXWorker(python)), nil
}

func newMLXAdapter(modelID string, store modelStore, engine mlxEngine) *MLXAdapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &MLXAdapter{
		modelID: modelID,
		store:   store,
		engine:  engine,
		log:     logging.For("mlx-adapter"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (a *MLXAdapter) Name() string { return ProviderMLX }

// Close stops a running download and the inference worker.
func (a *MLXAdapter) Close() error {
	a.cancel()
	return a.engine.Close()
}

func (a *MLXAdapter) modelDir(ctx context.Context) (string, error) {
	a.mu.Lock()
	l := a.load
	if l == nil || l.failed() {
		l = &modelLoad{done: make(chan struct{})}
		a.load = l
		go a.resolve(l)
	}
	a.mu.Unlock()

	select {
	case <-l.done:
		return l.dir, l.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: still downloading, try again when it finishes", ErrNotReady)
	}
}

func (a *MLXAdapter) resolve(l *modelLoad) {
	defer close(l.done)

	a.log.Info().Str("model", a.modelID).Msg("loading model")
	lastLogged := time.Now()
	l.dir, l.err = a.store.Ensure(a.ctx, a.modelID, func(file string, downloaded, total int64) {
		if time.Since(lastLogged) > 2*time.Second {
			a.log.Info().Str("file", file).Int64("downloaded", downloaded).Int64("total", total).Msg("downloading model")
			lastLogged = time.Now()
		}
	})
	if l.err != nil {
		a.log.Error().Err(l.err).Str("model", a.modelID).Msg("model load failed")
		return
	}
	a.log.Info().Str("model", a.modelID).Str("dir", l.dir).Msg("model ready")
}

func (a *MLXAdapter) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.PCM) == 0 {
		return Result{Provider: ProviderMLX, Model: a.modelID}, nil
	}

	modelDir, err := a.modelDir(ctx)
	if err != nil {
		return Result{}, NewPermanentError(ProviderMLX, fmt.Errorf("load model %s: %w", a.modelID, err))
	}

	wavData, err := audio.EncodeWAV(req.PCM, req.Format)
	if err != nil {
		return Result{}, NewPermanentError(ProviderMLX, fmt.Errorf("convert to WAV: %w", err))
	}

	tmpFile := filepath.Join(os.TempDir(), "uttertype-"+uuid.NewString()+".wav")
	if err := os.WriteFile(tmpFile, wavData, 0600); err != nil {
		return Result{}, NewPermanentError(ProviderMLX, fmt.Errorf("write temp file: %w", err))
	}
	defer os.Remove(tmpFile)

	start := time.Now()
	text, err := a.engine.Run(ctx, modelDir, tmpFile, req.Language)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, NewPermanentError(ProviderMLX, ctx.Err())
		}
		return Result{}, NewPermanentError(ProviderMLX, err)
	}

	text = strings.TrimSpace(text)
	a.log.Info().Int("bytes", len(req.PCM)).Dur("elapsed", duration).Int("chars", len(text)).Msg("transcribed")
	return Result{Text: text, Provider: ProviderMLX, Model: a.modelID, Latency: duration}, nil
}
