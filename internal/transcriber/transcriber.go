package transcriber

import (
	"context"
	"fmt"
	"time"

	"github.com/uttertype/uttertype/internal/audio"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderMLX    = "mlx"
)

// Request is one finalized, gated recording.
type Request struct {
	PCM      []byte
	Format   audio.Format
	Language string
}

type Result struct {
	Text string
	// Confidence is 0 when the backend does not report one.
	Confidence float64
	Provider   string
	Model      string
	Latency    time.Duration
	Attempts   int
}

// Backend turns audio into text. Implementations must be safe for
// concurrent use.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey    string
	Model     string
	UseVertex bool
	Project   string
	Location  string
}

type MLXConfig struct {
	Model     string
	HFToken   string
	ModelsDir string
	// Python runs the inference worker; it needs the mlx-whisper package.
	Python    string
}

type Config struct {
	Provider string
	Prompt   string
	Timeout  time.Duration
	Retry    RetryConfig

	OpenAI OpenAIConfig
	Gemini GeminiConfig
	MLX    MLXConfig
}

// New builds the backend selected by cfg.Provider, wrapped with retries
// and the call deadline.
func New(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		b, err = NewOpenAIAdapter(cfg.OpenAI, cfg.Prompt)
	case ProviderGoogle:
		b, err = NewGeminiAdapter(ctx, cfg.Gemini)
	case ProviderMLX:
		b, err = NewMLXAdapter(cfg.MLX)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if cfg.Timeout > 0 {
		retry.Timeout = cfg.Timeout
	}
	return Resilient(b, retry), nil
}
