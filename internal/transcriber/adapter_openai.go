package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/logging"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "whisper-1"
	// DefaultOpenAIPrompt biases Whisper towards technical vocabulary.
	DefaultOpenAIPrompt  = "The following is normal speech or technical speech from an engineer."
)

// OpenAIAdapter calls an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	prompt string
	log    zerolog.Logger
}

func NewOpenAIAdapter(cfg OpenAIConfig, prompt string) (*OpenAIAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if cfg.APIKey == "" && IsDefaultOpenAIHost(baseURL) {
		return nil, fmt.Errorf("OpenAI API key required: set OPENAI_API_KEY or openai.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		prompt: prompt,
		log:    logging.For("openai-adapter"),
	}, nil
}

// IsDefaultOpenAIHost reports whether baseURL points at api.openai.com,
// where an API key is mandatory. Self-hosted servers may not need one.
func IsDefaultOpenAIHost(baseURL string) bool {
	return baseURL == "" || strings.Contains(baseURL, "api.openai.com")
}

func (a *OpenAIAdapter) Name() string { return ProviderOpenAI }

func (a *OpenAIAdapter) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.PCM) == 0 {
		return Result{Provider: ProviderOpenAI, Model: a.model}, nil
	}

	wavData, err := audio.EncodeWAV(req.PCM, req.Format)
	if err != nil {
		return Result{}, NewPermanentError(ProviderOpenAI, fmt.Errorf("convert to WAV: %w", err))
	}

	areq := openai.AudioRequest{
		Model:    a.model,
		Reader:   bytes.NewReader(wavData),
		FilePath: "audio.wav",
		Language: req.Language,
		Prompt:   a.prompt,
		Format:   openai.AudioResponseFormatJSON,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, areq)
	duration := time.Since(start)
	if err != nil {
		a.log.Debug().Err(err).Dur("elapsed", duration).Msg("API call failed")
		return Result{}, classifyOpenAIError(err)
	}

	text := strings.TrimSpace(resp.Text)
	a.log.Info().Int("bytes", len(req.PCM)).Dur("elapsed", duration).Int("chars", len(text)).Msg("transcribed")
	return Result{Text: text, Provider: ProviderOpenAI, Model: a.model, Latency: duration}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{Provider: ProviderOpenAI, Kind: KindForStatus(apiErr.HTTPStatusCode), StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &BackendError{Provider: ProviderOpenAI, Kind: KindForStatus(reqErr.HTTPStatusCode), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	if classified := classifyNetwork(ProviderOpenAI, err); classified != nil {
		return classified
	}
	return NewPermanentError(ProviderOpenAI, err)
}
