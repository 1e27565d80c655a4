package config

import (
	"fmt"
	"net/url"

	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/language"
	"github.com/uttertype/uttertype/internal/models/mlx"
	"github.com/uttertype/uttertype/internal/notify"
	"github.com/uttertype/uttertype/internal/provider"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// Error is a configuration problem. It is fatal at startup.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

func (c *Config) Validate() error {
	// Hotkey
	if _, err := hotkey.Parse(c.Hotkey.Record); err != nil {
		return &Error{Field: "hotkey.record", Err: err}
	}
	if c.Hotkey.Cancel != "" {
		if _, err := hotkey.Parse(c.Hotkey.Cancel); err != nil {
			return &Error{Field: "hotkey.cancel", Err: err}
		}
	}
	if _, err := hotkey.ParseMode(c.Hotkey.Mode); err != nil {
		return &Error{Field: "hotkey.mode", Err: err}
	}
	if c.Hotkey.Debounce < 0 {
		return invalid("hotkey.debounce", "must not be negative: %v", c.Hotkey.Debounce)
	}
	switch c.Hotkey.Global {
	case GlobalAuto, GlobalOn, GlobalOff:
	default:
		return invalid("hotkey.global", "%q (must be auto, on, or off)", c.Hotkey.Global)
	}

	// Recording
	switch c.Recording.Backend {
	case recording.BackendPipeWire, recording.BackendPortAudio:
	default:
		return invalid("recording.backend", "%q (must be pipewire or portaudio)", c.Recording.Backend)
	}
	if err := c.ToRecordingConfig().Validate(); err != nil {
		return &Error{Field: "recording", Err: err}
	}
	if c.Recording.MaxDuration <= 0 {
		return invalid("recording.max_duration", "%v", c.Recording.MaxDuration)
	}

	// VAD
	if err := c.ToVADConfig().Validate(); err != nil {
		return &Error{Field: "vad", Err: err}
	}

	// Transcription
	if _, err := language.Normalize(c.Transcription.Language); err != nil {
		return &Error{Field: "transcription.language", Err: err}
	}
	if c.Transcription.Timeout <= 0 {
		return invalid("transcription.timeout", "%v", c.Transcription.Timeout)
	}
	if c.Transcription.MaxAttempts < 1 {
		return invalid("transcription.max_attempts", "%d (must be at least 1)", c.Transcription.MaxAttempts)
	}
	switch c.Transcription.Provider {
	case transcriber.ProviderOpenAI:
		if err := c.validateOpenAI(); err != nil {
			return err
		}
	case transcriber.ProviderGoogle:
		if err := c.validateGemini(); err != nil {
			return err
		}
	case transcriber.ProviderMLX:
		if mlx.GetModel(c.MLX.Model) == nil {
			return &Error{Field: "mlx.model", Err: fmt.Errorf("%w: %s", mlx.ErrUnknownModel, c.MLX.Model)}
		}
	default:
		return invalid("transcription.provider", "unsupported provider %q (must be openai, google, or mlx)", c.Transcription.Provider)
	}

	if code := c.Language(); code != "" {
		if m := provider.FindModel(c.Transcription.Provider, c.Model()); m != nil && !m.SupportsLanguage(code) {
			return invalid("transcription.language", "%s is not supported by model %s", language.Label(code), m.ID)
		}
	}

	// Injection
	if err := c.ToInjectionConfig().Validate(); err != nil {
		return &Error{Field: "injection", Err: err}
	}

	// Notifications
	switch c.Notifications.Type {
	case notify.TypeDesktop, notify.TypeLog, notify.TypeNone:
	default:
		return invalid("notifications.type", "%q (must be desktop, log, or none)", c.Notifications.Type)
	}

	// Log
	if err := c.ToLoggingConfig().Validate(); err != nil {
		return &Error{Field: "log", Err: err}
	}

	return nil
}

func (c *Config) validateOpenAI() error {
	u, err := url.Parse(c.OpenAI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("openai.base_url", "%q is not an absolute URL", c.OpenAI.BaseURL)
	}
	if c.OpenAI.Model == "" {
		return invalid("openai.model", "empty")
	}
	if c.OpenAI.APIKey == "" && transcriber.IsDefaultOpenAIHost(c.OpenAI.BaseURL) {
		return invalid("openai.api_key", "OpenAI API key required: set OPENAI_API_KEY or openai.api_key")
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.Model == "" {
		return invalid("gemini.model", "empty")
	}
	if c.Gemini.UseVertex {
		if c.Gemini.Project == "" {
			return invalid("gemini.project", "Vertex AI mode needs a project: set GEMINI_PROJECT_ID")
		}
		if c.Gemini.Location == "" {
			return invalid("gemini.location", "empty")
		}
		return nil
	}
	if c.Gemini.APIKey == "" {
		return invalid("gemini.api_key", "Gemini API key required: set GEMINI_API_KEY or enable Vertex AI with GEMINI_USE_VERTEX")
	}
	return nil
}
