package config

import (
	"os"

	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/language"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/pipeline"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
	"github.com/uttertype/uttertype/internal/vad"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		FrameDuration:     c.Recording.FrameDuration,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToVADConfig() vad.Config {
	return vad.Config{
		Enabled:       c.VAD.Enabled,
		Threshold:     c.VAD.Threshold,
		FrameDuration: c.Recording.FrameDuration,
		Padding:       c.VAD.Padding,
		MinDuration:   c.VAD.MinDuration,
		ChunkDuration: c.VAD.Chunk,
	}
}

// Language is the normalised language hint; empty means auto-detect.
func (c *Config) Language() string {
	code, err := language.Normalize(c.Transcription.Language)
	if err != nil {
		return ""
	}
	return code
}

// Model is the model of the selected provider.
func (c *Config) Model() string {
	switch c.Transcription.Provider {
	case transcriber.ProviderGoogle:
		return c.Gemini.Model
	case transcriber.ProviderMLX:
		return c.MLX.Model
	}
	return c.OpenAI.Model
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Transcription.Provider,
		Prompt:   c.Transcription.Prompt,
		Timeout:  c.Transcription.Timeout,
		Retry: transcriber.RetryConfig{
			MaxAttempts:     c.Transcription.MaxAttempts,
			InitialInterval: c.Transcription.InitialInterval,
			MaxInterval:     transcriber.DefaultRetryConfig().MaxInterval,
			Timeout:         c.Transcription.Timeout,
		},
		OpenAI: transcriber.OpenAIConfig{
			APIKey:  c.OpenAI.APIKey,
			BaseURL: c.OpenAI.BaseURL,
			Model:   c.OpenAI.Model,
		},
		Gemini: transcriber.GeminiConfig{
			APIKey:    c.Gemini.APIKey,
			Model:     c.Gemini.Model,
			UseVertex: c.Gemini.UseVertex,
			Project:   c.Gemini.Project,
			Location:  c.Gemini.Location,
		},
		MLX: transcriber.MLXConfig{
			Model:     c.MLX.Model,
			HFToken:   c.MLX.HFToken,
			ModelsDir: c.MLX.ModelsDir,
			Python:    c.MLX.Python,
		},
	}
}

func (c *Config) ToInjectionConfig() injection.Config {
	return injection.Config{
		Mode:             c.Injection.Mode,
		Backends:         c.Injection.Backends,
		Clipboard:        c.Injection.Clipboard,
		RestoreClipboard: c.Injection.RestoreClipboard,
		RestoreDelay:     c.Injection.RestoreDelay,
		TypeTimeout:      c.Injection.TypeTimeout,
		ClipboardTimeout: c.Injection.ClipboardTimeout,
	}
}

func (c *Config) ToPipelineConfig() pipeline.Config {
	rc := c.ToRecordingConfig()
	cfg := pipeline.DefaultConfig()
	cfg.Format = rc.AudioFormat()
	cfg.FrameDuration = rc.FrameDuration
	cfg.MaxDuration = c.Recording.MaxDuration
	cfg.Language = c.Language()
	return cfg
}

func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// TriggerMode is the parsed hotkey.mode. Call after Validate.
func (c *Config) TriggerMode() hotkey.Mode {
	m, err := hotkey.ParseMode(c.Hotkey.Mode)
	if err != nil {
		return hotkey.ModeHold
	}
	return m
}

// UseGlobalHotkeys reports whether the daemon should grab hotkeys itself.
// In auto mode it does not on a pure Wayland session, where compositor
// binds call the control socket instead.
func (c *Config) UseGlobalHotkeys() bool {
	switch c.Hotkey.Global {
	case GlobalOn:
		return true
	case GlobalOff:
		return false
	}
	return !(os.Getenv("WAYLAND_DISPLAY") != "" && os.Getenv("DISPLAY") == "")
}
