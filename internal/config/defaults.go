package config

import (
	"os"
	"runtime"
	"time"

	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/models/mlx"
	"github.com/uttertype/uttertype/internal/notify"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
)

const (
	GlobalAuto = "auto"
	GlobalOn   = "on"
	GlobalOff  = "off"
)

// DefaultConfig is the configuration used when no file exists.
func DefaultConfig() *Config {
	clip := injection.ClipboardSystem
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		clip = injection.ClipboardWayland
	}
	return &Config{
		Hotkey: HotkeyConfig{
			Record:   hotkey.DefaultRecord,
			Mode:     string(hotkey.ModeHold),
			Debounce: hotkey.DefaultDebounce,
			Global:   GlobalAuto,
		},
		Recording: RecordingConfig{
			Backend:           DefaultRecordingBackend(),
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			FrameDuration:     30 * time.Millisecond,
			ChannelBufferSize: 64,
			MaxDuration:       5 * time.Minute,
		},
		VAD: VADConfig{
			Enabled:     true,
			Threshold:   300,
			Padding:     150 * time.Millisecond,
			MinDuration: 300 * time.Millisecond,
		},
		Transcription: TranscriptionConfig{
			Provider:        transcriber.ProviderOpenAI,
			Prompt:          transcriber.DefaultOpenAIPrompt,
			Timeout:         30 * time.Second,
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
		},
		OpenAI: OpenAIConfig{
			BaseURL: transcriber.DefaultOpenAIBaseURL,
			Model:   transcriber.DefaultOpenAIModel,
		},
		Gemini: GeminiConfig{
			Model:    transcriber.DefaultGeminiModel,
			Location: transcriber.DefaultGeminiLocation,
		},
		MLX: MLXConfig{
			Model:  mlx.DefaultModel,
			Python: transcriber.DefaultMLXPython,
		},
		Injection: InjectionConfig{
			Mode:             injection.ModePaste,
			Backends:         injection.DefaultBackends(runtime.GOOS),
			Clipboard:        clip,
			RestoreClipboard: true,
			RestoreDelay:     150 * time.Millisecond,
			TypeTimeout:      5 * time.Second,
			ClipboardTimeout: 3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    notify.TypeDesktop,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultRecordingBackend is pw-record on Linux and PortAudio elsewhere.
func DefaultRecordingBackend() string {
	if runtime.GOOS == "linux" {
		return recording.BackendPipeWire
	}
	return recording.BackendPortAudio
}
