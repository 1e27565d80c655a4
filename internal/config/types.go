package config

import "time"

// Config is loaded once at startup and shared read-only.
type Config struct {
	Hotkey        HotkeyConfig        `toml:"hotkey"`
	Recording     RecordingConfig     `toml:"recording"`
	VAD           VADConfig           `toml:"vad"`
	Transcription TranscriptionConfig `toml:"transcription"`
	OpenAI        OpenAIConfig        `toml:"openai"`
	Gemini        GeminiConfig        `toml:"gemini"`
	MLX           MLXConfig           `toml:"mlx"`
	Injection     InjectionConfig     `toml:"injection"`
	Notifications NotificationsConfig `toml:"notifications"`
	Log           LogConfig           `toml:"log"`
}

type HotkeyConfig struct {
	Record   string        `toml:"record"`
	Cancel   string        `toml:"cancel"` // empty disables the cancel hotkey
	Mode     string        `toml:"mode"`   // "hold" or "toggle"
	Debounce time.Duration `toml:"debounce"`
	Global   string        `toml:"global"` // "auto", "on", "off"
}

type RecordingConfig struct {
	Backend           string        `toml:"backend"` // "pipewire", "portaudio", empty picks per platform
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	Format            string        `toml:"format"`
	FrameDuration     time.Duration `toml:"frame_duration"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	MaxDuration       time.Duration `toml:"max_duration"`
}

type VADConfig struct {
	Enabled     bool          `toml:"enabled"`
	Threshold   float64       `toml:"threshold"`
	Padding     time.Duration `toml:"padding"`
	MinDuration time.Duration `toml:"min_duration"`
	Chunk       time.Duration `toml:"chunk"` // 0 disables chunked transcription
}

type TranscriptionConfig struct {
	Provider        string        `toml:"provider"` // "openai", "google", "mlx"
	Language        string        `toml:"language"`
	Prompt          string        `toml:"prompt"`
	Timeout         time.Duration `toml:"timeout"`
	MaxAttempts     int           `toml:"max_attempts"`
	InitialInterval time.Duration `toml:"initial_interval"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

type GeminiConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	UseVertex bool   `toml:"use_vertex"`
	Project   string `toml:"project"`
	Location  string `toml:"location"`
}

type MLXConfig struct {
	Model     string `toml:"model"`
	HFToken   string `toml:"hf_token"`
	ModelsDir string `toml:"models_dir"`
	Python    string `toml:"python"` // interpreter with mlx-whisper installed
}

type InjectionConfig struct {
	Mode             string        `toml:"mode"` // "type", "paste", "clipboard"
	Backends         []string      `toml:"backends"`
	Clipboard        string        `toml:"clipboard"` // "system", "wayland"
	RestoreClipboard bool          `toml:"restore_clipboard"`
	RestoreDelay     time.Duration `toml:"restore_delay"`
	TypeTimeout      time.Duration `toml:"type_timeout"`
	ClipboardTimeout time.Duration `toml:"clipboard_timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console", "json"
}
