package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/recording"
)

// createTestConfig returns a valid configuration for testing
func createTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Recording.Backend = recording.BackendPipeWire
	cfg.Injection.Clipboard = "system"
	cfg.OpenAI.APIKey = "test-api-key"
	return cfg
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValidWithKey(t *testing.T) {
	if err := createTestConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad hotkey", func(c *Config) { c.Hotkey.Record = "v" }, "hotkey.record"},
		{"globe hotkey", func(c *Config) { c.Hotkey.Record = "<globe>" }, "hotkey.record"},
		{"bad cancel hotkey", func(c *Config) { c.Hotkey.Cancel = "<ctrl>+" }, "hotkey.cancel"},
		{"bad mode", func(c *Config) { c.Hotkey.Mode = "push" }, "hotkey.mode"},
		{"bad global", func(c *Config) { c.Hotkey.Global = "maybe" }, "hotkey.global"},
		{"bad backend", func(c *Config) { c.Recording.Backend = "alsa" }, "recording.backend"},
		{"bad sample rate", func(c *Config) { c.Recording.SampleRate = 0 }, "recording"},
		{"bad frame", func(c *Config) { c.Recording.FrameDuration = time.Second }, "recording"},
		{"bad max duration", func(c *Config) { c.Recording.MaxDuration = 0 }, "recording.max_duration"},
		{"bad threshold", func(c *Config) { c.VAD.Threshold = -1 }, "vad"},
		{"bad language", func(c *Config) { c.Transcription.Language = "klingon" }, "transcription.language"},
		{"bad timeout", func(c *Config) { c.Transcription.Timeout = 0 }, "transcription.timeout"},
		{"bad attempts", func(c *Config) { c.Transcription.MaxAttempts = 0 }, "transcription.max_attempts"},
		{"unknown provider", func(c *Config) { c.Transcription.Provider = "deepgram" }, "transcription.provider"},
		{"openai without key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai.api_key"},
		{"openai bad url", func(c *Config) { c.OpenAI.BaseURL = "not a url" }, "openai.base_url"},
		{"gemini without key", func(c *Config) { c.Transcription.Provider = "google" }, "gemini.api_key"},
		{"vertex without project", func(c *Config) {
			c.Transcription.Provider = "google"
			c.Gemini.UseVertex = true
		}, "gemini.project"},
		{"unknown mlx model", func(c *Config) {
			c.Transcription.Provider = "mlx"
			c.MLX.Model = "tiny-bogus"
		}, "mlx.model"},
		{"language unsupported by model", func(c *Config) {
			c.Transcription.Provider = "mlx"
			c.MLX.Model = "base.en"
			c.Transcription.Language = "es"
		}, "transcription.language"},
		{"bad injection mode", func(c *Config) { c.Injection.Mode = "fallback" }, "injection"},
		{"bad notification type", func(c *Config) { c.Notifications.Type = "invalid" }, "notifications.type"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *Error", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q (err: %v)", ce.Field, tt.field, err)
			}
		})
	}
}

func TestConfig_ValidateProviders(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"openai custom host needs no key", func(c *Config) {
			c.OpenAI.APIKey = ""
			c.OpenAI.BaseURL = "http://localhost:8000/v1"
		}},
		{"gemini api key", func(c *Config) {
			c.Transcription.Provider = "google"
			c.Gemini.APIKey = "g-key"
		}},
		{"gemini vertex", func(c *Config) {
			c.Transcription.Provider = "google"
			c.Gemini.UseVertex = true
			c.Gemini.Project = "my-project"
		}},
		{"mlx catalog model", func(c *Config) { c.Transcription.Provider = "mlx" }},
		{"mlx repo path", func(c *Config) {
			c.Transcription.Provider = "mlx"
			c.MLX.Model = "someone/whisper-custom"
		}},
		{"cancel hotkey and toggle", func(c *Config) {
			c.Hotkey.Cancel = "<ctrl>+<alt>+c"
			c.Hotkey.Mode = "toggle"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := LoadFrom(path, env(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Hotkey.Record != hotkey.DefaultRecord {
		t.Errorf("Record = %q", cfg.Hotkey.Record)
	}
	if cfg.Transcription.Provider != "openai" {
		t.Errorf("Provider = %q", cfg.Transcription.Provider)
	}
	if cfg.VAD.MinDuration != 300*time.Millisecond {
		t.Errorf("MinDuration = %v", cfg.VAD.MinDuration)
	}
	if !strings.Contains(cfg.Transcription.Prompt, "technical speech") {
		t.Errorf("Prompt = %q", cfg.Transcription.Prompt)
	}
}

func TestLoadFrom_File(t *testing.T) {
	path := writeConfig(t, `
[hotkey]
record = "<super>+<shift>+d"
mode = "toggle"

[recording]
device = "usb-mic"
max_duration = "2m"

[vad]
min_duration = "500ms"
chunk = "20s"

[transcription]
provider = "google"
language = "it"
timeout = "45s"

[gemini]
api_key = "file-key"
model = "gemini-2.5-flash"

[injection]
mode = "type"
backends = ["ydotool"]
`)

	cfg, err := LoadFrom(path, env(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Hotkey.Record != "<super>+<shift>+d" || cfg.Hotkey.Mode != "toggle" {
		t.Errorf("Hotkey = %+v", cfg.Hotkey)
	}
	if cfg.Recording.Device != "usb-mic" || cfg.Recording.MaxDuration != 2*time.Minute {
		t.Errorf("Recording = %+v", cfg.Recording)
	}
	if cfg.Recording.SampleRate != 16000 {
		t.Errorf("unset keys should keep defaults, SampleRate = %d", cfg.Recording.SampleRate)
	}
	if cfg.VAD.MinDuration != 500*time.Millisecond || cfg.VAD.Chunk != 20*time.Second {
		t.Errorf("VAD = %+v", cfg.VAD)
	}
	if cfg.Transcription.Timeout != 45*time.Second || cfg.Language() != "it" {
		t.Errorf("Transcription = %+v", cfg.Transcription)
	}
	if cfg.Gemini.APIKey != "file-key" || cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini = %+v", cfg.Gemini)
	}
	if len(cfg.Injection.Backends) != 1 || cfg.Injection.Backends[0] != "ydotool" {
		t.Errorf("Backends = %v", cfg.Injection.Backends)
	}
	cfg.Recording.Backend = recording.BackendPipeWire
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFrom_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "[recording\nsample_rate = ")

	_, err := LoadFrom(path, env(nil))
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("LoadFrom() error = %v, want *Error", err)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[transcription]
provider = "openai"

[openai]
api_key = "from-file"
`)

	cfg, err := LoadFrom(path, env(map[string]string{
		"UTTERTYPE_PROVIDER":         "MLX",
		"OPENAI_API_KEY":             "from-env",
		"OPENAI_BASE_URL":            "http://localhost:9000/v1",
		"OPENAI_MODEL_NAME":          "whisper-large",
		"MLX_MODEL_NAME":             "large-v3",
		"HF_TOKEN":                   "hf_abc",
		"GEMINI_USE_VERTEX":          "Yes",
		"GEMINI_PROJECT_ID":          "proj",
		"GEMINI_LOCATION":            "europe-west4",
		"UTTERTYPE_RECORD_HOTKEYS":   "<ctrl>+<shift>+space",
		"UTTERTYPE_MIN_RECORDING_MS": "800",
		"UTTERTYPE_TRIGGER_MODE":     "toggle",
		"UTTERTYPE_INJECTION_MODE":   "clipboard",
		"UTTERTYPE_LANGUAGE":         "de",
		"UTTERTYPE_LOG_LEVEL":        "debug",
		"GEMINI_API_KEY":             "",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"provider", cfg.Transcription.Provider, "mlx"},
		{"openai key", cfg.OpenAI.APIKey, "from-env"},
		{"openai url", cfg.OpenAI.BaseURL, "http://localhost:9000/v1"},
		{"openai model", cfg.OpenAI.Model, "whisper-large"},
		{"mlx model", cfg.MLX.Model, "large-v3"},
		{"hf token", cfg.MLX.HFToken, "hf_abc"},
		{"gemini project", cfg.Gemini.Project, "proj"},
		{"gemini location", cfg.Gemini.Location, "europe-west4"},
		{"hotkey", cfg.Hotkey.Record, "<ctrl>+<shift>+space"},
		{"mode", cfg.Hotkey.Mode, "toggle"},
		{"injection", cfg.Injection.Mode, "clipboard"},
		{"language", cfg.Transcription.Language, "de"},
		{"log level", cfg.Log.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if !cfg.Gemini.UseVertex {
		t.Error("GEMINI_USE_VERTEX=Yes should enable vertex")
	}
	if cfg.VAD.MinDuration != 800*time.Millisecond {
		t.Errorf("MinDuration = %v", cfg.VAD.MinDuration)
	}
}

func TestLoadFrom_BadMinRecording(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "none.toml"), env(map[string]string{
		"UTTERTYPE_MIN_RECORDING_MS": "soon",
	}))
	var ce *Error
	if !errors.As(err, &ce) || ce.Field != "UTTERTYPE_MIN_RECORDING_MS" {
		t.Fatalf("error = %v, want config error for UTTERTYPE_MIN_RECORDING_MS", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "UTTERTYPE_TEST_FROM_DOTENV=dotenv\nUTTERTYPE_TEST_PRESET=dotenv\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UTTERTYPE_TEST_PRESET", "process")
	t.Setenv("UTTERTYPE_TEST_FROM_DOTENV", "")
	os.Unsetenv("UTTERTYPE_TEST_FROM_DOTENV")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("UTTERTYPE_TEST_FROM_DOTENV"); got != "dotenv" {
		t.Errorf("from dotenv = %q", got)
	}
	if got := os.Getenv("UTTERTYPE_TEST_PRESET"); got != "process" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := createTestConfig()
	cfg.Hotkey.Mode = "toggle"
	cfg.VAD.Chunk = 15 * time.Second
	cfg.Injection.Backends = []string{"ydotool"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[hotkey]") {
		t.Errorf("saved file lacks [hotkey] section:\n%s", data)
	}

	loaded, err := LoadFrom(path, env(nil))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Hotkey.Mode != "toggle" || loaded.VAD.Chunk != 15*time.Second || loaded.OpenAI.APIKey != "test-api-key" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestConversionMethods(t *testing.T) {
	cfg := createTestConfig()
	cfg.Transcription.Language = "en_US"
	cfg.VAD.Chunk = 10 * time.Second

	if rc := cfg.ToRecordingConfig(); rc.FrameBytes() != 960 {
		t.Errorf("FrameBytes = %d, want 960", rc.FrameBytes())
	}
	if vc := cfg.ToVADConfig(); vc.FrameDuration != 30*time.Millisecond || vc.ChunkDuration != 10*time.Second {
		t.Errorf("VAD config = %+v", vc)
	}
	tc := cfg.ToTranscriberConfig()
	if tc.OpenAI.APIKey != "test-api-key" || tc.Retry.MaxAttempts != 3 || tc.MLX.Python != "python3" {
		t.Errorf("transcriber config = %+v", tc)
	}
	if ic := cfg.ToInjectionConfig(); ic.Mode != "paste" || !ic.RestoreClipboard {
		t.Errorf("injection config = %+v", ic)
	}
	pc := cfg.ToPipelineConfig()
	if pc.MaxDuration != 5*time.Minute || pc.Language != "en" || pc.Format.SampleRate != 16000 {
		t.Errorf("pipeline config = %+v", pc)
	}
	if cfg.TriggerMode() != hotkey.ModeHold {
		t.Errorf("TriggerMode = %v", cfg.TriggerMode())
	}
}

func TestUseGlobalHotkeys(t *testing.T) {
	cfg := createTestConfig()

	cfg.Hotkey.Global = GlobalOn
	if !cfg.UseGlobalHotkeys() {
		t.Error("on should force global hotkeys")
	}
	cfg.Hotkey.Global = GlobalOff
	if cfg.UseGlobalHotkeys() {
		t.Error("off should disable global hotkeys")
	}

	cfg.Hotkey.Global = GlobalAuto
	t.Setenv("WAYLAND_DISPLAY", "wayland-1")
	t.Setenv("DISPLAY", "")
	if cfg.UseGlobalHotkeys() {
		t.Error("pure wayland session should not grab hotkeys in auto mode")
	}
	t.Setenv("DISPLAY", ":0")
	if !cfg.UseGlobalHotkeys() {
		t.Error("XWayland session should grab hotkeys in auto mode")
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"info\"\n")
	changed := make(chan struct{}, 10)
	w := NewWatcher(path, func() { changed <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.toml" || filepath.Base(filepath.Dir(path)) != "uttertype" {
		t.Errorf("unexpected path %s", path)
	}
}
