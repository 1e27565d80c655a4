package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/uttertype/uttertype/internal/logging"
)

const appDir = "uttertype"

// GetConfigPath returns ~/.config/uttertype/config.toml (or the platform
// equivalent). The file itself may not exist.
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, appDir, "config.toml"), nil
}

// EnvFiles lists the .env files read at startup, in priority order.
func EnvFiles() []string {
	files := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(configDir, appDir, ".env"))
	}
	return files
}

// LoadDotEnv reads the given .env files into the process environment.
// Variables already set are never overwritten. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &Error{Field: f, Err: fmt.Errorf("failed to read env file: %w", err)}
		}
	}
	return nil
}

// Load reads .env files, the config file and the environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(EnvFiles()...); err != nil {
		return nil, err
	}
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, os.LookupEnv)
}

// LoadFrom applies the file at path (if present) and then environment
// overrides from lookup on top of the defaults. It does not validate.
func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	log := logging.For("config")
	cfg := DefaultConfig()

	meta, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, &Error{Field: path, Err: fmt.Errorf("failed to parse config file: %w", err)}
	default:
		log.Info().Str("path", path).Msg("configuration loaded")
		for _, key := range meta.Undecoded() {
			log.Warn().Str("key", key.String()).Msg("unknown config key ignored")
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# uttertype configuration. Environment variables override these values.\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

type envString struct {
	name string
	dst  *string
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []envString{
		{"UTTERTYPE_PROVIDER", &c.Transcription.Provider},
		{"UTTERTYPE_LANGUAGE", &c.Transcription.Language},
		{"UTTERTYPE_RECORD_HOTKEYS", &c.Hotkey.Record},
		{"UTTERTYPE_TRIGGER_MODE", &c.Hotkey.Mode},
		{"UTTERTYPE_INJECTION_MODE", &c.Injection.Mode},
		{"UTTERTYPE_LOG_LEVEL", &c.Log.Level},
		{"OPENAI_API_KEY", &c.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &c.OpenAI.BaseURL},
		{"OPENAI_MODEL_NAME", &c.OpenAI.Model},
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"GEMINI_MODEL_NAME", &c.Gemini.Model},
		{"GEMINI_PROJECT_ID", &c.Gemini.Project},
		{"GEMINI_LOCATION", &c.Gemini.Location},
		{"MLX_MODEL_NAME", &c.MLX.Model},
		{"HF_TOKEN", &c.MLX.HFToken},
	}
	for _, e := range strs {
		if v, ok := lookup(e.name); ok && v != "" {
			*e.dst = strings.TrimSpace(v)
		}
	}
	c.Transcription.Provider = strings.ToLower(c.Transcription.Provider)

	if v, ok := lookup("GEMINI_USE_VERTEX"); ok && v != "" {
		c.Gemini.UseVertex = parseBool(v)
	}
	if v, ok := lookup("UTTERTYPE_MIN_RECORDING_MS"); ok && v != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms < 0 {
			return &Error{Field: "UTTERTYPE_MIN_RECORDING_MS", Err: fmt.Errorf("must be a non-negative integer, got %q", v)}
		}
		c.VAD.MinDuration = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "t":
		return true
	default:
		return false
	}
}
