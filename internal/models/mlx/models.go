// Package mlx manages Whisper models converted for Apple's MLX framework.
// Models are fetched from Hugging Face on first use and kept in a local
// store, one directory per model.
package mlx

import (
	"os"
	"path/filepath"
	"strings"
)

// ModelInfo holds metadata for an MLX whisper model
type ModelInfo struct {
	ID           string   // model identifier (e.g., "distil-medium.en")
	Name         string   // display name
	Repo         string   // hugging face repository
	Files        []string // files needed to load the model
	Size         string   // human readable size
	SizeBytes    int64    // size in bytes for progress tracking
	Multilingual bool
}

var defaultFiles = []string{"config.json", "weights.npz"}

var models = []ModelInfo{
	{ID: "tiny", Name: "Tiny", Repo: "mlx-community/whisper-tiny-mlx", Files: defaultFiles, Size: "75MB", SizeBytes: 75_000_000, Multilingual: true},
	{ID: "base.en", Name: "Base English", Repo: "mlx-community/whisper-base.en-mlx", Files: defaultFiles, Size: "145MB", SizeBytes: 145_000_000},
	{ID: "small.en", Name: "Small English", Repo: "mlx-community/whisper-small.en-mlx", Files: defaultFiles, Size: "480MB", SizeBytes: 480_000_000},
	{ID: "medium.en", Name: "Medium English", Repo: "mlx-community/whisper-medium.en-mlx", Files: defaultFiles, Size: "1.5GB", SizeBytes: 1_500_000_000},
	{ID: "distil-medium.en", Name: "Distil Medium English", Repo: "mlx-community/distil-whisper-medium.en", Files: defaultFiles, Size: "790MB", SizeBytes: 790_000_000},
	{ID: "distil-large-v3", Name: "Distil Large V3", Repo: "mlx-community/distil-whisper-large-v3", Files: defaultFiles, Size: "1.5GB", SizeBytes: 1_500_000_000, Multilingual: true},
	{ID: "large-v3", Name: "Large V3", Repo: "mlx-community/whisper-large-v3-mlx", Files: defaultFiles, Size: "3GB", SizeBytes: 3_100_000_000, Multilingual: true},
	{ID: "large-v3-turbo", Name: "Large V3 Turbo", Repo: "mlx-community/whisper-large-v3-turbo", Files: []string{"config.json", "weights.safetensors"}, Size: "1.6GB", SizeBytes: 1_600_000_000, Multilingual: true},
}

const DefaultModel = "distil-medium.en"

var modelByID = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

// GetModel returns info for a model by ID. A Hugging Face repository path
// ("org/name") is accepted for models outside the catalog and assumed to
// ship the usual config.json and weights.npz. Returns nil otherwise.
func GetModel(modelID string) *ModelInfo {
	if info, ok := modelByID[modelID]; ok {
		return &info
	}
	if isRepoPath(modelID) {
		return &ModelInfo{ID: modelID, Name: modelID, Repo: modelID, Files: defaultFiles, Multilingual: true}
	}
	return nil
}

func isRepoPath(id string) bool {
	org, name, ok := strings.Cut(id, "/")
	return ok && org != "" && name != "" && !strings.Contains(name, "/") && !strings.Contains(id, "..")
}

// ListModels returns all catalog models
func ListModels() []ModelInfo {
	result := make([]ModelInfo, len(models))
	copy(result, models)
	return result
}

// DefaultModelsDir returns ~/.local/share/uttertype/models/mlx.
func DefaultModelsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "uttertype", "models", "mlx"), nil
}

// dirName flattens repo paths so each model gets one directory.
func dirName(modelID string) string {
	return strings.ReplaceAll(modelID, "/", "--")
}
