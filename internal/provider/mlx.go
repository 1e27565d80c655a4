package provider

import (
	"github.com/uttertype/uttertype/internal/models/mlx"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// MLXProvider runs Whisper locally on Apple silicon.
type MLXProvider struct{}

func (p *MLXProvider) Name() string   { return transcriber.ProviderMLX }
func (p *MLXProvider) Label() string  { return "MLX Whisper (local)" }
func (p *MLXProvider) EnvVar() string { return "" }
func (p *MLXProvider) IsLocal() bool  { return true }

func (p *MLXProvider) RequiresAPIKey() bool           { return false }
func (p *MLXProvider) ValidateAPIKey(key string) bool { return true }

func (p *MLXProvider) Models() []Model {
	infos := mlx.ListModels()
	out := make([]Model, 0, len(infos))
	for _, info := range infos {
		m := Model{
			ID:      info.ID,
			Name:    info.Name,
			Local:   true,
			Size:    info.Size,
			DocsURL: "https://huggingface.co/" + info.Repo,
		}
		if !info.Multilingual {
			m.SupportedLanguages = englishOnly
		}
		out = append(out, m)
	}
	return out
}

func (p *MLXProvider) DefaultModel() string { return mlx.DefaultModel }
