package provider

import (
	"strings"

	"github.com/uttertype/uttertype/internal/transcriber"
)

// OpenAIProvider is the OpenAI transcription API and compatible servers.
type OpenAIProvider struct{}

func (p *OpenAIProvider) Name() string   { return transcriber.ProviderOpenAI }
func (p *OpenAIProvider) Label() string  { return "OpenAI" }
func (p *OpenAIProvider) EnvVar() string { return "OPENAI_API_KEY" }
func (p *OpenAIProvider) IsLocal() bool  { return false }

func (p *OpenAIProvider) RequiresAPIKey() bool { return true }

func (p *OpenAIProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "sk-")
}

const openAIDocs = "https://platform.openai.com/docs/guides/speech-to-text"

func (p *OpenAIProvider) Models() []Model {
	return []Model{
		{
			ID:          "whisper-1",
			Name:        "Whisper 1",
			Description: "OpenAI's production speech-to-text model",
			DocsURL:     openAIDocs,
		},
		{
			ID:          "gpt-4o-transcribe",
			Name:        "GPT-4o Transcribe",
			Description: "Higher accuracy, slower",
			DocsURL:     openAIDocs,
		},
		{
			ID:          "gpt-4o-mini-transcribe",
			Name:        "GPT-4o Mini Transcribe",
			Description: "Fast and affordable",
			DocsURL:     openAIDocs,
		},
	}
}

func (p *OpenAIProvider) DefaultModel() string { return transcriber.DefaultOpenAIModel }
