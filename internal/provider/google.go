package provider

import (
	"strings"

	"github.com/uttertype/uttertype/internal/transcriber"
)

// GoogleProvider is Gemini, through the Gemini API or Vertex AI.
type GoogleProvider struct{}

func (p *GoogleProvider) Name() string   { return transcriber.ProviderGoogle }
func (p *GoogleProvider) Label() string  { return "Google Gemini" }
func (p *GoogleProvider) EnvVar() string { return "GEMINI_API_KEY" }
func (p *GoogleProvider) IsLocal() bool  { return false }

// RequiresAPIKey is true for the Gemini API. Vertex AI uses application
// default credentials instead.
func (p *GoogleProvider) RequiresAPIKey() bool { return true }

func (p *GoogleProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "AIza") && len(key) > 30
}

const geminiDocs = "https://ai.google.dev/gemini-api/docs/audio"

func (p *GoogleProvider) Models() []Model {
	return []Model{
		{
			ID:          "gemini-2.0-flash",
			Name:        "Gemini 2.0 Flash",
			Description: "Low latency multimodal model",
			DocsURL:     geminiDocs,
		},
		{
			ID:          "gemini-2.5-flash",
			Name:        "Gemini 2.5 Flash",
			Description: "Better accuracy on noisy audio",
			DocsURL:     geminiDocs,
		},
		{
			ID:          "gemini-2.5-pro",
			Name:        "Gemini 2.5 Pro",
			Description: "Most capable, highest latency",
			DocsURL:     geminiDocs,
		},
	}
}

func (p *GoogleProvider) DefaultModel() string { return transcriber.DefaultGeminiModel }
