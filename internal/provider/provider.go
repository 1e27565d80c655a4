// Package provider is the catalog of transcription providers and their
// models, used by the configuration wizard, validation and the CLI.
package provider

import "strings"

// Provider describes one transcription service.
type Provider interface {
	Name() string
	Label() string
	// EnvVar is the variable holding the API key, or "" when none is used.
	EnvVar() string
	RequiresAPIKey() bool
	ValidateAPIKey(key string) bool
	IsLocal() bool
	Models() []Model
	DefaultModel() string
}

var (
	registry = make(map[string]Provider)
	order    []string
)

func init() {
	Register(&OpenAIProvider{})
	Register(&GoogleProvider{})
	Register(&MLXProvider{})
}

// Register adds a provider to the registry
func Register(p Provider) {
	if _, ok := registry[p.Name()]; !ok {
		order = append(order, p.Name())
	}
	registry[p.Name()] = p
}

// GetProvider returns a provider by name, or nil if not found
func GetProvider(name string) Provider {
	return registry[strings.ToLower(name)]
}

// ListProviders returns provider names in registration order.
func ListProviders() []string {
	return append([]string(nil), order...)
}

// FindModel looks up a model of the named provider. Unknown providers
// and models return nil.
func FindModel(providerName, modelID string) *Model {
	p := GetProvider(providerName)
	if p == nil {
		return nil
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			return &m
		}
	}
	return nil
}

// ModelsForLanguage returns the models of p that accept code.
func ModelsForLanguage(p Provider, code string) []Model {
	var out []Model
	for _, m := range p.Models() {
		if m.SupportsLanguage(code) {
			out = append(out, m)
		}
	}
	return out
}
