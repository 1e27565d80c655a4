package provider

import (
	"slices"

	"github.com/uttertype/uttertype/internal/language"
)

// Model is one transcription model offered by a provider.
type Model struct {
	ID          string
	Name        string
	Description string
	Local       bool
	// Size is the download size of local models, e.g. "790MB".
	Size string
	// SupportedLanguages lists accepted codes. Nil means every language
	// in the language package.
	SupportedLanguages []string
	DocsURL            string
}

// NeedsDownload reports whether the model must be fetched before use.
func (m *Model) NeedsDownload() bool {
	return m.Local
}

// SupportsLanguage reports whether the model accepts code. Auto-detect
// (empty string) is always supported.
func (m *Model) SupportsLanguage(code string) bool {
	if code == "" {
		return true
	}
	if m.SupportedLanguages == nil {
		return language.Lookup(code).Code == code
	}
	return slices.Contains(m.SupportedLanguages, code)
}

var englishOnly = []string{"en"}
