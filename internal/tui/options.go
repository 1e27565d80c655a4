package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/hotkey"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/language"
	"github.com/uttertype/uttertype/internal/notify"
	"github.com/uttertype/uttertype/internal/provider"
	"github.com/uttertype/uttertype/internal/transcriber"
)

func providerOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, name := range provider.ListProviders() {
		opts = append(opts, huh.NewOption(provider.GetProvider(name).Label(), name))
	}
	return opts
}

// modelOptions lists the models of a provider, flagging those that do not
// accept lang.
func modelOptions(providerName, lang string) []huh.Option[string] {
	p := provider.GetProvider(providerName)
	if p == nil {
		return nil
	}
	var opts []huh.Option[string]
	for _, m := range p.Models() {
		label := m.Name
		if m.Size != "" {
			label += " (" + m.Size + ")"
		}
		if !m.SupportsLanguage(lang) {
			label += " - no " + language.Lookup(lang).Name
		}
		opts = append(opts, huh.NewOption(label, m.ID))
	}
	return opts
}

func languageOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption(language.Auto.Name, "")}
	for _, l := range language.List() {
		label := l.Name
		if l.NativeName != "" && l.NativeName != l.Name {
			label = fmt.Sprintf("%s - %s", l.Name, l.NativeName)
		}
		opts = append(opts, huh.NewOption(label, l.Code))
	}
	return opts
}

func modeOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Hold to talk", string(hotkey.ModeHold)),
		huh.NewOption("Press to start, press to stop", string(hotkey.ModeToggle)),
	}
}

func injectionOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Paste (clipboard + Ctrl+V)", injection.ModePaste),
		huh.NewOption("Type (simulated keystrokes)", injection.ModeType),
		huh.NewOption("Clipboard only", injection.ModeClipboard),
	}
}

func notificationOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Desktop notifications", notify.TypeDesktop),
		huh.NewOption("Log only", notify.TypeLog),
		huh.NewOption("None", notify.TypeNone),
	}
}

// setModel stores id as the model of the selected provider.
func setModel(cfg *config.Config, id string) {
	switch cfg.Transcription.Provider {
	case transcriber.ProviderGoogle:
		cfg.Gemini.Model = id
	case transcriber.ProviderMLX:
		cfg.MLX.Model = id
	default:
		cfg.OpenAI.Model = id
	}
}

// apiKey returns a pointer to the key field of the selected provider, or
// nil when it needs none.
func apiKey(cfg *config.Config) *string {
	switch cfg.Transcription.Provider {
	case transcriber.ProviderOpenAI:
		return &cfg.OpenAI.APIKey
	case transcriber.ProviderGoogle:
		return &cfg.Gemini.APIKey
	}
	return nil
}

func validateKey(providerName string) func(string) error {
	return func(key string) error {
		p := provider.GetProvider(providerName)
		if key == "" || p == nil || p.ValidateAPIKey(key) {
			return nil
		}
		return fmt.Errorf("this does not look like a %s key", p.Label())
	}
}

func validateHotkey(s string) error {
	if s == "" {
		return nil
	}
	_, err := hotkey.Parse(s)
	return err
}

func maskKey(key string) string {
	if key == "" {
		return "(from environment)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}

// Summary renders cfg as label/value lines.
func Summary(cfg *config.Config) []string {
	lang := language.Label(cfg.Language())
	cancel := cfg.Hotkey.Cancel
	if cancel == "" {
		cancel = "(none)"
	}
	lines := [][2]string{
		{"Hotkey", fmt.Sprintf("%s (%s)", cfg.Hotkey.Record, cfg.Hotkey.Mode)},
		{"Cancel", cancel},
		{"Provider", fmt.Sprintf("%s / %s", cfg.Transcription.Provider, cfg.Model())},
		{"Language", lang},
		{"Injection", cfg.Injection.Mode},
		{"Notifications", cfg.Notifications.Type},
	}
	if k := apiKey(cfg); k != nil {
		lines = append(lines, [2]string{"API key", maskKey(*k)})
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, fmt.Sprintf("%-14s %s", l[0]+":", l[1]))
	}
	return out
}
