// Package tui is the interactive configuration wizard.
package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"

	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/provider"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

type section string

const (
	sectionHotkey        section = "hotkey"
	sectionTranscription section = "transcription"
	sectionLanguage      section = "language"
	sectionInjection     section = "injection"
	sectionNotifications section = "notifications"
	sectionSave          section = "save"
	sectionDiscard       section = "discard"
)

// Run edits a copy of cfg through menus until the user saves or
// discards. The returned config has been validated.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	work := *cfg
	work.Injection.Backends = append([]string(nil), cfg.Injection.Backends...)

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println(StyleBox.Render(strings.Join(Summary(&work), "\n")))
		fmt.Println()

		s, err := selectSection()
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch s {
		case sectionSave:
			if err := work.Validate(); err != nil {
				fmt.Println(StyleError.Render(err.Error()))
				if !confirm("Keep editing?") {
					return &ConfigureResult{Cancelled: true}, nil
				}
				continue
			}
			return &ConfigureResult{Config: &work}, nil
		case sectionDiscard:
			return &ConfigureResult{Cancelled: true}, nil
		case sectionHotkey:
			err = editHotkey(&work)
		case sectionTranscription:
			err = editTranscription(&work)
		case sectionLanguage:
			err = editLanguage(&work)
		case sectionInjection:
			err = editInjection(&work)
		case sectionNotifications:
			err = editNotifications(&work)
		}
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return nil, err
		}
	}
}

func selectSection() (section, error) {
	var selected section
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[section]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(
					huh.NewOption("Hotkey", sectionHotkey),
					huh.NewOption("Transcription", sectionTranscription),
					huh.NewOption("Language", sectionLanguage),
					huh.NewOption("Text insertion", sectionInjection),
					huh.NewOption("Notifications", sectionNotifications),
					huh.NewOption("Save & Exit", sectionSave),
					huh.NewOption("Discard & Exit", sectionDiscard),
				).
				Value(&selected),
		),
	).WithTheme(theme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editHotkey(cfg *config.Config) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Record hotkey").
				Description("e.g. <ctrl>+<alt>+v or <f9>").
				Validate(validateHotkey).
				Value(&cfg.Hotkey.Record),
			huh.NewInput().
				Title("Cancel hotkey").
				Description("Leave empty to disable").
				Validate(validateHotkey).
				Value(&cfg.Hotkey.Cancel),
			huh.NewSelect[string]().
				Title("Trigger").
				Options(modeOptions()...).
				Value(&cfg.Hotkey.Mode),
		),
	).WithTheme(theme()).Run()
}

func editTranscription(cfg *config.Config) error {
	name := cfg.Transcription.Provider
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(providerOptions()...).
				Value(&name),
		),
	).WithTheme(theme()).Run()
	if err != nil {
		return err
	}
	cfg.Transcription.Provider = name

	p := provider.GetProvider(name)
	model := cfg.Model()
	if provider.FindModel(name, model) == nil {
		model = p.DefaultModel()
	}
	fields := []huh.Field{
		huh.NewSelect[string]().
			Title("Model").
			Options(modelOptions(name, cfg.Language())...).
			Value(&model),
	}
	if key := apiKey(cfg); key != nil {
		fields = append(fields, huh.NewInput().
			Title(p.Label()+" API key").
			Description("Leave empty to read "+p.EnvVar()).
			EchoMode(huh.EchoModePassword).
			Validate(validateKey(name)).
			Value(key))
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).WithTheme(theme()).Run(); err != nil {
		return err
	}
	setModel(cfg, model)
	return nil
}

func editLanguage(cfg *config.Config) error {
	lang := cfg.Language()
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language").
				Description("Hint passed to the transcription model").
				Options(languageOptions()...).
				Filtering(true).
				Value(&lang),
		),
	).WithTheme(theme()).Run()
	if err != nil {
		return err
	}

	if m := provider.FindModel(cfg.Transcription.Provider, cfg.Model()); m != nil && !m.SupportsLanguage(lang) {
		fmt.Println(StyleWarning.Render(fmt.Sprintf("%s does not support this language.", m.Name)))
		if !confirm("Use auto-detect instead?") {
			return nil
		}
		lang = ""
	}
	cfg.Transcription.Language = lang
	return nil
}

func editInjection(cfg *config.Config) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How should text be inserted?").
				Options(injectionOptions()...).
				Value(&cfg.Injection.Mode),
			huh.NewConfirm().
				Title("Restore the clipboard after pasting?").
				Value(&cfg.Injection.RestoreClipboard),
		),
	).WithTheme(theme()).Run()
}

func editNotifications(cfg *config.Config) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notifications").
				Options(notificationOptions()...).
				Value(&cfg.Notifications.Type),
		),
	).WithTheme(theme()).Run()
}

func confirm(title string) bool {
	ok := true
	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(title).Value(&ok))).WithTheme(theme())
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}
