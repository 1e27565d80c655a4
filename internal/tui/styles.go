package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 2)
)

const logoASCII = `
       _   _            _
 _   _| |_| |_ ___ _ __| |_ _   _ _ __   ___
| | | | __| __/ _ \ '__| __| | | | '_ \ / _ \
| |_| | |_| ||  __/ |  | |_| |_| | |_) |  __/
 \__,_|\__|\__\___|_|   \__|\__, | .__/ \___|
                            |___/|_|`

func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}

// Check renders one doctor line: a mark, the name and a detail.
func Check(ok, optional bool, name, detail string) string {
	mark := StyleSuccess.Render("✓")
	switch {
	case !ok && optional:
		mark = StyleWarning.Render("!")
	case !ok:
		mark = StyleError.Render("✗")
	}
	return mark + " " + StyleLabel.Render(name) + " " + StyleMuted.Render(detail)
}
