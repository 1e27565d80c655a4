package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/uttertype/uttertype/internal/pipeline"
)

var (
	colTime  = lipgloss.NewStyle().Width(10)
	colAudio = lipgloss.NewStyle().Width(8).Align(lipgloss.Right).MarginRight(2)
	colCost  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right).MarginRight(2)
)

// TranscriptHeader labels the columns of TranscriptRow.
func TranscriptHeader() string {
	return StyleLabel.Render(colTime.Render("Time") + colAudio.Render("Audio") + colCost.Render("Cost") + "Transcript")
}

// TranscriptRow renders one dictation for the serve console. Line breaks
// in the text are flattened so each dictation stays on one row.
func TranscriptRow(t pipeline.Transcript) string {
	text := strings.Join(strings.Fields(t.Text), " ")
	return StyleMuted.Render(colTime.Render(t.At.Format("15:04:05"))) +
		colAudio.Render(fmt.Sprintf("%.1fs", t.Audio.Seconds())) +
		colCost.Render(fmt.Sprintf("$%.6f", t.Cost)) +
		text
}
