package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tanq16/hlsget/internal/types"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))  // dark green
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))   // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // light grey
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"pause":   "‖",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
	"dot":     "·",
	"hline":   "━",
}

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func FSuccess(text string) string {
	return successStyle.Render(text)
}
func FError(text string) string {
	return errorStyle.Render(text)
}
func FDebug(text string) string {
	return debugStyle.Render(text)
}

// StatusIndicator is the coloured symbol shown next to a job.
func StatusIndicator(status types.Status) string {
	switch status {
	case types.StatusSucceeded:
		return successStyle.Render(StyleSymbols["pass"])
	case types.StatusFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case types.StatusPausedByUser, types.StatusPausedNoNetwork:
		return warningStyle.Render(StyleSymbols["pause"])
	case types.StatusInProgress:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

// FStatus renders a status name in the colour of its indicator.
func FStatus(status types.Status) string {
	switch status {
	case types.StatusSucceeded:
		return successStyle.Render(status.String())
	case types.StatusFailed:
		return errorStyle.Render(status.String())
	case types.StatusPausedByUser, types.StatusPausedNoNetwork:
		return warningStyle.Render(status.String())
	case types.StatusInProgress:
		return pendingStyle.Render(status.String())
	default:
		return infoStyle.Render(status.String())
	}
}
