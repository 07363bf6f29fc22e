package ui

import "github.com/charmbracelet/lipgloss"

// Color palette matches the teacher's adaptive styling so the renderer
// reads sensibly in both light and dark terminals.
var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)

	helpStyle = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder())
)

func connectionStyle(kind string) lipgloss.Style {
	switch kind {
	case "subscribed":
		return passStyle
	case "connecting", "reconnecting", "disconnected":
		return warnStyle
	case "failed":
		return failStyle
	default:
		return mutedStyle
	}
}
