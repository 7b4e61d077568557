package styles

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha colors used by the boardrun views
var (
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	// Header styles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve).
			Background(Surface0).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Mauve).
				Border(lipgloss.NormalBorder(), false, false, true, false).
				BorderForeground(Surface1).
				PaddingBottom(1)

	// Stage styles
	StagePendingStyle = lipgloss.NewStyle().
				Foreground(Overlay0)

	StageActiveStyle = lipgloss.NewStyle().
				Foreground(Sky).
				Bold(true)

	StagePassedStyle = lipgloss.NewStyle().
				Foreground(Green).
				Bold(true)

	StageWarnStyle = lipgloss.NewStyle().
			Foreground(Yellow).
			Bold(true)

	StageFailedStyle = lipgloss.NewStyle().
				Foreground(Red).
				Bold(true)

	// Error styles
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Red)

	// Info styles
	InfoStyle = lipgloss.NewStyle().
			Foreground(Subtext0)

	HelpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Surface1).
			Padding(1, 2).
			Margin(1, 0)
)

type StatusType int

const (
	StatusPending StatusType = iota
	StatusActive
	StatusPassed
	StatusWarn
	StatusFailed
)

func GetStatusStyle(status StatusType) lipgloss.Style {
	switch status {
	case StatusPending:
		return StagePendingStyle
	case StatusActive:
		return StageActiveStyle
	case StatusPassed:
		return StagePassedStyle
	case StatusWarn:
		return StageWarnStyle
	case StatusFailed:
		return StageFailedStyle
	default:
		return StagePendingStyle
	}
}
