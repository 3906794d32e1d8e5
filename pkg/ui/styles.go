package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).MarginLeft(2)
	focusedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	blurredStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	gameInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("140")).MarginTop(1)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Margin(1, 0)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	turnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// Card faces render on a white background like real felt-table decks.
var (
	cardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	redCardStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("196")).
			Padding(0, 1).
			Margin(0, 1).
			Border(lipgloss.RoundedBorder())

	potStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("22")).
			Foreground(lipgloss.Color("46")).
			Padding(0, 2).
			Margin(1, 0).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("46")).
			Bold(true)
)
