package tui

import "github.com/charmbracelet/lipgloss"

// Theme groups the styles used by the views
type Theme struct {
	TitleStyle        lipgloss.Style
	BorderStyle       lipgloss.Style
	DetailBorderStyle lipgloss.Style
	DetailStyle       lipgloss.Style
	SelectedItemStyle lipgloss.Style
	DirectoryStyle    lipgloss.Style
	FileStyle         lipgloss.Style
	NormalItemStyle   lipgloss.Style
	StatusBarStyle    lipgloss.Style
	ErrorStyle        lipgloss.Style
	CommandStyle      lipgloss.Style
	HelpStyle         lipgloss.Style
	AddedStyle        lipgloss.Style
}

func DefaultTheme() *Theme {
	accent := lipgloss.Color("63")
	subtle := lipgloss.Color("241")

	return &Theme{
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(accent).
			Padding(0, 1),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		DetailBorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),
		DetailStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		SelectedItemStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("57")),
		DirectoryStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		FileStyle:         lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		NormalItemStyle:   lipgloss.NewStyle().Foreground(subtle),
		StatusBarStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1),
		ErrorStyle:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		CommandStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("229")),
		HelpStyle:         lipgloss.NewStyle().Foreground(subtle),
		AddedStyle:        lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
}
