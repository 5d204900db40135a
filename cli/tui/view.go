package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.mode == ModeHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// renderMain renders the result list view
func (m *Model) renderMain() string {
	sections := []string{
		m.renderTitle(),
		m.renderInput(),
		m.renderContent(),
		m.renderStatus(),
		m.renderHelpBar(),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderTitle renders the title bar with the running predicate
func (m *Model) renderTitle() string {
	title := "mdquery"
	if m.predicate != "" {
		title = fmt.Sprintf("mdquery - %s", m.predicate)
	}
	return m.theme.TitleStyle.Render(title)
}

// renderInput renders the predicate field
func (m *Model) renderInput() string {
	if m.mode == ModeInput {
		return m.theme.CommandStyle.Render("/ " + m.textInput.View())
	}
	return m.theme.HelpStyle.Render("/ " + m.predicate)
}

// renderContent renders the result list and details pane
func (m *Model) renderContent() string {
	list := m.renderResultList()

	if !m.showDetails {
		return m.theme.BorderStyle.
			Width(m.width - 4).
			Height(m.getVisibleLines() + 2).
			Render(list)
	}

	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth - 4 // Account for borders

	listBox := m.theme.BorderStyle.
		Width(leftWidth).
		Height(m.getVisibleLines() + 2).
		Render(list)

	detailBox := m.theme.DetailBorderStyle.
		Width(rightWidth).
		Height(m.getVisibleLines() + 2).
		Render(m.renderDetails())

	return lipgloss.JoinHorizontal(lipgloss.Top, listBox, detailBox)
}

// renderResultList renders the visible slice of results
func (m *Model) renderResultList() string {
	if m.results.Len() == 0 {
		if !m.gathered && m.predicate != "" {
			return m.theme.NormalItemStyle.Render("(searching)")
		}
		return m.theme.NormalItemStyle.Render("(no results)")
	}

	end := min(m.offset+m.getVisibleLines(), m.results.Len())

	lines := make([]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.renderEntry(m.results.At(i), i == m.cursor))
	}

	return strings.Join(lines, "\n")
}

// renderEntry renders a single result line
func (m *Model) renderEntry(entry *Entry, selected bool) string {
	var style lipgloss.Style
	switch {
	case selected:
		style = m.theme.SelectedItemStyle
	case entry.IsDir:
		style = m.theme.DirectoryStyle
	default:
		style = m.theme.FileStyle
	}

	nameWidth := 40
	if m.showDetails {
		nameWidth = 30
	}

	name := entry.DisplayName()
	if len(name) > nameWidth {
		name = name[:nameWidth-3] + "..."
	} else {
		name += strings.Repeat(" ", nameWidth-len(name))
	}

	return style.Render(fmt.Sprintf("%s %s %10s", entry.Icon(), name, entry.DisplaySize()))
}

// renderDetails renders the attributes of the selected result
func (m *Model) renderDetails() string {
	entry := m.currentEntry()
	if entry == nil {
		return m.theme.DetailStyle.Render("No item selected")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", entry.Name)
	fmt.Fprintf(&b, "Path: %s\n", entry.Path)
	fmt.Fprintf(&b, "Size: %s\n", entry.DisplaySize())
	if entry.ContentType != "" {
		fmt.Fprintf(&b, "Type: %s\n", entry.ContentType)
	}
	fmt.Fprintf(&b, "Modified: %s\n", entry.DisplayModTime())
	fmt.Fprintf(&b, "Created: %s\n", entry.CreateTime.Format("2006-01-02 15:04:05"))

	if len(entry.Attributes) > 0 {
		b.WriteString("\n--- Attributes ---\n")
		for _, name := range slices.Sorted(maps.Keys(entry.Attributes)) {
			fmt.Fprintf(&b, "%s: %s\n", name, entry.Attributes[name])
		}
	}

	return m.theme.DetailStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// renderStatus renders the status bar
func (m *Model) renderStatus() string {
	left := "0 items"
	if m.results.Len() > 0 {
		left = fmt.Sprintf("%d/%d items", m.cursor+1, m.results.Len())
	}
	if stats := m.adapter.Stats(); stats.UpdatesDispatched > 0 {
		left += fmt.Sprintf(" (%d updates)", stats.UpdatesDispatched)
	}

	right := m.statusMsg
	if m.errorMsg != "" {
		right = m.theme.ErrorStyle.Render(m.errorMsg)
	}

	spacing := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-4, 0)

	statusLine := left + strings.Repeat(" ", spacing) + right
	return m.theme.StatusBarStyle.Width(m.width).Render(statusLine)
}

// renderHelpBar renders the bottom help bar
func (m *Model) renderHelpBar() string {
	return m.theme.HelpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}

// renderHelp renders the full help screen
func (m *Model) renderHelp() string {
	sections := []string{
		m.theme.TitleStyle.Render("mdquery - Help"),
		"",
		m.theme.TitleStyle.Render("Navigation:"),
		m.help.FullHelpView(m.keys.FullHelp()),
		"",
		m.theme.TitleStyle.Render("Predicates:"),
		`  kMDItemFSName == "*.go"c                 name glob, case insensitive`,
		`  kMDItemFSSize > 1048576                  size in bytes`,
		`  kMDItemContentModificationDate >= $time.today(-7)`,
		`  * == "report"cdw                         any text attribute, word prefix`,
		"",
		"Results stay live: new matches are added and vanished items removed.",
		"",
		m.theme.HelpStyle.Render("Press ? or q to return"),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
