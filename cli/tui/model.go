package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Mode represents the current interaction mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeInput
	ModeHelp
)

// Model represents the state of the TUI application
type Model struct {
	// Core components
	adapter *SearchAdapter
	theme   *Theme
	keys    KeyMap
	help    help.Model

	// Search state
	predicate  string
	generation int
	gathered   bool
	results    Results
	cursor     int
	offset     int

	// View state
	width       int
	height      int
	showDetails bool

	// Mode state
	mode      Mode
	textInput textinput.Model

	// Status
	statusMsg string
	errorMsg  string
}

// NewModel creates a new TUI model, running predicate right away if set
func NewModel(adapter *SearchAdapter, predicate string) *Model {
	ti := textinput.New()
	ti.Placeholder = `kMDItemFSName == "*.go"c`
	ti.CharLimit = 1024
	ti.SetValue(predicate)

	m := &Model{
		adapter:     adapter,
		theme:       DefaultTheme(),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		predicate:   predicate,
		showDetails: true,
		textInput:   ti,
	}

	if predicate == "" {
		m.startInput()
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.adapter.Wait(), textinput.Blink}
	if m.predicate != "" {
		cmds = append(cmds, m.search(m.predicate))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case searchFailedMsg:
		if msg.generation == m.generation {
			m.errorMsg = msg.err.Error()
			m.statusMsg = ""
		}
		return m, nil

	case resultsMsg:
		if msg.generation == m.generation {
			m.results.Reset(msg.items)
			m.gathered = true
			m.clampCursor()
			m.statusMsg = fmt.Sprintf("Found %d items", len(msg.items))
		} else {
			DebugLog("Ignoring stale results (gen %d, current %d)", msg.generation, m.generation)
		}
		return m, m.adapter.Wait()

	case batchMsg:
		if msg.generation == m.generation {
			m.results.Apply(msg.batch)
			m.clampCursor()
			m.statusMsg = fmt.Sprintf("+%d ~%d -%d", len(msg.batch.Added), len(msg.batch.Changed), len(msg.batch.Removed))
		}
		return m, m.adapter.Wait()

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	// Handle text input updates when in input mode
	if m.mode == ModeInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKeyPress processes keyboard input based on current mode
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeInput:
		return m.handleInputMode(msg)
	case ModeHelp:
		return m.handleHelpMode(msg)
	default:
		return m.handleNormalMode(msg)
	}
}

// handleNormalMode processes keys while browsing results
func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.adapter.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.mode = ModeHelp
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-10)
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(10)
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
		m.offset = 0
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(m.results.Len())

	case key.Matches(msg, m.keys.Search):
		m.startInput()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.ToggleDetails):
		m.showDetails = !m.showDetails

	case key.Matches(msg, m.keys.Refresh):
		if m.predicate != "" {
			return m, m.search(m.predicate)
		}
	}

	return m, nil
}

// handleInputMode processes keys while editing the predicate
func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.adapter.Close()
		return m, tea.Quit

	case tea.KeyEscape:
		m.cancelInput()
		return m, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		m.cancelInput()
		if value == "" {
			return m, nil
		}
		return m, m.search(value)
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// handleHelpMode processes keys in help mode
func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Quit) || msg.Type == tea.KeyEscape {
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) startInput() {
	m.mode = ModeInput
	m.textInput.SetValue(m.predicate)
	m.textInput.CursorEnd()
	m.textInput.Focus()
	m.errorMsg = ""
}

func (m *Model) cancelInput() {
	m.mode = ModeNormal
	m.textInput.Blur()
}

// moveCursor moves the cursor by delta, handling bounds and scrolling
func (m *Model) moveCursor(delta int) {
	if m.results.Len() == 0 {
		return
	}

	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= m.results.Len() {
		m.cursor = m.results.Len() - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	visibleLines := m.getVisibleLines()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visibleLines {
		m.offset = m.cursor - visibleLines + 1
	}
}

// getVisibleLines returns how many results can be displayed
func (m *Model) getVisibleLines() int {
	// Reserve space for title, status bar, input, help, and padding
	reserved := 9
	available := m.height - reserved
	if available < 5 {
		return 5
	}
	return available
}

// currentEntry returns the currently selected entry
func (m *Model) currentEntry() *Entry {
	return m.results.At(m.cursor)
}

type searchFailedMsg struct {
	generation int
	err        error
}

// search replaces the running query with predicate
func (m *Model) search(predicate string) tea.Cmd {
	gen := m.adapter.Reserve()

	m.predicate = predicate
	m.generation = gen
	m.gathered = false
	m.results.Reset(nil)
	m.cursor = 0
	m.offset = 0
	m.errorMsg = ""
	m.statusMsg = "Searching..."

	return func() tea.Msg {
		if err := m.adapter.Search(gen, predicate); err != nil {
			DebugLog("Search gen=%d failed: %v", gen, err)
			return searchFailedMsg{generation: gen, err: err}
		}
		return nil
	}
}
