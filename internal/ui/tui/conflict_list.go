// Package tui provides interactive terminal UI components using BubbleTea.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kettleworks/storysync/internal/sync"
)

// ErrCancelled is returned when the user quits without applying
// resolutions.
var ErrCancelled = errors.New("conflict resolution cancelled")

// ConflictAction represents the outcome of the conflict picker.
type ConflictAction int

const (
	// ConflictActionNone means no action was taken (user quit).
	ConflictActionNone ConflictAction = iota
	// ConflictActionApply means the user resolved every conflict and
	// wants the round to continue.
	ConflictActionApply
	// ConflictActionCancel means the user cancelled the round.
	ConflictActionCancel
)

// ConflictListResult contains the result of the interaction.
type ConflictListResult struct {
	Action      ConflictAction
	Resolutions map[string]sync.Resolution
}

// conflictKeyMap defines the key bindings for conflict resolution.
type conflictKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Local   key.Binding
	Remote  key.Binding
	Newest  key.Binding
	Skip    key.Binding
	Confirm key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultConflictKeyMap() conflictKeyMap {
	return conflictKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Local: key.NewBinding(
			key.WithKeys("l", "1"),
			key.WithHelp("l/1", "keep this device"),
		),
		Remote: key.NewBinding(
			key.WithKeys("r", "2"),
			key.WithHelp("r/2", "keep remote"),
		),
		Newest: key.NewBinding(
			key.WithKeys("n", "3"),
			key.WithHelp("n/3", "keep newest"),
		),
		Skip: key.NewBinding(
			key.WithKeys("x", "4"),
			key.WithHelp("x/4", "skip"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "apply resolutions"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "cancel"),
		),
	}
}

// Styles for the conflict picker.
var conflictStyles = struct {
	Title    lipgloss.Style
	Help     lipgloss.Style
	Status   lipgloss.Style
	Info     lipgloss.Style
	Resolved lipgloss.Style
	Confirm  lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Info:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	Resolved: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Confirm:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(0, 1),
}

// ConflictListModel is the BubbleTea model for conflict resolution.
type ConflictListModel struct {
	conflicts   []sync.Conflict
	resolutions map[string]sync.Resolution
	table       table.Model
	keys        conflictKeyMap
	result      ConflictListResult
	showHelp    bool
	confirmMode bool
	quitting    bool
}

const sideTimeFormat = "Jan 2 15:04"

func sideLabel(s sync.ConflictSide) string {
	name := s.DeviceName
	if name == "" {
		name = s.DeviceID
	}
	return fmt.Sprintf("%s @ %s", name, s.UpdatedAt.Local().Format(sideTimeFormat))
}

// NewConflictListModel creates a new conflict resolution model.
func NewConflictListModel(conflicts []sync.Conflict) ConflictListModel {
	columns := []table.Column{
		{Title: "Status", Width: 6},
		{Title: "Item", Width: 24},
		{Title: "Type", Width: 10},
		{Title: "This Device", Width: 24},
		{Title: "Remote", Width: 24},
		{Title: "Resolution", Width: 10},
	}

	rows := make([]table.Row, len(conflicts))
	for i, c := range conflicts {
		rows[i] = buildConflictRow(c, "")
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return ConflictListModel{
		conflicts:   conflicts,
		resolutions: make(map[string]sync.Resolution),
		table:       t,
		keys:        defaultConflictKeyMap(),
	}
}

func buildConflictRow(c sync.Conflict, resolution string) table.Row {
	status := "○"
	resStr := "-"
	if resolution != "" {
		status = "✓"
		resStr = resolution
	}

	name := c.ItemName
	if name == "" {
		name = c.ItemID
	}

	return table.Row{
		status,
		name,
		string(c.Type),
		sideLabel(c.Local),
		sideLabel(c.Remote),
		resStr,
	}
}

// Init implements tea.Model.
func (m ConflictListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		newHeight := max(msg.Height-10, 5)
		m.table.SetHeight(newHeight)

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = ConflictListResult{
					Action:      ConflictActionApply,
					Resolutions: m.resolutions,
				}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
				return m, nil
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.result = ConflictListResult{Action: ConflictActionCancel}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Local):
			m.resolveCurrent(sync.ResolutionLocal)
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.resolveCurrent(sync.ResolutionRemote)
			return m, nil

		case key.Matches(msg, m.keys.Newest):
			if c, ok := m.current(); ok {
				m.resolveCurrent(c.Newest())
			}
			return m, nil

		case key.Matches(msg, m.keys.Skip):
			m.resolveCurrent(sync.ResolutionSkip)
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			if m.allResolved() {
				m.confirmMode = true
				return m, nil
			}
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ConflictListModel) current() (sync.Conflict, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.conflicts) {
		return sync.Conflict{}, false
	}
	return m.conflicts[idx], true
}

func (m *ConflictListModel) resolveCurrent(resolution sync.Resolution) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}

	c := m.conflicts[idx]
	m.resolutions[c.ItemID] = resolution

	rows := m.table.Rows()
	if idx < len(rows) {
		rows[idx] = buildConflictRow(c, string(resolution))
		m.table.SetRows(rows)
	}
}

func (m ConflictListModel) allResolved() bool {
	for _, c := range m.conflicts {
		if _, ok := m.resolutions[c.ItemID]; !ok {
			return false
		}
	}
	return len(m.conflicts) > 0
}

// View implements tea.Model.
func (m ConflictListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(conflictStyles.Title.Render("Resolve Sync Conflicts"))
	b.WriteString("\n\n")
	b.WriteString(conflictStyles.Info.Render("These items changed on two devices; pick a side for each"))
	b.WriteString("\n\n")

	if m.confirmMode {
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
		confirmMsg := fmt.Sprintf("Apply %d resolution(s)? (y/n)", len(m.resolutions))
		b.WriteString(conflictStyles.Confirm.Render(confirmMsg))
		return b.String()
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	resolved := len(m.resolutions)
	total := len(m.conflicts)
	status := fmt.Sprintf("%d/%d resolved", resolved, total)
	if resolved == total && total > 0 {
		status += " • Press y to apply"
	}
	b.WriteString(conflictStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}

	return b.String()
}

func (m ConflictListModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"l local",
		"r remote",
		"n newest",
		"x skip",
		"? help",
		"q cancel",
	}
	return conflictStyles.Help.Render(strings.Join(keys, " • "))
}

func (m ConflictListModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down

Resolution:
  l/1      Keep this device's version
  r/2      Keep the remote version
  n/3      Keep whichever is newest
  x/4      Skip this item for now

Actions:
  y        Apply all resolutions

General:
  ?        Toggle full help
  q/Esc    Cancel the sync round`
	return conflictStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m ConflictListModel) Result() ConflictListResult {
	return m.result
}

// RunConflictList runs the interactive picker and returns the result.
func RunConflictList(conflicts []sync.Conflict) (ConflictListResult, error) {
	if len(conflicts) == 0 {
		return ConflictListResult{Action: ConflictActionApply}, nil
	}

	mdl := NewConflictListModel(conflicts)
	finalModel, err := tea.NewProgram(mdl, tea.WithAltScreen()).Run()
	if err != nil {
		return ConflictListResult{}, err
	}

	if m, ok := finalModel.(ConflictListModel); ok {
		return m.Result(), nil
	}
	return ConflictListResult{}, nil
}

// Decider adapts the picker to the engine's decision boundary. The
// returned func blocks on the interactive session; cancelling aborts the
// round with ErrCancelled.
func Decider() sync.DecisionFunc {
	return func(conflicts []sync.Conflict) (map[string]sync.Resolution, error) {
		res, err := RunConflictList(conflicts)
		if err != nil {
			return nil, err
		}
		if res.Action != ConflictActionApply {
			return nil, ErrCancelled
		}
		return res.Resolutions, nil
	}
}
