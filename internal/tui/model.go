package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jayteealao/gitup/internal/state"
)

// View represents the current view.
type View int

const (
	ViewList View = iota
	ViewDetail
)

// runLimit caps how many runs the browser lists.
const runLimit = 100

// HistoryStore is the part of the state store the browser reads.
type HistoryStore interface {
	ListRuns(ctx context.Context, limit int) ([]*state.Run, error)
	ListRunOutcomes(ctx context.Context, runID string) ([]state.OutcomeRecord, error)
}

// RunInfo holds a run and, once loaded, its outcomes.
type RunInfo struct {
	Run      *state.Run
	Outcomes []state.OutcomeRecord
	Error    error
}

// Model is the Bubble Tea model for the history browser.
type Model struct {
	ctx           context.Context
	cancel        context.CancelFunc
	store         HistoryStore
	runs          []*state.Run
	detail        *RunInfo
	table         table.Model
	currentView   View
	selectedIndex int
	width         int
	height        int
	refreshTicker time.Duration
	lastRefresh   time.Time
	err           error
	quitting      bool
}

// KeyMap defines the keybindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "outcomes"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Messages
type tickMsg time.Time
type refreshMsg []*state.Run
type detailMsg RunInfo
type errMsg struct{ err error }

// NewModel creates a new history browser model.
func NewModel(ctx context.Context, store HistoryStore, refreshInterval time.Duration) Model {
	ctx, cancel := context.WithCancel(ctx)

	columns := []table.Column{
		{Title: "RUN", Width: 10},
		{Title: "STARTED", Width: 20},
		{Title: "STATUS", Width: 14},
		{Title: "REPOS", Width: 8},
		{Title: "FAILED", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("15")).
		Background(ColorPrimary).
		Bold(false)
	t.SetStyles(s)

	return Model{
		ctx:           ctx,
		cancel:        cancel,
		store:         store,
		table:         t,
		currentView:   ViewList,
		refreshTicker: refreshInterval,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadRuns(),
		m.tick(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Refresh):
			return m, m.loadRuns()

		case key.Matches(msg, keys.Enter):
			if m.currentView == ViewList && len(m.runs) > 0 {
				m.selectedIndex = m.table.Cursor()
				m.currentView = ViewDetail
				m.detail = &RunInfo{Run: m.runs[m.selectedIndex]}
				return m, m.loadOutcomes(m.runs[m.selectedIndex])
			}
			return m, nil

		case key.Matches(msg, keys.Back):
			if m.currentView == ViewDetail {
				m.currentView = ViewList
				m.detail = nil
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 4)
		m.table.SetHeight(msg.Height - 10)

	case tickMsg:
		return m, tea.Batch(m.loadRuns(), m.tick())

	case refreshMsg:
		m.runs = msg
		m.lastRefresh = time.Now()
		m.updateTable()
		return m, nil

	case detailMsg:
		info := RunInfo(msg)
		if m.detail != nil && m.detail.Run.ID == info.Run.ID {
			m.detail = &info
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	if m.currentView == ViewList {
		m.table, cmd = m.table.Update(msg)
	}

	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.currentView {
	case ViewDetail:
		return m.detailView()
	default:
		return m.listView()
	}
}

func (m *Model) listView() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("gitup history"))
	b.WriteString("\n\n")

	if len(m.runs) == 0 {
		b.WriteString(StatusInactive.Render("  No runs recorded yet."))
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
	}

	b.WriteString(HelpStyle.Render(fmt.Sprintf(
		"[↑↓] Navigate  [Enter] Outcomes  [r] Refresh  [q] Quit  |  Last refresh: %s",
		m.lastRefresh.Format("15:04:05"),
	)))

	return b.String()
}

func (m *Model) detailView() string {
	if m.detail == nil {
		return "No run selected"
	}

	run := m.detail.Run
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Run: %s", shortID(run.ID))))
	b.WriteString("\n\n")

	b.WriteString(LabelStyle.Render("Started:") + ValueStyle.Render(run.StartedAt.Local().Format("2006-01-02 15:04:05")) + "\n")
	if run.FinishedAt != nil {
		b.WriteString(LabelStyle.Render("Duration:") + ValueStyle.Render(run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()) + "\n")
	}
	b.WriteString(LabelStyle.Render("Status:") + GetRunStatusStyle(run.Status).Render(run.Status) + "\n")
	b.WriteString(LabelStyle.Render("Options:") + ValueStyle.Render(runOptions(run)) + "\n")
	b.WriteString("\n")

	switch {
	case m.detail.Error != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.detail.Error)))
		b.WriteString("\n")
	case m.detail.Outcomes == nil:
		b.WriteString(StatusInactive.Render("Loading outcomes..."))
		b.WriteString("\n")
	default:
		b.WriteString(LabelStyle.Render("Outcomes:") + "\n")
		for _, o := range m.detail.Outcomes {
			kind := kindOf(o.Kind)
			style := GetKindStyle(kind)
			line := fmt.Sprintf("  %s %s %s",
				style.Render(GetKindIcon(kind)),
				ValueStyle.Render(o.Path),
				style.Render(kind.Description()),
			)
			if o.Detail != "" {
				line += fmt.Sprintf(" (%s)", o.Detail)
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString(HelpStyle.Render("[Esc] Back  [q] Quit"))

	return b.String()
}

func (m *Model) updateTable() {
	rows := make([]table.Row, len(m.runs))
	for i, run := range m.runs {
		rows[i] = table.Row{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			GetRunStatusIcon(run.Status) + " " + run.Status,
			fmt.Sprintf("%d", run.Total),
			fmt.Sprintf("%d", run.Failed),
		}
	}
	m.table.SetRows(rows)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refreshTicker, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.store.ListRuns(m.ctx, runLimit)
		if err != nil {
			return errMsg{err}
		}
		return refreshMsg(runs)
	}
}

func (m Model) loadOutcomes(run *state.Run) tea.Cmd {
	return func() tea.Msg {
		outcomes, err := m.store.ListRunOutcomes(m.ctx, run.ID)
		if outcomes == nil && err == nil {
			outcomes = []state.OutcomeRecord{}
		}
		return detailMsg{Run: run, Outcomes: outcomes, Error: err}
	}
}

// shortID returns the leading part of a run ID, enough to pass to `gitup history`.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runOptions(run *state.Run) string {
	var opts []string
	if run.CurrentOnly {
		opts = append(opts, "current remote only")
	}
	if run.ForceRebase {
		opts = append(opts, "rebase")
	}
	if run.ForceMerge {
		opts = append(opts, "merge")
	}
	if len(opts) == 0 {
		return "defaults"
	}
	return strings.Join(opts, ", ")
}
