// Package inspector is the terminal UI for browsing the job queue:
// one tab per queue area, refreshed live from disk.
package inspector

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/keys"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/theme"
)

// refreshInterval is how often the view re-reads the queue directories.
const refreshInterval = 2 * time.Second

type tickMsg time.Time

// area indexes into the tab order.
type area int

const (
	areaPending area = iota
	areaInFlight
	areaResolved
	areaDeadLetter
)

var areaLabels = [...]string{"pending", "in-flight", "resolved", "dead-letter"}

// Model is the Bubble Tea model for the queue inspector.
type Model struct {
	store  *queue.Store
	keys   *keys.KeyMap
	help   help.Model
	table  table.Model
	area   area
	width  int
	height int
	err    error
}

// New creates an inspector over the given job store.
func New(store *queue.Store) Model {
	t := table.New(
		table.WithFocused(true),
		table.WithHeight(20),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Bold(true).
		Foreground(theme.ColorWhite).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorBlue).
		Bold(true)
	t.SetStyles(styles)

	m := Model{
		store: store,
		keys:  keys.DefaultKeyMap(),
		help:  help.New(),
		table: t,
	}
	m.refresh()
	return m
}

// Init schedules the first periodic refresh.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses, resizes and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetHeight(msg.Height - 5)
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.NextArea):
			m.area = (m.area + 1) % area(len(areaLabels))
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.PrevArea):
			m.area = (m.area + area(len(areaLabels)) - 1) % area(len(areaLabels))
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh re-reads the active area from disk into the table.
func (m *Model) refresh() {
	m.err = nil

	switch m.area {
	case areaPending, areaInFlight:
		dir := queue.DirPending
		if m.area == areaInFlight {
			dir = queue.DirInFlight
		}
		jobs, err := m.store.ListJobs(dir)
		if err != nil {
			m.err = err
			return
		}
		rows := make([]table.Row, len(jobs))
		for i, job := range jobs {
			rows[i] = table.Row{
				shortID(job.ID),
				job.Payload.Subject,
				strings.Join(job.Payload.To, ", "),
				job.CreatedAt.Local().Format("15:04:05"),
			}
		}
		m.table.SetColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Subject", Width: 36},
			{Title: "To", Width: 30},
			{Title: "Created", Width: 10},
		})
		m.table.SetRows(rows)

	case areaResolved:
		resolutions, err := m.store.ListResolutions()
		if err != nil {
			m.err = err
			return
		}
		rows := make([]table.Row, len(resolutions))
		for i, res := range resolutions {
			outcome := "sent"
			detail := res.MessageID
			if !res.Success {
				outcome = "failed"
				detail = res.Error
			}
			rows[i] = table.Row{
				shortID(res.ID),
				theme.OutcomeStyle(outcome).Render(outcome),
				detail,
				res.ResolvedAt.Local().Format("15:04:05"),
			}
		}
		m.table.SetColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Outcome", Width: 10},
			{Title: "Detail", Width: 46},
			{Title: "Resolved", Width: 10},
		})
		m.table.SetRows(rows)

	case areaDeadLetter:
		names, err := m.store.ListDeadLetter()
		if err != nil {
			m.err = err
			return
		}
		rows := make([]table.Row, len(names))
		for i, name := range names {
			rows[i] = table.Row{name}
		}
		m.table.SetColumns([]table.Column{
			{Title: "File", Width: 76},
		})
		m.table.SetRows(rows)
	}
}

// View renders header, area tabs, the table and the help bar.
func (m Model) View() string {
	header := theme.HeaderStyle.Render("massmailer queue") +
		theme.HelpStyle.Render("  "+m.store.Root())

	tabs := make([]string, len(areaLabels))
	for i, label := range areaLabels {
		style := theme.TabStyle
		if area(i) == m.area {
			style = theme.ActiveTabStyle
		}
		tabs[i] = style.Render(label)
	}

	content := theme.BorderStyle.Render(m.table.View())
	if m.err != nil {
		content = theme.OutcomeStyle("failed").Render(fmt.Sprintf("error: %v", m.err))
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		content,
		m.help.View(m.keys),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
