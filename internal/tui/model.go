package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/countrylookup/internal/country"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	termStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// SearchStartedMsg announces the search being run.
type SearchStartedMsg struct {
	Kind string // "capital", "name" or "region"
	Term string
}

// SearchDoneMsg carries the search result. An empty slice is a valid result.
type SearchDoneMsg struct {
	Countries []country.Country
	Elapsed   time.Duration
}

// SearchErrorMsg signals that the search could not run to completion.
type SearchErrorMsg struct {
	Err error
}

// Model is the Bubble Tea model for a single search: a spinner while the
// search runs, then the result table.
type Model struct {
	kind       string
	term       string
	spinner    spinner.Model
	results    []country.Country
	elapsed    time.Duration
	done       bool
	quit       bool // user quit before a result arrived
	aborting   bool
	err        error
	cancelFunc context.CancelFunc
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCancelFunc sets the function called when the user aborts with q or ctrl+c.
func WithCancelFunc(cancel context.CancelFunc) ModelOption {
	return func(m *Model) { m.cancelFunc = cancel }
}

// NewModel creates a Model for a search of the given kind and term.
func NewModel(kind, term string, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := Model{kind: kind, term: term, spinner: s}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SearchStartedMsg:
		m.kind = msg.Kind
		m.term = msg.Term
		return m, nil

	case SearchDoneMsg:
		m.done = true
		m.aborting = false
		m.results = msg.Countries
		m.elapsed = msg.Elapsed
		return m, tea.Quit

	case SearchErrorMsg:
		m.done = true
		m.aborting = false
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		if m.done {
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			// A second press, or no way to cancel, quits immediately.
			if m.cancelFunc == nil || m.aborting {
				m.done = true
				m.quit = true
				return m, tea.Quit
			}
			m.aborting = true
			m.cancelFunc()
			return m, nil
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner line while searching and the results once done.
func (m Model) View() string {
	var b strings.Builder

	switch {
	case m.err != nil:
		fmt.Fprintf(&b, "  %s %s\n", errorStyle.Render("✗"), m.label())
		fmt.Fprintf(&b, "\n  Error: %s\n", m.err)
	case m.quit:
		fmt.Fprintf(&b, "  %s %s\n", errorStyle.Render("✗"), m.label())
	case m.done:
		fmt.Fprintf(&b, "  ✓ %s %s\n\n", m.label(), emptyStyle.Render(fmt.Sprintf("%.1fs", m.elapsed.Seconds())))
		b.WriteString(FormatTable(m.results, true))
	case m.aborting:
		fmt.Fprintf(&b, "  %s %s (aborting...)\n", m.spinner.View(), m.label())
	default:
		fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), m.label())
	}

	return b.String()
}

func (m Model) label() string {
	return fmt.Sprintf("searching %s %s", m.kind, termStyle.Render(fmt.Sprintf("%q", m.term)))
}

// FormatTable renders countries as an aligned table, one country per line.
// Styled output bolds the header; plain output is safe for pipes and files.
func FormatTable(cs []country.Country, styled bool) string {
	if len(cs) == 0 {
		msg := "no countries found"
		if styled {
			msg = emptyStyle.Render(msg)
		}
		return "  " + msg + "\n"
	}

	header := []string{"CODE", "NAME", "CAPITAL", "REGION", "POPULATION"}
	rows := make([][]string, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, []string{
			c.CCA3,
			c.Name.Common,
			c.CapitalList(),
			c.Region,
			fmt.Sprintf("%d", c.Population),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		var line strings.Builder
		line.WriteString(" ")
		for i, cell := range cells {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				cell = style.Render(cell)
			}
			line.WriteString(" " + cell + pad)
		}
		b.WriteString(strings.TrimRight(line.String(), " ") + "\n")
	}

	if styled {
		writeRow(header, &headerStyle)
	} else {
		writeRow(header, nil)
	}
	for _, r := range rows {
		writeRow(r, nil)
	}
	return b.String()
}
