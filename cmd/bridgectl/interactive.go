package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/bridge"
	"github.com/wippyai/native-bridge/config"
	"github.com/wippyai/native-bridge/dispatch"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxEntries bounds the request history shown.
const maxEntries = 12

type requestState int

const (
	statePending requestState = iota
	stateDone
	stateFailed
	stateCancelled
)

type entry struct {
	method string
	last   string
	id     bridge.ID
	events int
	state  requestState
}

type consoleModel struct {
	err     error
	session *session
	inbox   *inbox
	backend config.Backend
	entries []*entry
	input   textinput.Model
}

func newConsoleModel(backend config.Backend) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = `client.ping {}`
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()
	return &consoleModel{backend: backend, input: ti}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskMsg:
		m.inbox.run(msg.task)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+x":
			m.cancelLatest()
			return m, nil

		case "enter":
			m.submit(m.input.Value())
			m.input.SetValue("")
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit parses "method [json]" and issues the request.
func (m *consoleModel) submit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	method, params, _ := strings.Cut(line, " ")
	params = strings.TrimSpace(params)
	if params != "" && !json.Valid([]byte(params)) {
		m.err = fmt.Errorf("params are not valid JSON")
		return
	}
	m.err = nil

	e := &entry{method: method}
	id, err := m.session.bridge.BeginRequest(m.session.handle, method, []byte(params), func(result, errorJSON []byte, finished bool) {
		switch {
		case len(errorJSON) > 0:
			e.last = string(errorJSON)
			e.state = stateFailed
		case finished:
			e.last = string(result)
			e.state = stateDone
		default:
			e.last = string(result)
			e.events++
		}
	})
	if err != nil {
		m.err = err
		return
	}
	e.id = id

	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *consoleModel) cancelLatest() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.state != statePending {
			continue
		}
		if m.session.bridge.Cancel(e.id) {
			e.state = stateCancelled
		}
		return
	}
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Native Bridge"))
	b.WriteString(" ")
	b.WriteString(string(m.backend))
	b.WriteString(fmt.Sprintf("  context %d  pending %d\n\n", m.session.handle, m.session.bridge.Pending()))

	for _, e := range m.entries {
		b.WriteString(fmt.Sprintf("#%-4d %s ", e.id, funcStyle.Render(e.method)))
		switch e.state {
		case statePending:
			b.WriteString(pendingStyle.Render(fmt.Sprintf("pending (%d events)", e.events)))
		case stateDone:
			b.WriteString(resultStyle.Render(e.last))
		case stateFailed:
			b.WriteString(errorStyle.Render(e.last))
		case stateCancelled:
			b.WriteString(helpStyle.Render("cancelled"))
		}
		b.WriteString("\n")
	}
	if len(m.entries) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • ctrl+x cancel latest • esc quit"))

	return b.String()
}

func runInteractive(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := newConsoleModel(cfg.Backend)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	model.inbox = newInbox(ctx, p.Send)

	s, err := openSession(cfg, func(*zap.Logger) dispatch.Scheduler {
		return model.inbox
	})
	if err != nil {
		return err
	}
	model.session = s

	_, err = p.Run()
	cancel()
	if n := model.inbox.discardPending(); n > 0 {
		s.log.Debug("discarded undelivered tasks", zap.Int("count", n))
	}
	s.close()
	return err
}
