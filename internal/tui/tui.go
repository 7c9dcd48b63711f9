// Package tui is the terminal front end: a bubbletea program that renders the
// conversation and the orchestrator state and maps keys onto its controls.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/levial/levial/core"
	"github.com/levial/levial/core/events"
)

const (
	headerHeight = 2
	footerHeight = 2
	maxEntries   = 200
)

// Controller is the part of the orchestrator the UI drives.
type Controller interface {
	State() orchestration.State
	StartCapture() bool
	StopCapture() bool
	Interrupt() bool
	SetListening(listening bool)
	IsListening() bool
	SetSpeaking(speaking bool)
	IsSpeaking() bool
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryNote
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// EventMsg wraps an orchestrator event for the program.
type EventMsg struct{ Event events.Event }

// DoneMsg tells the program the orchestrator stopped.
type DoneMsg struct{ Err error }

type keyMap struct {
	Capture   key.Binding
	Interrupt key.Binding
	Listen    key.Binding
	Mute      key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Capture, k.Interrupt, k.Listen, k.Mute, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

func defaultKeyMap() keyMap {
	return keyMap{
		Capture:   key.NewBinding(key.WithKeys("enter", "s"), key.WithHelp("enter", "talk/stop")),
		Interrupt: key.NewBinding(key.WithKeys("x", "esc"), key.WithHelp("x", "interrupt")),
		Listen:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "listening")),
		Mute:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	stateStyle     = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF"))
	flagStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	noteStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))

	stateColors = map[string]lipgloss.Color{
		"idle":         "#626262",
		"listening":    "#04B575",
		"capturing":    "#FF5F87",
		"transcribing": "#FFA500",
		"responding":   "#FFA500",
		"speaking":     "#7D56F4",
	}
)

// Model is the bubbletea model.
type Model struct {
	controller Controller
	keys       keyMap
	help       help.Model
	spinner    spinner.Model
	viewport   viewport.Model

	state   string
	entries []entry
	width   int
	ready   bool
	err     error
}

func NewModel(controller Controller) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		controller: controller,
		keys:       defaultKeyMap(),
		help:       help.New(),
		spinner:    s,
		state:      controller.State().String(),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Err returns the error the orchestrator stopped with, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case EventMsg:
		m.apply(msg.Event)
		return m, nil
	case DoneMsg:
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	bodyHeight := max(height-headerHeight-footerHeight, 1)
	if !m.ready {
		m.viewport = viewport.New(width, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = bodyHeight
	}
	m.help.Width = width
	m.refresh()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Capture):
		if m.controller.State() == orchestration.StateCapturing {
			m.controller.StopCapture()
		} else {
			m.controller.StartCapture()
		}
	case key.Matches(msg, m.keys.Interrupt):
		if !m.controller.Interrupt() {
			m.note(entryNote, "nothing to interrupt")
		}
	case key.Matches(msg, m.keys.Listen):
		m.controller.SetListening(!m.controller.IsListening())
	case key.Matches(msg, m.keys.Mute):
		m.controller.SetSpeaking(!m.controller.IsSpeaking())
	}
	return m, nil
}

func (m *Model) apply(event events.Event) {
	switch e := event.(type) {
	case events.StateChanged:
		m.state = e.To
		return
	case events.UserTranscriptFinal:
		m.note(entryUser, e.Transcript)
	case events.AssistantResponseFinal:
		m.note(entryAssistant, e.Text)
	case events.WakeWordDetected:
		m.note(entryNote, fmt.Sprintf("wake word %s (%.2f)", e.Label, e.Confidence))
	case events.CaptureFinished:
		m.note(entryNote, fmt.Sprintf("captured %.1fs (%s)", e.Duration.Seconds(), e.Reason))
	case events.TurnSkipped:
		m.note(entryNote, "turn skipped: "+e.Reason)
	case events.TurnCancelled:
		m.note(entryNote, "interrupted")
	case events.TurnFailed:
		m.note(entryError, fmt.Sprintf("%s failed: %s", e.Stage, e.Error))
	case events.ToolCallStarted:
		m.note(entryNote, "calling "+e.Name)
	case events.ToolCallFailed:
		m.note(entryError, fmt.Sprintf("tool %s failed: %s", e.Name, e.Error))
	case events.DeviceFailed:
		m.note(entryError, "audio device failed: "+e.Error)
	case events.DeviceRecovered:
		m.note(entryNote, "audio device recovered")
	}
}

func (m *Model) note(kind entryKind, text string) {
	m.entries = append(m.entries, entry{kind: kind, text: text})
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m *Model) renderEntries() string {
	width := max(m.width-8, 20)
	var b strings.Builder
	for _, e := range m.entries {
		switch e.kind {
		case entryUser:
			b.WriteString(userStyle.Render("you    "))
			b.WriteString(indent(wordwrap.String(e.text, width)))
		case entryAssistant:
			b.WriteString(assistantStyle.Render("levial "))
			b.WriteString(indent(wordwrap.String(e.text, width)))
		case entryError:
			b.WriteString(errorStyle.Render(wordwrap.String(e.text, width+7)))
		default:
			b.WriteString(noteStyle.Render(wordwrap.String(e.text, width+7)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// indent aligns continuation lines under the speaker label.
func indent(text string) string {
	return strings.ReplaceAll(text, "\n", "\n       ")
}

func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.help.View(m.keys))
}

func (m *Model) header() string {
	color, ok := stateColors[m.state]
	if !ok {
		color = "#626262"
	}
	parts := []string{
		titleStyle.Render("levial"),
		stateStyle.Background(color).Render(m.state),
	}
	if m.state == "transcribing" || m.state == "responding" {
		parts = append(parts, m.spinner.View())
	}
	if !m.controller.IsListening() {
		parts = append(parts, flagStyle.Render("not listening"))
	}
	if !m.controller.IsSpeaking() {
		parts = append(parts, flagStyle.Render("muted"))
	}
	return strings.Join(parts, " ") + "\n"
}

// EventAdapter forwards orchestrator events to a running program. Events that
// arrive before Attach are dropped.
type EventAdapter struct {
	program atomic.Pointer[tea.Program]
}

func (a *EventAdapter) Attach(program *tea.Program) {
	a.program.Store(program)
}

// HandleEvent is an orchestrator event handler.
func (a *EventAdapter) HandleEvent(event events.Event) {
	program := a.program.Load()
	if program == nil {
		return
	}
	program.Send(EventMsg{Event: event})
}
