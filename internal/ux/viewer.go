package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"binsleuth/internal/engine"
)

// eventMsg wraps one engine event for the bubbletea update loop.
type eventMsg engine.Event

// doneMsg signals that the engine terminated and the event channel closed.
type doneMsg struct{}

// reportMsg delivers the final report once the runner goroutine has it.
type reportMsg struct{ report *engine.Report }

// ViewerModel is the live session viewer. It reads from the engine's event
// channel; closing that channel flips the viewer into report mode.
type ViewerModel struct {
	events  <-chan engine.Event
	reports <-chan *engine.Report

	spinner  spinner.Model
	viewport viewport.Model
	styles   Styles

	lines    []string
	report   *engine.Report
	rendered string
	running  bool
	ready    bool
	width    int
	height   int
}

// NewViewer builds a viewer over the engine's event stream. The reports
// channel delivers the final report after Run returns; the caller owns the
// goroutine that feeds it.
func NewViewer(events <-chan engine.Event, reports <-chan *engine.Report) ViewerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)
	return ViewerModel{
		events:  events,
		reports: reports,
		spinner: sp,
		styles:  DefaultStyles(),
		running: true,
	}
}

// Init starts the spinner and the event pump.
func (m ViewerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextEvent())
}

// nextEvent blocks on the engine channel; a closed channel ends the stream.
func (m ViewerModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m ViewerModel) awaitReport() tea.Cmd {
	return func() tea.Msg {
		return reportMsg{report: <-m.reports}
	}
}

// Update handles messages.
func (m ViewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.running {
				return m, tea.Quit
			}
			// Quitting mid-session: the engine keeps its own lifecycle; the
			// caller cancels it via context when the program exits.
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vh := msg.Height - 4
		if vh < 3 {
			vh = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vh)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vh
		}
		m.syncViewport()

	case eventMsg:
		m.lines = append(m.lines, m.renderEvent(engine.Event(msg)))
		m.syncViewport()
		return m, m.nextEvent()

	case doneMsg:
		m.running = false
		return m, m.awaitReport()

	case reportMsg:
		m.report = msg.report
		m.rendered = RenderReport(msg.report, m.width)
		return m, nil

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

func (m *ViewerModel) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m ViewerModel) renderEvent(ev engine.Event) string {
	return fmt.Sprintf("%s %s %s",
		m.styles.Turn.Render(fmt.Sprintf("[%02d]", ev.TurnID)),
		m.styles.phase(ev.Phase).Render(fmt.Sprintf("%-8s", ev.Phase)),
		m.styles.Message.Render(ev.Message))
}

// View renders the viewer.
func (m ViewerModel) View() string {
	if m.report != nil {
		return m.rendered + m.styles.Status.Render("\npress q to exit\n")
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("binsleuth"))
	if m.running {
		b.WriteString("  " + m.spinner.View() + m.styles.Status.Render(" analyzing..."))
	} else {
		b.WriteString("  " + m.styles.Status.Render("finishing..."))
	}
	b.WriteString("\n\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(strings.Join(m.lines, "\n"))
	}
	b.WriteString("\n")
	return m.styles.Frame.Render(b.String())
}
