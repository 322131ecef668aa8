package client

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/savioxavier/termlink"
)

type (
	progressEventMsg Event
	progressDoneMsg  struct {
		result *ArtifactResult
		err    error
	}
)

var headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF88")).Background(lipgloss.Color("#444444"))

// Progress is a terminal view of one CreatePresentation call.
type Progress struct {
	ctx           context.Context
	cancel        context.CancelFunc
	client        Client
	input         Input
	opts          []CallOption
	events        chan Event
	loader        spinner.Model
	statusStyle   lipgloss.Style
	responseStyle lipgloss.Style
	errorStyle    lipgloss.Style
	last          Event
	result        *ArtifactResult
	err           error
	done          bool
}

func NewProgress(ctx context.Context, c Client, in Input, opts ...CallOption) *Progress {
	ctx, cancel := context.WithCancel(ctx)
	p := &Progress{
		ctx:    ctx,
		cancel: cancel,
		client: c,
		input:  in,
		events: make(chan Event, 16),
		loader: spinner.New(
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
			spinner.WithSpinner(spinner.Dot),
		),
		statusStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		responseStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		errorStyle:    lipgloss.NewStyle().Background(lipgloss.Color("330000")).Foreground(lipgloss.Color("#FF3333")),
		last:          Event{Status: StatusPending},
	}
	p.opts = append(opts, WithTitle(in.Title), WithReporter(p))
	return p
}

// Report forwards poll observations to the UI. Events are dropped when the UI falls behind.
func (m *Progress) Report(evt Event) {
	select {
	case m.events <- evt:
	default:
	}
}

// Result returns the outcome once the program has quit.
func (m *Progress) Result() (*ArtifactResult, error) {
	return m.result, m.err
}

func (m *Progress) Init() tea.Cmd {
	return tea.Batch(m.loader.Tick, m.run, m.waitEvent)
}

func (m *Progress) run() tea.Msg {
	res, err := m.client.CreatePresentation(m.ctx, m.input, m.opts...)
	return progressDoneMsg{result: res, err: err}
}

func (m *Progress) waitEvent() tea.Msg {
	select {
	case evt := <-m.events:
		return progressEventMsg(evt)
	case <-m.ctx.Done():
		return nil
	}
}

func (m *Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	case progressEventMsg:
		m.last = Event(msg)
		return m, m.waitEvent
	case progressDoneMsg:
		m.done = true
		m.result, m.err = msg.result, msg.err
		m.cancel()
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			// CreatePresentation returns a CancelledError which ends the program
			m.cancel()
		}
	}
	return m, nil
}

func (m *Progress) View() string {
	title := m.input.Title
	if title == "" {
		title = "presentation"
	}
	header := headerStyle.Render("Generation: " + title)
	if m.last.GenerationID != "" {
		header += headerStyle.Render("; id: " + m.last.GenerationID)
	}

	if !m.done {
		return header + fmt.Sprintf("\n\n%s %s (poll %d, %s)\n\n",
			m.loader.View(),
			m.statusStyle.Render(string(m.last.Status)),
			m.last.Poll,
			m.last.Elapsed.Round(time.Second),
		)
	}
	if m.err != nil {
		return header + "\n\n" + m.errorStyle.Render("ERROR: "+m.err.Error()) + "\n\n"
	}
	message := fmt.Sprintf("%s saved to ", m.result.ContentType) +
		termlink.ColorLink(filepath.Base(m.result.Path), fmt.Sprintf("file://%s", absPath(m.result.Path)), "italic green")
	if m.result.ViewURL != "" {
		message += "\n" + m.responseStyle.Render("View: ") + termlink.ColorLink(m.result.ViewURL, m.result.ViewURL, "italic green")
	}
	return header + "\n\n" + m.responseStyle.Render("Gamma: ") + message + "\n\n"
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
