package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ermtutor/internal/domain"
	"ermtutor/internal/service"
)

// ChatPort is the TUI-facing subset of the tutor.
type ChatPort interface {
	Turn(ctx context.Context, question string) domain.ChatTurn
}

// answerMsg carries a finished turn back into the update loop.
type answerMsg struct{ turn domain.ChatTurn }

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	port     ChatPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []domain.ChatTurn
	summary  string
	pending  string
	thinking bool
	ready    bool
}

// New creates a chat model. summary is shown under the title.
func New(ctx context.Context, port ChatPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the ERM course (exit to quit)"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	return Model{
		ctx:      ctx,
		port:     port,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, spinner and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, hh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // title + summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-hh)
		m.input.Width = max(10, msg.Width-8)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if isExit(q) {
				return m, tea.Quit
			}
			if q == "" || m.thinking {
				return m, nil
			}
			m.input.Reset()
			m.pending = q
			m.thinking = true
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.history = append(m.history, msg.turn)
		m.pending = ""
		m.thinking = false
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the title, conversation and input box.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ERM Tutor")
	summary := summaryStyle.Render(m.summary)
	history := historyBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render("Enter to send · PgUp/PgDn to scroll · exit to quit")
	return header + "\n" + summary + "\n" + history + "\n" + input + "\n" + status
}

func (m Model) ask(q string) tea.Cmd {
	ctx, port := m.ctx, m.port
	return func() tea.Msg {
		return answerMsg{turn: port.Turn(ctx, q)}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(botStyle.Render("Bot: ") + wrap.Render(service.Greeting))
	for _, t := range m.history {
		fmt.Fprintf(&b, "\n\n%s%s\n%s%s",
			userStyle.Render("You: "), wrap.Render(t.Question),
			botStyle.Render("Bot: "), wrap.Render(t.Answer))
	}
	if m.thinking {
		fmt.Fprintf(&b, "\n\n%s%s\n%s %s",
			userStyle.Render("You: "), wrap.Render(m.pending),
			m.spinner.View(), thinkingStyle.Render("Thinking like a researcher..."))
	}
	return b.String()
}

func isExit(q string) bool {
	switch strings.ToLower(q) {
	case "exit", "quit":
		return true
	}
	return false
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	thinkingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
