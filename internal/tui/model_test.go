package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ermtutor/internal/domain"
	"ermtutor/internal/service"
)

type mockPort struct {
	questions []string
}

func (m *mockPort) Turn(_ context.Context, q string) domain.ChatTurn {
	m.questions = append(m.questions, q)
	return domain.ChatTurn{Question: q, Answer: "answer to " + q}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func typeAndEnter(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_GreetingFirst(t *testing.T) {
	m := sized(t, New(context.Background(), &mockPort{}, "12 chunks"))
	view := m.View()
	if !strings.Contains(view, service.Greeting) || !strings.Contains(view, "12 chunks") {
		t.Errorf("view missing greeting or summary:\n%s", view)
	}
}

func TestModel_AskAndAnswer(t *testing.T) {
	port := &mockPort{}
	m := sized(t, New(context.Background(), port, ""))

	m, cmd := typeAndEnter(m, "  What is a confounder?  ")
	if cmd == nil || !m.thinking {
		t.Fatalf("expected a pending question, thinking=%v", m.thinking)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if !strings.Contains(m.renderHistory(), "Thinking like a researcher...") {
		t.Error("spinner text missing while thinking")
	}

	// A second Enter while thinking is ignored.
	m2, cmd2 := typeAndEnter(m, "another")
	if cmd2 != nil || m2.pending != "What is a confounder?" {
		t.Errorf("question accepted while thinking: %q", m2.pending)
	}

	msg := m.ask("What is a confounder?")()
	next, _ := m.Update(msg)
	m = next.(Model)
	if m.thinking || len(m.history) != 1 {
		t.Fatalf("thinking=%v history=%d", m.thinking, len(m.history))
	}
	if len(port.questions) != 1 || port.questions[0] != "What is a confounder?" {
		t.Errorf("questions = %v", port.questions)
	}
	if !strings.Contains(m.renderHistory(), "answer to What is a confounder?") {
		t.Errorf("history missing answer:\n%s", m.renderHistory())
	}
}

func TestModel_Quit(t *testing.T) {
	for _, word := range []string{"exit", "quit", "QUIT"} {
		m := sized(t, New(context.Background(), &mockPort{}, ""))
		_, cmd := typeAndEnter(m, word)
		if cmd == nil {
			t.Fatalf("%s: no command", word)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected tea.QuitMsg", word)
		}
	}

	m := sized(t, New(context.Background(), &mockPort{}, ""))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}

func TestModel_EmptyEnterDoesNothing(t *testing.T) {
	port := &mockPort{}
	m := sized(t, New(context.Background(), port, ""))
	m, cmd := typeAndEnter(m, "   ")
	if cmd != nil || m.thinking {
		t.Error("blank input should not start a question")
	}
}
