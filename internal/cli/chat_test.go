package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/core"
)

// fakeConversation records a turn only when it answers, as ChatService does.
type fakeConversation struct {
	mu      sync.Mutex
	sent    []string
	turns   []core.TranscriptEntry
	reply   *core.Reply
	err     error
	cleared int
}

func (c *fakeConversation) SendMessage(_ context.Context, text string) (*core.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	if c.reply != nil {
		c.turns = append(c.turns,
			core.TranscriptEntry{Role: core.TurnUser, Text: text},
			core.TranscriptEntry{Role: core.TurnModel, Text: c.reply.Text})
	}
	return c.reply, c.err
}

func (c *fakeConversation) Transcript() []core.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.TranscriptEntry{{Role: core.TurnModel, Text: core.WelcomeMessage}}, c.turns...)
}

func (c *fakeConversation) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	c.turns = nil
}

// sendLine types text, runs the send and applies its reply.
func sendLine(t *testing.T, m chatModel, text string) chatModel {
	t.Helper()
	m, cmd := typeLine(t, m, text)
	for _, msg := range drain(cmd) {
		if r, ok := msg.(replyMsg); ok {
			next, _ := m.Update(r)
			return next.(chatModel)
		}
	}
	t.Fatal("send produced no reply")
	return m
}

func typeLine(t *testing.T, m chatModel, text string) (chatModel, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(chatModel), cmd
}

// drain runs cmd and any batched commands, returning the messages produced.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestChatModel_SendAndReply(t *testing.T) {
	conv := &fakeConversation{reply: &core.Reply{Text: "আমি শুনছি।"}}
	m := newChatModel(context.Background(), conv)
	if len(m.transcript) != 1 || !strings.Contains(m.transcript[0], core.WelcomeMessage) {
		t.Fatalf("initial transcript = %v", m.transcript)
	}

	m, cmd := typeLine(t, m, "  মন ভালো নেই  ")
	if !m.thinking {
		t.Fatal("not thinking after enter")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "লিখছে") || strings.Contains(m.View(), m.input.Prompt) {
		t.Errorf("view while thinking = %q", m.View())
	}

	// Enter is ignored until the reply arrives.
	again, extra := typeLine(t, m, "second")
	if extra != nil || len(again.transcript) != len(m.transcript) {
		t.Errorf("enter while thinking produced %v", extra)
	}

	var reply replyMsg
	for _, msg := range drain(cmd) {
		if r, ok := msg.(replyMsg); ok {
			reply = r
		}
	}
	if len(conv.sent) != 1 || conv.sent[0] != "মন ভালো নেই" {
		t.Fatalf("sent = %q", conv.sent)
	}

	next, _ := m.Update(reply)
	m = next.(chatModel)
	if m.thinking {
		t.Error("still thinking after reply")
	}
	if len(m.transcript) != 3 || !strings.Contains(m.transcript[1], "মন ভালো নেই") {
		t.Fatalf("transcript = %q", m.transcript)
	}
	if last := m.transcript[2]; !strings.Contains(last, "আমি শুনছি।") {
		t.Errorf("last line = %q", last)
	}
}

func TestChatModel_RejectedMessageIsNotKept(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"signed out", apperr.ErrNotAuthenticated, apperr.MsgNotAuthenticated},
		{"send in progress", apperr.ErrSendInProgress, apperr.MsgBusy},
		{"chat disabled", &apperr.ConfigError{Key: "ENABLE_CHAT", Message: apperr.MsgFeatureOff}, apperr.MsgFeatureOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConversation{err: tt.err}
			m := sendLine(t, newChatModel(context.Background(), conv), "কেউ আছেন?")
			if len(m.transcript) != 2 {
				t.Fatalf("transcript = %q", m.transcript)
			}
			if strings.Contains(m.View(), "কেউ আছেন?") {
				t.Errorf("rejected message still shown: %q", m.View())
			}
			if last := m.transcript[1]; !strings.Contains(last, tt.want) {
				t.Errorf("error line = %q, want %q", last, tt.want)
			}
		})
	}
}

func TestChatModel_ErrorsAndCommands(t *testing.T) {
	conv := &fakeConversation{err: apperr.Invalid("message", apperr.MsgEmptyMessage)}
	m := newChatModel(context.Background(), conv)

	next, _ := m.Update(replyMsg{err: conv.err})
	m = next.(chatModel)
	if last := m.transcript[len(m.transcript)-1]; !strings.Contains(last, apperr.MsgEmptyMessage) {
		t.Errorf("error line = %q", last)
	}

	m, _ = typeLine(t, m, "clear")
	if conv.cleared != 1 || len(m.transcript) != 1 {
		t.Errorf("clear: cleared=%d transcript=%v", conv.cleared, m.transcript)
	}

	_, cmd := typeLine(t, m, "exit")
	if cmd == nil {
		t.Fatal("exit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("exit did not quit")
	}
}

func TestChatModel_ApologyIsShown(t *testing.T) {
	conv := &fakeConversation{reply: &core.Reply{Text: apperr.MsgApologyNetwork}, err: errors.New("dial tcp: refused")}
	m := sendLine(t, newChatModel(context.Background(), conv), "hello")
	if len(m.transcript) != 3 || !strings.Contains(m.transcript[1], "hello") {
		t.Fatalf("transcript = %q", m.transcript)
	}
	if last := m.transcript[2]; !strings.Contains(last, apperr.MsgApologyNetwork) {
		t.Errorf("last line = %q", last)
	}
}
