package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/core"
)

const pathChat = "/chat"

var (
	userStyle  = lipgloss.NewStyle().Bold(true)
	modelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// conversation is the part of *core.ChatService the screen drives.
type conversation interface {
	SendMessage(ctx context.Context, text string) (*core.Reply, error)
	Transcript() []core.TranscriptEntry
	ClearHistory()
}

type replyMsg struct {
	reply *core.Reply
	err   error
}

type chatModel struct {
	ctx        context.Context
	chat       conversation
	input      textinput.Model
	spin       spinner.Model
	transcript []string
	thinking   bool
	width      int
}

func newChatModel(ctx context.Context, chat conversation) chatModel {
	in := textinput.New()
	in.Placeholder = "আপনার মনের কথা লিখুন..."
	in.Prompt = "আপনি> "
	in.CharLimit = core.MaxMessageRunes
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = modelStyle

	m := chatModel{ctx: ctx, chat: chat, input: in, spin: s}
	m.reload()
	return m
}

// reload rebuilds the visible lines from the conversation's transcript.
func (m *chatModel) reload() {
	m.transcript = nil
	for _, e := range m.chat.Transcript() {
		m.transcript = append(m.transcript, renderEntry(e.Role, e.Text))
	}
}

func renderEntry(role core.TurnRole, text string) string {
	if role == core.TurnUser {
		return userStyle.Render("আপনি:") + " " + text
	}
	return modelStyle.Render("সহকারী:") + " " + text
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) send(text string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		reply, err := chat.SendMessage(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-10, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.thinking {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			switch strings.ToLower(text) {
			case "exit", "quit":
				return m, tea.Quit
			case "clear":
				m.chat.ClearHistory()
				m.reload()
				m.input.Reset()
				return m, nil
			}
			// Shown while waiting; the reply reloads the transcript, which
			// drops it again if the service rejected the message.
			if text != "" {
				m.transcript = append(m.transcript, renderEntry(core.TurnUser, text))
			}
			m.input.Reset()
			m.thinking = true
			return m, tea.Batch(m.spin.Tick, m.send(text))
		}

	case replyMsg:
		m.thinking = false
		m.reload()
		if msg.reply == nil && msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render(apperr.UserMessage(msg.err)))
		}
		return m, nil

	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.thinking {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("মানসিক স্বাস্থ্য সহকারী") + "\n\n")
	for _, line := range m.transcript {
		b.WriteString(line + "\n\n")
	}
	if m.thinking {
		b.WriteString(modelStyle.Render("সহকারী:") + " " + m.spin.View() + " লিখছে...\n")
		return b.String()
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(faintStyle.Render("'clear' নতুন করে শুরু, 'exit' বের হতে। Ctrl+C দিয়েও বের হতে পারবেন।"))
	return b.String()
}

func chatCommand(run runner) *cobra.Command {
	var message, export string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk with the assistant",
		Args:  cobra.NoArgs,
		RunE: run(pathChat, func(ctx context.Context, app *App, _ []string) error {
			if _, err := app.Sessions.RequireSession(ctx); err != nil {
				return err
			}
			gemini := core.NewGeminiModel(app.Config, app.logger)
			defer gemini.Close()
			chat := core.NewChatService(gemini, app.Backend, app.Sessions, app.Config, app.logger)
			defer chat.Wait()

			if !app.Config.HasAPIKey() {
				app.printf("%s\n", faintStyle.Render("Gemini API key নেই। 'companion config set-api-key' দিয়ে যোগ করুন।"))
			}

			if message != "" {
				reply, err := chat.SendMessage(ctx, message)
				if reply == nil {
					return err
				}
				app.printf("%s\n", reply.Text)
			} else {
				p := tea.NewProgram(newChatModel(ctx, chat), tea.WithInput(app.in), tea.WithOutput(app.out), tea.WithContext(ctx))
				if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return fmt.Errorf("chat screen failed: %w", err)
				}
			}

			if export != "" {
				return exportTranscript(chat, export)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and print the reply")
	cmd.Flags().StringVar(&export, "export", "", "Write the conversation as JSON to this file when done")
	return cmd
}

func exportTranscript(chat *core.ChatService, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := chat.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
