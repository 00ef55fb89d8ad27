package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/utils"
)

const (
	MaxHistory      = 20
	MaxMessageRunes = 1000

	WelcomeMessage = "হ্যালো! আমি জেমিনি, আপনার মানসিক স্বাস্থ্য সহকারী। আজ আপনার কেমন লাগছে? আপনি নির্দ্বিধায় আপনার মনের কথা বলতে পারেন।"
)

type TurnRole string

const (
	TurnUser  TurnRole = "user"
	TurnModel TurnRole = "model"
)

// Turn is one entry of the conversation context sent to the model.
type Turn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}

// TranscriptEntry is a line shown to the user, including apologies that never
// enter the model's context.
type TranscriptEntry struct {
	Role TurnRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatStore persists completed exchanges. *backend.Client satisfies it.
type ChatStore interface {
	InsertChatMessage(ctx context.Context, sessionID, message, response string) (*model.ChatMessage, error)
}

// SessionSource reports the signed-in user. *SessionManager satisfies it.
type SessionSource interface {
	Current() *Session
}

// Flags answers feature switches. *config.Resolver satisfies it.
type Flags interface {
	Bool(key string) bool
}

// Reply is the outcome of a send. On failure Text is the apology that was
// appended to the transcript.
type Reply struct {
	Text string
	// Persisted is false when the exchange will not be stored.
	Persisted bool
}

// ChatService runs one page session of conversation with the assistant.
type ChatService struct {
	model    Model
	store    ChatStore
	sessions SessionSource
	flags    Flags
	logger   *slog.Logger
	now      func() time.Time

	sessionID string
	sending   atomic.Bool
	pending   sync.WaitGroup

	mu         sync.Mutex
	history    []Turn
	transcript []TranscriptEntry
}

func NewChatService(m Model, store ChatStore, sessions SessionSource, flags Flags, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChatService{
		model:    m,
		store:    store,
		sessions: sessions,
		flags:    flags,
		logger:   logger,
		now:      time.Now,
	}
	s.sessionID = newSessionID(s.now())
	s.transcript = []TranscriptEntry{{Role: TurnModel, Text: WelcomeMessage, At: s.now()}}
	return s
}

// newSessionID builds "session_<unix ms>_<9 random chars>".
func newSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), random[:9])
}

func (s *ChatService) SessionID() string { return s.sessionID }

// ChatEnabled reports the ENABLE_CHAT switch. A missing flag source enables chat.
func (s *ChatService) ChatEnabled() bool {
	return s.flags == nil || s.flags.Bool("ENABLE_CHAT")
}

// SendMessage sends text to the model. A call made while another is pending
// returns ErrSendInProgress and changes nothing.
func (s *ChatService) SendMessage(ctx context.Context, text string) (*Reply, error) {
	if !s.sending.CompareAndSwap(false, true) {
		return nil, apperr.ErrSendInProgress
	}
	defer s.sending.Store(false)

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, apperr.Invalid("message", apperr.MsgEmptyMessage)
	case utils.RuneLen(text) > MaxMessageRunes:
		return nil, apperr.Invalid("message", apperr.MsgMessageTooLong)
	}
	if !s.ChatEnabled() {
		return nil, &apperr.ConfigError{Key: "ENABLE_CHAT", Message: apperr.MsgFeatureOff}
	}
	if s.sessions == nil || s.sessions.Current() == nil {
		return nil, apperr.ErrNotAuthenticated
	}

	s.mu.Lock()
	prior := append([]Turn(nil), s.history...)
	s.appendTurn(Turn{Role: TurnUser, Text: text})
	s.transcript = append(s.transcript, TranscriptEntry{Role: TurnUser, Text: text, At: s.now()})
	s.mu.Unlock()

	response, err := s.model.Generate(ctx, prior, text)
	if err != nil {
		apology := apologyFor(err)
		s.logger.Error("chat generation failed", slog.String("session_id", s.sessionID), slog.Any("error", err))
		s.mu.Lock()
		s.transcript = append(s.transcript, TranscriptEntry{Role: TurnModel, Text: apology, At: s.now()})
		s.mu.Unlock()
		return &Reply{Text: apology}, err
	}

	s.mu.Lock()
	s.appendTurn(Turn{Role: TurnModel, Text: response})
	s.transcript = append(s.transcript, TranscriptEntry{Role: TurnModel, Text: response, At: s.now()})
	s.mu.Unlock()

	s.persist(ctx, text, response)
	return &Reply{Text: response, Persisted: s.store != nil}, nil
}

// appendTurn adds t and evicts the oldest turns beyond MaxHistory. Callers hold mu.
func (s *ChatService) appendTurn(t Turn) {
	s.history = append(s.history, t)
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append([]Turn(nil), s.history[over:]...)
	}
}

// persist stores the exchange in the background. Failures are logged only.
func (s *ChatService) persist(ctx context.Context, message, response string) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := s.store.InsertChatMessage(ctx, s.sessionID, message, response); err != nil {
			s.logger.Warn("failed to store chat message", slog.String("session_id", s.sessionID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until background persistence has finished.
func (s *ChatService) Wait() { s.pending.Wait() }

func apologyFor(err error) string {
	switch {
	case errors.Is(err, apperr.ErrMissingCredential):
		return apperr.MsgApologyMissingKey
	case apperr.IsNetwork(err):
		return apperr.MsgApologyNetwork
	}
	return apperr.MsgApologyOther
}

// History returns a copy of the model context.
func (s *ChatService) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Transcript returns a copy of everything shown to the user.
func (s *ChatService) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.transcript...)
}

// ClearHistory forgets the conversation and starts over with the welcome line.
func (s *ChatService) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.transcript = []TranscriptEntry{{Role: TurnModel, Text: WelcomeMessage, At: s.now()}}
}

type chatExport struct {
	Timestamp time.Time         `json:"timestamp"`
	Messages  []TranscriptEntry `json:"messages"`
}

// ExportJSON writes the transcript as an indented JSON document.
func (s *ChatService) ExportJSON(w io.Writer) error {
	doc := chatExport{Timestamp: s.now().UTC(), Messages: s.Transcript()}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to export chat: %w", err)
	}
	return nil
}
