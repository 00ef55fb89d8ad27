package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mentalhealth-ai.bd/companion/internal/apperr"
)

const (
	defaultChatModelName = "gemini-2.5-flash"

	chatSystemInstruction = "You are a friendly and empathetic mental health assistant for Bangladeshi people, especially students. " +
		"Your name is Gemini (জেমিনি). You should:\n" +
		"1. Always respond in Bengali (বাংলা)\n" +
		"2. Be supportive, empathetic, and understanding\n" +
		"3. Keep responses concise (2-3 sentences)\n" +
		"4. Use simple, easy-to-understand language\n" +
		"5. Never provide medical advice or diagnosis\n" +
		"6. Suggest professional help if the user seems to be in serious distress\n" +
		"7. Be culturally sensitive to the Bangladeshi context\n" +
		"8. Encourage positive coping strategies\n" +
		"9. Refer serious issues to the resources section"
)

// KeySource resolves configuration values. *config.Resolver satisfies it.
type KeySource interface {
	Lookup(key string) (string, bool)
}

// Model produces one assistant reply. history holds the turns before message.
type Model interface {
	Generate(ctx context.Context, history []Turn, message string) (string, error)
}

// GeminiModel is a Model backed by the Gemini API. The API key is looked up on
// every call so a key entered at runtime takes effect without a restart.
type GeminiModel struct {
	keys   KeySource
	logger *slog.Logger

	mu     sync.Mutex
	client *genai.Client
	key    string
}

func NewGeminiModel(keys KeySource, logger *slog.Logger) *GeminiModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiModel{keys: keys, logger: logger}
}

func (g *GeminiModel) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			g.logger.Warn("error closing GenAI client", slog.Any("error", err))
		}
		g.client = nil
		g.key = ""
	}
}

func (g *GeminiModel) clientFor(ctx context.Context) (*genai.Client, error) {
	key, _ := g.keys.Lookup("GEMINI_API_KEY")
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &apperr.ConfigError{Key: "GEMINI_API_KEY", Message: apperr.MsgApologyMissingKey}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil && g.key == key {
		return g.client, nil
	}
	if g.client != nil {
		g.client.Close()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client, g.key = client, key
	return client, nil
}

func (g *GeminiModel) modelName() string {
	if name, ok := g.keys.Lookup("GEMINI_MODEL"); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return defaultChatModelName
}

func (g *GeminiModel) Generate(ctx context.Context, history []Turn, message string) (string, error) {
	client, err := g.clientFor(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(g.modelName())
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	model.SetTemperature(0.8)
	model.SetTopP(0.9)
	model.SetTopK(40)
	model.SetMaxOutputTokens(1024)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
	}

	chatSession := model.StartChat()
	chatSession.History = toContents(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(message))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "api key") {
			return "", fmt.Errorf("gemini rejected the API key: %w: %w", apperr.ErrMissingCredential, err)
		}
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &apperr.ProtocolError{Detail: "gemini response had no candidates"}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			g.logger.Debug("skipping non-text response part", slog.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if strings.TrimSpace(responseText.String()) == "" {
		return "", &apperr.ProtocolError{Detail: "gemini response had no text"}
	}
	return responseText.String(), nil
}

// toContents converts history to the API's shape, merging consecutive turns of
// the same role since the API requires alternation.
func toContents(history []Turn) []*genai.Content {
	var out []*genai.Content
	for _, t := range history {
		if n := len(out); n > 0 && out[n-1].Role == string(t.Role) {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(t.Text))
			continue
		}
		out = append(out, &genai.Content{Role: string(t.Role), Parts: []genai.Part{genai.Text(t.Text)}})
	}
	return out
}
