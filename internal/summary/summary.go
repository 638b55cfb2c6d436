// Package summary produces the short conversation summary attached to CRM leads.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/sanitize"

	openai "github.com/sashabaranov/go-openai"
)

const (
	digestMessages = 3
	maxSummaryLen  = 500
	requestTimeout = 8 * time.Second
	maxTranscript  = 40

	systemPrompt = "Resume en español, en máximo tres frases, lo que el prospecto busca: " +
		"proyecto, ubicación, presupuesto, tipo de propiedad y siguiente paso solicitado. " +
		"No inventes datos."
)

// Turn is one message of the transcript being summarized.
type Turn struct {
	Inbound bool
	Body    string
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service summarizes transcripts with a chat model when configured and falls
// back to a deterministic digest otherwise.
type Service struct {
	client completer
	model  string
	log    *logger.Logger
}

// New creates a summarizer. Without an API key only the digest is used.
func New(cfg config.OpenAIConfig, log *logger.Logger) *Service {
	s := &Service{model: cfg.GetOpenAIModel(), log: log}
	if s.model == "" {
		s.model = openai.GPT4oMini
	}
	if cfg.IsOpenAIEnabled() {
		s.client = openai.NewClient(cfg.GetOpenAIAPIKey())
	}
	return s
}

// Summarize never fails: model errors degrade to Digest.
func (s *Service) Summarize(ctx context.Context, turns []Turn) string {
	if s == nil || s.client == nil || len(turns) == 0 {
		return Digest(turns)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript(turns)},
		},
		Temperature: 0,
	})
	if err != nil {
		s.log.Warn("conversation summary fell back to digest", "error", err)
		return Digest(turns)
	}
	if len(resp.Choices) == 0 {
		return Digest(turns)
	}
	text := sanitize.Text(resp.Choices[0].Message.Content)
	if strings.TrimSpace(text) == "" {
		return Digest(turns)
	}
	return truncate(strings.TrimSpace(text))
}

// Digest joins the last few inbound messages.
func Digest(turns []Turn) string {
	picked := make([]string, 0, digestMessages)
	for i := len(turns) - 1; i >= 0 && len(picked) < digestMessages; i-- {
		if !turns[i].Inbound {
			continue
		}
		if body := strings.TrimSpace(sanitize.Text(turns[i].Body)); body != "" {
			picked = append(picked, body)
		}
	}
	if len(picked) == 0 {
		return "Lead detectado desde conversación de WhatsApp."
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return truncate("Mensajes del prospecto: " + strings.Join(picked, " | "))
}

func transcript(turns []Turn) string {
	if len(turns) > maxTranscript {
		turns = turns[len(turns)-maxTranscript:]
	}
	var b strings.Builder
	for _, t := range turns {
		role := "Asistente"
		if t.Inbound {
			role = "Prospecto"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(t.Body))
	}
	return b.String()
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen-1]) + "…"
}
