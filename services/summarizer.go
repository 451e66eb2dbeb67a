package services

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const summarizerPrompt = "Tu es secrétaire d'un comité d'éthique de la recherche. " +
	"Condense les commentaires d'évaluation suivants en une seule remarque claire, " +
	"adressée au chercheur, sans ajouter d'information."

// OpenAISummarizer condenses reviewer text with an OpenAI-compatible chat model.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISummarizer returns nil when no API key is configured.
func NewOpenAISummarizer(apiKey, baseURL, model string) *OpenAISummarizer {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISummarizer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarizer returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
