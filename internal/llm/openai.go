package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vigilstack/vigil-healer/internal/config"
)

const systemPrompt = "You are an expert SRE analyzing microservice health metrics."

// OpenAIReasoner speaks the OpenAI chat-completion API. A custom base URL
// lets it target any OpenAI-compatible inference server.
type OpenAIReasoner struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIReasoner builds the client from configuration.
func NewOpenAIReasoner(cfg config.ReasonerConfig) (*OpenAIReasoner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai reasoner requires an API key")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIReasoner{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate sends the prompt and returns the raw completion text.
func (r *OpenAIReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: r.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Provider identifies the backend kind.
func (r *OpenAIReasoner) Provider() string { return "openai" }

// Model returns the configured model name.
func (r *OpenAIReasoner) Model() string { return r.model }
