// Package openai implements the llm.Provider interface on top of the
// OpenAI chat completion API. Any OpenAI-compatible endpoint works by
// overriding the base URL.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recallabs/recallmem-go/pkg/llm"
)

// Config contains OpenAI client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client *openai.Client
	model  string
}

// NewProvider creates an OpenAI-backed provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewProvider: api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Generate produces a completion for a single user prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, opts...)
}

// GenerateWithMessages produces a completion for a multi-turn conversation.
func (p *Provider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts...)

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    chatMessages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stop:        options.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("GenerateWithMessages: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("GenerateWithMessages: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close releases resources. The OpenAI client holds no persistent
// connections, so this is a no-op.
func (p *Provider) Close() error {
	return nil
}
