// Package llm defines the language model provider abstraction used for
// conversation analysis and entity extraction.
package llm

import "context"

// Message represents one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions controls a single generation request.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// GenerateOption configures a generation request.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithStop sets stop sequences.
func WithStop(stop ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = stop
	}
}

// ApplyGenerateOptions builds a GenerateOptions from the given options.
func ApplyGenerateOptions(opts ...GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   1000,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Provider is the interface implemented by language model backends.
type Provider interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages produces a completion for a multi-turn
	// conversation.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
