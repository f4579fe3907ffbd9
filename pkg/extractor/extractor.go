// Package extractor turns free-form conversation text into structured
// inputs for the memory engine: entity candidate lists and memory item
// analyses, both produced through a language model provider.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/recallabs/recallmem-go/pkg/llm"
)

// Extractor produces entity candidates from a piece of text.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// Analyzer inspects a conversation and returns a JSON analysis document
// containing memory items to persist.
type Analyzer interface {
	Analyze(ctx context.Context, messages []llm.Message) (string, error)
}

const extractPrompt = `Extract the key entities (people, places, topics, preferences) mentioned in the following text.
Reply with a comma-separated list of short lowercase identifiers, nothing else.
If there are no meaningful entities, reply with an empty line.

Text:
%s`

const analyzePrompt = `Analyze the conversation below and identify facts worth remembering about the user.
Reply with a JSON object of the form:

{"memory_items": [{"type": "semantic", "entity": "user_preferences", "information": "...", "confidence": "High", "source": "Direct"}]}

Rules:
- "type" is one of: semantic, episodic, procedural.
- "confidence" is High or Low.
- "source" is Direct when the user stated the fact, Inferred otherwise.
- Reply with the JSON object only, no prose.

Conversation:
%s`

// LLMExtractor extracts entity candidates with a language model.
type LLMExtractor struct {
	provider llm.Provider
}

// NewLLMExtractor creates an extractor backed by the given provider.
func NewLLMExtractor(provider llm.Provider) *LLMExtractor {
	return &LLMExtractor{provider: provider}
}

// ExtractEntities asks the model for a comma-separated entity list and
// normalizes the result to trimmed lowercase tokens.
func (e *LLMExtractor) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	response, err := e.provider.Generate(ctx, fmt.Sprintf(extractPrompt, text),
		llm.WithTemperature(0.0), llm.WithMaxTokens(200))
	if err != nil {
		return nil, fmt.Errorf("ExtractEntities: %w", err)
	}

	response = removeCodeBlocks(response)

	var entities []string
	for _, part := range strings.Split(response, ",") {
		entity := strings.ToLower(strings.TrimSpace(part))
		if entity != "" {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

// LLMAnalyzer produces memory item analyses with a language model.
type LLMAnalyzer struct {
	provider llm.Provider
}

// NewLLMAnalyzer creates an analyzer backed by the given provider.
func NewLLMAnalyzer(provider llm.Provider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

// Analyze returns the raw JSON analysis document for the conversation.
// Markdown code fences around the JSON are stripped.
func (a *LLMAnalyzer) Analyze(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("Analyze: no messages")
	}

	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	response, err := a.provider.Generate(ctx, fmt.Sprintf(analyzePrompt, sb.String()),
		llm.WithTemperature(0.1), llm.WithMaxTokens(1000))
	if err != nil {
		return "", fmt.Errorf("Analyze: %w", err)
	}
	return removeCodeBlocks(response), nil
}

// removeCodeBlocks strips a surrounding markdown code fence, with or
// without a language tag, from a model response.
func removeCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line if present.
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[],:") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
