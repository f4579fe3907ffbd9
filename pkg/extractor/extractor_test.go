package extractor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/extractor"
	"github.com/recallabs/recallmem-go/pkg/llm"
)

type stubProvider struct {
	response string
	err      error

	lastPrompt string
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

func (s *stubProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) Close() error { return nil }

func TestLLMExtractor_ExtractEntities(t *testing.T) {
	provider := &stubProvider{response: "coffee, Berlin , user_preferences,"}
	ext := extractor.NewLLMExtractor(provider)

	entities, err := ext.ExtractEntities(context.Background(), "I had coffee in Berlin")
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee", "berlin", "user_preferences"}, entities)
	assert.Contains(t, provider.lastPrompt, "I had coffee in Berlin")
}

func TestLLMExtractor_EmptyInput(t *testing.T) {
	provider := &stubProvider{response: "should not be called"}
	ext := extractor.NewLLMExtractor(provider)

	entities, err := ext.ExtractEntities(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, entities)
}

func TestLLMExtractor_EmptyResponse(t *testing.T) {
	provider := &stubProvider{response: "\n"}
	ext := extractor.NewLLMExtractor(provider)

	entities, err := ext.ExtractEntities(context.Background(), "nothing interesting")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestLLMExtractor_ProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("rate limited")}
	ext := extractor.NewLLMExtractor(provider)

	_, err := ext.ExtractEntities(context.Background(), "text")
	assert.Error(t, err)
}

func TestLLMAnalyzer_Analyze(t *testing.T) {
	provider := &stubProvider{response: `{"memory_items": []}`}
	analyzer := extractor.NewLLMAnalyzer(provider)

	analysis, err := analyzer.Analyze(context.Background(), []llm.Message{
		{Role: "user", Content: "I love hiking"},
		{Role: "assistant", Content: "Noted!"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"memory_items": []}`, analysis)
	assert.Contains(t, provider.lastPrompt, "user: I love hiking")
	assert.Contains(t, provider.lastPrompt, "assistant: Noted!")
}

func TestLLMAnalyzer_StripsCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"json fence", "```json\n{\"memory_items\": []}\n```"},
		{"bare fence", "```\n{\"memory_items\": []}\n```"},
		{"fence with whitespace", "  ```json\n{\"memory_items\": []}\n```  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{response: tt.response}
			analyzer := extractor.NewLLMAnalyzer(provider)

			analysis, err := analyzer.Analyze(context.Background(), []llm.Message{
				{Role: "user", Content: "hi"},
			})
			require.NoError(t, err)
			assert.Equal(t, `{"memory_items": []}`, analysis)
		})
	}
}

func TestLLMAnalyzer_NoMessages(t *testing.T) {
	analyzer := extractor.NewLLMAnalyzer(&stubProvider{})
	_, err := analyzer.Analyze(context.Background(), nil)
	assert.Error(t, err)
}
