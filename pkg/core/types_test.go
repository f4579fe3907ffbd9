package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/core"
)

func TestImportanceScore(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		source     string
		want       float64
	}{
		{"high confidence direct source", "High", "Direct", 1.0},
		{"high confidence inferred", "High", "Inferred", 0.8},
		{"low confidence direct", "Low", "Direct", 0.7},
		{"low confidence inferred", "Low", "Inferred", 0.5},
		{"low confidence no source", "Low", "", 0.5},
		{"confidence label is case sensitive", "high", "Inferred", 0.5},
		{"source label is not case sensitive", "Low", "direct", 0.7},
		{"source label uppercase", "Low", "DIRECT", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, core.ImportanceScore(tt.confidence, tt.source), 1e-9)
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 1.0, core.ConfidenceScore("High"))
	assert.Equal(t, 0.5, core.ConfidenceScore("Low"))
	assert.Equal(t, 0.5, core.ConfidenceScore("high"))
	assert.Equal(t, 0.5, core.ConfidenceScore(""))
}

func TestParseAnalysis(t *testing.T) {
	analysis, err := core.ParseAnalysis([]byte(`{
		"memory_items": [
			{"type": "semantic", "entity": "coffee", "information": "prefers dark roast", "confidence": "High", "source": "Direct"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, analysis.MemoryItems, 1)
	assert.Equal(t, "coffee", analysis.MemoryItems[0].Entity)
}

func TestParseAnalysisEmptyBatch(t *testing.T) {
	// An explicit empty list is a valid no-op batch; only the absent key
	// is a malformed document.
	analysis, err := core.ParseAnalysis([]byte(`{"memory_items": []}`))
	require.NoError(t, err)
	assert.Empty(t, analysis.MemoryItems)
}

func TestParseAnalysisRejectsBadShape(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json at all"},
		{"missing memory_items key", `{"not_memory_items": []}`},
		{"empty object", `{}`},
		{"item missing type", `{"memory_items": [{"entity": "e", "information": "i", "confidence": "High", "source": "Direct"}]}`},
		{"item missing entity", `{"memory_items": [{"type": "semantic", "information": "i", "confidence": "High", "source": "Direct"}]}`},
		{"item missing information", `{"memory_items": [{"type": "semantic", "entity": "e", "confidence": "High", "source": "Direct"}]}`},
		{"item missing confidence", `{"memory_items": [{"type": "semantic", "entity": "e", "information": "i", "source": "Direct"}]}`},
		{"item missing source", `{"memory_items": [{"type": "semantic", "entity": "e", "information": "i", "confidence": "High"}]}`},
		{"one bad item poisons the batch", `{"memory_items": [
			{"type": "semantic", "entity": "e", "information": "i", "confidence": "High", "source": "Direct"},
			{"type": "", "entity": "e2", "information": "i2", "confidence": "Low", "source": "Inferred"}
		]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.ParseAnalysis([]byte(tt.input))
			assert.True(t, errors.Is(err, core.ErrValidation))
		})
	}
}

func TestNewMemoryFromItem(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	item := core.MemoryItem{
		Type:        "Semantic",
		Entity:      "coffee",
		Information: "prefers dark roast",
		Confidence:  "High",
		Source:      "Direct",
	}

	memory := core.NewMemoryFromItem("user-1", item, now)

	assert.NotEmpty(t, memory.ID)
	assert.Equal(t, "user-1", memory.UserID)
	assert.Equal(t, "semantic", memory.MemoryType)
	assert.Equal(t, "coffee", memory.EntityID)
	assert.Equal(t, "prefers dark roast", memory.Content["information"])
	// Content keeps the labels verbatim; the source field is lower-cased.
	assert.Equal(t, "High", memory.Content["confidence"])
	assert.Equal(t, "Direct", memory.Content["source"])
	assert.Equal(t, "direct", memory.Source)
	assert.Equal(t, 1.0, memory.Confidence)
	assert.Equal(t, 1.0, memory.ImportanceScore)
	assert.True(t, memory.CreatedAt.Equal(now))
	assert.True(t, memory.LastAccessed.Equal(now))
	assert.Zero(t, memory.AccessCount)

	// Fresh ids per item.
	other := core.NewMemoryFromItem("user-1", item, now)
	assert.NotEqual(t, memory.ID, other.ID)
}
