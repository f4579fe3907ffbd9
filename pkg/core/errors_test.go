package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recallabs/recallmem-go/pkg/core"
)

func TestMemoryError(t *testing.T) {
	base := errors.New("boom")
	err := core.NewMemoryError("AddMemory", base)

	assert.Equal(t, "recallmem: AddMemory: boom", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, base, errors.Unwrap(err))
}

func TestMemoryErrorWrapsSentinels(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
	}{
		{"not found", core.ErrNotFound},
		{"storage", core.ErrStorage},
		{"corruption", core.ErrCorruption},
		{"validation", core.ErrValidation},
		{"invalid config", core.ErrInvalidConfig},
		{"llm operation", core.ErrLLMOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := core.NewMemoryError("op", fmt.Errorf("context: %w", tt.sentinel))
			assert.True(t, errors.Is(wrapped, tt.sentinel))
		})
	}
}
