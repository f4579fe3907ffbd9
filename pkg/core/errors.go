package core

import (
	"errors"
	"fmt"

	"github.com/recallabs/recallmem-go/pkg/store"
)

// Sentinel errors returned by the memory engine. Storage-level sentinels
// are re-exported so callers only need this package for errors.Is checks.
var (
	ErrNotFound   = store.ErrNotFound
	ErrStorage    = store.ErrStorage
	ErrCorruption = store.ErrCorruption

	ErrValidation    = errors.New("invalid memory item")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrLLMOperation  = errors.New("llm operation failed")
)

// MemoryError wraps an error with the operation that produced it.
type MemoryError struct {
	Op  string
	Err error
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("recallmem: %s: %v", e.Op, e.Err)
}

func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError wraps err with the operation name.
func NewMemoryError(op string, err error) *MemoryError {
	return &MemoryError{Op: op, Err: err}
}
