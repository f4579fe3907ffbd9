package core

import (
	"time"

	"github.com/recallabs/recallmem-go/pkg/extractor"
)

// RetrieveOptions controls a relevance retrieval call.
type RetrieveOptions struct {
	MaxResults int
}

// RetrieveOption configures a retrieval call.
type RetrieveOption func(*RetrieveOptions)

// WithMaxResults caps the number of memories returned.
func WithMaxResults(n int) RetrieveOption {
	return func(o *RetrieveOptions) {
		if n > 0 {
			o.MaxResults = n
		}
	}
}

func applyRetrieveOptions(opts ...RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{MaxResults: 5}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAnalyzer attaches a conversation analyzer, enabling
// ProcessConversation.
func WithAnalyzer(analyzer extractor.Analyzer) ManagerOption {
	return func(m *Manager) {
		m.analyzer = analyzer
	}
}

// WithClock overrides the time source. Tests use this to pin timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}
