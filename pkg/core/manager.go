// Package core implements the memory engine: persisting facts extracted
// from conversations and retrieving the ones relevant to a new turn.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/recallabs/recallmem-go/pkg/extractor"
	"github.com/recallabs/recallmem-go/pkg/llm"
	"github.com/recallabs/recallmem-go/pkg/store"
)

// Manager orchestrates memory persistence and retrieval for one user.
// The store and extractor are injected; Manager holds no global state.
type Manager struct {
	userID    string
	store     store.MemoryStore
	extractor extractor.Extractor
	analyzer  extractor.Analyzer
	now       func() time.Time
}

// NewManager creates a Manager for the given user.
func NewManager(userID string, st store.MemoryStore, ext extractor.Extractor, opts ...ManagerOption) (*Manager, error) {
	if userID == "" {
		return nil, NewMemoryError("NewManager",
			fmt.Errorf("%w: user id is required", ErrInvalidConfig))
	}
	if st == nil {
		return nil, NewMemoryError("NewManager",
			fmt.Errorf("%w: store is required", ErrInvalidConfig))
	}

	m := &Manager{
		userID:    userID,
		store:     st,
		extractor: ext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AddMemory persists every item in an analysis document. Validation is all
// or nothing: a single bad item rejects the document and nothing is stored.
func (m *Manager) AddMemory(ctx context.Context, analysis []byte) ([]*Memory, error) {
	parsed, err := ParseAnalysis(analysis)
	if err != nil {
		return nil, NewMemoryError("AddMemory", err)
	}

	now := m.now().UTC()
	memories := make([]*Memory, 0, len(parsed.MemoryItems))
	for _, item := range parsed.MemoryItems {
		memories = append(memories, NewMemoryFromItem(m.userID, item, now))
	}

	for _, memory := range memories {
		if err := m.store.AddMemory(ctx, m.userID, toRecord(memory)); err != nil {
			return nil, NewMemoryError("AddMemory", err)
		}
	}
	return memories, nil
}

// GetRelevantMemories extracts entity candidates from the conversation
// context, searches the store for matching memories and records the access.
// The returned records reflect the state before the access bookkeeping.
//
// The access-count update is a read-modify-write: concurrent retrievals of
// the same memory can lose increments. The counter is advisory.
func (m *Manager) GetRelevantMemories(ctx context.Context, conversationContext string, opts ...RetrieveOption) ([]*Memory, error) {
	options := applyRetrieveOptions(opts...)

	var candidates []string
	if m.extractor != nil {
		extracted, err := m.extractor.ExtractEntities(ctx, conversationContext)
		if err != nil {
			return nil, NewMemoryError("GetRelevantMemories",
				fmt.Errorf("%w: %v", ErrLLMOperation, err))
		}
		candidates = FilterCandidates(extracted)
	}

	records, err := m.store.SearchMemories(ctx, m.userID, candidates, options.MaxResults)
	if err != nil {
		return nil, NewMemoryError("GetRelevantMemories", err)
	}

	now := m.now().UTC()
	memories := make([]*Memory, 0, len(records))
	for _, rec := range records {
		memories = append(memories, fromRecord(rec))

		count := rec.AccessCount + 1
		accessed := now
		patch := &store.MemoryPatch{
			LastAccessed: &accessed,
			AccessCount:  &count,
		}
		if err := m.store.UpdateMemory(ctx, m.userID, rec.ID, patch); err != nil {
			return nil, NewMemoryError("GetRelevantMemories", err)
		}
	}
	return memories, nil
}

// ProcessConversation analyzes a conversation and persists the memory items
// the analyzer found. It requires an analyzer configured via WithAnalyzer.
func (m *Manager) ProcessConversation(ctx context.Context, messages []llm.Message) ([]*Memory, error) {
	if m.analyzer == nil {
		return nil, NewMemoryError("ProcessConversation",
			fmt.Errorf("%w: no analyzer configured", ErrInvalidConfig))
	}

	analysis, err := m.analyzer.Analyze(ctx, messages)
	if err != nil {
		return nil, NewMemoryError("ProcessConversation",
			fmt.Errorf("%w: %v", ErrLLMOperation, err))
	}
	return m.AddMemory(ctx, []byte(analysis))
}

// GetEntity returns a tracked entity, or nil when it does not exist.
func (m *Manager) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	rec, err := m.store.GetEntity(ctx, m.userID, entityID)
	if err != nil {
		return nil, NewMemoryError("GetEntity", err)
	}
	if rec == nil {
		return nil, nil
	}
	return fromEntityRecord(rec), nil
}

// SaveEntity creates or refreshes a tracked entity.
func (m *Manager) SaveEntity(ctx context.Context, entity *Entity) error {
	now := m.now().UTC()
	entity.UserID = m.userID
	if entity.FirstSeen.IsZero() {
		entity.FirstSeen = now
	}
	entity.LastSeen = now
	if err := m.store.SaveEntity(ctx, m.userID, toEntityRecord(entity)); err != nil {
		return NewMemoryError("SaveEntity", err)
	}
	return nil
}

// UpdateEntity updates an entity's profile and replaces its relationships.
func (m *Manager) UpdateEntity(ctx context.Context, entity *Entity) error {
	entity.UserID = m.userID
	entity.LastSeen = m.now().UTC()
	if err := m.store.UpdateEntity(ctx, m.userID, toEntityRecord(entity)); err != nil {
		return NewMemoryError("UpdateEntity", err)
	}
	return nil
}

// ExportMemories returns every live memory for the user, newest first.
func (m *Manager) ExportMemories(ctx context.Context) ([]*Memory, error) {
	records, err := m.store.LoadAllMemories(ctx, m.userID)
	if err != nil {
		return nil, NewMemoryError("ExportMemories", err)
	}
	memories := make([]*Memory, 0, len(records))
	for _, rec := range records {
		memories = append(memories, fromRecord(rec))
	}
	return memories, nil
}

// ExportEntities returns every tracked entity for the user.
func (m *Manager) ExportEntities(ctx context.Context) ([]*Entity, error) {
	records, err := m.store.LoadAllEntities(ctx, m.userID)
	if err != nil {
		return nil, NewMemoryError("ExportEntities", err)
	}
	entities := make([]*Entity, 0, len(records))
	for _, rec := range records {
		entities = append(entities, fromEntityRecord(rec))
	}
	return entities, nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
