package core

import "github.com/recallabs/recallmem-go/pkg/store"

// Converters between the engine's public types and the storage records.
// The record types live in the store package to avoid a circular
// dependency between core and the backend packages.

func toRecord(m *Memory) *store.MemoryRecord {
	return &store.MemoryRecord{
		ID:              m.ID,
		UserID:          m.UserID,
		MemoryType:      m.MemoryType,
		EntityID:        m.EntityID,
		Content:         m.Content,
		Confidence:      m.Confidence,
		ImportanceScore: m.ImportanceScore,
		Source:          m.Source,
		CreatedAt:       m.CreatedAt,
		LastAccessed:    m.LastAccessed,
		AccessCount:     m.AccessCount,
		Associations:    m.Associations,
	}
}

func fromRecord(rec *store.MemoryRecord) *Memory {
	return &Memory{
		ID:              rec.ID,
		UserID:          rec.UserID,
		MemoryType:      rec.MemoryType,
		EntityID:        rec.EntityID,
		Content:         rec.Content,
		Confidence:      rec.Confidence,
		ImportanceScore: rec.ImportanceScore,
		Source:          rec.Source,
		CreatedAt:       rec.CreatedAt,
		LastAccessed:    rec.LastAccessed,
		AccessCount:     rec.AccessCount,
		Associations:    rec.Associations,
	}
}

func toEntityRecord(e *Entity) *store.EntityRecord {
	return &store.EntityRecord{
		ID:            e.ID,
		UserID:        e.UserID,
		Name:          e.Name,
		Type:          e.Type,
		Attributes:    e.Attributes,
		FirstSeen:     e.FirstSeen,
		LastSeen:      e.LastSeen,
		Relationships: e.Relationships,
	}
}

func fromEntityRecord(rec *store.EntityRecord) *Entity {
	return &Entity{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Name:          rec.Name,
		Type:          rec.Type,
		Attributes:    rec.Attributes,
		FirstSeen:     rec.FirstSeen,
		LastSeen:      rec.LastSeen,
		Relationships: rec.Relationships,
	}
}
