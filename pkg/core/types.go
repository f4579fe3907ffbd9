package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory is one remembered fact about a user.
type Memory struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	MemoryType      string                 `json:"memory_type"`
	EntityID        string                 `json:"entity_id,omitempty"`
	Content         map[string]interface{} `json:"content"`
	Confidence      float64                `json:"confidence"`
	ImportanceScore float64                `json:"importance_score"`
	Source          string                 `json:"source,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	LastAccessed    time.Time              `json:"last_accessed"`
	AccessCount     int                    `json:"access_count"`
	Associations    []string               `json:"associations,omitempty"`
}

// Entity is a tracked subject of memories, such as a person or topic.
type Entity struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	FirstSeen     time.Time              `json:"first_seen"`
	LastSeen      time.Time              `json:"last_seen"`
	Relationships map[string][]string    `json:"relationships,omitempty"`
}

// MemoryItem is one fact extracted from a conversation analysis.
type MemoryItem struct {
	Type        string `json:"type"`
	Entity      string `json:"entity"`
	Information string `json:"information"`
	Confidence  string `json:"confidence"`
	Source      string `json:"source"`
}

// MemoryAnalysis is the document produced by conversation analysis.
type MemoryAnalysis struct {
	MemoryItems []MemoryItem `json:"memory_items"`
}

// ParseAnalysis decodes and validates an analysis document. Validation is
// all or nothing: one bad item rejects the whole document, so a partial
// batch is never persisted. A document without the memory_items key is
// rejected outright; it is not an empty batch.
func ParseAnalysis(data []byte) (*MemoryAnalysis, error) {
	var doc struct {
		MemoryItems *[]MemoryItem `json:"memory_items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if doc.MemoryItems == nil {
		return nil, fmt.Errorf("%w: missing memory_items", ErrValidation)
	}

	analysis := &MemoryAnalysis{MemoryItems: *doc.MemoryItems}
	for i, item := range analysis.MemoryItems {
		if strings.TrimSpace(item.Type) == "" {
			return nil, fmt.Errorf("%w: item %d: missing type", ErrValidation, i)
		}
		if strings.TrimSpace(item.Entity) == "" {
			return nil, fmt.Errorf("%w: item %d: missing entity", ErrValidation, i)
		}
		if strings.TrimSpace(item.Information) == "" {
			return nil, fmt.Errorf("%w: item %d: missing information", ErrValidation, i)
		}
		if strings.TrimSpace(item.Confidence) == "" {
			return nil, fmt.Errorf("%w: item %d: missing confidence", ErrValidation, i)
		}
		if strings.TrimSpace(item.Source) == "" {
			return nil, fmt.Errorf("%w: item %d: missing source", ErrValidation, i)
		}
	}
	return analysis, nil
}

// ImportanceScore derives the storage ranking score from an item's
// confidence and source labels. Confidence matches case-sensitively;
// source does not.
func ImportanceScore(confidence, source string) float64 {
	score := 0.5
	if confidence == "High" {
		score += 0.3
	}
	if strings.EqualFold(source, "Direct") {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ConfidenceScore maps a confidence label to its numeric value.
func ConfidenceScore(confidence string) float64 {
	if confidence == "High" {
		return 1.0
	}
	return 0.5
}

// NewMemoryFromItem builds a Memory from an extracted item, assigning a
// fresh id and derived scores. The content keeps the item's confidence and
// source labels verbatim; the record's own source field is lower-cased.
func NewMemoryFromItem(userID string, item MemoryItem, now time.Time) *Memory {
	return &Memory{
		ID:         uuid.New().String(),
		UserID:     userID,
		MemoryType: strings.ToLower(item.Type),
		EntityID:   item.Entity,
		Content: map[string]interface{}{
			"entity":      item.Entity,
			"information": item.Information,
			"confidence":  item.Confidence,
			"source":      item.Source,
		},
		Confidence:      ConfidenceScore(item.Confidence),
		ImportanceScore: ImportanceScore(item.Confidence, item.Source),
		Source:          strings.ToLower(item.Source),
		CreatedAt:       now,
		LastAccessed:    now,
		AccessCount:     0,
	}
}
