// Package store provides interfaces and types for memory storage backends.
//
// It defines the MemoryStore interface that all storage implementations must
// satisfy, along with the persisted record types and patch/option structures.
package store

import (
	"context"
	"errors"
	"time"
)

// Storage-level errors shared by all backends.
var (
	// ErrNotFound indicates that an update targeted a memory or entity that
	// does not exist for the given user.
	ErrNotFound = errors.New("record not found")

	// ErrStorage indicates that the underlying engine failed on a statement.
	ErrStorage = errors.New("storage operation failed")

	// ErrCorruption indicates that persisted content failed to deserialize.
	// It is reported, never repaired.
	ErrCorruption = errors.New("stored content corrupted")
)

// TimeLayout is the fixed-width ISO-8601 UTC format used for all persisted
// timestamps. Fixed width keeps lexicographic and chronological order
// identical, which the search ordering on last_accessed relies on.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the persisted timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// MemoryRecord is a memory as persisted by a backend.
//
// This type is defined in the store package to avoid circular dependencies
// with the core package. It mirrors the core.Memory structure.
type MemoryRecord struct {
	// ID is the unique identifier, generated at creation, immutable.
	ID string

	// UserID is the owning tenant. Every query is scoped by it.
	UserID string

	// MemoryType is one of semantic, episodic, procedural (lower-case).
	MemoryType string

	// EntityID optionally references an EntityRecord. The reference is soft:
	// the schema declares no enforced foreign key for it.
	EntityID string

	// Content is the structured payload, persisted as JSON text. It carries
	// at least information, confidence ("High"/"Low") and source
	// ("Direct"/"Inferred") keys.
	Content map[string]interface{}

	// Confidence is the numeric confidence derived once at creation.
	Confidence float64

	// ImportanceScore is the retrieval-ranking weight, derived once at
	// creation, in [0.0, 1.0].
	ImportanceScore float64

	// Source is the lower-cased origin label, e.g. "direct" or "inferred".
	Source string

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// LastAccessed is when the memory last influenced a retrieval.
	LastAccessed time.Time

	// AccessCount is how many times the memory was returned by retrieval.
	AccessCount int

	// Associations holds ids of related memories. Stored one row per pair;
	// the relation is conceptually symmetric but persisted directed.
	Associations []string
}

// EntityRecord is an entity (person, place, thing, concept) as persisted.
type EntityRecord struct {
	ID         string
	UserID     string
	Name       string
	Type       string
	Attributes map[string]interface{}
	FirstSeen  time.Time
	LastSeen   time.Time

	// Relationships maps a relation type to the related entity ids.
	// UpdateEntity replaces the whole set; partial edits are not supported.
	Relationships map[string][]string
}

// MemoryPatch is the whitelisted set of fields UpdateMemory may change.
// Nil fields are left untouched.
type MemoryPatch struct {
	Content         map[string]interface{}
	LastAccessed    *time.Time
	AccessCount     *int
	ImportanceScore *float64
}

// IsEmpty reports whether the patch changes nothing.
func (p *MemoryPatch) IsEmpty() bool {
	return p == nil ||
		(p.Content == nil && p.LastAccessed == nil &&
			p.AccessCount == nil && p.ImportanceScore == nil)
}

// MemoryStore defines the persistence interface for memories and entities.
//
// All backends (SQLite, PostgreSQL, MySQL) implement this interface against
// the same logical schema, so their on-disk contents are interoperable.
//
// SearchMemories deliberately hides the fuzzy substring matching behind this
// interface: a caller only sees "candidates in, ranked records out", so a
// cleaner matcher can be substituted without changing the public contract.
type MemoryStore interface {
	// AddMemory inserts one memory row plus one association row per
	// associated id. No duplicate-content check is performed; identical
	// facts can be stored twice.
	AddMemory(ctx context.Context, userID string, rec *MemoryRecord) error

	// UpdateMemory applies the patch to the memory identified by
	// (id, userID). Returns ErrNotFound if no such row exists for the user.
	UpdateMemory(ctx context.Context, userID, id string, patch *MemoryPatch) error

	// GetEntity returns the entity with its relationships, or (nil, nil)
	// when no entity matches (id, userID).
	GetEntity(ctx context.Context, userID, id string) (*EntityRecord, error)

	// SaveEntity inserts the entity or, when the id already exists, updates
	// name, type, attributes and last_seen while preserving first_seen.
	// Relationships are replaced wholesale either way. This is the creation
	// path for the extractor-driven flow; UpdateEntity stays strict.
	SaveEntity(ctx context.Context, userID string, ent *EntityRecord) error

	// UpdateEntity updates name, type, attributes and last_seen, then
	// replaces the relationship set wholesale. Returns ErrNotFound if the
	// entity does not already exist for the user.
	UpdateEntity(ctx context.Context, userID string, ent *EntityRecord) error

	// SearchMemories returns memories owned by userID, not marked for
	// deletion, matching any of entityIDs as a substring of either the
	// entity_id column or the serialized content (approximate by design).
	// An empty entityIDs list matches everything for the user. Results are
	// ordered by importance_score descending, then last_accessed
	// descending, truncated to maxResults.
	SearchMemories(ctx context.Context, userID string, entityIDs []string, maxResults int) ([]*MemoryRecord, error)

	// LoadAllMemories exports every live memory for the user with its
	// associations resolved. A row that fails to scan or decode is logged
	// and skipped rather than aborting the load.
	LoadAllMemories(ctx context.Context, userID string) ([]*MemoryRecord, error)

	// LoadAllEntities exports every entity for the user with its
	// relationships resolved, with the same skip-and-log policy.
	LoadAllEntities(ctx context.Context, userID string) ([]*EntityRecord, error)

	// Close releases the backend's resources.
	Close() error
}
