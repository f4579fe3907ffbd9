// Package sqlite provides the SQLite implementation of the memory store.
//
// SQLite is the default backend: a lightweight file-based database suited to
// a per-process assistant. The store runs in WAL mode with synchronous=NORMAL
// so concurrent readers never block on the single writer and throughput is
// favored over guaranteed durability of the very last write on crash.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recallabs/recallmem-go/pkg/store"
)

// Store implements store.MemoryStore using SQLite as the backend.
type Store struct {
	// db is the SQLite database connection pool.
	db *sql.DB

	// dbPath is the on-disk location of the database file.
	dbPath string
}

// Config contains configuration for creating a SQLite memory store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewStore opens or creates a SQLite memory store at the configured path.
//
// Parent directories are created as needed. The schema (four tables plus
// indices) is initialized idempotently.
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("NewStore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-2000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	s := &Store{db: db, dbPath: cfg.DBPath}

	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the four tables and their indices.
//
// memories.entity_id is a soft reference: no foreign key is declared for it.
// The association and relationship tables declare foreign keys, but the
// foreign_keys pragma is left off, so dangling edges are possible and
// surfaced only by diagnostics. Cascading deletes are not implemented.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		entity_id TEXT,
		content TEXT NOT NULL,
		confidence REAL,
		importance_score REAL DEFAULT 0.0,
		source TEXT,
		created_at TEXT NOT NULL,
		last_accessed TEXT NOT NULL,
		access_count INTEGER DEFAULT 0,
		marked_for_deletion INTEGER DEFAULT 0,
		processed INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS memory_associations (
		memory_id TEXT,
		associated_memory_id TEXT,
		FOREIGN KEY(memory_id) REFERENCES memories(id),
		FOREIGN KEY(associated_memory_id) REFERENCES memories(id),
		PRIMARY KEY(memory_id, associated_memory_id)
	);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		attributes TEXT,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entity_relationships (
		entity_id TEXT,
		related_entity_id TEXT,
		relationship_type TEXT NOT NULL,
		FOREIGN KEY(entity_id) REFERENCES entities(id),
		FOREIGN KEY(related_entity_id) REFERENCES entities(id),
		PRIMARY KEY(entity_id, related_entity_id, relationship_type)
	);

	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_entity ON memories(entity_id);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance_score);
	CREATE INDEX IF NOT EXISTS idx_entities_user ON entities(user_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initSchema: %w: %v", store.ErrStorage, err)
	}
	return nil
}

// AddMemory inserts one memory row and one association row per associated id.
//
// No duplicate-content check is performed: storing the same fact twice
// produces two rows.
func (s *Store) AddMemory(ctx context.Context, userID string, rec *store.MemoryRecord) error {
	contentJSON, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("AddMemory: marshal content: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AddMemory: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, memory_type, entity_id, content, confidence,
		 importance_score, source, created_at, last_accessed, access_count,
		 marked_for_deletion, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
	`,
		rec.ID,
		userID,
		strings.ToLower(rec.MemoryType),
		nullable(rec.EntityID),
		string(contentJSON),
		rec.Confidence,
		rec.ImportanceScore,
		rec.Source,
		store.FormatTime(rec.CreatedAt),
		store.FormatTime(rec.LastAccessed),
		rec.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("AddMemory: %w: %v", store.ErrStorage, err)
	}

	for _, assocID := range rec.Associations {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memory_associations
			(memory_id, associated_memory_id)
			VALUES (?, ?)
		`, rec.ID, assocID)
		if err != nil {
			return fmt.Errorf("AddMemory: association: %w: %v", store.ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("AddMemory: %w: %v", store.ErrStorage, err)
	}
	return nil
}

// UpdateMemory applies the whitelisted patch fields to (id, userID).
func (s *Store) UpdateMemory(ctx context.Context, userID, id string, patch *store.MemoryPatch) error {
	if patch.IsEmpty() {
		// Nothing to write, but the ownership check still applies.
		var one int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM memories WHERE id = ? AND user_id = ?", id, userID,
		).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("UpdateMemory: %w", store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("UpdateMemory: %w: %v", store.ErrStorage, err)
		}
		return nil
	}

	var sets []string
	var args []interface{}

	if patch.Content != nil {
		contentJSON, err := json.Marshal(patch.Content)
		if err != nil {
			return fmt.Errorf("UpdateMemory: marshal content: %w", err)
		}
		sets = append(sets, "content = ?")
		args = append(args, string(contentJSON))
	}
	if patch.LastAccessed != nil {
		sets = append(sets, "last_accessed = ?")
		args = append(args, store.FormatTime(*patch.LastAccessed))
	}
	if patch.AccessCount != nil {
		sets = append(sets, "access_count = ?")
		args = append(args, *patch.AccessCount)
	}
	if patch.ImportanceScore != nil {
		sets = append(sets, "importance_score = ?")
		args = append(args, *patch.ImportanceScore)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf(
		"UPDATE memories SET %s WHERE id = ? AND user_id = ?",
		strings.Join(sets, ", "),
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w: %v", store.ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w: %v", store.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateMemory: %w", store.ErrNotFound)
	}
	return nil
}

// SearchMemories returns ranked memories for the user, optionally narrowed to
// those mentioning any of entityIDs.
//
// Matching is a deliberate substring LIKE against both the entity_id column
// and the serialized content, inherited behavior that the retrieval tests
// depend on. Exact tagging can replace it behind the MemoryStore interface.
func (s *Store) SearchMemories(ctx context.Context, userID string, entityIDs []string, maxResults int) ([]*store.MemoryRecord, error) {
	query := `
		SELECT id, user_id, memory_type, entity_id, content, confidence,
		       importance_score, source, created_at, last_accessed, access_count
		FROM memories
		WHERE user_id = ? AND marked_for_deletion = 0
	`
	args := []interface{}{userID}

	if len(entityIDs) > 0 {
		var conds []string
		for _, entityID := range entityIDs {
			conds = append(conds, "entity_id LIKE ?", "content LIKE ?")
			pattern := "%" + entityID + "%"
			args = append(args, pattern, pattern)
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}

	query += `
		ORDER BY importance_score DESC, last_accessed DESC
		LIMIT ?
	`
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchMemories: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*store.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("SearchMemories: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchMemories: %w: %v", store.ErrStorage, err)
	}

	if err := s.attachAssociations(ctx, records); err != nil {
		return nil, fmt.Errorf("SearchMemories: %w", err)
	}
	return records, nil
}

// LoadAllMemories exports every live memory for the user, newest first.
//
// A row that fails to scan or whose content fails to decode is logged and
// skipped so one bad row does not lose the rest of the export.
func (s *Store) LoadAllMemories(ctx context.Context, userID string) ([]*store.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, memory_type, entity_id, content, confidence,
		       importance_score, source, created_at, last_accessed, access_count
		FROM memories
		WHERE user_id = ? AND marked_for_deletion = 0
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("LoadAllMemories: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*store.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			log.Printf("recallmem: LoadAllMemories: skipping row: %v", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadAllMemories: %w: %v", store.ErrStorage, err)
	}

	if err := s.attachAssociations(ctx, records); err != nil {
		return nil, fmt.Errorf("LoadAllMemories: %w", err)
	}
	return records, nil
}

// GetEntity returns the entity and its grouped relationships, or (nil, nil)
// when no entity matches (id, userID).
func (s *Store) GetEntity(ctx context.Context, userID, id string) (*store.EntityRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, attributes, first_seen, last_seen
		FROM entities
		WHERE id = ? AND user_id = ?
	`, id, userID)

	ent, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetEntity: %w", err)
	}

	ent.Relationships, err = s.loadRelationships(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetEntity: %w", err)
	}
	return ent, nil
}

// UpdateEntity updates the entity row and replaces its relationship set
// wholesale: prior relationships are deleted, then the given set inserted.
func (s *Store) UpdateEntity(ctx context.Context, userID string, ent *store.EntityRecord) error {
	attrsJSON, err := json.Marshal(ent.Attributes)
	if err != nil {
		return fmt.Errorf("UpdateEntity: marshal attributes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, type = ?, attributes = ?, last_seen = ?
		WHERE id = ? AND user_id = ?
	`,
		ent.Name,
		ent.Type,
		string(attrsJSON),
		store.FormatTime(ent.LastSeen),
		ent.ID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateEntity: %w", store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entity_relationships WHERE entity_id = ?", ent.ID,
	); err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}

	for relType, relatedIDs := range ent.Relationships {
		for _, relatedID := range relatedIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entity_relationships
				(entity_id, related_entity_id, relationship_type)
				VALUES (?, ?, ?)
			`, ent.ID, relatedID, relType); err != nil {
				return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}
	return nil
}

// SaveEntity upserts the entity row, preserving first_seen on conflict, and
// replaces its relationships.
func (s *Store) SaveEntity(ctx context.Context, userID string, ent *store.EntityRecord) error {
	attrsJSON, err := json.Marshal(ent.Attributes)
	if err != nil {
		return fmt.Errorf("SaveEntity: marshal attributes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveEntity: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities
		(id, user_id, name, type, attributes, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			attributes = excluded.attributes,
			last_seen = excluded.last_seen
	`,
		ent.ID,
		userID,
		ent.Name,
		ent.Type,
		string(attrsJSON),
		store.FormatTime(ent.FirstSeen),
		store.FormatTime(ent.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("SaveEntity: %w: %v", store.ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entity_relationships WHERE entity_id = ?", ent.ID,
	); err != nil {
		return fmt.Errorf("SaveEntity: %w: %v", store.ErrStorage, err)
	}

	for relType, relatedIDs := range ent.Relationships {
		for _, relatedID := range relatedIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entity_relationships
				(entity_id, related_entity_id, relationship_type)
				VALUES (?, ?, ?)
			`, ent.ID, relatedID, relType); err != nil {
				return fmt.Errorf("SaveEntity: %w: %v", store.ErrStorage, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveEntity: %w: %v", store.ErrStorage, err)
	}
	return nil
}

// LoadAllEntities exports every entity for the user with relationships
// resolved, skipping and logging undecodable rows.
func (s *Store) LoadAllEntities(ctx context.Context, userID string) ([]*store.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, attributes, first_seen, last_seen
		FROM entities
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("LoadAllEntities: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*store.EntityRecord
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			log.Printf("recallmem: LoadAllEntities: skipping row: %v", err)
			continue
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadAllEntities: %w: %v", store.ErrStorage, err)
	}

	for _, ent := range entities {
		ent.Relationships, err = s.loadRelationships(ctx, ent.ID)
		if err != nil {
			return nil, fmt.Errorf("LoadAllEntities: %w", err)
		}
	}
	return entities, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// attachAssociations fills Associations for the given records with a single
// grouped query instead of a per-row string-concatenation join.
func (s *Store) attachAssociations(ctx context.Context, records []*store.MemoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	byID := make(map[string]*store.MemoryRecord, len(records))
	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		placeholders = append(placeholders, "?")
		args = append(args, rec.ID)
	}

	query := fmt.Sprintf(`
		SELECT memory_id, associated_memory_id
		FROM memory_associations
		WHERE memory_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var memoryID, associatedID string
		if err := rows.Scan(&memoryID, &associatedID); err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorage, err)
		}
		if rec, ok := byID[memoryID]; ok {
			rec.Associations = append(rec.Associations, associatedID)
		}
	}
	return rows.Err()
}

// loadRelationships groups a single entity's relationship rows by type.
func (s *Store) loadRelationships(ctx context.Context, entityID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relationship_type, related_entity_id
		FROM entity_relationships
		WHERE entity_id = ?
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	relationships := make(map[string][]string)
	for rows.Next() {
		var relType, relatedID string
		if err := rows.Scan(&relType, &relatedID); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
		}
		relationships[relType] = append(relationships[relType], relatedID)
	}
	return relationships, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans one memory row, decoding content JSON and timestamps.
func scanMemory(scanner rowScanner) (*store.MemoryRecord, error) {
	var rec store.MemoryRecord
	var entityID sql.NullString
	var contentStr, createdAt, lastAccessed string

	err := scanner.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.MemoryType,
		&entityID,
		&contentStr,
		&rec.Confidence,
		&rec.ImportanceScore,
		&rec.Source,
		&createdAt,
		&lastAccessed,
		&rec.AccessCount,
	)
	if err != nil {
		return nil, err
	}

	rec.EntityID = entityID.String

	if err := json.Unmarshal([]byte(contentStr), &rec.Content); err != nil {
		return nil, fmt.Errorf("memory %s: %w: %v", rec.ID, store.ErrCorruption, err)
	}
	if rec.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("memory %s: %w: %v", rec.ID, store.ErrCorruption, err)
	}
	if rec.LastAccessed, err = store.ParseTime(lastAccessed); err != nil {
		return nil, fmt.Errorf("memory %s: %w: %v", rec.ID, store.ErrCorruption, err)
	}
	return &rec, nil
}

// scanEntity scans one entity row, decoding the attributes JSON.
func scanEntity(scanner rowScanner) (*store.EntityRecord, error) {
	var ent store.EntityRecord
	var attrs sql.NullString
	var firstSeen, lastSeen string

	err := scanner.Scan(
		&ent.ID,
		&ent.UserID,
		&ent.Name,
		&ent.Type,
		&attrs,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &ent.Attributes); err != nil {
			return nil, fmt.Errorf("entity %s: %w: %v", ent.ID, store.ErrCorruption, err)
		}
	}
	if ent.FirstSeen, err = store.ParseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("entity %s: %w: %v", ent.ID, store.ErrCorruption, err)
	}
	if ent.LastSeen, err = store.ParseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("entity %s: %w: %v", ent.ID, store.ErrCorruption, err)
	}
	return &ent, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
