// Package mysql provides the MySQL implementation of the memory store.
//
// Schema and semantics match the SQLite backend. TEXT columns that carry
// primary keys or indexed values use VARCHAR because MySQL cannot index
// unbounded TEXT without a prefix length.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/recallabs/recallmem-go/pkg/store"
)

// Store implements store.MemoryStore using MySQL as the backend.
type Store struct {
	db *sql.DB
}

// Config contains MySQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewStore connects to MySQL and initializes the schema.
func NewStore(cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			memory_type VARCHAR(64) NOT NULL,
			entity_id VARCHAR(255),
			content LONGTEXT NOT NULL,
			confidence DOUBLE,
			importance_score DOUBLE DEFAULT 0.0,
			source VARCHAR(64),
			created_at VARCHAR(32) NOT NULL,
			last_accessed VARCHAR(32) NOT NULL,
			access_count INT DEFAULT 0,
			marked_for_deletion TINYINT DEFAULT 0,
			processed TINYINT DEFAULT 0,
			INDEX idx_memories_user (user_id),
			INDEX idx_memories_type (memory_type),
			INDEX idx_memories_entity (entity_id),
			INDEX idx_memories_importance (importance_score)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_associations (
			memory_id VARCHAR(64),
			associated_memory_id VARCHAR(64),
			PRIMARY KEY(memory_id, associated_memory_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(64) NOT NULL,
			attributes LONGTEXT,
			first_seen VARCHAR(32) NOT NULL,
			last_seen VARCHAR(32) NOT NULL,
			INDEX idx_entities_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_relationships (
			entity_id VARCHAR(255),
			related_entity_id VARCHAR(255),
			relationship_type VARCHAR(64) NOT NULL,
			PRIMARY KEY(entity_id, related_entity_id, relationship_type)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initSchema: %w: %v", store.ErrStorage, err)
		}
	}
	return nil
}

// AddMemory inserts one memory row and its association rows.
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
			INSERT IGNORE INTO memory_associations (memory_id, associated_memory_id)
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

	query := "UPDATE memories SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND user_id = ?"
	args = append(args, id, userID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w: %v", store.ErrStorage, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateMemory: %w: %v", store.ErrStorage, err)
	}
	if affected == 0 {
		// MySQL reports zero affected rows for no-op updates too, so
		// distinguish a missing row from an unchanged one.
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
	}
	return nil
}

// SearchMemories returns ranked memories for the user with the same fuzzy
// substring semantics as the SQLite backend.
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
			pattern := "%" + entityID + "%"
			conds = append(conds, "entity_id LIKE ?", "content LIKE ?")
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

// LoadAllMemories exports every live memory for the user, newest first,
// skipping and logging undecodable rows.
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

// GetEntity returns the entity and its relationships, or (nil, nil) when no
// entity matches (id, userID).
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

// UpdateEntity updates the entity row and replaces its relationships.
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

	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM entities WHERE id = ? AND user_id = ?", ent.ID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("UpdateEntity: %w", store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, type = ?, attributes = ?, last_seen = ?
		WHERE id = ? AND user_id = ?
	`,
		ent.Name, ent.Type, string(attrsJSON), store.FormatTime(ent.LastSeen),
		ent.ID, userID,
	); err != nil {
		return fmt.Errorf("UpdateEntity: %w: %v", store.ErrStorage, err)
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
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			type = VALUES(type),
			attributes = VALUES(attributes),
			last_seen = VALUES(last_seen)
	`,
		ent.ID, userID, ent.Name, ent.Type, string(attrsJSON),
		store.FormatTime(ent.FirstSeen), store.FormatTime(ent.LastSeen),
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

// LoadAllEntities exports every entity for the user with relationships.
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(scanner rowScanner) (*store.MemoryRecord, error) {
	var rec store.MemoryRecord
	var entityID sql.NullString
	var contentStr, createdAt, lastAccessed string

	err := scanner.Scan(
		&rec.ID, &rec.UserID, &rec.MemoryType, &entityID, &contentStr,
		&rec.Confidence, &rec.ImportanceScore, &rec.Source,
		&createdAt, &lastAccessed, &rec.AccessCount,
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

func scanEntity(scanner rowScanner) (*store.EntityRecord, error) {
	var ent store.EntityRecord
	var attrs sql.NullString
	var firstSeen, lastSeen string

	err := scanner.Scan(
		&ent.ID, &ent.UserID, &ent.Name, &ent.Type, &attrs,
		&firstSeen, &lastSeen,
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

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
