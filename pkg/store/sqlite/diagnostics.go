package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/recallabs/recallmem-go/pkg/store"
)

// memoryTables are the tables inspected by integrity checks.
var memoryTables = []string{"memories", "memory_associations", "entities", "entity_relationships"}

// VerifyDatabaseIntegrity reports journal configuration, table shapes, row
// counts, index definitions and foreign-key violations.
func (s *Store) VerifyDatabaseIntegrity(ctx context.Context) (*store.IntegrityReport, error) {
	report := &store.IntegrityReport{
		Tables:  make(map[string]store.TableInfo),
		Indices: make(map[string]string),
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&report.LockTimeout); err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&report.JournalMode); err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}

	for _, table := range memoryTables {
		columns, err := s.tableColumns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w", err)
		}

		var rowCount int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table,
		).Scan(&rowCount); err != nil {
			return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
		}

		report.Tables[table] = store.TableInfo{Columns: columns, RowCount: rowCount}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, tbl_name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'")
	if err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name, table string
		if err := rows.Scan(&name, &table); err != nil {
			return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
		}
		report.Indices[name] = table
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}

	fkRows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var table string
		var rowid sql.NullInt64
		var parent string
		var fkid int
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
		}
		report.Errors = append(report.Errors,
			fmt.Sprintf("foreign key violation: %s -> %s", table, parent))
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("VerifyDatabaseIntegrity: %w: %v", store.ErrStorage, err)
	}

	return report, nil
}

// AnalyzeMemoryDistribution summarizes a user's memories by type, source,
// importance bucket and access pattern.
func (s *Store) AnalyzeMemoryDistribution(ctx context.Context, userID string) (*store.DistributionStats, error) {
	stats := &store.DistributionStats{
		ByType:   make(map[string]int),
		BySource: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE user_id = ?", userID,
	).Scan(&stats.TotalMemories); err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w: %v", store.ErrStorage, err)
	}

	if err := s.countByColumn(ctx, userID, "memory_type", stats.ByType); err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w", err)
	}
	if err := s.countByColumn(ctx, userID, "source", stats.BySource); err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT importance_score FROM memories WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w: %v", store.ErrStorage, err)
		}
		switch {
		case score >= 0.8:
			stats.HighImportance++
		case score >= 0.4:
			stats.MediumImportance++
		default:
			stats.LowImportance++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w: %v", store.ErrStorage, err)
	}

	dayAgo := store.FormatTime(time.Now().Add(-24 * time.Hour))
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE access_count = 0),
			COUNT(*) FILTER (WHERE last_accessed > ?),
			COUNT(*) FILTER (WHERE access_count > 5)
		FROM memories
		WHERE user_id = ?
	`, dayAgo, userID).Scan(
		&stats.NeverAccessed,
		&stats.RecentlyAccessed,
		&stats.FrequentlyAccessed,
	)
	if err != nil {
		return nil, fmt.Errorf("AnalyzeMemoryDistribution: %w: %v", store.ErrStorage, err)
	}

	return stats, nil
}

// countByColumn fills dest with GROUP BY counts over the named memories
// column. The column name comes from a fixed caller-side set, never from
// user input.
func (s *Store) countByColumn(ctx context.Context, userID, column string, dest map[string]int) error {
	query := fmt.Sprintf(
		"SELECT COALESCE(%s, ''), COUNT(*) FROM memories WHERE user_id = ? GROUP BY %s",
		column, column)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var value string
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorage, err)
		}
		dest[value] = count
	}
	return rows.Err()
}

// VerifyMemoryPersistence checks that one memory was persisted intact.
//
// Malformed content JSON is reported as a corruption issue; the row is left
// untouched.
func (s *Store) VerifyMemoryPersistence(ctx context.Context, memoryID string) (*store.PersistenceReport, error) {
	report := &store.PersistenceReport{Intact: true, Associations: []string{}}

	var rec store.MemoryRecord
	var entityID, source sql.NullString
	var contentStr, createdAt, lastAccessed string
	var confidence sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, memory_type, entity_id, content, confidence,
		       importance_score, source, created_at, last_accessed, access_count
		FROM memories WHERE id = ?
	`, memoryID).Scan(
		&rec.ID, &rec.UserID, &rec.MemoryType, &entityID, &contentStr,
		&confidence, &rec.ImportanceScore, &source, &createdAt,
		&lastAccessed, &rec.AccessCount,
	)
	if err == sql.ErrNoRows {
		report.Intact = false
		report.Issues = append(report.Issues, "memory not found")
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("VerifyMemoryPersistence: %w: %v", store.ErrStorage, err)
	}

	report.Exists = true
	rec.EntityID = entityID.String
	rec.Confidence = confidence.Float64
	rec.Source = source.String

	var content map[string]interface{}
	if err := json.Unmarshal([]byte(contentStr), &content); err != nil {
		report.Intact = false
		report.Issues = append(report.Issues,
			fmt.Sprintf("%v: content is not valid JSON", store.ErrCorruption))
	} else {
		rec.Content = content
	}

	if rec.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		report.Intact = false
		report.Issues = append(report.Issues, "created_at is not a valid timestamp")
	}
	if rec.LastAccessed, err = store.ParseTime(lastAccessed); err != nil {
		report.Intact = false
		report.Issues = append(report.Issues, "last_accessed is not a valid timestamp")
	}

	for field, value := range map[string]string{
		"memory_type": rec.MemoryType,
		"content":     contentStr,
		"created_at":  createdAt,
	} {
		if value == "" {
			report.Intact = false
			report.Issues = append(report.Issues, "missing required field: "+field)
		}
	}
	if !confidence.Valid {
		report.Intact = false
		report.Issues = append(report.Issues, "missing required field: confidence")
	}

	report.Record = &rec

	assocRows, err := s.db.QueryContext(ctx,
		"SELECT associated_memory_id FROM memory_associations WHERE memory_id = ?", memoryID)
	if err != nil {
		return nil, fmt.Errorf("VerifyMemoryPersistence: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = assocRows.Close() }()
	for assocRows.Next() {
		var associatedID string
		if err := assocRows.Scan(&associatedID); err != nil {
			return nil, fmt.Errorf("VerifyMemoryPersistence: %w: %v", store.ErrStorage, err)
		}
		report.Associations = append(report.Associations, associatedID)
	}
	return report, assocRows.Err()
}

// CheckMemoryRetrieval probes the retrieval queries with the given
// parameters and records match counts and wall-clock timings.
func (s *Store) CheckMemoryRetrieval(ctx context.Context, userID string, params *store.RetrievalParams) (*store.RetrievalCheck, error) {
	p := params
	if p == nil {
		p = defaultRetrievalParams()
	}
	check := &store.RetrievalCheck{}

	if len(p.EntityIDs) > 0 {
		start := time.Now()
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM memories WHERE user_id = ? AND entity_id IN (%s)",
			placeholders(len(p.EntityIDs)))
		args := append([]interface{}{userID}, toArgs(p.EntityIDs)...)
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&check.EntityMatches); err != nil {
			return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
		}
		check.EntityQueryTime = time.Since(start)
	}

	start := time.Now()
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE user_id = ? AND importance_score >= ?",
		userID, p.MinImportance,
	).Scan(&check.ImportanceMatches); err != nil {
		return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
	}
	check.ImportanceTime = time.Since(start)

	if len(p.MemoryTypes) > 0 {
		start := time.Now()
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM memories WHERE user_id = ? AND memory_type IN (%s)",
			placeholders(len(p.MemoryTypes)))
		args := append([]interface{}{userID}, toArgs(p.MemoryTypes)...)
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&check.TypeMatches); err != nil {
			return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
		}
		check.TypeQueryTime = time.Since(start)
	}

	// Verify the user_id index is actually used by the ranking query.
	planRows, err := s.db.QueryContext(ctx,
		"EXPLAIN QUERY PLAN SELECT * FROM memories WHERE user_id = ? AND importance_score > 0.5",
		userID)
	if err != nil {
		return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
	}
	defer func() { _ = planRows.Close() }()

	indexUsed := false
	for planRows.Next() {
		var id, parent, notused int
		var detail string
		if err := planRows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
		}
		if strings.Contains(strings.ToUpper(detail), "USING INDEX") {
			indexUsed = true
		}
	}
	if err := planRows.Err(); err != nil {
		return nil, fmt.Errorf("CheckMemoryRetrieval: %w: %v", store.ErrStorage, err)
	}
	if !indexUsed {
		check.Issues = append(check.Issues, "index not used for ranking query")
	}

	return check, nil
}

// DiagnoseMemoryIssues runs the full diagnostic suite for a user.
func (s *Store) DiagnoseMemoryIssues(ctx context.Context, userID string) (*store.DiagnosticsReport, error) {
	report := &store.DiagnosticsReport{}

	database, err := s.VerifyDatabaseIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	report.Database = database
	report.Issues = append(report.Issues, database.Errors...)

	memories, err := s.AnalyzeMemoryDistribution(ctx, userID)
	if err != nil {
		return nil, err
	}
	report.Memories = memories
	if memories.TotalMemories == 0 {
		report.Issues = append(report.Issues, "no memories found for user")
		report.Recommendations = append(report.Recommendations, "verify memory creation process")
	}

	retrieval, err := s.CheckMemoryRetrieval(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	report.Retrieval = retrieval
	report.Issues = append(report.Issues, retrieval.Issues...)

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_associations ma
		LEFT JOIN memories m ON ma.memory_id = m.id
		LEFT JOIN memories a ON ma.associated_memory_id = a.id
		WHERE m.id IS NULL OR a.id IS NULL
	`).Scan(&report.OrphanedLinks); err != nil {
		return nil, fmt.Errorf("DiagnoseMemoryIssues: %w: %v", store.ErrStorage, err)
	}
	if report.OrphanedLinks > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("found %d orphaned associations", report.OrphanedLinks))
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT content FROM memories
			WHERE user_id = ?
			GROUP BY content
			HAVING COUNT(*) > 1
		)
	`, userID).Scan(&report.DuplicateGroups); err != nil {
		return nil, fmt.Errorf("DiagnoseMemoryIssues: %w: %v", store.ErrStorage, err)
	}
	if report.DuplicateGroups > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("found %d duplicate memory contents", report.DuplicateGroups))
	}

	return report, nil
}

// defaultRetrievalParams is the probe set used when the caller passes nil.
func defaultRetrievalParams() *store.RetrievalParams {
	return &store.RetrievalParams{
		EntityIDs:     []string{"user_preferences", "user_conversation"},
		MemoryTypes:   []string{"semantic", "episodic"},
		MinImportance: 0.5,
	}
}

// tableColumns returns the column names of a table.
func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
