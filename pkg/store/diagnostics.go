package store

import (
	"context"
	"time"
)

// Diagnostics is the optional health-check surface a backend may expose.
// It is operational tooling, not request-path logic; every operation is
// read-only. The SQLite backend implements it for the local store.
type Diagnostics interface {
	// VerifyDatabaseIntegrity reports journal configuration, table shapes,
	// row counts, indices and foreign-key violations.
	VerifyDatabaseIntegrity(ctx context.Context) (*IntegrityReport, error)

	// AnalyzeMemoryDistribution summarizes a user's memories by type,
	// source, importance bucket and access pattern.
	AnalyzeMemoryDistribution(ctx context.Context, userID string) (*DistributionStats, error)

	// VerifyMemoryPersistence checks that a specific memory was persisted
	// intact, including its associations and content JSON. Malformed
	// content is reported as a corruption issue, never repaired.
	VerifyMemoryPersistence(ctx context.Context, memoryID string) (*PersistenceReport, error)

	// CheckMemoryRetrieval probes retrieval queries with the given
	// parameters and reports match counts and timings.
	CheckMemoryRetrieval(ctx context.Context, userID string, params *RetrievalParams) (*RetrievalCheck, error)

	// DiagnoseMemoryIssues combines the checks above and scans for orphaned
	// associations and duplicate content.
	DiagnoseMemoryIssues(ctx context.Context, userID string) (*DiagnosticsReport, error)
}

// TableInfo describes one table in an integrity report.
type TableInfo struct {
	Columns  []string `json:"columns"`
	RowCount int      `json:"row_count"`
}

// IntegrityReport is the result of VerifyDatabaseIntegrity.
type IntegrityReport struct {
	JournalMode string               `json:"journal_mode"`
	LockTimeout int                  `json:"lock_timeout"`
	Tables      map[string]TableInfo `json:"tables"`
	Indices     map[string]string    `json:"indices"`
	Errors      []string             `json:"errors"`
}

// DistributionStats is the result of AnalyzeMemoryDistribution.
//
// Importance buckets: high >= 0.8, medium >= 0.4, low below that.
// Access buckets: never accessed, accessed within the last 24h, accessed
// more than 5 times. The buckets overlap; each memory is counted in every
// bucket it satisfies.
type DistributionStats struct {
	TotalMemories int            `json:"total_memories"`
	ByType        map[string]int `json:"by_type"`
	BySource      map[string]int `json:"by_source"`

	HighImportance   int `json:"high_importance"`
	MediumImportance int `json:"medium_importance"`
	LowImportance    int `json:"low_importance"`

	NeverAccessed      int `json:"never_accessed"`
	RecentlyAccessed   int `json:"recently_accessed"`
	FrequentlyAccessed int `json:"frequently_accessed"`
}

// PersistenceReport is the result of VerifyMemoryPersistence.
type PersistenceReport struct {
	Exists       bool          `json:"exists"`
	Record       *MemoryRecord `json:"record,omitempty"`
	Associations []string      `json:"associations"`
	Intact       bool          `json:"intact"`
	Issues       []string      `json:"issues"`
}

// RetrievalParams parameterizes CheckMemoryRetrieval.
type RetrievalParams struct {
	EntityIDs     []string
	MemoryTypes   []string
	MinImportance float64
}

// RetrievalCheck is the result of CheckMemoryRetrieval.
type RetrievalCheck struct {
	EntityMatches     int           `json:"entity_matches"`
	ImportanceMatches int           `json:"importance_matches"`
	TypeMatches       int           `json:"type_matches"`
	EntityQueryTime   time.Duration `json:"entity_query_time"`
	ImportanceTime    time.Duration `json:"importance_query_time"`
	TypeQueryTime     time.Duration `json:"type_query_time"`
	Issues            []string      `json:"issues"`
}

// DiagnosticsReport is the result of DiagnoseMemoryIssues.
type DiagnosticsReport struct {
	Database        *IntegrityReport   `json:"database"`
	Memories        *DistributionStats `json:"memories"`
	Retrieval       *RetrievalCheck    `json:"retrieval"`
	OrphanedLinks   int                `json:"orphaned_links"`
	DuplicateGroups int                `json:"duplicate_groups"`
	Issues          []string           `json:"issues"`
	Recommendations []string           `json:"recommendations"`
}
