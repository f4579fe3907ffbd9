package postgres_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/store"
	postgresStore "github.com/recallabs/recallmem-go/pkg/store/postgres"
)

// These tests need a running PostgreSQL server; they skip when
// POSTGRES_PASSWORD is not set.
func setupPostgresTest(t *testing.T) (*postgresStore.Store, func()) {
	t.Helper()

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 5432
	if portStr := os.Getenv("POSTGRES_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		port = p
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	dbName := os.Getenv("POSTGRES_DBNAME")
	if dbName == "" {
		dbName = "recallmem_test"
	}

	s, err := postgresStore.NewStore(&postgresStore.Config{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbName,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}
	return s, cleanup
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	s, cleanup := setupPostgresTest(t)
	defer cleanup()

	ctx := context.Background()
	userID := "pg_test_user_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	created := time.Now().UTC().Truncate(time.Microsecond)

	rec := &store.MemoryRecord{
		ID:         userID + "-mem-1",
		UserID:     userID,
		MemoryType: "semantic",
		EntityID:   "coffee",
		Content: map[string]interface{}{
			"entity":      "coffee",
			"information": "prefers dark roast",
			"confidence":  "High",
			"source":      "Direct",
		},
		Confidence:      1.0,
		ImportanceScore: 0.8,
		Source:          "direct",
		CreatedAt:       created,
		LastAccessed:    created,
	}
	require.NoError(t, s.AddMemory(ctx, userID, rec))

	results, err := s.SearchMemories(ctx, userID, []string{"coffee"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec.ID, results[0].ID)
	assert.Equal(t, "prefers dark roast", results[0].Content["information"])
}

func TestPostgresStore_UpdateMemoryNotFound(t *testing.T) {
	s, cleanup := setupPostgresTest(t)
	defer cleanup()

	count := 1
	err := s.UpdateMemory(context.Background(), "nobody", "missing",
		&store.MemoryPatch{AccessCount: &count})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
