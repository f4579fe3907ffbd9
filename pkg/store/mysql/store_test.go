package mysql_test

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
	mysqlStore "github.com/recallabs/recallmem-go/pkg/store/mysql"
)

// These tests need a running MySQL server; they skip when MYSQL_PASSWORD is
// not set.
func setupMySQLTest(t *testing.T) (*mysqlStore.Store, func()) {
	t.Helper()

	password := os.Getenv("MYSQL_PASSWORD")
	if password == "" {
		t.Skip("Skipping MySQL test: MYSQL_PASSWORD not set")
	}

	host := os.Getenv("MYSQL_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 3306
	if portStr := os.Getenv("MYSQL_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		port = p
	}
	user := os.Getenv("MYSQL_USER")
	if user == "" {
		user = "root"
	}
	dbName := os.Getenv("MYSQL_DBNAME")
	if dbName == "" {
		dbName = "recallmem_test"
	}

	s, err := mysqlStore.NewStore(&mysqlStore.Config{
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

func TestMySQLStore_RoundTrip(t *testing.T) {
	s, cleanup := setupMySQLTest(t)
	defer cleanup()

	ctx := context.Background()
	userID := "mysql_test_user_" + strconv.FormatInt(time.Now().UnixNano(), 10)
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

func TestMySQLStore_UpdateMemoryNotFound(t *testing.T) {
	s, cleanup := setupMySQLTest(t)
	defer cleanup()

	count := 1
	err := s.UpdateMemory(context.Background(), "nobody", "missing",
		&store.MemoryPatch{AccessCount: &count})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
