package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/core"
	"github.com/recallabs/recallmem-go/pkg/llm"
	sqliteStore "github.com/recallabs/recallmem-go/pkg/store/sqlite"
)

type stubExtractor struct {
	entities []string
	err      error
}

func (s *stubExtractor) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	return s.entities, s.err
}

type stubAnalyzer struct {
	analysis string
	err      error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, messages []llm.Message) (string, error) {
	return s.analysis, s.err
}

func setupManager(t *testing.T, ext *stubExtractor, opts ...core.ManagerOption) (*core.Manager, func()) {
	t.Helper()

	st, err := sqliteStore.NewStore(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "test_recallmem.db"),
	})
	require.NoError(t, err)

	mgr, err := core.NewManager("test_user", st, ext, opts...)
	require.NoError(t, err)

	cleanup := func() {
		_ = mgr.Close()
	}
	return mgr, cleanup
}

const coffeeAnalysis = `{
	"memory_items": [
		{"type": "semantic", "entity": "coffee", "information": "prefers dark roast", "confidence": "High", "source": "Direct"},
		{"type": "episodic", "entity": "trip_berlin", "information": "visited Berlin in March", "confidence": "Low", "source": "Inferred"}
	]
}`

func TestManager_AddMemoryRoundTrip(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{entities: []string{"coffee"}})
	defer cleanup()

	ctx := context.Background()

	added, err := mgr.AddMemory(ctx, []byte(coffeeAnalysis))
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, 1.0, added[0].ImportanceScore)
	assert.Equal(t, 0.5, added[1].ImportanceScore)

	relevant, err := mgr.GetRelevantMemories(ctx, "tell me about coffee")
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, "coffee", relevant[0].EntityID)
	assert.Equal(t, "prefers dark roast", relevant[0].Content["information"])
	assert.Equal(t, "High", relevant[0].Content["confidence"])
	assert.Equal(t, "Direct", relevant[0].Content["source"])
	assert.Equal(t, "semantic", relevant[0].MemoryType)
	assert.Equal(t, "direct", relevant[0].Source)
}

func TestManager_AddMemoryRejectsBadDocument(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{})
	defer cleanup()

	ctx := context.Background()

	// One invalid item rejects the whole batch; nothing is stored.
	_, err := mgr.AddMemory(ctx, []byte(`{
		"memory_items": [
			{"type": "semantic", "entity": "ok", "information": "fine", "confidence": "High", "source": "Direct"},
			{"type": "semantic", "entity": "", "information": "broken", "confidence": "Low", "source": "Inferred"}
		]
	}`))
	assert.True(t, errors.Is(err, core.ErrValidation))

	all, err := mgr.ExportMemories(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManager_AddMemoryRejectsMissingFields(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{})
	defer cleanup()

	ctx := context.Background()

	// A document without the memory_items key is malformed, not an empty
	// batch.
	_, err := mgr.AddMemory(ctx, []byte(`{"not_memory_items": []}`))
	assert.True(t, errors.Is(err, core.ErrValidation))

	// An item without confidence or source is incomplete.
	_, err = mgr.AddMemory(ctx, []byte(`{
		"memory_items": [
			{"type": "semantic", "entity": "coffee", "information": "likes espresso"}
		]
	}`))
	assert.True(t, errors.Is(err, core.ErrValidation))

	all, err := mgr.ExportMemories(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManager_AccessTracking(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mgr, cleanup := setupManager(t,
		&stubExtractor{entities: []string{"coffee"}},
		core.WithClock(clock))
	defer cleanup()

	ctx := context.Background()
	_, err := mgr.AddMemory(ctx, []byte(coffeeAnalysis))
	require.NoError(t, err)

	// The returned record reflects the state before the bookkeeping write.
	now = now.Add(30 * time.Minute)
	first, err := mgr.GetRelevantMemories(ctx, "coffee?")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].AccessCount)

	now = now.Add(time.Hour)
	second, err := mgr.GetRelevantMemories(ctx, "coffee again?")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, second[0].AccessCount)
	assert.True(t, second[0].LastAccessed.After(second[0].CreatedAt))
}

func TestManager_GetRelevantMemoriesFiltersCandidates(t *testing.T) {
	// Every extracted token is noise, so the search falls back to the
	// unfiltered ranked list.
	mgr, cleanup := setupManager(t, &stubExtractor{
		entities: []string{"the", "a", "12", `{"broken`},
	})
	defer cleanup()

	ctx := context.Background()
	_, err := mgr.AddMemory(ctx, []byte(coffeeAnalysis))
	require.NoError(t, err)

	relevant, err := mgr.GetRelevantMemories(ctx, "anything")
	require.NoError(t, err)
	assert.Len(t, relevant, 2)
}

func TestManager_GetRelevantMemoriesMaxResults(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{})
	defer cleanup()

	ctx := context.Background()
	_, err := mgr.AddMemory(ctx, []byte(coffeeAnalysis))
	require.NoError(t, err)

	relevant, err := mgr.GetRelevantMemories(ctx, "anything", core.WithMaxResults(1))
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	// Highest importance wins.
	assert.Equal(t, "coffee", relevant[0].EntityID)
}

func TestManager_GetRelevantMemoriesExtractorFailure(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{err: errors.New("model unavailable")})
	defer cleanup()

	_, err := mgr.GetRelevantMemories(context.Background(), "anything")
	assert.True(t, errors.Is(err, core.ErrLLMOperation))
}

func TestManager_ProcessConversation(t *testing.T) {
	mgr, cleanup := setupManager(t,
		&stubExtractor{},
		core.WithAnalyzer(&stubAnalyzer{analysis: coffeeAnalysis}))
	defer cleanup()

	ctx := context.Background()
	added, err := mgr.ProcessConversation(ctx, []llm.Message{
		{Role: "user", Content: "I only drink dark roast"},
	})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	all, err := mgr.ExportMemories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManager_ProcessConversationWithoutAnalyzer(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{})
	defer cleanup()

	_, err := mgr.ProcessConversation(context.Background(), []llm.Message{
		{Role: "user", Content: "hello"},
	})
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestManager_EntityRoundTrip(t *testing.T) {
	mgr, cleanup := setupManager(t, &stubExtractor{})
	defer cleanup()

	ctx := context.Background()

	missing, err := mgr.GetEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ent := &core.Entity{ID: "e1", Name: "Alice", Type: "person"}
	require.NoError(t, mgr.SaveEntity(ctx, ent))

	ent.Relationships = map[string][]string{"friend": {"e2"}}
	require.NoError(t, mgr.UpdateEntity(ctx, ent))

	got, err := mgr.GetEntity(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string][]string{"friend": {"e2"}}, got.Relationships)

	err = mgr.UpdateEntity(ctx, &core.Entity{ID: "ghost", Name: "Ghost", Type: "person"})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
