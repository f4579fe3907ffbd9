package store_test

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/store"
)

func TestTimeRoundTrip(t *testing.T) {
	original := time.Date(2025, 3, 1, 10, 30, 45, 123456000, time.UTC)

	parsed, err := store.ParseTime(store.FormatTime(original))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(original))
}

func TestFormatTimeFixedWidth(t *testing.T) {
	// Timestamps are compared as TEXT by the backends, so the encoding has
	// to be fixed width: trailing zeros must never be trimmed.
	times := []time.Time{
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 10, 0, 0, 100000000, time.UTC),
		time.Date(2025, 3, 1, 10, 0, 0, 120000000, time.UTC),
		time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC),
		time.Date(2025, 12, 31, 23, 59, 59, 999999000, time.UTC),
	}

	var encoded []string
	for _, ts := range times {
		s := store.FormatTime(ts)
		assert.Len(t, s, len(store.TimeLayout))
		encoded = append(encoded, s)
	}

	// Lexicographic order of the encoding equals chronological order.
	assert.True(t, sort.StringsAreSorted(encoded))
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	_, err := store.ParseTime("not a timestamp")
	assert.Error(t, err)
}

func TestMemoryPatchIsEmpty(t *testing.T) {
	assert.True(t, (&store.MemoryPatch{}).IsEmpty())

	count := 1
	assert.False(t, (&store.MemoryPatch{AccessCount: &count}).IsEmpty())
	assert.False(t, (&store.MemoryPatch{Content: map[string]interface{}{}}).IsEmpty())
}
