package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "logs/quality_report.json", "application/json", bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	assert.Equal(t, "memory://logs/quality_report.json", uri)

	got, ok := store.Object("logs/quality_report.json")
	require.True(t, ok)
	got[0] = 'C'
	again, _ := store.Object("logs/quality_report.json")
	assert.Equal(t, "content", string(again))

	_, ok = store.Object("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"logs/quality_report.json"}, store.Paths())
}
