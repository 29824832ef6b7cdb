package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a real server, e.g. REDIS_URL=redis://localhost:6379/15
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	store, err := NewRedisStoreFromURL(url, "csai:test:", time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	s := New()
	s.EnsureInitialized("welcome")
	s.Remember("q", 10)
	s.SetRole("Teacher")
	require.NoError(t, store.Save(ctx, s))
	defer store.client.Del(ctx, store.key(s.ID))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ChatHistory, got.ChatHistory)
	assert.Equal(t, s.PromptsMemory, got.PromptsMemory)
	assert.Equal(t, "Teacher", got.Role)
	assert.True(t, got.Initialized)

	require.NoError(t, store.client.Del(ctx, store.key(s.ID)).Err())
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStoreFromURLInvalid(t *testing.T) {
	_, err := NewRedisStoreFromURL("not-a-url://", "p:", time.Minute)
	assert.Error(t, err)
}
