package transcript

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelstream/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "ai_sessions:missing")
	require.ErrorIs(t, err, ErrNotFound)

	data := json.RawMessage(`[{"id":"s1","messages":[{"role":"user","content":"hi"}]}]`)
	require.NoError(t, s.Save(ctx, Record{Key: "ai_sessions:c1", Data: data}))

	rec, err := s.Load(ctx, "ai_sessions:c1")
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(rec.Data))
	assert.False(t, rec.UpdatedAt.IsZero())

	updated := json.RawMessage(`[]`)
	require.NoError(t, s.Save(ctx, Record{Key: "ai_sessions:c1", Data: updated, UpdatedAt: time.Now().Add(time.Minute)}))
	rec, err = s.Load(ctx, "ai_sessions:c1")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(rec.Data))

	require.NoError(t, s.Delete(ctx, "ai_sessions:c1"))
	_, err = s.Load(ctx, "ai_sessions:c1")
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Save(ctx, Record{Data: data}))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis integration tests")
	}
	s, err := NewRedisStore(context.Background(), RedisConfig{
		Addr:   addr,
		Prefix: "novelstream-test-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Backend: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)

	_, err = Open(context.Background(), config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}
