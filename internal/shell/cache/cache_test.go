package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/shell/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupInner(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

// memoryClient connects to an in-process Redis server.
func memoryClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// racingStore runs during after loading a row and before returning it, the
// window in which a concurrent update can commit.
type racingStore struct {
	store.Store
	during func()
}

func (r *racingStore) GetFunction(ctx context.Context, id string) (*function.Function, error) {
	fn, err := r.Store.GetFunction(ctx, id)
	if err == nil && r.during != nil {
		during := r.during
		r.during = nil
		during()
	}
	return fn, err
}

// =============================================================================
// Fallthrough Tests (no Redis required)
// =============================================================================

func TestGetFunction_RedisDownFallsThrough(t *testing.T) {
	c := New(setupInner(t), unreachableClient(t), time.Minute, testLogger())

	fn, err := c.GetFunction(context.Background(), "fn-123")
	require.NoError(t, err)
	assert.Equal(t, "MyTestFunction", fn.Name)
}

func TestGetFunction_NotFoundPassesThrough(t *testing.T) {
	c := New(setupInner(t), unreachableClient(t), time.Minute, testLogger())

	_, err := c.GetFunction(context.Background(), "fn-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateAndDelete_RedisDown(t *testing.T) {
	c := New(setupInner(t), unreachableClient(t), time.Minute, testLogger())
	ctx := context.Background()

	fn, err := c.GetFunction(ctx, "fn-456")
	require.NoError(t, err)
	fn.Timeout = 99
	require.NoError(t, c.UpdateFunction(ctx, fn))
	require.NoError(t, c.DeleteFunction(ctx, "fn-456"))

	_, err = c.GetFunction(ctx, "fn-456")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewClient(ctx, Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c := New(setupInner(t), unreachableClient(t), 0, nil)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.NotNil(t, c.logger)
}

// =============================================================================
// In-process Redis Tests
// =============================================================================

func TestGetFunction_CachesRecord(t *testing.T) {
	client, _ := memoryClient(t)
	inner := setupInner(t)
	c := New(inner, client, time.Minute, testLogger())
	ctx := context.Background()

	fn, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)

	exists, err := client.Exists(ctx, functionKey("fn-123")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Bypass the cache to change the row; the cached copy is still served.
	stale := *fn
	stale.Name = "Renamed"
	require.NoError(t, inner.UpdateFunction(ctx, &stale))

	cached, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)
	assert.Equal(t, "MyTestFunction", cached.Name)
	assert.Equal(t, fn.Config, cached.Config)
}

func TestUpdateFunction_Invalidates(t *testing.T) {
	client, _ := memoryClient(t)
	c := New(setupInner(t), client, time.Minute, testLogger())
	ctx := context.Background()

	fn, err := c.GetFunction(ctx, "fn-456")
	require.NoError(t, err)

	fn.Apply(fn.Config, function.StatusDeploying)
	require.NoError(t, c.UpdateFunction(ctx, fn))

	exists, err := client.Exists(ctx, functionKey("fn-456")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	version, err := client.Get(ctx, versionKey("fn-456")).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	ttl, err := client.PTTL(ctx, versionKey("fn-456")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	got, err := c.GetFunction(ctx, "fn-456")
	require.NoError(t, err)
	assert.Equal(t, function.StatusDeploying, got.Status)

	exists, err = client.Exists(ctx, functionKey("fn-456")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "fill after invalidation uses the new version")
}

func TestWithTx_InvalidatesAfterCommit(t *testing.T) {
	client, _ := memoryClient(t)
	c := New(setupInner(t), client, time.Minute, testLogger())
	ctx := context.Background()

	_, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)

	err = c.WithTx(ctx, func(tx store.Store) error {
		fn, err := tx.GetFunction(ctx, "fn-123")
		if err != nil {
			return err
		}
		fn.Memory = 512
		return tx.UpdateFunction(ctx, fn)
	})
	require.NoError(t, err)

	got, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)
	assert.Equal(t, 512, got.Memory)
}

func TestWithTx_RollbackKeepsEntry(t *testing.T) {
	client, _ := memoryClient(t)
	c := New(setupInner(t), client, time.Minute, testLogger())
	ctx := context.Background()

	_, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)

	err = c.WithTx(ctx, func(tx store.Store) error {
		fn, err := tx.GetFunction(ctx, "fn-123")
		if err != nil {
			return err
		}
		fn.Memory = 512
		if err := tx.UpdateFunction(ctx, fn); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := client.Exists(ctx, functionKey("fn-123")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	got, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)
	assert.Equal(t, 256, got.Memory)
}

func TestGetFunction_FillRacingUpdateIsDropped(t *testing.T) {
	client, _ := memoryClient(t)
	inner := &racingStore{Store: setupInner(t)}
	c := New(inner, client, time.Minute, testLogger())
	ctx := context.Background()

	inner.during = func() {
		fresh, err := inner.Store.GetFunction(ctx, "fn-456")
		require.NoError(t, err)
		fresh.Apply(fresh.Config, function.StatusDeploying)
		require.NoError(t, c.UpdateFunction(ctx, fresh))
	}

	old, err := c.GetFunction(ctx, "fn-456")
	require.NoError(t, err)
	assert.Equal(t, function.StatusDraft, old.Status)

	exists, err := client.Exists(ctx, functionKey("fn-456")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists, "stale row must not be cached")

	got, err := c.GetFunction(ctx, "fn-456")
	require.NoError(t, err)
	assert.Equal(t, function.StatusDeploying, got.Status)
}

func TestGetFunction_EntryExpires(t *testing.T) {
	client, mr := memoryClient(t)
	c := New(setupInner(t), client, time.Minute, testLogger())
	ctx := context.Background()

	_, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)
	assert.True(t, mr.Exists(functionKey("fn-123")))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(functionKey("fn-123")))
}

func TestGetFunction_UndecodableEntryIsReplaced(t *testing.T) {
	client, mr := memoryClient(t)
	c := New(setupInner(t), client, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, mr.Set(functionKey("fn-123"), "{not json"))

	fn, err := c.GetFunction(ctx, "fn-123")
	require.NoError(t, err)
	assert.Equal(t, "MyTestFunction", fn.Name)

	raw, err := mr.Get(functionKey("fn-123"))
	require.NoError(t, err)
	assert.Contains(t, raw, "MyTestFunction")
}
