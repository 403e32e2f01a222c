package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "nlq:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	total := int64(42)

	in := &models.QueryResult{
		QueryID: "q1",
		Status:  models.StatusCompleted,
		Columns: []models.ColumnDescriptor{{Name: "status", Type: "TEXT"}, {Name: "amount", Type: "FLOAT8"}},
		Rows: []models.Row{
			{"status": "shipped", "amount": 10.5, "id": int64(7)},
		},
		RowCount:      1,
		TotalRows:     &total,
		Truncated:     true,
		ExecutionTime: 1500 * time.Millisecond,
	}
	require.NoError(t, store.Set(ctx, "k", in, time.Minute))
	assert.True(t, mr.Exists("nlq:k"))

	out, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, in.QueryID, out.QueryID)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Columns, out.Columns)
	assert.Equal(t, "shipped", out.Rows[0]["status"])
	assert.Equal(t, 10.5, out.Rows[0]["amount"])
	assert.Equal(t, int64(7), out.Rows[0]["id"])
	require.NotNil(t, out.TotalRows)
	assert.Equal(t, total, *out.TotalRows)
	assert.True(t, out.Truncated)
	assert.Equal(t, in.ExecutionTime, out.ExecutionTime)
}

func TestRedisStore_MissAndExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "k", resultWith("q", 1), 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestResultCache_UsesSharedTier(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "warm", resultWith("from-redis", 2), time.Minute))

	c, _ := newTestCache(t, store)
	var calls atomic.Int32

	r, err := c.GetOrCompute(ctx, "warm", time.Minute, counting(&calls, resultWith("computed", 1), nil))
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.True(t, r.Cached)
	assert.Equal(t, "from-redis", r.QueryID)

	_, err = c.GetOrCompute(ctx, "cold", time.Minute, counting(&calls, resultWith("computed", 1), nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	stored, err := store.Get(ctx, "cold")
	require.NoError(t, err)
	assert.Equal(t, "computed", stored.QueryID, "leader populates the shared tier")
}

func TestResultCache_SharedTierFailureFallsBackToCompute(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	c, _ := newTestCache(t, store)
	var calls atomic.Int32

	r, err := c.GetOrCompute(context.Background(), "k", time.Minute, counting(&calls, resultWith("q", 1), nil))
	require.NoError(t, err)
	assert.Equal(t, "q", r.QueryID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client, "empty host disables the shared tier")

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err = NewRedisClient(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}
