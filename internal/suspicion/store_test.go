package suspicion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CountsWithinWindow(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := s.Incr(ctx, "10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// Another origin counts independently.
	count, err := s.Incr(ctx, "10.0.0.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_WindowRollover(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	ctx := context.Background()

	_, err := s.Incr(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	count, err := s.Incr(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	now = now.Add(61 * time.Second)

	count, err = s.Incr(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_CountsAndExpires(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(&RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := store.Incr(ctx, "10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	mr.FastForward(61 * time.Second)

	count, err := store.Incr(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(&RedisConfig{Addr: mr.Addr(), KeyPrefix: "gw:fail:"})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Incr(context.Background(), "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("gw:fail:10.0.0.1"))
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(nil)
	assert.Error(t, err)

	_, err = NewRedisStore(&RedisConfig{})
	assert.Error(t, err)
}
