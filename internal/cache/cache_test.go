package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseProvider(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	_, err := p.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, p.Set(ctx, "k", []byte("v1"), time.Minute))
	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, p.Set(ctx, "k", []byte("v2"), 0))
	got, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, p.Del(ctx, "k"))
	_, err = p.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestValkeyProvider(t *testing.T) {
	srv := miniredis.RunT(t)

	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr()})
	require.NoError(t, err)
	defer p.Close()

	exerciseProvider(t, p)

	require.NoError(t, p.Set(context.Background(), "fw:abc", []byte("x"), 0))
	assert.True(t, srv.Exists(DefaultKeyPrefix+"fw:abc"))

	require.NoError(t, p.Set(context.Background(), "ttl", []byte("x"), time.Second))
	srv.FastForward(2 * time.Second)
	_, err = p.Get(context.Background(), "ttl")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestValkeyProviderCustomPrefix(t *testing.T) {
	srv := miniredis.RunT(t)

	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr(), KeyPrefix: "tenant-a:"})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, srv.Exists("tenant-a:k"))
	assert.False(t, srv.Exists(DefaultKeyPrefix+"k"))
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(ValkeyConfig{})
	assert.Error(t, err)
}

func TestValkeyProviderPingFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewValkeyProvider(ValkeyConfig{Addr: addr, DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestLRUProvider(t *testing.T) {
	p, err := NewLRUProvider(8)
	require.NoError(t, err)
	defer p.Close()

	exerciseProvider(t, p)
}

func TestLRUProviderExpiry(t *testing.T) {
	p, err := NewLRUProvider(8)
	require.NoError(t, err)

	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	require.NoError(t, p.Set(context.Background(), "k", []byte("v"), time.Minute))

	now = now.Add(2 * time.Minute)
	_, err = p.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, p.Set(context.Background(), "k", []byte("again"), time.Minute))
	got, err := p.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), got)
}

func TestLRUProviderEvictsOldest(t *testing.T) {
	p, err := NewLRUProvider(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, p.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, p.Set(ctx, "c", []byte("3"), 0))

	_, err = p.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrCacheMiss))
	got, err := p.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	_, err := p.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.NoError(t, p.Set(context.Background(), "k", nil, 0))
	assert.NoError(t, p.Del(context.Background(), "k"))
	assert.NoError(t, p.Close())
}
