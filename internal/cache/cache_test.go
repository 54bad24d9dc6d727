package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Config{Period: time.Minute})

	_, ok, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "fp-1", []byte("reply")))
	v, ok, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("reply"), v)
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Config{Period: time.Millisecond})
	require.NoError(t, s.Put(ctx, "fp-1", []byte("reply")))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreEvict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Config{Period: time.Millisecond})
	require.NoError(t, s.Put(ctx, "fp-1", []byte("reply")))
	time.Sleep(5 * time.Millisecond)

	n := s.Evict()
	assert.Equal(t, 1, n)
	l, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, l)
}
