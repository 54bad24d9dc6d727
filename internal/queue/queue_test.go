package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedInsertDedup(t *testing.T) {
	q := NewKeyed[string, string](Config{WarnLimit: 10, DropLimit: 20, MaxSendAttempts: 3})

	require.Equal(t, Inserted, q.Insert("fp-1", "select 1"))
	require.Equal(t, Duplicate, q.Insert("fp-1", "select 1"))
	assert.Equal(t, 1, q.Len())
}

func TestKeyedDropLimit(t *testing.T) {
	q := NewKeyed[string, string](Config{WarnLimit: 1, DropLimit: 2, MaxSendAttempts: 3})

	require.Equal(t, Inserted, q.Insert("a", "x"))
	require.Equal(t, Inserted, q.Insert("b", "y"))
	require.Equal(t, Full, q.Insert("c", "z"))
	assert.Equal(t, 1, q.Dropped())
}

func TestKeyedFIFOOrder(t *testing.T) {
	q := NewKeyed[string, int](DefaultConfig())
	q.Insert("a", 1)
	q.Insert("b", 2)
	q.Insert("c", 3)

	k, v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", k)
	assert.Equal(t, 1, v)

	k, v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", k)
	assert.Equal(t, 2, v)
}

func TestKeyedTrimEvictsExhaustedRetries(t *testing.T) {
	q := NewKeyed[string, int](Config{WarnLimit: 10, DropLimit: 10, MaxSendAttempts: 2})
	q.Insert("a", 1)
	q.Insert("b", 2)

	require.False(t, q.IncrementRetry("a"))
	require.True(t, q.IncrementRetry("a"))

	evicted := q.Trim()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, q.Len())
	assert.False(t, q.Contains("a"))
	assert.True(t, q.Contains("b"))
}

func TestDequeHeadDropOnOverflow(t *testing.T) {
	d := NewDeque[int](2)
	require.Equal(t, Inserted, d.Push(1))
	require.Equal(t, Inserted, d.Push(2))
	require.Equal(t, Full, d.Push(3))
	assert.Equal(t, 1, d.Dropped())
	assert.Equal(t, 2, d.Len())

	v, ok := d.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = d.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestDequeTrimEnforcesDropLimit(t *testing.T) {
	d := NewDeque[int](3)
	d.items = append(d.items, 1, 2, 3, 4, 5)

	evicted := d.Trim()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 2, d.Dropped())

	v, ok := d.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
