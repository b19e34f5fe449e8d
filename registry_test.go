package monitor

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGet(t *testing.T) {
	r := NewRegistry()
	c := NewCounter()

	require.NoError(t, r.Add("requests", c))

	m, ok := r.Get("requests")
	require.True(t, ok)
	assert.Same(t, c, m)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry()
	m1 := NewMeter()
	m2 := NewMeter()

	require.NoError(t, r.Add("x", m1))
	err := r.Add("x", m2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateName))

	m, _ := r.Get("x")
	assert.Same(t, m1, m)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InvalidName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"", "a b", "tab\tname", "line\n", ".lead", "trail."} {
		err := r.Add(name, NewCounter())
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
	assert.Equal(t, 0, r.Len())

	assert.NoError(t, r.Add("a.b.c", NewCounter()))
}

func TestRegistry_NilMetric(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Add("x", nil), ErrNilMetric)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("x", NewCounter()))

	assert.True(t, r.Remove("x"))
	assert.False(t, r.Remove("x"))
	assert.Equal(t, 0, r.Len())

	// The name can be reused after removal.
	assert.NoError(t, r.Add("x", NewGauge()))
}

func TestRegistry_EntriesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, r.Add(name, NewCounter()))
	}

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
	assert.Equal(t, "c", entries[2].Name)

	// Entries is a copy.
	r.Remove("a")
	assert.Len(t, entries, 3)
	assert.Len(t, r.Entries(), 2)
}

func TestRegistry_ConcurrentAdd(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	dups := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Add(fmt.Sprintf("m%d", i%10), NewCounter())
			if errors.Is(err, ErrDuplicateName) {
				mu.Lock()
				dups++
				mu.Unlock()
			}
			_ = r.Entries()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 90, dups)
}
