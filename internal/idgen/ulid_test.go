package idgen

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_StrictlyIncreasing(t *testing.T) {
	g := New()
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestNext_ClockStepsBack(t *testing.T) {
	g := New()
	now := time.Now()
	g.now = func() time.Time { return now }
	first := g.Next()

	g.now = func() time.Time { return now.Add(-time.Hour) }
	second := g.Next()

	assert.Greater(t, second, first)
}

func TestObserve(t *testing.T) {
	g := New()
	future := New()
	future.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	floor := future.Next()

	require.NoError(t, g.Observe(floor))
	assert.Greater(t, g.Next(), floor)
	assert.Error(t, g.Observe("not-a-ulid"))
}

func TestNext_Concurrent(t *testing.T) {
	g := New()
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := g.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}

func TestValidAndTime(t *testing.T) {
	g := New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return at }
	id := g.Next()

	assert.True(t, Valid(id))
	assert.False(t, Valid("01ARZ3NDEKTSV4RRFFQ69G5FA"))

	got, err := Time(id)
	require.NoError(t, err)
	assert.True(t, at.Equal(got), got)

	_, err = Time("bogus")
	assert.Error(t, err)
}
