package cache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

// TestSegmentCache_SetAndGet verifies the basic Set and Get operations.
func TestSegmentCache_SetAndGet(t *testing.T) {
	provider := func() map[string]struct{} {
		return make(map[string]struct{})
	}
	sc := New(&mockLogger{}, provider)

	key := "test_segment_1"
	data := []byte("segment data")

	_, found := sc.Get(key)
	assert.False(t, found)

	sc.Set(key, data)

	retrieved, found := sc.Get(key)
	require.True(t, found)
	assert.Equal(t, data, retrieved)
	assert.Equal(t, 1, sc.Len())
}

// TestSegmentCache_Eviction verifies that eviction removes exactly the
// segments the provider no longer reports as active.
func TestSegmentCache_Eviction(t *testing.T) {
	activeKeys := map[string]struct{}{
		"active_segment_1": {},
		"active_segment_2": {},
	}
	provider := func() map[string]struct{} {
		return activeKeys
	}

	sc := New(&mockLogger{}, provider)

	sc.Set("active_segment_1", []byte("data1"))
	sc.Set("inactive_segment_1", []byte("data2"))
	sc.Set("active_segment_2", []byte("data3"))
	sc.Set("inactive_segment_2", []byte("data4"))

	evicted := sc.RunEviction()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 2, sc.Len())

	_, found := sc.Get("active_segment_1")
	assert.True(t, found, "active_segment_1 should not be evicted")
	_, found = sc.Get("active_segment_2")
	assert.True(t, found, "active_segment_2 should not be evicted")
	_, found = sc.Get("inactive_segment_1")
	assert.False(t, found, "inactive_segment_1 should have been evicted")
	_, found = sc.Get("inactive_segment_2")
	assert.False(t, found, "inactive_segment_2 should have been evicted")

	// Nothing left to evict on a second pass.
	assert.Equal(t, 0, sc.RunEviction())
}

// TestSegmentCache_ConcurrentAccess verifies that the cache handles concurrent reads and writes safely.
func TestSegmentCache_ConcurrentAccess(t *testing.T) {
	provider := func() map[string]struct{} {
		return make(map[string]struct{})
	}
	sc := New(&mockLogger{}, provider)

	var wg sync.WaitGroup
	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "concurrent_key_" + strconv.Itoa(i)
			sc.Set(key, []byte("data_"+strconv.Itoa(i)))
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Reads may race ahead of the matching write, which is fine.
			// The test is for race conditions, not guaranteed presence.
			sc.Get("concurrent_key_" + strconv.Itoa(i))
		}(i)
	}

	wg.Wait()
	assert.Equal(t, numGoroutines, sc.Len())
}
