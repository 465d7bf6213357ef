package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
)

func counter(nodeID string, n uint64) *crdt.Counter {
	c := crdt.NewCounter()
	c.IncrementBy(nodeID, n)
	return c
}

func TestStore_WriteRead(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	_, ok := s.Read("x")
	assert.False(t, ok)

	s.Write("x", counter("node-1", 10))
	v, ok := s.Read("x")
	require.True(t, ok)
	assert.Equal(t, int64(10), v.(*crdt.Counter).Value())

	// Modifying the returned value must not modify the store.
	v.(*crdt.Counter).Increment("node-1")
	v, _ = s.Read("x")
	assert.Equal(t, int64(10), v.(*crdt.Counter).Value())

	// Write replaces the existing value.
	s.Write("x", counter("node-1", 3))
	v, _ = s.Read("x")
	assert.Equal(t, int64(3), v.(*crdt.Counter).Value())

	assert.Equal(t, float64(1), testutil.ToFloat64(s.Metrics().Keys.WithLabelValues("counter")))
}

func TestStore_MergeIn(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())

		result, err := s.MergeIn("x", counter("node-1", 10))
		require.NoError(t, err)
		assert.Equal(t, MergeResultInserted, result)

		v, ok := s.Read("x")
		require.True(t, ok)
		assert.Equal(t, int64(10), v.(*crdt.Counter).Value())
	})

	t.Run("merge", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())
		s.Write("x", counter("node-1", 10))

		result, err := s.MergeIn("x", counter("node-2", 5))
		require.NoError(t, err)
		assert.Equal(t, MergeResultMerged, result)

		// Merging the same state again has no affect.
		_, err = s.MergeIn("x", counter("node-2", 5))
		require.NoError(t, err)

		v, _ := s.Read("x")
		assert.Equal(t, int64(15), v.(*crdt.Counter).Value())
	})

	t.Run("type mismatch", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())
		s.Write("x", counter("node-1", 10))

		tags := crdt.NewTagSet()
		tags.Add("hiking")
		_, err := s.MergeIn("x", tags)
		assert.ErrorIs(t, err, crdt.ErrTypeMismatch)

		v, _ := s.Read("x")
		assert.Equal(t, int64(10), v.(*crdt.Counter).Value())
		assert.Equal(t, float64(1), testutil.ToFloat64(s.Metrics().MergesTotal.WithLabelValues("type_mismatch")))
	})
}

func TestStore_Update(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())

		err := s.Update("x", func(v crdt.Value) (crdt.Value, error) {
			assert.Nil(t, v)
			return counter("node-1", 1), nil
		})
		require.NoError(t, err)

		v, _ := s.Read("x")
		assert.Equal(t, int64(1), v.(*crdt.Counter).Value())
	})

	t.Run("error", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())
		s.Write("x", counter("node-1", 1))

		err := s.Update("x", func(v crdt.Value) (crdt.Value, error) {
			// Modify the copy before failing.
			v.(*crdt.Counter).Increment("node-1")
			return nil, errors.New("fail")
		})
		assert.Error(t, err)

		v, _ := s.Read("x")
		assert.Equal(t, int64(1), v.(*crdt.Counter).Value())
	})

	t.Run("concurrent", func(t *testing.T) {
		s := NewStore(log.NewNopLogger())

		var wg sync.WaitGroup
		for i := 0; i != 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Update("x", func(v crdt.Value) (crdt.Value, error) {
					if v == nil {
						v = crdt.NewCounter()
					}
					v.(*crdt.Counter).Increment("node-1")
					return v, nil
				})
			}()
		}
		wg.Wait()

		v, _ := s.Read("x")
		assert.Equal(t, int64(100), v.(*crdt.Counter).Value())
	})
}

func TestStore_ConcurrentMergeIn(t *testing.T) {
	s := NewStore(log.NewNopLogger())

	var wg sync.WaitGroup
	for i := 0; i != 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// Each peer pushes its own origin, some keys overlap.
			for j := 0; j != 10; j++ {
				_, err := s.MergeIn(
					fmt.Sprintf("key-%d", j),
					counter(fmt.Sprintf("node-%d", i), uint64(i)),
				)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	// Sum of 0..49.
	for j := 0; j != 10; j++ {
		v, ok := s.Read(fmt.Sprintf("key-%d", j))
		require.True(t, ok)
		assert.Equal(t, int64(1225), v.(*crdt.Counter).Value())
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore(log.NewNopLogger())
	s.Write("b", counter("node-1", 1))
	s.Write("a", crdt.NewTagSet())
	s.Write("c", counter("node-1", 2))

	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.Equal(t, 3, s.Len())

	snapshot := s.Snapshot()
	assert.Len(t, snapshot, 3)
	assert.Equal(t, crdt.KindTagSet, snapshot["a"].Kind())
	assert.Equal(t, int64(2), snapshot["c"].(*crdt.Counter).Value())
}
