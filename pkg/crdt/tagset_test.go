package crdt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagSet_AddRemove(t *testing.T) {
	s := NewTagSet()

	added, err := s.Add("hiking")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, s.Contains("hiking"))
	// Adding a present tag is a no-op.
	added, err = s.Add("hiking")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []uint32{0}, s.Added()["hiking"].Versions)

	require.NoError(t, s.Remove("hiking"))
	assert.False(t, s.Contains("hiking"))
	assert.Equal(t, []uint32{0}, s.Removed()["hiking"].Versions)

	// Re-adding records a new version.
	added, err = s.Add("hiking")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, VersionHistory{Count: 2, Versions: []uint32{0, 1}}, s.Added()["hiking"])

	added, err = s.Add("rafting")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"hiking", "rafting"}, s.Tags())
}

func TestTagSet_AddVersionsExhausted(t *testing.T) {
	exhausted := map[string]VersionHistory{
		"hiking": {Count: 2, Versions: []uint32{0, math.MaxUint32}},
	}
	s := NewTagSetFromState(exhausted, exhausted)
	require.False(t, s.Contains("hiking"))

	added, err := s.Add("hiking")
	assert.ErrorIs(t, err, ErrVersionsExhausted)
	assert.False(t, added)
	assert.False(t, s.Contains("hiking"))
	assert.Equal(t, exhausted["hiking"], s.Added()["hiking"])

	// The histories passed in are not modified.
	assert.Equal(t, []uint32{0, math.MaxUint32}, exhausted["hiking"].Versions)

	s.Merge(s.Copy().(*TagSet))
	assert.False(t, s.Contains("hiking"))
	assert.Empty(t, s.Tags())

	// Other tags are unaffected.
	added, err = s.Add("rafting")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestTagSet_RemoveNotPresent(t *testing.T) {
	t.Run("never added", func(t *testing.T) {
		s := NewTagSet()
		assert.ErrorIs(t, s.Remove("hiking"), ErrTagNotPresent)
		assert.Empty(t, s.Removed())
	})

	t.Run("already removed", func(t *testing.T) {
		s := NewTagSet()
		s.Add("hiking")
		require.NoError(t, s.Remove("hiking"))
		assert.ErrorIs(t, s.Remove("hiking"), ErrTagNotPresent)
		assert.Equal(t, uint32(1), s.Removed()["hiking"].Count)
	})
}

func TestTagSet_SameLogicalAdd(t *testing.T) {
	// Replicas starting from the same state assign the same version to the
	// same add.
	base := NewTagSet()
	base.Add("hiking")
	require.NoError(t, base.Remove("hiking"))

	a := base.Copy().(*TagSet)
	b := base.Copy().(*TagSet)
	a.Add("hiking")
	b.Add("hiking")
	assert.Equal(t, a.Added(), b.Added())

	a.Merge(b)
	assert.Equal(t, VersionHistory{Count: 2, Versions: []uint32{0, 1}}, a.Added()["hiking"])
}

func TestTagSet_AddWins(t *testing.T) {
	t.Run("remove without observing add", func(t *testing.T) {
		a := NewTagSet()
		a.Add("hiking")

		b := NewTagSet()
		assert.ErrorIs(t, b.Remove("hiking"), ErrTagNotPresent)

		ab := a.Copy().(*TagSet)
		ab.Merge(b)
		ba := b.Copy().(*TagSet)
		ba.Merge(a)

		assert.Equal(t, []string{"hiking"}, ab.Tags())
		assert.Equal(t, []string{"hiking"}, ba.Tags())
	})

	t.Run("concurrent re-add and remove", func(t *testing.T) {
		base := NewTagSet()
		base.Add("hiking")

		a := base.Copy().(*TagSet)
		b := base.Copy().(*TagSet)

		// a removes and re-adds, b removes the original add only.
		require.NoError(t, a.Remove("hiking"))
		a.Add("hiking")
		require.NoError(t, b.Remove("hiking"))

		a.Merge(b)
		b.Merge(a)
		assert.True(t, a.Contains("hiking"))
		assert.True(t, b.Contains("hiking"))
	})

	t.Run("observed remove", func(t *testing.T) {
		base := NewTagSet()
		base.Add("hiking")

		a := base.Copy().(*TagSet)
		b := base.Copy().(*TagSet)
		require.NoError(t, b.Remove("hiking"))

		a.Merge(b)
		assert.False(t, a.Contains("hiking"))
	})
}

func TestTagSet_MergeIdempotent(t *testing.T) {
	s := NewTagSet()
	s.Add("hiking")
	s.Add("rafting")
	require.NoError(t, s.Remove("rafting"))

	before := s.Copy().(*TagSet)
	s.Merge(s.Copy().(*TagSet))
	s.Merge(before)

	assert.Equal(t, before.Tags(), s.Tags())
	assert.Equal(t, before.Added(), s.Added())
	assert.Equal(t, before.Removed(), s.Removed())
}

func TestTagSet_MergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tags := []string{"hiking", "rafting", "climbing"}

	for i := 0; i != 200; i++ {
		replicas := randomTagSets(rng, tags, 3)
		a, b, c := replicas[0], replicas[1], replicas[2]

		// Commutative.
		ab := merged(a, b)
		ba := merged(b, a)
		assertTagSetsEqual(t, ab, ba)

		// Associative.
		assertTagSetsEqual(t, merged(ab, c), merged(a, merged(b, c)))

		// Idempotent.
		assertTagSetsEqual(t, ab, merged(ab, ab))
	}
}

func TestTagSet_FromState(t *testing.T) {
	s := NewTagSetFromState(
		map[string]VersionHistory{
			"hiking":  {Versions: []uint32{1, 0, 1}},
			"rafting": {Count: 1, Versions: []uint32{0}},
		},
		map[string]VersionHistory{
			"hiking":  {Count: 1, Versions: []uint32{0}},
			"rafting": {Count: 1, Versions: []uint32{0}},
		},
	)
	assert.Equal(t, []string{"hiking"}, s.Tags())
	assert.Equal(t, VersionHistory{Count: 2, Versions: []uint32{0, 1}}, s.Added()["hiking"])
}

func TestMerge_TypeMismatch(t *testing.T) {
	c := NewCounter()
	c.IncrementBy("node-1", 3)

	s := NewTagSet()
	s.Add("hiking")

	assert.ErrorIs(t, Merge(c, s), ErrTypeMismatch)
	assert.Equal(t, int64(3), c.Value())

	assert.ErrorIs(t, Merge(s, c), ErrTypeMismatch)
	assert.Equal(t, []string{"hiking"}, s.Tags())

	other := NewCounter()
	other.IncrementBy("node-2", 2)
	assert.NoError(t, Merge(c, other))
	assert.Equal(t, int64(5), c.Value())
}

func merged(a, b *TagSet) *TagSet {
	m := a.Copy().(*TagSet)
	m.Merge(b)
	return m
}

func assertTagSetsEqual(t *testing.T, expected, actual *TagSet) {
	t.Helper()

	assert.Equal(t, expected.Tags(), actual.Tags())
	assert.Equal(t, expected.Added(), actual.Added())
	assert.Equal(t, expected.Removed(), actual.Removed())
}

// randomTagSets returns n replicas derived from a shared base, where each
// replica applied random adds, removes and merges with earlier replicas.
func randomTagSets(rng *rand.Rand, tags []string, n int) []*TagSet {
	base := NewTagSet()
	for _, tag := range tags {
		if rng.Intn(2) == 0 {
			base.Add(tag)
		}
	}

	var replicas []*TagSet
	for i := 0; i != n; i++ {
		s := base.Copy().(*TagSet)
		ops := rng.Intn(10)
		for j := 0; j != ops; j++ {
			tag := tags[rng.Intn(len(tags))]
			switch rng.Intn(3) {
			case 0:
				s.Add(tag)
			case 1:
				_ = s.Remove(tag)
			case 2:
				if len(replicas) > 0 {
					s.Merge(replicas[rng.Intn(len(replicas))])
				}
			}
		}
		replicas = append(replicas, s)
	}
	return replicas
}
