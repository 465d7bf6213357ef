package crdt

import (
	"errors"
	"math"
	"slices"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

var (
	// ErrTagNotPresent is returned when removing a tag that is not in the
	// set. The set is left unchanged.
	ErrTagNotPresent = errors.New("tag not present")

	// ErrVersionsExhausted is returned when adding a tag whose add history
	// already holds the maximum version. The set is left unchanged.
	ErrVersionsExhausted = errors.New("tag versions exhausted")
)

// VersionHistory is the append-only history of add or remove versions for a
// single tag.
type VersionHistory struct {
	// Count is the number of versions, which always equals len(Versions).
	Count uint32 `json:"count" yaml:"count" codec:"count"`

	// Versions contains the recorded versions in ascending order.
	Versions []uint32 `json:"versions" yaml:"versions" codec:"versions"`
}

func (h *VersionHistory) Contains(v uint32) bool {
	_, found := slices.BinarySearch(h.Versions, v)
	return found
}

// Latest returns the highest recorded version, or false if the history is
// empty.
func (h *VersionHistory) Latest() (uint32, bool) {
	if len(h.Versions) == 0 {
		return 0, false
	}
	return h.Versions[len(h.Versions)-1], true
}

func (h *VersionHistory) insert(v uint32) {
	i, found := slices.BinarySearch(h.Versions, v)
	if found {
		return
	}
	h.Versions = slices.Insert(h.Versions, i, v)
	h.Count = uint32(len(h.Versions))
}

func (h VersionHistory) copy() VersionHistory {
	return VersionHistory{
		Count:    h.Count,
		Versions: slices.Clone(h.Versions),
	}
}

// TagSet is an add-wins set of string tags.
//
// Each add of a tag records a version in the tags add history, and each
// remove records the add versions it observed in the remove history. Neither
// history is ever truncated. A tag is in the set while it has an add version
// that was never removed, so a remove can only cancel adds it has seen.
//
// Versions are derived from the tags history alone, so replicas starting from
// the same state assign the same version to the same logical add.
type TagSet struct {
	current mapset.Set[string]
	added   map[string]VersionHistory
	removed map[string]VersionHistory
}

func NewTagSet() *TagSet {
	return &TagSet{
		current: mapset.NewThreadUnsafeSet[string](),
		added:   make(map[string]VersionHistory),
		removed: make(map[string]VersionHistory),
	}
}

// NewTagSetFromState creates a tag set from the given add and remove
// histories, such as received from a peer. Histories are normalised so
// versions are sorted and unique.
func NewTagSetFromState(added, removed map[string]VersionHistory) *TagSet {
	s := NewTagSet()
	for tag, h := range added {
		s.added[tag] = normalise(h)
	}
	for tag, h := range removed {
		s.removed[tag] = normalise(h)
	}
	s.refresh()
	return s
}

// Add adds the tag to the set. If the tag is already present Add is a no-op
// and returns false.
//
// Returns ErrVersionsExhausted if the next add version would wrap.
func (s *TagSet) Add(tag string) (bool, error) {
	if s.current.Contains(tag) {
		return false, nil
	}

	h := s.added[tag].copy()
	var version uint32
	if latest, ok := h.Latest(); ok {
		if latest == math.MaxUint32 {
			return false, ErrVersionsExhausted
		}
		version = latest + 1
	}
	h.insert(version)
	s.added[tag] = h

	s.current.Add(tag)
	return true, nil
}

// Remove removes the tag from the set by recording each of its live add
// versions as removed.
//
// Returns ErrTagNotPresent if the tag was never added or has already been
// removed.
func (s *TagSet) Remove(tag string) error {
	live := s.liveVersions(tag)
	if len(live) == 0 {
		return ErrTagNotPresent
	}

	h := s.removed[tag]
	for _, v := range live {
		h.insert(v)
	}
	s.removed[tag] = h

	s.current.Remove(tag)
	return nil
}

// Contains returns whether the tag is in the set.
func (s *TagSet) Contains(tag string) bool {
	return s.current.Contains(tag)
}

// Tags returns the tags in the set in sorted order.
func (s *TagSet) Tags() []string {
	tags := s.current.ToSlice()
	sort.Strings(tags)
	return tags
}

// Merge merges other into s.
//
// The add and remove histories are unioned, then the current set is
// recomputed from the merged histories.
func (s *TagSet) Merge(other *TagSet) {
	for tag, oh := range other.added {
		h := s.added[tag]
		for _, v := range oh.Versions {
			h.insert(v)
		}
		s.added[tag] = h
	}
	for tag, oh := range other.removed {
		h := s.removed[tag]
		for _, v := range oh.Versions {
			h.insert(v)
		}
		s.removed[tag] = h
	}
	s.refresh()
}

// Added returns a copy of the add history of each tag.
func (s *TagSet) Added() map[string]VersionHistory {
	return copyHistories(s.added)
}

// Removed returns a copy of the remove history of each tag.
func (s *TagSet) Removed() map[string]VersionHistory {
	return copyHistories(s.removed)
}

func (s *TagSet) Kind() Kind {
	return KindTagSet
}

func (s *TagSet) Copy() Value {
	return &TagSet{
		current: s.current.Clone(),
		added:   copyHistories(s.added),
		removed: copyHistories(s.removed),
	}
}

func (s *TagSet) value() {}

// refresh recomputes the current set from the add and remove histories.
func (s *TagSet) refresh() {
	s.current.Clear()
	for tag := range s.added {
		if len(s.liveVersions(tag)) > 0 {
			s.current.Add(tag)
		}
	}
}

// liveVersions returns the add versions of tag that have not been removed.
func (s *TagSet) liveVersions(tag string) []uint32 {
	added, ok := s.added[tag]
	if !ok {
		return nil
	}
	removed := s.removed[tag]

	var live []uint32
	for _, v := range added.Versions {
		if !removed.Contains(v) {
			live = append(live, v)
		}
	}
	return live
}

func normalise(h VersionHistory) VersionHistory {
	var n VersionHistory
	for _, v := range h.Versions {
		n.insert(v)
	}
	return n
}

func copyHistories(m map[string]VersionHistory) map[string]VersionHistory {
	cp := make(map[string]VersionHistory, len(m))
	for tag, h := range m {
		cp[tag] = h.copy()
	}
	return cp
}

var _ Value = &TagSet{}
