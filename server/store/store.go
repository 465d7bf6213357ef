package store

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
)

const (
	numShards = 64
)

// MergeResult describes the outcome of Store.MergeIn.
type MergeResult int

const (
	// MergeResultInserted means the key was unknown so the incoming value was
	// inserted.
	MergeResultInserted MergeResult = iota + 1
	// MergeResultMerged means the incoming value was merged into the existing
	// value.
	MergeResultMerged
)

func (r MergeResult) String() string {
	switch r {
	case MergeResultInserted:
		return "inserted"
	case MergeResultMerged:
		return "merged"
	default:
		return "unknown"
	}
}

type shard struct {
	values map[string]crdt.Value

	// mu protects the above fields.
	mu sync.RWMutex
}

// Store is the local replica of every key, mapping each key to a CRDT value.
//
// Keys are split across shards, each with its own lock, so operations on keys
// in different shards don't block each other. All operations on a single key
// are atomic.
//
// The store owns the values it holds. Values passed in are owned by the store
// after the call, and values returned are copies.
type Store struct {
	shards [numShards]*shard

	metrics *Metrics

	logger log.Logger
}

func NewStore(logger log.Logger) *Store {
	s := &Store{
		metrics: NewMetrics(),
		logger:  logger.WithSubsystem("store"),
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			values: make(map[string]crdt.Value),
		}
	}
	return s
}

// Write inserts or replaces the value of the given key.
func (s *Store) Write(key string, v crdt.Value) {
	shard := s.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	prev, ok := shard.values[key]
	shard.values[key] = v

	if ok {
		s.metrics.Keys.WithLabelValues(prev.Kind().String()).Dec()
	}
	s.metrics.Keys.WithLabelValues(v.Kind().String()).Inc()
}

// MergeIn merges the incoming value into the value of the given key, or
// inserts the value if the key is unknown.
//
// If the existing value is a different variant to the incoming value,
// returns crdt.ErrTypeMismatch and the existing value is left unchanged.
func (s *Store) MergeIn(key string, v crdt.Value) (MergeResult, error) {
	shard := s.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, ok := shard.values[key]
	if !ok {
		shard.values[key] = v

		s.metrics.Keys.WithLabelValues(v.Kind().String()).Inc()
		s.metrics.MergesTotal.WithLabelValues("inserted").Inc()
		return MergeResultInserted, nil
	}

	if err := crdt.Merge(existing, v); err != nil {
		s.logger.Warn(
			"failed to merge value",
			zap.String("key", key),
			zap.String("existing", existing.Kind().String()),
			zap.String("incoming", v.Kind().String()),
			zap.Error(err),
		)
		s.metrics.MergesTotal.WithLabelValues("type_mismatch").Inc()
		return 0, err
	}

	s.metrics.MergesTotal.WithLabelValues("merged").Inc()
	return MergeResultMerged, nil
}

// Update atomically updates the value of the given key.
//
// f is called with a copy of the existing value, or nil if the key is
// unknown, and returns the new value. If f returns an error the store is left
// unchanged.
//
// f must not call back into the store.
func (s *Store) Update(key string, f func(v crdt.Value) (crdt.Value, error)) error {
	shard := s.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, ok := shard.values[key]
	var cp crdt.Value
	if ok {
		cp = existing.Copy()
	}

	updated, err := f(cp)
	if err != nil {
		return err
	}

	shard.values[key] = updated

	if ok {
		s.metrics.Keys.WithLabelValues(existing.Kind().String()).Dec()
	}
	s.metrics.Keys.WithLabelValues(updated.Kind().String()).Inc()
	return nil
}

// Read returns a copy of the value of the given key, or false if the key is
// unknown.
func (s *Store) Read(key string) (crdt.Value, bool) {
	shard := s.shard(key)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	v, ok := shard.values[key]
	if !ok {
		return nil, false
	}
	return v.Copy(), true
}

// Snapshot returns a copy of every key and value.
//
// Each value is a consistent snapshot of that key, though the snapshot as a
// whole isn't atomic across shards.
func (s *Store) Snapshot() map[string]crdt.Value {
	snapshot := make(map[string]crdt.Value)
	for _, shard := range s.shards {
		shard.mu.RLock()
		for key, v := range shard.values {
			snapshot[key] = v.Copy()
		}
		shard.mu.RUnlock()
	}
	return snapshot
}

// Keys returns the known keys in sorted order.
func (s *Store) Keys() []string {
	var keys []string
	for _, shard := range s.shards {
		shard.mu.RLock()
		for key := range shard.values {
			keys = append(keys, key)
		}
		shard.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (s *Store) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.values)
		shard.mu.RUnlock()
	}
	return n
}

func (s *Store) Metrics() *Metrics {
	return s.metrics
}

func (s *Store) shard(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%numShards]
}

func sortedKeys(values map[string]crdt.Value) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
