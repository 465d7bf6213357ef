package store

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/server/status"
)

// KeyInfo describes a key in the store.
type KeyInfo struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

type CounterState struct {
	Value      int64             `json:"value"`
	Increments map[string]uint64 `json:"increments"`
	Decrements map[string]uint64 `json:"decrements"`
}

type TagSetState struct {
	Tags    []string                       `json:"tags"`
	Added   map[string]crdt.VersionHistory `json:"added"`
	Removed map[string]crdt.VersionHistory `json:"removed"`
}

// KeyState is the full replicated state of a key. Exactly one of Counter
// or TagSet is set.
type KeyState struct {
	Key     string        `json:"key"`
	Kind    string        `json:"kind"`
	Counter *CounterState `json:"counter,omitempty"`
	TagSet  *TagSetState  `json:"tagset,omitempty"`
}

func NewKeyState(key string, v crdt.Value) *KeyState {
	state := &KeyState{
		Key:  key,
		Kind: v.Kind().String(),
	}
	switch v := v.(type) {
	case *crdt.Counter:
		state.Counter = &CounterState{
			Value:      v.Value(),
			Increments: v.Increments(),
			Decrements: v.Decrements(),
		}
	case *crdt.TagSet:
		state.TagSet = &TagSetState{
			Tags:    v.Tags(),
			Added:   v.Added(),
			Removed: v.Removed(),
		}
	}
	return state
}

type Status struct {
	store *Store
}

func NewStatus(store *Store) *Status {
	return &Status{
		store: store,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/keys", s.listKeysRoute)
	group.GET("/keys/:key", s.getKeyRoute)
}

func (s *Status) listKeysRoute(c *gin.Context) {
	snapshot := s.store.Snapshot()
	keys := make([]KeyInfo, 0, len(snapshot))
	for _, key := range sortedKeys(snapshot) {
		keys = append(keys, KeyInfo{
			Key:  key,
			Kind: snapshot[key].Kind().String(),
		})
	}
	c.JSON(http.StatusOK, keys)
}

func (s *Status) getKeyRoute(c *gin.Context) {
	key := c.Param("key")
	v, ok := s.store.Read(key)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, NewKeyState(key, v))
}

var _ status.Handler = &Status{}
