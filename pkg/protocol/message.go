package protocol

import (
	"github.com/andydunstall/mergedb/pkg/crdt"
)

// PropagateDataRequest is a client write or read of a single key.
type PropagateDataRequest struct {
	// ValueType is the operation token, such as 'CSET' or 'SADD'.
	ValueType string `json:"value_type" codec:"value_type"`
	Key       string `json:"key" codec:"key"`
	// Value is the operation argument, whose encoding depends on ValueType.
	Value []byte `json:"value,omitempty" codec:"value"`
}

type PropagateDataResponse struct {
	Success bool `json:"success" codec:"success"`
	// Response contains the current state for read operations.
	Response []byte `json:"response,omitempty" codec:"response"`
	Error    string `json:"error,omitempty" codec:"error"`
}

// CounterPayload is the wire state of a PN-Counter, containing the
// increment and decrement totals of each origin node.
type CounterPayload struct {
	Increments map[string]uint64 `json:"increments" codec:"increments"`
	Decrements map[string]uint64 `json:"decrements" codec:"decrements"`
}

// TagSetPayload is the wire state of an add-wins tag set, containing the
// add and remove history of each tag.
type TagSetPayload struct {
	Added   map[string]crdt.VersionHistory `json:"added" codec:"added"`
	Removed map[string]crdt.VersionHistory `json:"removed" codec:"removed"`
}

// GossipChangesRequest pushes the state of a single key to a peer. Exactly
// one of Counter or TagSet is set.
type GossipChangesRequest struct {
	// ID identifies the request/response pair on the connection.
	ID uint64 `codec:"id"`

	Key     string          `codec:"key"`
	Counter *CounterPayload `codec:"counter,omitempty"`
	TagSet  *TagSetPayload  `codec:"tagset,omitempty"`
}

type GossipChangesResponse struct {
	ID      uint64 `codec:"id"`
	Success bool   `codec:"success"`
	Error   string `codec:"error,omitempty"`
}
