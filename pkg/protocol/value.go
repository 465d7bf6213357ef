package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/andydunstall/mergedb/pkg/crdt"
)

// Value types accepted by PropagateData. The 'C' prefix is the counter
// family and the 'S' prefix is the tag set family.
const (
	ValueTypeCounterSet       = "CSET"
	ValueTypeCounterGet       = "CGET"
	ValueTypeCounterIncrement = "CINC"
	ValueTypeCounterDecrement = "CDEC"
	ValueTypeTagAdd           = "SADD"
	ValueTypeTagRemove        = "SREM"
	ValueTypeTagGet           = "SGET"
)

var (
	// ErrUnsupportedValue is returned when encoding a value variant that has
	// no wire representation.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// EncodeInt64 encodes v as an 8 byte big-endian integer.
func EncodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeInt64 decodes an 8 byte big-endian integer.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid integer length: %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// NewGossipChangesRequest encodes the state of the given value.
//
// Returns ErrUnsupportedValue if the value has no wire representation.
func NewGossipChangesRequest(key string, v crdt.Value) (*GossipChangesRequest, error) {
	req := &GossipChangesRequest{
		Key: key,
	}
	switch v := v.(type) {
	case *crdt.Counter:
		req.Counter = &CounterPayload{
			Increments: v.Increments(),
			Decrements: v.Decrements(),
		}
	case *crdt.TagSet:
		req.TagSet = &TagSetPayload{
			Added:   v.Added(),
			Removed: v.Removed(),
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return req, nil
}

// Value decodes the value carried by the request.
//
// Returns ErrUnsupportedValue if the request has no payload or more than one.
func (r *GossipChangesRequest) Value() (crdt.Value, error) {
	switch {
	case r.Counter != nil && r.TagSet != nil:
		return nil, fmt.Errorf("%w: multiple payloads", ErrUnsupportedValue)
	case r.Counter != nil:
		return crdt.NewCounterFromState(
			r.Counter.Increments, r.Counter.Decrements,
		), nil
	case r.TagSet != nil:
		return crdt.NewTagSetFromState(
			r.TagSet.Added, r.TagSet.Removed,
		), nil
	default:
		return nil, fmt.Errorf("%w: missing payload", ErrUnsupportedValue)
	}
}
