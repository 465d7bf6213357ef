package replication

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/server/store"
)

var (
	// ErrInvalidArgument is returned when a request is malformed, such as
	// a value with the wrong encoding.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotSupported is returned when a request has an unknown value type.
	ErrNotSupported = errors.New("not supported")

	// ErrNotFound is returned when reading an unknown key.
	ErrNotFound = errors.New("not found")
)

// Service applies client requests and peer changes to the local store.
type Service struct {
	nodeID string

	store *store.Store

	metrics *Metrics

	logger log.Logger
}

func NewService(nodeID string, store *store.Store, logger log.Logger) *Service {
	return &Service{
		nodeID:  nodeID,
		store:   store,
		metrics: newMetrics(),
		logger:  logger.WithSubsystem("replication"),
	}
}

// PropagateData applies a client read or write of a single key.
//
// Errors wrap one of ErrInvalidArgument, ErrNotSupported, ErrNotFound,
// crdt.ErrTypeMismatch or crdt.ErrTagNotPresent. If an error is returned the
// store is unchanged.
func (s *Service) PropagateData(
	req *protocol.PropagateDataRequest,
) (*protocol.PropagateDataResponse, error) {
	valueType := valueTypeLabel(req.ValueType)
	resp, err := s.propagateData(req)
	if err != nil {
		s.metrics.PropagateTotal.WithLabelValues(valueType, errorLabel(err)).Inc()
		s.logger.Debug(
			"propagate data failed",
			zap.String("value-type", req.ValueType),
			zap.String("key", req.Key),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.PropagateTotal.WithLabelValues(valueType, "ok").Inc()
	return resp, nil
}

// GossipChanges merges the state of a key pushed by a peer into the local
// store.
//
// A change that can't be applied, such as a type mismatch, is reported in
// the response rather than as an error.
func (s *Service) GossipChanges(
	req *protocol.GossipChangesRequest,
) *protocol.GossipChangesResponse {
	resp := &protocol.GossipChangesResponse{
		ID: req.ID,
	}

	v, err := req.Value()
	if err != nil {
		s.logger.Warn(
			"unsupported gossip changes",
			zap.String("key", req.Key),
			zap.Error(err),
		)
		s.metrics.GossipTotal.WithLabelValues("not_supported").Inc()
		resp.Error = ErrNotSupported.Error()
		return resp
	}

	result, err := s.store.MergeIn(req.Key, v)
	if err != nil {
		s.metrics.GossipTotal.WithLabelValues(errorLabel(err)).Inc()
		resp.Error = err.Error()
		return resp
	}

	s.logger.Debug(
		"gossip changes",
		zap.String("key", req.Key),
		zap.String("kind", v.Kind().String()),
		zap.String("result", result.String()),
	)
	s.metrics.GossipTotal.WithLabelValues(result.String()).Inc()

	resp.Success = true
	return resp
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

func (s *Service) propagateData(
	req *protocol.PropagateDataRequest,
) (*protocol.PropagateDataResponse, error) {
	if req.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidArgument)
	}

	switch req.ValueType {
	case protocol.ValueTypeCounterSet:
		return s.counterSet(req.Key, req.Value)
	case protocol.ValueTypeCounterGet:
		return s.counterGet(req.Key, req.Value)
	case protocol.ValueTypeCounterIncrement:
		return s.counterUpdate(req.Key, req.Value, (*crdt.Counter).IncrementBy)
	case protocol.ValueTypeCounterDecrement:
		return s.counterUpdate(req.Key, req.Value, (*crdt.Counter).DecrementBy)
	case protocol.ValueTypeTagAdd:
		return s.tagAdd(req.Key, req.Value)
	case protocol.ValueTypeTagRemove:
		return s.tagRemove(req.Key, req.Value)
	case protocol.ValueTypeTagGet:
		return s.tagGet(req.Key, req.Value)
	default:
		return nil, fmt.Errorf("%w: value type: %q", ErrNotSupported, req.ValueType)
	}
}

// counterSet replaces the key with a new counter, attributed to the local
// node, with the given value.
//
// Note a replaced counter can still be raised again by gossip from peers
// that hold the previous state, since merges take the max of each origin.
func (s *Service) counterSet(key string, value []byte) (*protocol.PropagateDataResponse, error) {
	n, err := decodeAmount(value)
	if err != nil {
		return nil, err
	}

	c := crdt.NewCounter()
	if err := c.IncrementBy(s.nodeID, n); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	s.store.Write(key, c)

	return &protocol.PropagateDataResponse{Success: true}, nil
}

func (s *Service) counterGet(key string, value []byte) (*protocol.PropagateDataResponse, error) {
	if len(value) != 0 {
		return nil, fmt.Errorf("%w: unexpected value", ErrInvalidArgument)
	}

	v, ok := s.store.Read(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	c, ok := v.(*crdt.Counter)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", crdt.ErrTypeMismatch, key, v.Kind())
	}

	return &protocol.PropagateDataResponse{
		Success:  true,
		Response: protocol.EncodeInt64(c.Value()),
	}, nil
}

func (s *Service) counterUpdate(
	key string,
	value []byte,
	apply func(c *crdt.Counter, nodeID string, n uint64) error,
) (*protocol.PropagateDataResponse, error) {
	n, err := decodeAmount(value)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(key, func(v crdt.Value) (crdt.Value, error) {
		if v == nil {
			v = crdt.NewCounter()
		}
		c, ok := v.(*crdt.Counter)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a %s", crdt.ErrTypeMismatch, key, v.Kind())
		}
		// The update is rejected rather than wrapping the nodes total.
		if err := apply(c, s.nodeID, n); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return &protocol.PropagateDataResponse{Success: true}, nil
}

func (s *Service) tagAdd(key string, value []byte) (*protocol.PropagateDataResponse, error) {
	tag, err := decodeTag(value)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(key, func(v crdt.Value) (crdt.Value, error) {
		if v == nil {
			v = crdt.NewTagSet()
		}
		set, ok := v.(*crdt.TagSet)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a %s", crdt.ErrTypeMismatch, key, v.Kind())
		}
		if _, err := set.Add(tag); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return &protocol.PropagateDataResponse{Success: true}, nil
}

func (s *Service) tagRemove(key string, value []byte) (*protocol.PropagateDataResponse, error) {
	tag, err := decodeTag(value)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(key, func(v crdt.Value) (crdt.Value, error) {
		if v == nil {
			return nil, fmt.Errorf("%w: %s", crdt.ErrTagNotPresent, tag)
		}
		set, ok := v.(*crdt.TagSet)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a %s", crdt.ErrTypeMismatch, key, v.Kind())
		}
		if err := set.Remove(tag); err != nil {
			return nil, fmt.Errorf("%w: %s", err, tag)
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return &protocol.PropagateDataResponse{Success: true}, nil
}

func (s *Service) tagGet(key string, value []byte) (*protocol.PropagateDataResponse, error) {
	if len(value) != 0 {
		return nil, fmt.Errorf("%w: unexpected value", ErrInvalidArgument)
	}

	v, ok := s.store.Read(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	set, ok := v.(*crdt.TagSet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", crdt.ErrTypeMismatch, key, v.Kind())
	}

	b, err := protocol.Marshal(set.Tags())
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return &protocol.PropagateDataResponse{
		Success:  true,
		Response: b,
	}, nil
}

// decodeAmount decodes a non-negative 8 byte big-endian integer.
func decodeAmount(value []byte) (uint64, error) {
	n, err := protocol.DecodeInt64(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value: %d", ErrInvalidArgument, n)
	}
	return uint64(n), nil
}

func decodeTag(value []byte) (string, error) {
	if len(value) == 0 {
		return "", fmt.Errorf("%w: missing tag", ErrInvalidArgument)
	}
	if !utf8.Valid(value) {
		return "", fmt.Errorf("%w: tag not utf-8", ErrInvalidArgument)
	}
	return string(value), nil
}

// valueTypeLabel returns the metric label for the value type, where unknown
// types share a label to bound the label values.
func valueTypeLabel(valueType string) string {
	switch valueType {
	case protocol.ValueTypeCounterSet,
		protocol.ValueTypeCounterGet,
		protocol.ValueTypeCounterIncrement,
		protocol.ValueTypeCounterDecrement,
		protocol.ValueTypeTagAdd,
		protocol.ValueTypeTagRemove,
		protocol.ValueTypeTagGet:
		return valueType
	default:
		return "unknown"
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, crdt.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, crdt.ErrTagNotPresent):
		return "tag_not_present"
	default:
		return "error"
	}
}
