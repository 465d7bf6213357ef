package crdt

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when merging two values of different
	// variants.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindCounter Kind = iota + 1
	KindTagSet
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindTagSet:
		return "tagset"
	default:
		return "unknown"
	}
}

// Value is a replicated value held by the store.
//
// The set of variants is closed: Counter and TagSet.
type Value interface {
	Kind() Kind
	// Copy returns a deep copy of the value that shares no state with the
	// original.
	Copy() Value

	value()
}

// Merge merges src into dst. dst and src must be the same variant, otherwise
// ErrTypeMismatch is returned and dst is left unchanged.
func Merge(dst Value, src Value) error {
	switch d := dst.(type) {
	case *Counter:
		s, ok := src.(*Counter)
		if !ok {
			return mismatch(dst, src)
		}
		d.Merge(s)
		return nil
	case *TagSet:
		s, ok := src.(*TagSet)
		if !ok {
			return mismatch(dst, src)
		}
		d.Merge(s)
		return nil
	default:
		return fmt.Errorf("unsupported value: %T", dst)
	}
}

func mismatch(dst Value, src Value) error {
	return fmt.Errorf("%w: %s != %s", ErrTypeMismatch, dst.Kind(), src.Kind())
}
