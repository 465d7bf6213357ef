package crdt

import (
	"errors"
	"math"
	"math/bits"
)

var (
	// ErrOverflow is returned when an update would overflow the counter.
	ErrOverflow = errors.New("counter overflow")
)

// Counter is a PN-Counter that tracks increments and decrements per origin
// node.
//
// A node only ever grows its own entries, so merging takes the maximum seen
// for each origin.
type Counter struct {
	increments map[string]uint64
	decrements map[string]uint64
}

func NewCounter() *Counter {
	return &Counter{
		increments: make(map[string]uint64),
		decrements: make(map[string]uint64),
	}
}

// NewCounterFromState creates a counter from the given per-origin totals,
// such as received from a peer. The maps are copied.
func NewCounterFromState(increments, decrements map[string]uint64) *Counter {
	c := NewCounter()
	for id, n := range increments {
		c.increments[id] = n
	}
	for id, n := range decrements {
		c.decrements[id] = n
	}
	return c
}

func (c *Counter) Increment(nodeID string) error {
	return c.IncrementBy(nodeID, 1)
}

func (c *Counter) Decrement(nodeID string) error {
	return c.DecrementBy(nodeID, 1)
}

// IncrementBy adds n to the increments recorded for nodeID.
//
// Returns ErrOverflow if the nodes total would overflow or the value would
// exceed the int64 range. The counter is left unchanged.
func (c *Counter) IncrementBy(nodeID string, n uint64) error {
	total, carry := bits.Add64(c.increments[nodeID], n, 0)
	if carry != 0 {
		return ErrOverflow
	}
	inc, dec, ok := c.totals(nodeID, total, c.decrements[nodeID])
	if !ok {
		return ErrOverflow
	}
	if _, ok := signedDiff(inc, dec); !ok {
		return ErrOverflow
	}
	c.increments[nodeID] = total
	return nil
}

// DecrementBy adds n to the decrements recorded for nodeID.
//
// Returns ErrOverflow if the nodes total would overflow or the value would
// exceed the int64 range. The counter is left unchanged.
func (c *Counter) DecrementBy(nodeID string, n uint64) error {
	total, carry := bits.Add64(c.decrements[nodeID], n, 0)
	if carry != 0 {
		return ErrOverflow
	}
	inc, dec, ok := c.totals(nodeID, c.increments[nodeID], total)
	if !ok {
		return ErrOverflow
	}
	if _, ok := signedDiff(inc, dec); !ok {
		return ErrOverflow
	}
	c.decrements[nodeID] = total
	return nil
}

// Value returns the sum of all increments minus the sum of all decrements.
//
// Merged state from peers can exceed the int64 range, in which case the
// value saturates at math.MaxInt64 or math.MinInt64.
func (c *Counter) Value() int64 {
	inc, incOK := sum(c.increments)
	dec, decOK := sum(c.decrements)
	switch {
	case !incOK && !decOK:
		// Both sums overflowed so the sign is unknown.
		return 0
	case !incOK:
		return math.MaxInt64
	case !decOK:
		return math.MinInt64
	}
	v, ok := signedDiff(inc, dec)
	if !ok {
		if inc > dec {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return v
}

// Merge merges other into c by taking the maximum total for each origin.
func (c *Counter) Merge(other *Counter) {
	for id, n := range other.increments {
		if n > c.increments[id] {
			c.increments[id] = n
		}
	}
	for id, n := range other.decrements {
		if n > c.decrements[id] {
			c.decrements[id] = n
		}
	}
}

// Increments returns a copy of the per-origin increments.
func (c *Counter) Increments() map[string]uint64 {
	return copyTotals(c.increments)
}

// Decrements returns a copy of the per-origin decrements.
func (c *Counter) Decrements() map[string]uint64 {
	return copyTotals(c.decrements)
}

func (c *Counter) Kind() Kind {
	return KindCounter
}

func (c *Counter) Copy() Value {
	return NewCounterFromState(c.increments, c.decrements)
}

func (c *Counter) value() {}

func copyTotals(m map[string]uint64) map[string]uint64 {
	cp := make(map[string]uint64, len(m))
	for id, n := range m {
		cp[id] = n
	}
	return cp
}


// totals returns the sum of increments and decrements, with nodeID's entries
// replaced by inc and dec. Returns false if either sum overflows.
func (c *Counter) totals(nodeID string, inc uint64, dec uint64) (uint64, uint64, bool) {
	incTotal, carry := inc, uint64(0)
	for id, n := range c.increments {
		if id == nodeID {
			continue
		}
		var cy uint64
		incTotal, cy = bits.Add64(incTotal, n, 0)
		carry |= cy
	}
	decTotal, decCarry := dec, uint64(0)
	for id, n := range c.decrements {
		if id == nodeID {
			continue
		}
		var cy uint64
		decTotal, cy = bits.Add64(decTotal, n, 0)
		decCarry |= cy
	}
	return incTotal, decTotal, carry == 0 && decCarry == 0
}

func sum(m map[string]uint64) (uint64, bool) {
	var total, carry uint64
	for _, n := range m {
		var cy uint64
		total, cy = bits.Add64(total, n, 0)
		carry |= cy
	}
	return total, carry == 0
}

// signedDiff returns inc - dec, or false if the result is outside the int64
// range.
func signedDiff(inc uint64, dec uint64) (int64, bool) {
	if inc >= dec {
		d := inc - dec
		if d > math.MaxInt64 {
			return 0, false
		}
		return int64(d), true
	}
	d := dec - inc
	if d > 1<<63 {
		return 0, false
	}
	// -(1<<63) is representable, which int64(d) would wrap to.
	return -int64(d - 1) - 1, true
}

var _ Value = &Counter{}
