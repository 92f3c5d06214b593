package opstamp

import (
	"strconv"
	"sync/atomic"
)

// Opstamp is a logical write-order counter.
type Opstamp uint64

func (o Opstamp) String() string { return strconv.FormatUint(uint64(o), 10) }

// Range is the half-open interval [Start, End) of stamps handed out by StampRange.
type Range struct {
	Start Opstamp
	End   Opstamp
}

// Len returns the number of stamps in the range.
func (r Range) Len() int { return int(r.End - r.Start) }

// Contains reports whether o lies in the range.
func (r Range) Contains(o Opstamp) bool { return o >= r.Start && o < r.End }

// Stamper produces monotonically increasing opstamps. Safe for concurrent use.
type Stamper struct {
	next atomic.Uint64
}

// NewStamper returns a Stamper whose first stamp is first.
func NewStamper(first Opstamp) *Stamper {
	s := &Stamper{}
	s.next.Store(uint64(first))
	return s
}

// Stamp returns the next opstamp.
func (s *Stamper) Stamp() Opstamp {
	return Opstamp(s.next.Add(1) - 1)
}

// StampRange reserves n consecutive opstamps.
func (s *Stamper) StampRange(n uint64) Range {
	end := s.next.Add(n)
	return Range{Start: Opstamp(end - n), End: Opstamp(end)}
}

// Peek returns the stamp the next call to Stamp would return.
func (s *Stamper) Peek() Opstamp { return Opstamp(s.next.Load()) }

// Revert rewinds the stamper so that the next stamp is to. Callers must
// ensure no stamps >= to are still in flight.
func (s *Stamper) Revert(to Opstamp) {
	s.next.Store(uint64(to))
}
