package stateroot

import "fmt"

// Range is an inclusive range of block numbers [Lower..Upper].
// A range with Lower > Upper is empty.
type Range struct {
	Lower uint64
	Upper uint64
}

// EmptyRange is the canonical empty range.
var EmptyRange = Range{Lower: 1, Upper: 0}

// NewRange returns [lower..upper], or EmptyRange when lower > upper.
func NewRange(lower, upper uint64) Range {
	if lower > upper {
		return EmptyRange
	}
	return Range{Lower: lower, Upper: upper}
}

// IsEmpty reports whether the range contains no block numbers.
func (r Range) IsEmpty() bool {
	return r.Lower > r.Upper
}

// Len returns the number of block numbers in the range.
func (r Range) Len() uint64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Upper - r.Lower + 1
}

// Contains reports whether n lies within the range.
func (r Range) Contains(n uint64) bool {
	return !r.IsEmpty() && n >= r.Lower && n <= r.Upper
}

// Numbers lists the block numbers of the range in ascending order.
func (r Range) Numbers() []uint64 {
	if r.IsEmpty() {
		return nil
	}
	out := make([]uint64, 0, r.Len())
	for n := r.Lower; ; n++ {
		out = append(out, n)
		if n == r.Upper {
			break
		}
	}
	return out
}

func (r Range) String() string {
	if r.IsEmpty() {
		return "[]"
	}
	return fmt.Sprintf("[%d..%d]", r.Lower, r.Upper)
}
