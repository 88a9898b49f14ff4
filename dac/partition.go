package dac

import "fmt"

// Interval is the half-open index range [From, To).
type Interval struct {
	From int
	To   int
}

// Len returns the number of indices in the interval.
func (iv Interval) Len() int {
	return iv.To - iv.From
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d)", iv.From, iv.To)
}

// Partition splits [from, to) into n contiguous, non-overlapping slices of
// (to-from)/n indices each; the last slice absorbs the remainder. n is
// clamped to [1, to-from] so no slice is empty unless the range is. A
// reversed range, or one whose length overflows int, yields nil.
//
// Example:
//
//	Partition(0, 7, 2) // [0, 3) [3, 7)
func Partition(from, to, n int) []Interval {
	length := to - from
	if to < from || length < 0 {
		return nil
	}
	if length == 0 {
		return []Interval{{From: from, To: from}}
	}
	n = min(max(n, 1), length)

	size := length / n
	slices := make([]Interval, n)
	for i := range slices {
		slices[i] = Interval{From: from + i*size, To: from + (i+1)*size}
	}
	slices[n-1].To = to
	return slices
}

// maxSlices is ceil(length / minSliceSize) without overflowing near
// math.MaxInt.
func maxSlices(length, minSliceSize int) int {
	n := length / minSliceSize
	if length%minSliceSize != 0 {
		n++
	}
	return n
}
