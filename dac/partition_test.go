package dac

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		n        int
		expected []Interval
	}{
		{
			name: "even split",
			from: 0, to: 8, n: 4,
			expected: []Interval{{0, 2}, {2, 4}, {4, 6}, {6, 8}},
		},
		{
			name: "last slice absorbs remainder",
			from: 0, to: 7, n: 2,
			expected: []Interval{{0, 3}, {3, 7}},
		},
		{
			name: "offset range",
			from: 10, to: 20, n: 3,
			expected: []Interval{{10, 13}, {13, 16}, {16, 20}},
		},
		{
			name: "more slices than indices",
			from: 0, to: 3, n: 5,
			expected: []Interval{{0, 1}, {1, 2}, {2, 3}},
		},
		{
			name: "non-positive count",
			from: 0, to: 5, n: 0,
			expected: []Interval{{0, 5}},
		},
		{
			name: "empty range",
			from: 4, to: 4, n: 3,
			expected: []Interval{{4, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Partition(tt.from, tt.to, tt.n))
		})
	}
}

func TestPartition_InvalidRange(t *testing.T) {
	assert.Nil(t, Partition(5, 2, 3), "reversed range")
	assert.Nil(t, Partition(-10, math.MaxInt, 4), "length overflows int")
}

func TestPartition_CoversRange(t *testing.T) {
	for length := 1; length <= 40; length++ {
		for n := 1; n <= length; n++ {
			slices := Partition(-5, length-5, n)

			assert.Len(t, slices, n)
			next := -5
			for _, iv := range slices {
				assert.Equal(t, next, iv.From, "gap or overlap at %v", iv)
				assert.Positive(t, iv.Len())
				next = iv.To
			}
			assert.Equal(t, length-5, next)
		}
	}
}

func TestMaxSlices(t *testing.T) {
	tests := []struct {
		length, min int
		expected    int
	}{
		{10, 3, 4},
		{7, 2, 4},
		{6, 3, 2},
		{2, 3, 1},
		{0, 1, 0},
		{math.MaxInt, 2, math.MaxInt/2 + 1},
		{math.MaxInt, 1, math.MaxInt},
		{math.MaxInt, math.MaxInt, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, maxSlices(tt.length, tt.min),
			"maxSlices(%d, %d)", tt.length, tt.min)
	}
}

func TestInterval_String(t *testing.T) {
	iv := Interval{From: 3, To: 7}
	assert.Equal(t, "[3, 7)", iv.String())
	assert.Equal(t, 4, iv.Len())
}
