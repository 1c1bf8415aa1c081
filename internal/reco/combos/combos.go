// Package combos provides a restartable k-of-n index combination iterator.
//
// Combinations are produced in lexicographic order, which the track search
// relies on for its first-seen tie-break.
package combos

import (
	"gonum.org/v1/gonum/stat/combin"
)

// Iterator lazily enumerates every k-combination of the indices [0, n).
// It is finite and can be rewound with Reset. An Iterator is not safe for
// concurrent use.
type Iterator struct {
	n, k int
	gen  *combin.CombinationGenerator
	cur  []int
}

// New returns an iterator over the k-combinations of [0, n). When k is
// negative or larger than n the iterator yields nothing.
func New(n, k int) *Iterator {
	it := &Iterator{n: n, k: k}
	it.Reset()
	return it
}

// Reset rewinds the iterator to the first combination.
func (it *Iterator) Reset() {
	it.gen = nil
	if it.n < 0 || it.k < 0 || it.k > it.n {
		return
	}
	it.gen = combin.NewCombinationGenerator(it.n, it.k)
	if it.cur == nil {
		it.cur = make([]int, it.k)
	}
}

// Next advances to the next combination and reports whether one exists.
func (it *Iterator) Next() bool {
	if it.gen == nil {
		return false
	}
	if !it.gen.Next() {
		it.gen = nil
		return false
	}
	it.gen.Combination(it.cur)
	return true
}

// Indices returns the current combination. The slice is reused by the next
// call to Next; copy it to keep it.
func (it *Iterator) Indices() []int {
	return it.cur
}

// Count returns the number of combinations the iterator yields.
func Count(n, k int) int {
	if n < 0 || k < 0 || k > n {
		return 0
	}
	return combin.Binomial(n, k)
}

// All collects every k-combination of [0, n) in lexicographic order.
func All(n, k int) [][]int {
	out := make([][]int, 0, Count(n, k))
	it := New(n, k)
	for it.Next() {
		idx := make([]int, k)
		copy(idx, it.Indices())
		out = append(out, idx)
	}
	return out
}
