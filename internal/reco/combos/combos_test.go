package combos

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator_LexicographicOrder(t *testing.T) {
	t.Parallel()

	want := [][]int{
		{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3},
	}
	got := All(4, 3)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("All(4,3) mismatch (-want +got):\n%s", diff)
	}
}

func TestIterator_Count(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, k int
		want int
	}{
		{6, 3, 20},
		{8, 4, 70},
		{4, 4, 1},
		{3, 4, 0},
		{5, 0, 1},
		{-1, 2, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Count(tt.n, tt.k), "Count(%d,%d)", tt.n, tt.k)

		it := New(tt.n, tt.k)
		n := 0
		for it.Next() {
			n++
		}
		assert.Equal(t, tt.want, n, "iterated New(%d,%d)", tt.n, tt.k)
	}
}

func TestIterator_Reset(t *testing.T) {
	t.Parallel()

	it := New(5, 2)
	var first [][]int
	for it.Next() {
		first = append(first, append([]int(nil), it.Indices()...))
	}
	require.Len(t, first, 10)
	assert.False(t, it.Next(), "exhausted iterator must stay exhausted")

	it.Reset()
	var second [][]int
	for it.Next() {
		second = append(second, append([]int(nil), it.Indices()...))
	}
	assert.Equal(t, first, second)
}

func TestIterator_EmptyWhenKExceedsN(t *testing.T) {
	t.Parallel()

	it := New(2, 3)
	assert.False(t, it.Next())
	assert.Empty(t, All(2, 3))
}
