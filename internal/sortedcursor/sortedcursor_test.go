package sortedcursor_test

import (
	"context"
	"testing"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/carbonadodb/carbonado/internal/sortedcursor"
	"github.com/stretchr/testify/require"
)

type pair struct{ group, value int }

func groupCmp(a, b pair) int  { return a.group - b.group }
func valueCmp(a, b pair) int  { return a.value - b.value }

func drainPairs(t *testing.T, c cursor.Cursor[pair]) []pair {
	t.Helper()
	got, err := cursor.ToList(context.Background(), c, -1)
	require.NoError(t, err)
	return got
}

func TestSortedCursorNoPrefix(t *testing.T) {
	src := cursor.FromSlice([]pair{{0, 5}, {0, 1}, {0, 3}})
	sc := sortedcursor.New[pair](src, nil, valueCmp, sortbuf.NewArraySortBuffer[pair]())
	got := drainPairs(t, sc)
	require.Equal(t, []pair{{0, 1}, {0, 3}, {0, 5}}, got)
}

func TestSortedCursorWithPrefix(t *testing.T) {
	// Already grouped by `group` (the prefix), but unsorted by `value`
	// within each group.
	src := cursor.FromSlice([]pair{
		{1, 9}, {1, 3}, {1, 6},
		{2, 8}, {2, 1},
		{3, 0},
	})
	sc := sortedcursor.New[pair](src, groupCmp, valueCmp, sortbuf.NewArraySortBuffer[pair]())
	got := drainPairs(t, sc)
	require.Equal(t, []pair{
		{1, 3}, {1, 6}, {1, 9},
		{2, 1}, {2, 8},
		{3, 0},
	}, got)
}

func TestSortedCursorEmpty(t *testing.T) {
	src := cursor.FromSlice([]pair{})
	sc := sortedcursor.New[pair](src, groupCmp, valueCmp, sortbuf.NewArraySortBuffer[pair]())
	got := drainPairs(t, sc)
	require.Empty(t, got)
}

func TestSortedCursorComparator(t *testing.T) {
	src := cursor.FromSlice([]pair{{1, 1}})
	sc := sortedcursor.New[pair](src, groupCmp, valueCmp, sortbuf.NewArraySortBuffer[pair]())
	cmp := sc.Comparator()
	require.Negative(t, cmp(pair{1, 0}, pair{2, 0}))
	require.Positive(t, cmp(pair{1, 5}, pair{1, 2}))
	sc.Close()
}
