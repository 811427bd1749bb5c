package cursor_test

import (
	"context"
	"testing"
	"time"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/stretchr/testify/require"
)

func intCmp(a, b int) int { return a - b }

func drain(t *testing.T, c cursor.Cursor[int]) []int {
	t.Helper()
	got, err := cursor.ToList(context.Background(), c, -1)
	require.NoError(t, err)
	return got
}

func TestUnion(t *testing.T) {
	l := cursor.FromSlice([]int{1, 2, 4, 6})
	r := cursor.FromSlice([]int{2, 3, 4, 5})
	got := drain(t, cursor.Union[int](l, r, intCmp))
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
}

func TestIntersection(t *testing.T) {
	l := cursor.FromSlice([]int{1, 2, 4, 6, 8})
	r := cursor.FromSlice([]int{2, 3, 4, 5, 8})
	got := drain(t, cursor.Intersection[int](l, r, intCmp))
	require.Equal(t, []int{2, 4, 8}, got)
}

func TestDifference(t *testing.T) {
	l := cursor.FromSlice([]int{1, 2, 4, 6, 8})
	r := cursor.FromSlice([]int{2, 4, 5})
	got := drain(t, cursor.Difference[int](l, r, intCmp))
	require.Equal(t, []int{1, 6, 8}, got)
}

func TestSymmetricDifference(t *testing.T) {
	l := cursor.FromSlice([]int{1, 2, 4, 6})
	r := cursor.FromSlice([]int{2, 3, 4, 5})
	sd := cursor.SymmetricDifference[int](l, r, intCmp)
	ctx := context.Background()

	side, err := sd.CompareNext(ctx)
	require.NoError(t, err)
	require.Equal(t, cursor.SideLeft, side)

	got, err := cursor.ToList(ctx, sd, -1)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 5, 6}, got)
}

func TestFiltered(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3, 4, 5, 6})
	got := drain(t, cursor.Filtered[int](src, func(v int) bool { return v%2 == 0 }))
	require.Equal(t, []int{2, 4, 6}, got)
}

func TestTransformed(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3, 4})
	out := cursor.Transformed[int, int](src, func(v int) (int, bool, error) {
		if v%2 != 0 {
			return 0, false, nil
		}
		return v * v, true, nil
	})
	got := drain(t, out)
	require.Equal(t, []int{4, 16}, got)
}

func TestMultiTransformed(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3})
	out := cursor.MultiTransformed[int, int](src, func(v int) (cursor.Cursor[int], error) {
		return cursor.FromSlice([]int{v, v * 10}), nil
	})
	got := drain(t, out)
	require.Equal(t, []int{1, 10, 2, 20, 3, 30}, got)
}

type sumGrouper struct {
	leader int
	sum    int
}

func (g *sumGrouper) BeginGroup(leader int) { g.leader, g.sum = leader, leader }
func (g *sumGrouper) AddToGroup(member int) { g.sum += member }
func (g *sumGrouper) FinishGroup() (int, bool) { return g.sum, true }

func TestGrouped(t *testing.T) {
	src := cursor.FromSlice([]int{1, 1, 1, 2, 2, 3})
	out := cursor.Grouped[int, int](src, func(leader, candidate int) bool { return leader == candidate },
		func() cursor.Grouper[int, int] { return &sumGrouper{} })
	got := drain(t, out)
	require.Equal(t, []int{3, 4, 3}, got)
}

func TestSlice(t *testing.T) {
	src := cursor.FromSlice([]int{0, 1, 2, 3, 4, 5, 6})
	got := drain(t, cursor.Slice[int](src, 2, 5))
	require.Equal(t, []int{2, 3, 4}, got)
}

func TestFetchAhead(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3, 4, 5})
	out := cursor.FetchAhead[int](context.Background(), src, 2)
	got := drain(t, out)
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestThrottledPassesThrough(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3})
	out := cursor.Throttled[int](src, cursor.NewPacer(0))
	got := drain(t, out)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestPacerPacesToTarget(t *testing.T) {
	var now int64
	var slept []int64
	p := cursor.NewPacer(10)
	p.SetClockForTest(func() time.Time { return time.Unix(0, now) },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, int64(d))
			now += int64(d)
			return nil
		})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	require.NotEmpty(t, slept)
}

type countingController struct {
	begun   bool
	checks  int
	abortAt int
}

func (c *countingController) Begin(context.Context) error { c.begun = true; return nil }
func (c *countingController) ContinueCheck(context.Context) error {
	c.checks++
	if c.abortAt > 0 && c.checks >= c.abortAt {
		return types.ErrIllegalArgument
	}
	return nil
}
func (c *countingController) Close() {}

func TestControllerAborts(t *testing.T) {
	src := cursor.FromSlice([]int{1, 2, 3, 4, 5})
	ctrl := &countingController{abortAt: 3}
	out := cursor.WithController[int](src, ctrl)
	_, err := cursor.ToList(context.Background(), out, -1)
	require.Error(t, err)
	require.True(t, ctrl.begun)
}

func TestEmptyAndSingleton(t *testing.T) {
	require.Empty(t, drain(t, cursor.Empty[int]()))
	require.Equal(t, []int{42}, drain(t, cursor.Singleton(42)))
}

func TestCancelTickerInterrupts(t *testing.T) {
	n := 600
	vals := make([]int, n)
	for i := range vals {
		vals[i] = i
	}
	src := cursor.FromSlice(vals)
	filtered := cursor.Filtered[int](src, func(int) bool { return true })

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	for {
		has, err := filtered.HasNext(ctx)
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			return
		}
		if !has {
			t.Fatal("expected interruption before exhaustion")
		}
		if _, err := filtered.Next(ctx); err != nil {
			require.ErrorIs(t, err, context.Canceled)
			return
		}
		count++
		if count == 300 {
			cancel()
		}
	}
}
