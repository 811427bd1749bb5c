package sortbuf_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/stretchr/testify/require"
)

type intCodec struct{}

func (intCodec) Encode(v int) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b, nil
}

func (intCodec) Decode(b []byte) (int, error) {
	return int(binary.BigEndian.Uint64(b)), nil
}

func intCmp(a, b int) int { return a - b }

func TestArraySortBuffer(t *testing.T) {
	ctx := context.Background()
	buf := sortbuf.NewArraySortBuffer[int]()
	buf.Prepare(intCmp)
	for _, v := range []int{5, 3, 9, 1, 7} {
		require.NoError(t, buf.Add(ctx, v))
	}
	require.NoError(t, buf.Sort(ctx))
	got, err := cursor.ToList(ctx, buf.Iterator(), -1)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 5, 7, 9}, got)
	buf.Close()
}

func TestMergeSortBufferNoSpill(t *testing.T) {
	ctx := context.Background()
	pool, err := sortbuf.PoolFor(t.TempDir())
	require.NoError(t, err)

	buf := sortbuf.NewMergeSortBuffer[int](pool, intCodec{})
	buf.Prepare(intCmp)
	for _, v := range []int{8, 2, 6, 4, 0} {
		require.NoError(t, buf.Add(ctx, v))
	}
	require.NoError(t, buf.Sort(ctx))
	got, err := cursor.ToList(ctx, buf.Iterator(), -1)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 4, 6, 8}, got)
	buf.Close()
}

func TestMergeSortBufferSpillsAndMerges(t *testing.T) {
	ctx := context.Background()
	pool, err := sortbuf.PoolFor(t.TempDir())
	require.NoError(t, err)

	buf := sortbuf.NewMergeSortBuffer[int](pool, intCodec{}).WithCapacities(4, 16, 100)
	buf.Prepare(intCmp)

	const n = 97
	want := make([]int, n)
	for i := 0; i < n; i++ {
		v := (i * 37) % n
		want[i] = v
		require.NoError(t, buf.Add(ctx, v))
	}
	require.NoError(t, buf.Sort(ctx))

	got, err := cursor.ToList(ctx, buf.Iterator(), -1)
	require.NoError(t, err)
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}
	seen := map[int]bool{}
	for _, v := range got {
		seen[v] = true
	}
	require.Len(t, seen, n)
	buf.Close()
}

func TestMergeSortBufferCompaction(t *testing.T) {
	ctx := context.Background()
	pool, err := sortbuf.PoolFor(t.TempDir())
	require.NoError(t, err)

	buf := sortbuf.NewMergeSortBuffer[int](pool, intCodec{}).WithCapacities(2, 2, 3)
	buf.Prepare(intCmp)

	const n = 40
	for i := 0; i < n; i++ {
		require.NoError(t, buf.Add(ctx, (n-i)))
	}
	require.NoError(t, buf.Sort(ctx))
	got, err := cursor.ToList(ctx, buf.Iterator(), -1)
	require.NoError(t, err)
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}
	buf.Close()
}

func TestWorkFilePoolReusesFreedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pool, err := sortbuf.PoolFor(dir)
	require.NoError(t, err)

	buf1 := sortbuf.NewMergeSortBuffer[int](pool, intCodec{}).WithCapacities(2, 2, 100)
	buf1.Prepare(intCmp)
	for _, v := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, buf1.Add(ctx, v))
	}
	require.NoError(t, buf1.Sort(ctx))
	buf1.Close()

	buf2 := sortbuf.NewMergeSortBuffer[int](pool, intCodec{}).WithCapacities(2, 2, 100)
	buf2.Prepare(intCmp)
	for _, v := range []int{9, 8, 7} {
		require.NoError(t, buf2.Add(ctx, v))
	}
	require.NoError(t, buf2.Sort(ctx))
	got, err := cursor.ToList(ctx, buf2.Iterator(), -1)
	require.NoError(t, err)
	require.Equal(t, []int{7, 8, 9}, got)
	buf2.Close()
}
