package clock_test

import (
	"testing"

	"github.com/carbonadodb/carbonado/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	r := require.New(t)

	zero := clock.Zero()
	r.True(zero.IsZero())

	a := clock.New(100, 0)
	b := clock.New(100, 1)
	c := clock.New(101, 0)

	r.Equal(-1, clock.Compare(zero, a))
	r.Equal(-1, clock.Compare(a, b))
	r.Equal(-1, clock.Compare(b, c))
	r.Equal(1, clock.Compare(c, a))
	r.Equal(0, clock.Compare(a, a))
}

func TestNext(t *testing.T) {
	r := require.New(t)
	a := clock.New(5, 9)
	b := a.Next()
	r.Equal(-1, clock.Compare(a, b))
	r.Equal(int64(5), b.Nanos())
	r.Equal(int32(10), b.Logical())
}
