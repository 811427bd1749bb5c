package indexent

import (
	"math"
	"testing"

	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/stretchr/testify/require"
)

func TestCompareFloatBitsTotalOrder(t *testing.T) {
	values := []float64{
		math.Inf(-1), -1e300, -1, math.Copysign(0, -1), 0, 1, 1e300, math.Inf(1), math.NaN(),
	}
	for i := 0; i < len(values)-1; i++ {
		a, b := values[i], values[i+1]
		require.Negative(t, compareNatural(a, b, types.KindFloat64), "want %v < %v", a, b)
		require.Positive(t, compareNatural(b, a, types.KindFloat64), "want %v > %v", b, a)
	}
}

func TestCompareBytesUnsignedLexicographic(t *testing.T) {
	require.Negative(t, compareNatural([]byte{0x00}, []byte{0xFF}, types.KindBytes))
	require.Positive(t, compareNatural([]byte{0x01, 0x00}, []byte{0x00, 0xFF}, types.KindBytes))
	require.Zero(t, compareNatural([]byte{1, 2, 3}, []byte{1, 2, 3}, types.KindBytes))
}

func TestCompareValuesHonorsDirection(t *testing.T) {
	require.Negative(t, compareValues(1, 2, types.KindOther, ident.Ascending))
	require.Positive(t, compareValues(1, 2, types.KindOther, ident.Descending))
}

func TestValuesEqualFloat(t *testing.T) {
	require.True(t, valuesEqual(math.NaN(), math.NaN(), types.KindFloat64))
	require.False(t, valuesEqual(0.0, math.Copysign(0, -1), types.KindFloat64), "-0 and +0 are distinct bit patterns")
	require.False(t, valuesEqual(1.0, 2.0, types.KindFloat64))
}
