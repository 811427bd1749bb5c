package indexent_test

import (
	"math"
	"testing"

	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/indexent"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/stretchr/testify/require"
)

type master struct {
	id      int64
	balance float64
	name    string
	version int64
}

type entry struct {
	balance float64
	name    string
	id      int64
	version int64
}

const (
	propID types.PropertyID = iota + 1
	propBalance
	propName
	propVersion
)

func masterAccessors() types.PropertyAccessors[master] {
	return types.PropertyAccessors[master]{
		Get: func(r master, id types.PropertyID) any {
			switch id {
			case propID:
				return r.id
			case propBalance:
				return r.balance
			case propName:
				return r.name
			case propVersion:
				return r.version
			default:
				panic("unknown property")
			}
		},
		Set: func(r master, id types.PropertyID, v any) master {
			switch id {
			case propID:
				r.id = v.(int64)
			case propBalance:
				r.balance = v.(float64)
			case propName:
				r.name = v.(string)
			case propVersion:
				r.version = v.(int64)
			}
			return r
		},
	}
}

func entryAccessors() types.PropertyAccessors[entry] {
	return types.PropertyAccessors[entry]{
		Get: func(r entry, id types.PropertyID) any {
			switch id {
			case propID:
				return r.id
			case propBalance:
				return r.balance
			case propName:
				return r.name
			case propVersion:
				return r.version
			default:
				panic("unknown property")
			}
		},
		Set: func(r entry, id types.PropertyID, v any) entry {
			switch id {
			case propID:
				r.id = v.(int64)
			case propBalance:
				r.balance = v.(float64)
			case propName:
				r.name = v.(string)
			case propVersion:
				r.version = v.(int64)
			}
			return r
		},
	}
}

func kindOf(id types.PropertyID) types.PropertyKind {
	if id == propBalance {
		return types.KindFloat64
	}
	return types.KindOther
}

func newTestModel() *indexent.Model[master, entry] {
	desc := indexdesc.Descriptor{
		TypeName: "Account",
		Unique:   true,
		Props: []indexdesc.Property{
			{ID: propBalance, Name: "balance", Direction: ident.Ascending},
			{ID: propID, Name: "id", Direction: ident.Ascending},
		},
	}
	return indexent.NewModel[master, entry](desc, masterAccessors(), entryAccessors(), kindOf, propVersion, true)
}

func TestCopyFromMasterAndConsistency(t *testing.T) {
	m := newTestModel()
	mst := master{id: 42, balance: 10.5, name: "alice", version: 7}
	e := m.CopyFromMaster(func() entry { return entry{} }, mst)
	require.Equal(t, 10.5, e.balance)
	require.Equal(t, int64(42), e.id)
	require.Equal(t, int64(7), e.version)
	require.True(t, m.IsConsistent(e, mst))

	mst.name = "renamed"
	require.True(t, m.IsConsistent(e, mst), "name isn't indexed, shouldn't affect consistency")

	mst.balance = 99
	require.False(t, m.IsConsistent(e, mst))
}

func TestCopyToMasterPrimaryKey(t *testing.T) {
	m := newTestModel()
	e := entry{balance: 3.5, id: 99}
	got := m.CopyToMasterPrimaryKey(func() master { return master{} }, e, []types.PropertyID{propID})
	require.Equal(t, int64(99), got.id)
	require.Zero(t, got.balance)
}

func TestComparatorOrdersByDescriptorThenDirection(t *testing.T) {
	m := newTestModel()
	cmp := m.Comparator()

	a := entry{balance: 1, id: 1}
	b := entry{balance: 1, id: 2}
	require.Negative(t, cmp(a, b))
	require.Positive(t, cmp(b, a))
	require.Zero(t, cmp(a, a))

	c := entry{balance: 2, id: 0}
	require.Negative(t, cmp(a, c))
}

func TestComparatorFloatNaNTotalOrder(t *testing.T) {
	m := newTestModel()
	cmp := m.Comparator()

	nan := entry{balance: math.NaN(), id: 1}
	inf := entry{balance: math.Inf(1), id: 1}
	finite := entry{balance: 5, id: 1}

	require.Positive(t, cmp(nan, inf), "NaN sorts after +Inf")
	require.Positive(t, cmp(nan, finite))
	require.Negative(t, cmp(finite, nan))
	require.Zero(t, cmp(nan, nan))
}

func TestReferenceClassIsStableAndDistinctPerDescriptor(t *testing.T) {
	m1 := newTestModel()
	m2 := newTestModel()
	require.Equal(t, m1.ReferenceClass(), m2.ReferenceClass())

	other := indexdesc.Descriptor{
		TypeName: "Account",
		Props:    []indexdesc.Property{{ID: propName, Name: "name", Direction: ident.Ascending}},
	}
	m3 := indexent.NewModel[master, entry](other, masterAccessors(), entryAccessors(), kindOf, propVersion, true)
	require.NotEqual(t, m1.ReferenceClass(), m3.ReferenceClass())
}

func TestCacheSharesModelsAcrossEqualDescriptors(t *testing.T) {
	cache, err := indexent.NewCache[master, entry](8)
	require.NoError(t, err)

	desc := indexdesc.Descriptor{
		TypeName: "Account",
		Props:    []indexdesc.Property{{ID: propID, Name: "id", Direction: ident.Ascending}},
	}
	calls := 0
	gen := func() *indexent.Model[master, entry] {
		calls++
		return indexent.NewModel[master, entry](desc, masterAccessors(), entryAccessors(), kindOf, propVersion, true)
	}

	m1 := cache.GetOrCreate(desc, gen)
	m2 := cache.GetOrCreate(desc, gen)
	require.Same(t, m1, m2)
	require.Equal(t, 1, calls)
}
