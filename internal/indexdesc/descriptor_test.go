package indexdesc_test

import (
	"testing"

	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/stretchr/testify/require"
)

func TestNameDescriptorRoundTrip(t *testing.T) {
	d := indexdesc.Descriptor{
		TypeName: "Account",
		Unique:   true,
		Props: []indexdesc.Property{
			{ID: 1, Name: "lastName", Direction: ident.Ascending},
			{ID: 2, Name: "balance", Direction: ident.Descending},
		},
	}
	s := d.NameDescriptor()
	require.Equal(t, "Account~U~+lastName~-balance", s)

	ids := map[string]types.PropertyID{"lastName": 1, "balance": 2}
	parsed, err := indexdesc.ParseNameDescriptor(s, func(name string) (types.PropertyID, bool) {
		id, ok := ids[name]
		return id, ok
	})
	require.NoError(t, err)
	require.True(t, d.Equal(parsed))
}

func TestReduceDropsPrefixDominated(t *testing.T) {
	a := indexdesc.Descriptor{TypeName: "T", Props: []indexdesc.Property{{ID: 1, Name: "a"}}}
	ab := indexdesc.Descriptor{TypeName: "T", Props: []indexdesc.Property{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	c := indexdesc.Descriptor{TypeName: "T", Props: []indexdesc.Property{{ID: 3, Name: "c"}}}

	got := indexdesc.Reduce([]indexdesc.Descriptor{a, ab, c})
	require.Len(t, got, 2)
	names := map[string]bool{}
	for _, d := range got {
		names[d.NameDescriptor()] = true
	}
	require.True(t, names[ab.NameDescriptor()])
	require.True(t, names[c.NameDescriptor()])
	require.False(t, names[a.NameDescriptor()])
}

func TestUniquify(t *testing.T) {
	d := indexdesc.Descriptor{TypeName: "T", Props: []indexdesc.Property{{ID: 1, Name: "a"}}}
	pk := []indexdesc.Property{{ID: 1, Name: "a"}, {ID: 2, Name: "pk"}}
	got := indexdesc.Uniquify(d, pk)
	require.Len(t, got.Props, 2)
	require.Equal(t, types.PropertyID(2), got.Props[1].ID)
}
