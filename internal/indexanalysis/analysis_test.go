package indexanalysis_test

import (
	"testing"

	"github.com/carbonadodb/carbonado/internal/indexanalysis"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/stretchr/testify/require"
)

func namesOf(descs []indexdesc.Descriptor) map[string]bool {
	out := make(map[string]bool, len(descs))
	for _, d := range descs {
		out[d.NameDescriptor()] = true
	}
	return out
}

func TestAnalyzeRepairOffUsesIntersectionForQueryable(t *testing.T) {
	lastName := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{Name: "lastName"}}}
	balance := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{Name: "balance"}}}

	in := indexanalysis.Input{
		Declared: []indexdesc.Descriptor{lastName, balance},
		Free:     []string{balance.NameDescriptor()},
		ParseAndRetype: func(nd string) (indexdesc.Descriptor, string, bool) {
			if nd == lastName.NameDescriptor() {
				return lastName, "t1", true
			}
			return indexdesc.Descriptor{}, "", false
		},
		Stored: []indexanalysis.StoredIndexInfo{
			{NameDescriptor: lastName.NameDescriptor(), TypeDescriptor: "t1"},
		},
		RepairEnabled: false,
	}
	res := indexanalysis.Analyze(in)

	require.True(t, namesOf(res.Existing)[lastName.NameDescriptor()])
	require.Empty(t, res.Bogus)

	q := namesOf(res.Queryable)
	require.True(t, q[lastName.NameDescriptor()], "in desired ∩ existing")
	require.True(t, q[balance.NameDescriptor()], "free")
	require.Empty(t, res.Remove)
	require.Empty(t, res.Add)
}

func TestAnalyzeRepairOnComputesRemoveAndAdd(t *testing.T) {
	lastName := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{Name: "lastName"}}}
	stale := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{Name: "stale"}}}

	in := indexanalysis.Input{
		Declared: []indexdesc.Descriptor{lastName},
		ParseAndRetype: func(nd string) (indexdesc.Descriptor, string, bool) {
			if nd == stale.NameDescriptor() {
				return stale, "t1", true
			}
			return indexdesc.Descriptor{}, "", false
		},
		Stored: []indexanalysis.StoredIndexInfo{
			{NameDescriptor: stale.NameDescriptor(), TypeDescriptor: "t1"},
		},
		RepairEnabled: true,
	}
	res := indexanalysis.Analyze(in)

	require.True(t, namesOf(res.Remove)[stale.NameDescriptor()])
	require.True(t, namesOf(res.Add)[lastName.NameDescriptor()])
}

func TestAnalyzeBogusWhenTypeDescriptorDiffers(t *testing.T) {
	d := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{Name: "balance"}}}
	in := indexanalysis.Input{
		ParseAndRetype: func(nd string) (indexdesc.Descriptor, string, bool) {
			return d, "int64-now", true
		},
		Stored: []indexanalysis.StoredIndexInfo{
			{NameDescriptor: d.NameDescriptor(), TypeDescriptor: "float64-before"},
		},
		RepairEnabled: true,
	}
	res := indexanalysis.Analyze(in)
	require.True(t, namesOf(res.Bogus)[d.NameDescriptor()])
	require.Empty(t, res.Existing)
}

func TestAnalyzeDesiredReducesAndUniquifies(t *testing.T) {
	a := indexdesc.Descriptor{TypeName: "Account", Props: []indexdesc.Property{{ID: 1, Name: "a"}}}
	ab := indexdesc.Descriptor{TypeName: "Account", Unique: true, Props: []indexdesc.Property{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	pk := []indexdesc.Property{{ID: 9, Name: "pk"}}

	in := indexanalysis.Input{
		Declared:   []indexdesc.Descriptor{a, ab},
		PrimaryKey: pk,
	}
	res := indexanalysis.Analyze(in)

	require.Len(t, res.Desired, 1, "a is prefix-dominated by ab and dropped")
	require.Len(t, res.Desired[0].Props, 3, "pk property appended by uniquify")
}

func TestAnalyzeDerivedToDependencyDrivesSyntheticDesiredIndex(t *testing.T) {
	in := indexanalysis.Input{
		Joins: []indexanalysis.JoinProperty{
			{
				Chain:         []string{"employer"},
				ExternalType:  "Company",
				ExternalProps: []indexdesc.Property{{ID: 1, Name: "companyId"}},
			},
		},
		ExternalDerived: []indexanalysis.ExternalDerived{
			{ExternalType: "Company", DerivedProperty: "headcount"},
		},
	}
	res := indexanalysis.Analyze(in)

	require.Len(t, res.DerivedTo, 1)
	require.Equal(t, "Company", res.DerivedTo[0].ExternalType)
	require.Equal(t, "headcount", res.DerivedTo[0].DerivedProperty)

	require.Len(t, res.Desired, 1, "synthetic index installed for the dependency's join property")
	require.Equal(t, "employer", res.Desired[0].TypeName)
}
