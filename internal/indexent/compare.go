// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package indexent

import (
	"bytes"
	"math"
	"reflect"

	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/types"
)

// compareValues orders two property values of the given kind,
// honoring dir (§4.6 "comparator"): floating-point properties compare
// by bit pattern so NaN sorts consistently, byte-array properties by
// unsigned lexicographic order, other slices element-wise, everything
// else by natural Go ordering via reflection.
func compareValues(a, b any, kind types.PropertyKind, dir ident.Direction) int {
	c := compareNatural(a, b, kind)
	if dir == ident.Descending {
		return -c
	}
	return c
}

func compareNatural(a, b any, kind types.PropertyKind) int {
	switch kind {
	case types.KindFloat32:
		return compareFloatBits(uint64(math.Float32bits(a.(float32))), uint64(math.Float32bits(b.(float32))), 32)
	case types.KindFloat64:
		return compareFloatBits(math.Float64bits(a.(float64)), math.Float64bits(b.(float64)), 64)
	case types.KindBytes:
		return bytes.Compare(a.([]byte), b.([]byte))
	case types.KindSlice:
		return compareSlices(a, b)
	default:
		return compareScalar(a, b)
	}
}

// compareFloatBits orders IEEE-754 bit patterns so that the sequence
// is -Inf < negative finite < -0 < +0 < positive finite < +Inf < NaN,
// matching total ordering over the sign-magnitude representation
// (§8 "Floating-point ordering").
func compareFloatBits(a, b uint64, bits int) int {
	signBit := uint64(1) << (bits - 1)
	order := func(x uint64) uint64 {
		if x&signBit != 0 {
			// Negative (or NaN with sign set): flip every bit so more
			// negative magnitudes sort first.
			return ^x
		}
		// Non-negative: flip only the sign bit so it sorts after every
		// negative value.
		return x | signBit
	}
	oa, ob := order(a), order(b)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

func compareScalar(a, b any) int {
	switch av := a.(type) {
	case int:
		return intCmp(int64(av), int64(b.(int)))
	case int32:
		return intCmp(int64(av), int64(b.(int32)))
	case int64:
		return intCmp(av, b.(int64))
	case uint:
		return uintCmp(uint64(av), uint64(b.(uint)))
	case uint32:
		return uintCmp(uint64(av), uint64(b.(uint32)))
	case uint64:
		return uintCmp(av, b.(uint64))
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	default:
		av2 := reflect.ValueOf(a)
		bv2 := reflect.ValueOf(b)
		if av2.Equal(bv2) {
			return 0
		}
		return bytes.Compare([]byte(anyToString(a)), []byte(anyToString(b)))
	}
}

func anyToString(v any) string { return reflectString(v) }

func reflectString(v any) string {
	rv := reflect.ValueOf(v)
	return rv.String()
}

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func uintCmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareSlices compares two "other" slices (neither []byte nor a
// float) element-wise, falling back to length comparison when one is
// a prefix of the other, and treats deep-unequal-length mismatches
// as inequality only (§4.6 "other arrays use deep equality for
// equality tests and element-wise compare for ordering").
func compareSlices(a, b any) int {
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	n := av.Len()
	if bv.Len() < n {
		n = bv.Len()
	}
	for i := 0; i < n; i++ {
		ai := av.Index(i).Interface()
		bi := bv.Index(i).Interface()
		if reflect.DeepEqual(ai, bi) {
			continue
		}
		// Elements differ but aren't necessarily orderable scalars;
		// fall back to their string forms for a stable, total order.
		as, bs := anyToStringOf(ai), anyToStringOf(bi)
		if as < bs {
			return -1
		}
		return 1
	}
	return intCmp(int64(av.Len()), int64(bv.Len()))
}

func anyToStringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return reflectString(reflect.ValueOf(v).Interface())
}

// valuesEqual reports deep equality of two property values, used by
// isConsistent (§4.6).
func valuesEqual(a, b any, kind types.PropertyKind) bool {
	if kind == types.KindFloat32 || kind == types.KindFloat64 {
		return compareNatural(a, b, kind) == 0
	}
	return reflect.DeepEqual(a, b)
}
