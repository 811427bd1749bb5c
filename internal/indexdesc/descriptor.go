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

// Package indexdesc implements index descriptors and the textual
// forms used to persist and compare them (§3 "Index descriptor",
// §6.3 "Descriptor strings").
package indexdesc

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

// propertySet returns the bitset of property IDs named by props, used
// by Uniquify for a fast containment test instead of per-property
// linear scans (§4.7 "uniquify").
func propertySet(props []Property) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range props {
		bm.Add(uint32(p.ID))
	}
	return bm
}

// Property is one (property, direction) pair within a Descriptor.
type Property struct {
	ID        types.PropertyID
	Name      string
	Direction ident.Direction
}

// Descriptor is an ordered sequence of (property, direction) pairs
// plus a uniqueness flag (§3 "Index descriptor"). Descriptor values
// are immutable; Reduce and Uniquify return new slices/values.
type Descriptor struct {
	TypeName string
	Props    []Property
	Unique   bool
}

// Equal reports whether d and o name the same type, properties,
// directions and uniqueness.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.NameDescriptor() == o.NameDescriptor()
}

// isPrefixOf reports whether d's property identities (ignoring
// direction, per §4.7 "direction normalized to ASC") are an ordered
// prefix of o's.
func (d Descriptor) isPrefixOf(o Descriptor) bool {
	if len(d.Props) == 0 || len(d.Props) >= len(o.Props) {
		return false
	}
	for i, p := range d.Props {
		if p.ID != o.Props[i].ID {
			return false
		}
	}
	return true
}

// Reduce removes every descriptor in descs that is a strict property
// prefix of another descriptor in the set (§4.7 "Desired").
func Reduce(descs []Descriptor) []Descriptor {
	dominated := make([]bool, len(descs))
	for i, a := range descs {
		for j, b := range descs {
			if i == j {
				continue
			}
			if a.isPrefixOf(b) {
				dominated[i] = true
				break
			}
		}
	}
	out := make([]Descriptor, 0, len(descs))
	for i, d := range descs {
		if !dominated[i] {
			out = append(out, d)
		}
	}
	return out
}

// Uniquify returns d with any primary-key property not already
// present appended (direction Ascending), so that the resulting key
// is guaranteed unique (§4.7 "uniquify is applied ... so every key
// includes the PK").
func Uniquify(d Descriptor, pk []Property) Descriptor {
	have := propertySet(d.Props)
	out := Descriptor{TypeName: d.TypeName, Unique: d.Unique, Props: append([]Property(nil), d.Props...)}
	for _, p := range pk {
		if !have.Contains(uint32(p.ID)) {
			out.Props = append(out.Props, Property{ID: p.ID, Name: p.Name, Direction: ident.Ascending})
		}
	}
	return out
}

// NameDescriptor renders d's stable textual identity (§6.3 "Index name
// descriptor"): typeName ~ U|N ~ per-property <direction><name>.
func (d Descriptor) NameDescriptor() string {
	var b strings.Builder
	b.WriteString(d.TypeName)
	b.WriteByte('~')
	if d.Unique {
		b.WriteByte('U')
	} else {
		b.WriteByte('N')
	}
	for _, p := range d.Props {
		b.WriteByte('~')
		b.WriteByte(p.Direction.Code())
		b.WriteString(p.Name)
	}
	return b.String()
}

// ParseNameDescriptor parses the textual form NameDescriptor produces.
// Property IDs are not recoverable from the string alone; callers
// resolve names back to ids via a StorableInfo lookup, supplied here
// as resolve.
func ParseNameDescriptor(s string, resolve func(name string) (types.PropertyID, bool)) (Descriptor, error) {
	parts := strings.Split(s, "~")
	if len(parts) < 2 {
		return Descriptor{}, errors.Errorf("indexdesc: malformed name descriptor %q", s)
	}
	d := Descriptor{TypeName: parts[0]}
	switch parts[1] {
	case "U":
		d.Unique = true
	case "N":
		d.Unique = false
	default:
		return Descriptor{}, errors.Errorf("indexdesc: malformed uniqueness marker in %q", s)
	}
	for _, field := range parts[2:] {
		if field == "" {
			continue
		}
		dir, ok := ident.ParseDirectionCode(field[0])
		if !ok {
			return Descriptor{}, errors.Errorf("indexdesc: bad direction code in %q", s)
		}
		rest := field[1:]
		id, idOK := types.PropertyID(0), false
		if resolve != nil {
			id, idOK = resolve(rest)
			if !idOK {
				return Descriptor{}, errors.Errorf("indexdesc: unknown property %q in %q", rest, s)
			}
		}
		d.Props = append(d.Props, Property{ID: id, Name: rest, Direction: dir})
	}
	return d, nil
}

// TypeDescriptor renders the textual encoding of d's per-property
// declared types (§6.3 "Index type descriptor"), used to detect schema
// drift between a persisted StoredIndexInfo and the live type.
func TypeDescriptor(d Descriptor, kindOf func(id types.PropertyID) types.PropertyKind) string {
	var b strings.Builder
	b.WriteString(d.TypeName)
	for _, p := range d.Props {
		fmt.Fprintf(&b, "~%s:%d", p.Name, kindOf(p.ID))
	}
	return b.String()
}
