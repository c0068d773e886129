// Copyright 2024 Google LLC
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

// Package graph holds the host data lowered code runs over: element sets
// with typed fields, edge sets connecting them, and the compressed
// neighbor indices built from edge connectivity that lowering addresses as
// tensor indices.
package graph

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"

	"github.com/neuroradiology/simit/base/ordered"
)

// Sets grow by doubling once the initial capacity is exhausted.
const initialCapacity = 1024

// ElementRef refers to one element of a set.
type ElementRef struct {
	set *Set
	ord int
}

// Ord is the position of the element in its set.
func (e ElementRef) Ord() int { return e.ord }

// Defined returns true if the reference points at an element.
func (e ElementRef) Defined() bool { return e.set != nil }

// Set is a growable collection of elements carrying field data. An edge
// set additionally connects a fixed number of endpoint elements per
// element.
type Set struct {
	name         string
	len, cap     int
	endpointSets []*Set
	endpoints    []ElementRef
	fields       *ordered.Map[string, *Field]
}

// NewSet returns an empty element set.
func NewSet(name string) *Set {
	return &Set{
		name:   name,
		cap:    initialCapacity,
		fields: ordered.NewMap[string, *Field](),
	}
}

// NewEdgeSet returns an empty edge set whose elements each connect one
// element of every endpoint set, in order.
func NewEdgeSet(name string, endpoints ...*Set) *Set {
	s := NewSet(name)
	s.endpointSets = endpoints
	return s
}

// Name of the set.
func (s *Set) Name() string { return s.name }

// Len is the number of elements in the set.
func (s *Set) Len() int { return s.len }

// Cardinality is the number of endpoints per element, zero for a plain
// set.
func (s *Set) Cardinality() int { return len(s.endpointSets) }

func (s *Set) grow() {
	if s.len < s.cap {
		return
	}
	s.cap *= 2
	for f := range s.fields.Values() {
		data := make([]byte, s.cap*f.elemBytes())
		copy(data, f.data)
		f.data = data
	}
}

// Add appends an element to a plain set. Adding to an edge set without
// endpoints is a contract violation: use [Set.AddEdge].
func (s *Set) Add() ElementRef {
	if s.Cardinality() > 0 {
		panic(errors.Errorf("set %s is an edge set: elements need %d endpoints", s.name, s.Cardinality()))
	}
	s.grow()
	s.len++
	return ElementRef{set: s, ord: s.len - 1}
}

// AddEdge appends an edge connecting the given endpoints, one element per
// endpoint set, in order.
func (s *Set) AddEdge(eps ...ElementRef) (ElementRef, error) {
	if len(eps) != s.Cardinality() {
		return ElementRef{}, errors.Errorf("set %s needs %d endpoints per edge, got %d", s.name, s.Cardinality(), len(eps))
	}
	for i, ep := range eps {
		want := s.endpointSets[i]
		if ep.set != want {
			return ElementRef{}, errors.Errorf("endpoint %d of an edge in %s must belong to %s", i, s.name, want.Name())
		}
		if ep.ord < 0 || ep.ord >= want.Len() {
			return ElementRef{}, errors.Errorf("endpoint %d of an edge in %s refers to element %d of %s, which has %d elements", i, s.name, ep.ord, want.Name(), want.Len())
		}
	}
	s.grow()
	s.len++
	s.endpoints = append(s.endpoints, eps...)
	return ElementRef{set: s, ord: s.len - 1}, nil
}

// Endpoint returns the element an edge connects at the given position.
func (s *Set) Endpoint(e ElementRef, pos int) (ElementRef, error) {
	if e.set != s {
		return ElementRef{}, errors.Errorf("element %d does not belong to %s", e.ord, s.name)
	}
	if pos < 0 || pos >= s.Cardinality() {
		return ElementRef{}, errors.Errorf("set %s has %d endpoints per edge, not %d", s.name, s.Cardinality(), pos+1)
	}
	return s.endpoints[e.ord*s.Cardinality()+pos], nil
}

// AddField declares a field over the set: one component block per element,
// shaped by dims. Every element added so far and later holds zeroed data
// until written.
func (s *Set) AddField(name string, dt dtype.DataType, dims ...int) (*Field, error) {
	if s.fields.Has(name) {
		return nil, errors.Errorf("set %s already has a field %s", s.name, name)
	}
	for _, dim := range dims {
		if dim <= 0 {
			return nil, errors.Errorf("field %s.%s: invalid dimension %d", s.name, name, dim)
		}
	}
	f := &Field{
		name: name,
		set:  s,
		sh:   &shape.Shape{DType: dt, AxisLengths: dims},
	}
	f.data = make([]byte, s.cap*f.elemBytes())
	s.fields.Store(name, f)
	return f, nil
}

// Field returns a declared field given its name.
func (s *Set) Field(name string) (*Field, bool) {
	return s.fields.Load(name)
}

// Field stores one block of components per element of its set. The data
// grows with the set and is addressed row-major, element-by-element.
type Field struct {
	name string
	set  *Set
	sh   *shape.Shape
	data []byte
}

// Name of the field.
func (f *Field) Name() string { return f.name }

// Shape of one element's block of components.
func (f *Field) Shape() *shape.Shape { return f.sh }

// Len is the total number of components stored: set length times
// components per element.
func (f *Field) Len() int { return f.set.Len() * f.sh.Size() }

func (f *Field) elemBytes() int {
	return f.sh.Size() * dtype.Sizeof(f.sh.DType)
}

// FieldData exposes the components of every element of the set as a typed
// slice. The slice aliases the field storage until the set grows past its
// capacity.
func FieldData[T dtype.GoDataType](f *Field) []T {
	return dtype.ToSlice[T](f.data)[:f.Len()]
}
