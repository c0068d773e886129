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

package graph

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/neuroradiology/simit/build/ir"
)

// Index is the compressed neighbor structure of an edge set: for every
// element of the source set, the sorted, duplicate-free elements of the
// sink set it connects to. Its arrays back an [ir.TensorIndex] at run
// time.
type Index struct {
	source, sink *Set
	coords       []ir.Int
	sinks        []ir.Int
}

// NeighborIndex builds the neighbor index of an edge set between two of
// its endpoint positions: source s connects to sink t if some edge has s
// at srcPos and t at dstPos.
func NeighborIndex(edges *Set, srcPos, dstPos int) (*Index, error) {
	if edges.Cardinality() == 0 {
		return nil, errors.Errorf("set %s is not an edge set", edges.Name())
	}
	card := edges.Cardinality()
	for _, pos := range []int{srcPos, dstPos} {
		if pos < 0 || pos >= card {
			return nil, errors.Errorf("set %s has %d endpoints per edge: no position %d", edges.Name(), card, pos)
		}
	}
	source := edges.endpointSets[srcPos]
	sink := edges.endpointSets[dstPos]
	neighbors := make([][]ir.Int, source.Len())
	for e := 0; e < edges.Len(); e++ {
		s := edges.endpoints[e*card+srcPos].ord
		t := edges.endpoints[e*card+dstPos].ord
		neighbors[s] = append(neighbors[s], ir.Int(t))
	}
	x := &Index{
		source: source,
		sink:   sink,
		coords: make([]ir.Int, source.Len()+1),
	}
	for s, row := range neighbors {
		slices.Sort(row)
		row = slices.Compact(row)
		x.sinks = append(x.sinks, row...)
		x.coords[s+1] = ir.Int(len(x.sinks))
	}
	return x, nil
}

// SourceSet is the set the index maps from.
func (x *Index) SourceSet() *Set { return x.source }

// SinkSet is the set the index maps to.
func (x *Index) SinkSet() *Set { return x.sink }

// Coords is the coordinate array: the sinks of source s live at positions
// [coords[s], coords[s+1]) of the sink array.
func (x *Index) Coords() []ir.Int { return x.coords }

// Sinks is the sink array.
func (x *Index) Sinks() []ir.Int { return x.sinks }

// NumEdges is the total number of distinct source to sink connections.
func (x *Index) NumEdges() int { return len(x.sinks) }

// TensorIndex registers the index in an environment and returns the
// resulting tensor index, whose domains are the source and sink sets. The
// concrete arrays bind at run time through [Index.Coords] and
// [Index.Sinks].
func (x *Index) TensorIndex(name string, env *ir.Environment) (ir.TensorIndex, error) {
	ti := ir.NewTensorIndex(name,
		ir.NewSetDomain(x.source.Name()), ir.NewSetDomain(x.sink.Name()))
	if err := env.AddTensorIndex(ti); err != nil {
		return ir.TensorIndex{}, err
	}
	return ti, nil
}
