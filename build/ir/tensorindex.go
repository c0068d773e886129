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

package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// TensorIndex maps the elements of a source domain to their sinks through
// two arrays:
//
//   - the coordinate array has one offset per source element plus one; the
//     sinks of source s live at positions [coords[s], coords[s+1]) of the
//     sink array;
//   - the sink array stores the sinks of every source, sorted and without
//     duplicates within each source's span.
//
// The arrays are exposed as variables; concrete data is bound at run time
// and never mutated by lowered code.
type TensorIndex struct {
	name         string
	source, sink IndexSet
	coords       Var
	sinks        Var
}

// NewTensorIndex returns a tensor index mapping a source domain to a sink
// domain. The backing array variables derive their names from the index name.
func NewTensorIndex(name string, source, sink IndexSet) TensorIndex {
	return TensorIndex{
		name:   name,
		source: source,
		sink:   sink,
		coords: NewVar(name+".coords", IndexArrayType()),
		sinks:  NewVar(name+".sinks", IndexArrayType()),
	}
}

// Name of the tensor index.
func (ti TensorIndex) Name() string { return ti.name }

// SourceSet is the domain of the sources.
func (ti TensorIndex) SourceSet() IndexSet { return ti.source }

// SinkSet is the domain of the sinks.
func (ti TensorIndex) SinkSet() IndexSet { return ti.sink }

// CoordArray is the variable holding the coordinate array.
func (ti TensorIndex) CoordArray() Var { return ti.coords }

// SinkArray is the variable holding the sink array.
func (ti TensorIndex) SinkArray() Var { return ti.sinks }

// Defined returns true if the tensor index has been set.
func (ti TensorIndex) Defined() bool { return ti.name != "" }

// Equal returns true if both refer to the same tensor index.
func (ti TensorIndex) Equal(o TensorIndex) bool { return ti.name == o.name }

// String representation of the tensor index.
func (ti TensorIndex) String() string {
	return fmt.Sprintf("%s: %s->%s", ti.name, ti.source, ti.sink)
}

// ValidateIndexData checks concrete coordinate and sink arrays against the
// shape every tensor index guarantees: the coordinate array starts at zero,
// never decreases, ends at the length of the sink array, and the sinks of
// each span are sorted with no duplicate.
func ValidateIndexData(ti TensorIndex, coords, sinks []Int) error {
	if len(coords) == 0 {
		return errors.Errorf("tensor index %s: empty coordinate array", ti.name)
	}
	if coords[0] != 0 {
		return errors.Errorf("tensor index %s: coordinate array starts at %d, not 0", ti.name, coords[0])
	}
	for i := 1; i < len(coords); i++ {
		if coords[i] < coords[i-1] {
			return errors.Errorf("tensor index %s: coordinate array decreases at %d: %d < %d", ti.name, i, coords[i], coords[i-1])
		}
	}
	last := coords[len(coords)-1]
	if last != Int(len(sinks)) {
		return errors.Errorf("tensor index %s: coordinate array ends at %d but there are %d sinks", ti.name, last, len(sinks))
	}
	for s := 0; s < len(coords)-1; s++ {
		for p := coords[s] + 1; p < coords[s+1]; p++ {
			if sinks[p] <= sinks[p-1] {
				return errors.Errorf("tensor index %s: sinks of source %d are not sorted: sinks[%d]=%d, sinks[%d]=%d", ti.name, s, p-1, sinks[p-1], p, sinks[p])
			}
		}
	}
	return nil
}
