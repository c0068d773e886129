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

import "fmt"

// IndexSetKind discriminates the kinds of index set.
type IndexSetKind int

const (
	// RangeSet is a dense integer interval [0, Size).
	RangeSet IndexSetKind = iota
	// SetDomain is the domain of a named element set. Its cardinality is
	// only known once the set is bound.
	SetDomain
)

// IndexSet is the domain an index variable iterates over.
// IndexSet is a value type and can be compared with ==.
type IndexSet struct {
	kind IndexSetKind
	size Int
	set  string
}

// NewRangeSet returns the dense domain [0, n).
func NewRangeSet(n Int) IndexSet {
	return IndexSet{kind: RangeSet, size: n}
}

// NewSetDomain returns the domain of the named element set.
func NewSetDomain(set string) IndexSet {
	return IndexSet{kind: SetDomain, set: set}
}

// Kind of the index set.
func (s IndexSet) Kind() IndexSetKind { return s.kind }

// Size of a range set. Only meaningful for RangeSet.
func (s IndexSet) Size() Int { return s.size }

// Set is the name of the element set of a SetDomain.
func (s IndexSet) Set() string { return s.set }

// Equal returns true if both sets describe the same domain.
func (s IndexSet) Equal(o IndexSet) bool { return s == o }

// String representation of the index set.
func (s IndexSet) String() string {
	if s.kind == SetDomain {
		return s.set
	}
	return fmt.Sprintf("0:%d", s.size)
}

// IndexVarKind discriminates free and reduction index variables.
type IndexVarKind int

const (
	// FreeVar indexes the result: the expression produces one value per
	// element of its domain.
	FreeVar IndexVarKind = iota
	// ReductionVar is summed over: values computed across its domain
	// accumulate into the same result component.
	ReductionVar
)

// IndexVar is an iteration variable of an index expression.
// IndexVar is a value type and can be compared with ==.
type IndexVar struct {
	Name   string
	Domain IndexSet
	Kind   IndexVarKind
}

// NewIndexVar returns a free index variable over a domain.
func NewIndexVar(name string, domain IndexSet) IndexVar {
	return IndexVar{Name: name, Domain: domain, Kind: FreeVar}
}

// NewReductionVar returns a summation index variable over a domain.
func NewReductionVar(name string, domain IndexSet) IndexVar {
	return IndexVar{Name: name, Domain: domain, Kind: ReductionVar}
}

// IsReduction returns true for summation variables.
func (v IndexVar) IsReduction() bool { return v.Kind == ReductionVar }

// Defined returns true if the variable has been set.
func (v IndexVar) Defined() bool { return v.Name != "" }

// String representation of the index variable.
// Reduction variables print with the accumulation marker, as in +j.
func (v IndexVar) String() string {
	if v.IsReduction() {
		return "+" + v.Name
	}
	return v.Name
}
