// Copyright 2025 Google LLC
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

// Package uname provides unique names.
package uname

import "fmt"

// Unique generates unique names.
// Lowering derives many variables from the same few index-variable names
// (induction variables, coordinate cursors, sink values), so generated
// names stay readable: the base name is returned unchanged the first time
// and suffixed with an increasing integer afterwards.
type Unique struct {
	names map[string]int
}

// New name generator.
func New() *Unique {
	return &Unique{names: make(map[string]int)}
}

// Reserve marks names as taken without generating anything.
// Variables that already exist in an expression are reserved before
// lowering starts so that generated names never collide with them.
func (n *Unique) Reserve(names ...string) {
	for _, name := range names {
		if _, ok := n.names[name]; !ok {
			n.names[name] = 1
		}
	}
}

// Taken returns true if a name has already been returned or reserved.
func (n *Unique) Taken(name string) bool {
	_, ok := n.names[name]
	return ok
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
func (n *Unique) Name(root string) string {
	nextIndex, ok := n.names[root]
	if !ok {
		n.names[root] = 1
		return root
	}
	name := fmt.Sprintf("%s%d", root, nextIndex)
	n.names[root] = nextIndex + 1
	for n.Taken(name) {
		name = fmt.Sprintf("%s%d", root, n.names[root])
		n.names[root]++
	}
	n.names[name] = 1
	return name
}

// Clone returns an independent generator with the same taken names.
func (n *Unique) Clone() *Unique {
	names := make(map[string]int, len(n.names))
	for k, v := range n.names {
		names[k] = v
	}
	return &Unique{names: names}
}
