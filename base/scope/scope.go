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

// Package scope provides lexical scopes mapping names to values.
package scope

import (
	"fmt"
	"iter"
	"strings"

	"github.com/pkg/errors"
	"github.com/neuroradiology/simit/base/ordered"
)

// Scope provides a set of values that can be found given their name.
type Scope[V any] interface {
	// Find returns the value associated with a name, if any.
	Find(string) (V, bool)
	// Items returns all visible name,value pairs, inner definitions last.
	Items() *ordered.Map[string, V]
}

// RWScope stores name,value pairs.
// A value is retrieved from its name by querying the scope and,
// if not found, its parents recursively.
// Interpreter frames are RWScopes: a block gets a child scope so that
// its declarations shadow outer ones and vanish when the block ends.
type RWScope[V any] struct {
	parent Scope[V]
	data   *ordered.Map[string, V]
}

var _ Scope[any] = (*RWScope[any])(nil)

// NewScope returns a new scope given a parent, which can be nil.
func NewScope[V any](parent Scope[V]) *RWScope[V] {
	return &RWScope[V]{
		parent: parent,
		data:   ordered.NewMap[string, V](),
	}
}

// NewChild returns a scope nested in this one.
func (s *RWScope[V]) NewChild() *RWScope[V] {
	return NewScope[V](s)
}

// Define maps a name to a value in the local scope, overwriting if necessary.
func (s *RWScope[V]) Define(k string, v V) {
	s.data.Store(k, v)
}

// IsLocal returns true if the name is defined in the local scope.
func (s *RWScope[V]) IsLocal(key string) bool {
	return s.data.Has(key)
}

// LocalKeys returns the keys of the local scope without the parent.
func (s *RWScope[V]) LocalKeys() iter.Seq[string] {
	return s.data.Keys()
}

// Find a name in the scope and its parents.
func (s *RWScope[V]) Find(key string) (value V, ok bool) {
	value, ok = s.data.Load(key)
	if ok || s.parent == nil {
		return
	}
	return s.parent.Find(key)
}

// Assign maps an existing name to a value, failing if no scope in the chain
// defines the name. The assignment starts at the innermost scope and cascades
// upwards through successive parents.
func (s *RWScope[V]) Assign(key string, value V) error {
	if s.data.Has(key) {
		s.Define(key, value)
		return nil
	}
	if s.parent == nil {
		return errors.Errorf("cannot assign %s: not defined in scope", key)
	}
	rwParent, ok := s.parent.(*RWScope[V])
	if !ok {
		return errors.Errorf("cannot assign %s: scope parent of type %T does not support assignment", key, s.parent)
	}
	return rwParent.Assign(key, value)
}

// Items returns all visible name,value pairs. Outer definitions come first
// so that shadowing names overwrite them.
func (s *RWScope[V]) Items() *ordered.Map[string, V] {
	var all *ordered.Map[string, V]
	if s.parent != nil {
		all = s.parent.Items()
	} else {
		all = ordered.NewMap[string, V]()
	}
	for k, v := range s.data.Iter() {
		all.Store(k, v)
	}
	return all
}

// String representation of the scope, parents first.
func (s *RWScope[V]) String() string {
	var b strings.Builder
	if s.parent != nil {
		fmt.Fprintf(&b, "%v\n-- %p --\n", s.parent, s)
	}
	var kvs []string
	for k, v := range s.data.Iter() {
		kvs = append(kvs, fmt.Sprintf("%s: %T:%v", k, v, v))
	}
	if len(kvs) == 0 {
		kvs = []string{"empty"}
	}
	b.WriteString(strings.Join(kvs, "\n"))
	return b.String()
}
