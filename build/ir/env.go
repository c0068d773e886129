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
	"iter"

	"github.com/pkg/errors"

	"github.com/neuroradiology/simit/base/ordered"
	"github.com/neuroradiology/simit/base/uname"
)

// StorageKind discriminates how a tensor stores its components.
type StorageKind int

const (
	// DenseStorage stores one component per point of the domain, in
	// row-major order.
	DenseStorage StorageKind = iota
	// IndexedStorage stores one component per coordinate of a tensor
	// index, in sink-array order.
	IndexedStorage
)

// Storage describes how a tensor variable stores its components.
// Storage decisions are made before lowering; lowering only consumes them.
type Storage struct {
	Kind  StorageKind
	Index TensorIndex
}

// Dense returns a dense storage annotation.
func Dense() Storage {
	return Storage{Kind: DenseStorage}
}

// Indexed returns a storage annotation addressing components through a
// tensor index.
func Indexed(ti TensorIndex) Storage {
	return Storage{Kind: IndexedStorage, Index: ti}
}

// Environment is the context a lowering call runs in: the registry of
// precomputed tensor indices and storage annotations it reads, the
// temporaries it declares, and the naming authority that keeps every
// generated variable name unique.
type Environment struct {
	names       *uname.Unique
	temporaries *ordered.Map[string, Var]
	indexes     *ordered.Map[string, TensorIndex]
	storage     *ordered.Map[string, Storage]
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		names:       uname.New(),
		temporaries: ordered.NewMap[string, Var](),
		indexes:     ordered.NewMap[string, TensorIndex](),
		storage:     ordered.NewMap[string, Storage](),
	}
}

// Reserve marks names as taken so that generated names never collide
// with them. Variables already appearing in an expression are reserved
// before lowering it.
func (env *Environment) Reserve(names ...string) {
	env.names.Reserve(names...)
}

// NewVar returns a variable with a fresh name derived from root.
func (env *Environment) NewVar(root string, t Type) Var {
	return NewVar(env.names.Name(root), t)
}

// AddTemporary declares a variable that lowered code needs allocated
// before it runs, such as a workspace row.
func (env *Environment) AddTemporary(v Var) {
	env.temporaries.Store(v.Name, v)
}

// Temporaries iterates over declared temporaries in declaration order.
func (env *Environment) Temporaries() iter.Seq[Var] {
	return env.temporaries.Values()
}

// AddTensorIndex registers a tensor index under its name.
func (env *Environment) AddTensorIndex(ti TensorIndex) error {
	if env.indexes.Has(ti.Name()) {
		return errors.Errorf("tensor index %s already registered", ti.Name())
	}
	env.indexes.Store(ti.Name(), ti)
	env.Reserve(ti.CoordArray().Name, ti.SinkArray().Name)
	return nil
}

// TensorIndex returns a registered tensor index given its name.
func (env *Environment) TensorIndex(name string) (TensorIndex, bool) {
	return env.indexes.Load(name)
}

// TensorIndexes iterates over registered tensor indices in registration order.
func (env *Environment) TensorIndexes() iter.Seq[TensorIndex] {
	return env.indexes.Values()
}

// SetStorage annotates a tensor variable with its storage.
func (env *Environment) SetStorage(varName string, s Storage) {
	env.storage.Store(varName, s)
	env.Reserve(varName)
}

// StorageOf returns the storage annotation of a tensor variable.
// Unannotated variables are dense.
func (env *Environment) StorageOf(varName string) (Storage, bool) {
	return env.storage.Load(varName)
}

// Clone returns an independent copy of the environment.
// Lowering runs on clones so that concurrent calls never share state.
func (env *Environment) Clone() *Environment {
	return &Environment{
		names:       env.names.Clone(),
		temporaries: env.temporaries.Clone(),
		indexes:     env.indexes.Clone(),
		storage:     env.storage.Clone(),
	}
}
