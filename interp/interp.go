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

// Package interp executes lowered functions on concrete data.
//
// A [Function] wraps a lowered statement tree with the variables it reads
// and writes. A [Context] binds host data to those variables, runs the
// body, and reads results back. The interpreter walks the tree directly:
// it validates lowered code against reference data rather than running
// fast.
package interp

import (
	"slices"
	"sort"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/neuroradiology/simit/base/iter"
	"github.com/neuroradiology/simit/base/scope"
	"github.com/neuroradiology/simit/build/ir"
)

// Function is an executable lowered function.
type Function struct {
	Name string
	// Params are the operand variables the caller binds before running.
	Params []ir.Var
	// Results are the output variables, allocated when the function runs.
	Results []ir.Var
	Body    ir.Stmt
	// Env carries the tensor indices the body addresses, the storage
	// annotations of its variables, and the temporaries it needs
	// allocated.
	Env *ir.Environment
}

// value is a runtime value: ir.Int, float64, bool, []ir.Int or []float64.
type value any

// Context holds the bindings of one function execution.
type Context struct {
	fn       *Function
	globals  *scope.RWScope[value]
	declared map[string]ir.Type
	setLens  map[string]ir.Int
	ran      bool
}

// NewContext returns an execution context for a function with nothing
// bound yet.
func NewContext(fn *Function) *Context {
	ctx := &Context{
		fn:       fn,
		globals:  scope.NewScope[value](nil),
		declared: map[string]ir.Type{},
		setLens:  map[string]ir.Int{},
	}
	for _, v := range fn.Params {
		ctx.declared[v.Name] = v.Typ
	}
	for ti := range fn.Env.TensorIndexes() {
		ctx.declared[ti.CoordArray().Name] = ti.CoordArray().Typ
		ctx.declared[ti.SinkArray().Name] = ti.SinkArray().Typ
	}
	return ctx
}

func (ctx *Context) known() string {
	names := maps.Keys(ctx.declared)
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (ctx *Context) bind(name string, v value) error {
	if _, ok := ctx.declared[name]; !ok {
		return errors.Errorf("cannot bind %s: unknown name (have %s)", name, ctx.known())
	}
	if ctx.globals.IsLocal(name) {
		return errors.Errorf("cannot bind %s: already bound", name)
	}
	ctx.globals.Define(name, v)
	return nil
}

// BindInt binds an integer scalar.
func (ctx *Context) BindInt(name string, v ir.Int) error {
	return ctx.bind(name, v)
}

// BindFloat binds a float scalar.
func (ctx *Context) BindFloat(name string, v float64) error {
	return ctx.bind(name, v)
}

// BindIntBuffer binds the backing buffer of an integer tensor.
func (ctx *Context) BindIntBuffer(name string, data []ir.Int) error {
	return ctx.bind(name, data)
}

// BindFloatBuffer binds the backing buffer of a float tensor.
func (ctx *Context) BindFloatBuffer(name string, data []float64) error {
	return ctx.bind(name, data)
}

// BindIndex binds the backing arrays of a tensor index, after checking
// them against the shape every tensor index guarantees.
func (ctx *Context) BindIndex(ti ir.TensorIndex, coords, sinks []ir.Int) error {
	if _, ok := ctx.fn.Env.TensorIndex(ti.Name()); !ok {
		return errors.Errorf("tensor index %s is not registered in the environment of %s", ti.Name(), ctx.fn.Name)
	}
	if err := ir.ValidateIndexData(ti, coords, sinks); err != nil {
		return err
	}
	if err := ctx.bind(ti.CoordArray().Name, coords); err != nil {
		return err
	}
	return ctx.bind(ti.SinkArray().Name, sinks)
}

// BindSetLen binds the cardinality of an element set.
func (ctx *Context) BindSetLen(set string, n ir.Int) error {
	if n < 0 {
		return errors.Errorf("cannot bind |%s| to %d", set, n)
	}
	if _, ok := ctx.setLens[set]; ok {
		return errors.Errorf("cannot bind |%s|: already bound", set)
	}
	ctx.setLens[set] = n
	return nil
}

func (ctx *Context) setSize(set ir.IndexSet) (ir.Int, error) {
	if set.Kind() == ir.RangeSet {
		return set.Size(), nil
	}
	n, ok := ctx.setLens[set.Set()]
	if !ok {
		return 0, errors.Errorf("the length of set %s has not been bound", set.Set())
	}
	return n, nil
}

// alloc returns a zeroed buffer for a variable, sized from its type, with
// indexed variables sized from the sink count of their index.
func (ctx *Context) alloc(v ir.Var) (value, error) {
	if storage, ok := ctx.fn.Env.StorageOf(v.Name); ok && storage.Kind == ir.IndexedStorage {
		sinks, ok := ctx.globals.Find(storage.Index.SinkArray().Name)
		if !ok {
			return nil, errors.Errorf("cannot allocate %s: the arrays of %s have not been bound", v.Name, storage.Index.Name())
		}
		return zeroBuffer(v.Typ, ir.Int(len(sinks.([]ir.Int))))
	}
	tt, ok := v.Typ.(*ir.TensorType)
	if !ok || tt.Order() == 0 {
		return zeroScalar(v.Typ), nil
	}
	n := ir.Int(1)
	for _, dim := range tt.Dims {
		size, err := ctx.setSize(dim)
		if err != nil {
			return nil, errors.Errorf("cannot allocate %s: %v", v.Name, err)
		}
		n *= size
	}
	return zeroBuffer(v.Typ, n)
}

// Run executes the function body. Results and temporaries are allocated
// zeroed; every parameter must have been bound.
func (ctx *Context) Run() error {
	if ctx.ran {
		return errors.Errorf("%s already ran: use a fresh context", ctx.fn.Name)
	}
	for _, p := range ctx.fn.Params {
		if !ctx.globals.IsLocal(p.Name) {
			return errors.Errorf("parameter %s of %s has not been bound", p.Name, ctx.fn.Name)
		}
	}
	for v := range iter.All(ctx.fn.Results, slices.Collect(ctx.fn.Env.Temporaries())) {
		buf, err := ctx.alloc(v)
		if err != nil {
			return err
		}
		ctx.globals.Define(v.Name, buf)
	}
	ctx.ran = true
	return ctx.evalStmt(ctx.globals.NewChild(), ctx.fn.Body)
}

// Float reads a float buffer back after a run.
func (ctx *Context) Float(name string) ([]float64, error) {
	v, err := ctx.result(name)
	if err != nil {
		return nil, err
	}
	data, ok := v.([]float64)
	if !ok {
		return nil, errors.Errorf("%s holds a %T, not a float buffer", name, v)
	}
	return data, nil
}

// Ints reads an integer buffer back after a run.
func (ctx *Context) Ints(name string) ([]ir.Int, error) {
	v, err := ctx.result(name)
	if err != nil {
		return nil, err
	}
	data, ok := v.([]ir.Int)
	if !ok {
		return nil, errors.Errorf("%s holds a %T, not an integer buffer", name, v)
	}
	return data, nil
}

func (ctx *Context) result(name string) (value, error) {
	if !ctx.ran {
		return nil, errors.Errorf("%s has not run", ctx.fn.Name)
	}
	v, ok := ctx.globals.Find(name)
	if !ok {
		return nil, errors.Errorf("%s holds no variable %s", ctx.fn.Name, name)
	}
	return v, nil
}

func zeroScalar(t ir.Type) value {
	switch t.DataType() {
	case dtype.Float64:
		return float64(0)
	case dtype.Bool:
		return false
	}
	return ir.Int(0)
}

func zeroBuffer(t ir.Type, n ir.Int) (value, error) {
	switch t.DataType() {
	case dtype.Float64:
		return make([]float64, n), nil
	case dtype.Int64:
		return make([]ir.Int, n), nil
	}
	return nil, errors.Errorf("cannot allocate a buffer of %s", t)
}
