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

package main

import (
	"go/token"
	"sort"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/neuroradiology/simit/build/ir"
	"github.com/neuroradiology/simit/build/lower"
	"github.com/neuroradiology/simit/interp"
)

// scenario describes one lowering problem: the element sets, the tensor
// indices with their concrete arrays, the operand tensors, and the index
// expression computing the target.
type scenario struct {
	Name    string                `yaml:"name"`
	Sets    map[string]ir.Int     `yaml:"sets"`
	Indices map[string]indexSpec  `yaml:"indices"`
	Tensors map[string]tensorSpec `yaml:"tensors"`
	Target  tensorRef             `yaml:"target"`
	Expr    exprSpec              `yaml:"expr"`
}

type indexSpec struct {
	Source string   `yaml:"source"`
	Sink   string   `yaml:"sink"`
	Coords []ir.Int `yaml:"coords"`
	Sinks  []ir.Int `yaml:"sinks"`
}

type tensorSpec struct {
	Dims []string  `yaml:"dims"`
	// Storage names the tensor index compressing the tensor, empty for a
	// dense tensor.
	Storage string    `yaml:"storage"`
	Data    []float64 `yaml:"data"`
}

type tensorRef struct {
	Name    string   `yaml:"name"`
	Dims    []string `yaml:"dims"`
	Storage string   `yaml:"storage"`
}

type exprSpec struct {
	// Result lists the free index variables of the output, outermost
	// first. Variables written with a leading + are reductions.
	Result []string   `yaml:"result"`
	Terms  []termSpec `yaml:"terms"`
}

type termSpec struct {
	Neg     bool         `yaml:"neg"`
	Factors []factorSpec `yaml:"factors"`
}

type factorSpec struct {
	Tensor string   `yaml:"tensor"`
	Vars   []string `yaml:"vars"`
}

func loadScenario(src []byte) (*scenario, error) {
	sc := &scenario{}
	if err := yaml.Unmarshal(src, sc); err != nil {
		return nil, errors.Wrap(err, "cannot parse scenario")
	}
	if sc.Name == "" {
		sc.Name = "main"
	}
	if sc.Target.Name == "" {
		return nil, errors.New("scenario has no target")
	}
	if len(sc.Expr.Terms) == 0 {
		return nil, errors.New("scenario has no expression terms")
	}
	return sc, nil
}

// builder turns a scenario into a function to lower. Map keys are visited
// in sorted order so two builds of the same scenario declare names
// identically.
type builder struct {
	sc      *scenario
	env     *ir.Environment
	indices map[string]ir.TensorIndex
	ivars   map[string]ir.IndexVar
	tensors map[string]ir.Var
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *builder) domain(set string) (ir.IndexSet, error) {
	if _, ok := b.sc.Sets[set]; !ok {
		return ir.IndexSet{}, errors.Errorf("set %s is not declared", set)
	}
	return ir.NewSetDomain(set), nil
}

func (b *builder) buildIndices() error {
	for _, name := range sortedKeys(b.sc.Indices) {
		spec := b.sc.Indices[name]
		source, err := b.domain(spec.Source)
		if err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
		sink, err := b.domain(spec.Sink)
		if err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
		ti := ir.NewTensorIndex(name, source, sink)
		if err := b.env.AddTensorIndex(ti); err != nil {
			return err
		}
		b.indices[name] = ti
	}
	return nil
}

func (b *builder) tensorType(dims []string) (*ir.TensorType, error) {
	t := &ir.TensorType{ComponentType: dtype.Float64}
	for _, set := range dims {
		dom, err := b.domain(set)
		if err != nil {
			return nil, err
		}
		t.Dims = append(t.Dims, dom)
	}
	return t, nil
}

func (b *builder) declareTensor(name string, dims []string, storage string) (ir.Var, error) {
	t, err := b.tensorType(dims)
	if err != nil {
		return ir.Var{}, errors.Wrapf(err, "tensor %s", name)
	}
	v := ir.NewVar(name, t)
	b.tensors[name] = v
	if storage == "" {
		return v, nil
	}
	ti, ok := b.indices[storage]
	if !ok {
		return ir.Var{}, errors.Errorf("tensor %s: index %s is not declared", name, storage)
	}
	b.env.SetStorage(name, ir.Indexed(ti))
	return v, nil
}

// indexVar resolves one variable token of a factor. A leading + marks a
// reduction. The domain comes from the tensor dimension the variable
// indexes; every use of a variable must agree on domain and kind.
func (b *builder) indexVar(tok string, dom ir.IndexSet) (ir.IndexVar, error) {
	name := strings.TrimPrefix(tok, "+")
	if name == "" {
		return ir.IndexVar{}, errors.New("empty index variable")
	}
	iv := ir.NewIndexVar(name, dom)
	if tok != name {
		iv = ir.NewReductionVar(name, dom)
	}
	if prev, ok := b.ivars[name]; ok {
		if prev.IsReduction() != iv.IsReduction() || !prev.Domain.Equal(iv.Domain) {
			return ir.IndexVar{}, errors.Errorf("index variable %s is used as both %s and %s", name, prev, iv)
		}
		return prev, nil
	}
	b.ivars[name] = iv
	return iv, nil
}

func (b *builder) buildFactor(f factorSpec) (ir.Expr, error) {
	spec, ok := b.sc.Tensors[f.Tensor]
	if !ok {
		return nil, errors.Errorf("tensor %s is not declared", f.Tensor)
	}
	v, ok := b.tensors[f.Tensor]
	if !ok {
		return nil, errors.Errorf("tensor %s has not been built", f.Tensor)
	}
	if len(f.Vars) != len(spec.Dims) {
		return nil, errors.Errorf("tensor %s has %d dimensions but is accessed with %d variables", f.Tensor, len(spec.Dims), len(f.Vars))
	}
	ivars := make([]ir.IndexVar, len(f.Vars))
	for i, tok := range f.Vars {
		dom, err := b.domain(spec.Dims[i])
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %s", f.Tensor)
		}
		iv, err := b.indexVar(tok, dom)
		if err != nil {
			return nil, err
		}
		ivars[i] = iv
	}
	return &ir.IndexedTensor{Tensor: ir.NewVarExpr(v), IndexVars: ivars}, nil
}

func (b *builder) buildValue() (ir.Expr, error) {
	var value ir.Expr
	for _, term := range b.sc.Expr.Terms {
		var product ir.Expr
		for _, f := range term.Factors {
			factor, err := b.buildFactor(f)
			if err != nil {
				return nil, err
			}
			if product == nil {
				product = factor
			} else {
				product = ir.NewBinary(token.MUL, product, factor)
			}
		}
		if product == nil {
			return nil, errors.New("term has no factors")
		}
		switch {
		case value == nil && term.Neg:
			value = ir.Neg(product)
		case value == nil:
			value = product
		case term.Neg:
			value = ir.NewBinary(token.SUB, value, product)
		default:
			value = ir.NewBinary(token.ADD, value, product)
		}
	}
	return value, nil
}

// buildFunc assembles the function a scenario describes, declaring its
// indices and tensors in a fresh environment.
func buildFunc(sc *scenario) (lower.Func, *ir.Environment, error) {
	b := &builder{
		sc:      sc,
		env:     ir.NewEnvironment(),
		indices: map[string]ir.TensorIndex{},
		ivars:   map[string]ir.IndexVar{},
		tensors: map[string]ir.Var{},
	}
	if err := b.buildIndices(); err != nil {
		return lower.Func{}, nil, err
	}
	for _, name := range sortedKeys(b.sc.Tensors) {
		spec := b.sc.Tensors[name]
		if _, err := b.declareTensor(name, spec.Dims, spec.Storage); err != nil {
			return lower.Func{}, nil, err
		}
	}
	value, err := b.buildValue()
	if err != nil {
		return lower.Func{}, nil, err
	}
	target, err := b.declareTensor(sc.Target.Name, sc.Target.Dims, sc.Target.Storage)
	if err != nil {
		return lower.Func{}, nil, err
	}
	var result []ir.IndexVar
	for _, tok := range sc.Expr.Result {
		iv, ok := b.ivars[strings.TrimPrefix(tok, "+")]
		if !ok {
			return lower.Func{}, nil, errors.Errorf("result variable %s does not appear in the expression", tok)
		}
		result = append(result, iv)
	}
	return lower.Func{
		Name:   sc.Name,
		Target: target,
		Expr: &ir.IndexExpr{
			ResultVars: result,
			Value:      value,
			Typ:        target.Typ,
		},
	}, b.env, nil
}

// bindScenario binds the concrete data of a scenario to an execution
// context: set cardinalities, index arrays, and operand buffers.
func bindScenario(ctx *interp.Context, sc *scenario, env *ir.Environment) error {
	for _, set := range sortedKeys(sc.Sets) {
		if err := ctx.BindSetLen(set, sc.Sets[set]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(sc.Indices) {
		spec := sc.Indices[name]
		ti, ok := env.TensorIndex(name)
		if !ok {
			return errors.Errorf("index %s is not declared", name)
		}
		if err := ctx.BindIndex(ti, spec.Coords, spec.Sinks); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(sc.Tensors) {
		spec := sc.Tensors[name]
		if name == sc.Target.Name {
			continue
		}
		if err := ctx.BindFloatBuffer(name, spec.Data); err != nil {
			return err
		}
	}
	return nil
}
