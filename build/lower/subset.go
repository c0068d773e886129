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

package lower

import (
	"fmt"
	"go/token"
	"math/bits"
	"slices"
	"strings"

	"github.com/neuroradiology/simit/base/stringseq"
	"github.com/neuroradiology/simit/build/fmterr"
	"github.com/neuroradiology/simit/build/ir"
)

// SubsetLoop is one loop over a combination of tensor index variables that
// can hold the same sink value at a merge step. It computes the terms of
// the index expression whose sparse operands are all members of the
// combination and writes the result at the position of the merged sink.
type SubsetLoop struct {
	tensorIndexVars []TensorIndexVar
	cop             ir.CompoundOperator
	compute         ir.Expr
	index           ir.Expr
}

// TensorIndexVars are the cursors compared and advanced together by the
// loop. An empty list means a dense loop over the full domain.
func (s SubsetLoop) TensorIndexVars() []TensorIndexVar { return s.tensorIndexVars }

// CompoundOperator tells how the loop combines its result with the
// content of the output location.
func (s SubsetLoop) CompoundOperator() ir.CompoundOperator { return s.cop }

// SetCompoundOperator overrides the compound operator, for drivers that
// stage the output through a workspace.
func (s *SubsetLoop) SetCompoundOperator(cop ir.CompoundOperator) { s.cop = cop }

// ComputeExpr is the value computed at each visited coordinate.
func (s SubsetLoop) ComputeExpr() ir.Expr { return s.compute }

// IndexExpr is the position the output is addressed at: the merged sink
// value of the combination.
func (s SubsetLoop) IndexExpr() ir.Expr { return s.index }

// String representation of the subset loop.
func (s SubsetLoop) String() string {
	var b strings.Builder
	if len(s.tensorIndexVars) == 0 {
		b.WriteString("dense")
	} else {
		stringseq.AppendStringer(&b, slices.Values(s.tensorIndexVars), " ")
	}
	fmt.Fprintf(&b, ": [%s] %s %s", s.index, s.cop, s.compute)
	return b.String()
}

// term is one additive term of an index expression: its value expression,
// its sign, and the set of cursors its sparse operands address, as a
// bitmask over the cursor list.
type term struct {
	raw     ir.Expr
	expr    ir.Expr
	neg     bool
	members uint
}

// splitSum decomposes an expression into its additive terms, pushing signs
// down so that every term carries its own.
func splitSum(e ir.Expr, neg bool) []*term {
	switch expr := e.(type) {
	case *ir.BinaryExpr:
		switch expr.Op {
		case token.ADD:
			return append(splitSum(expr.X, neg), splitSum(expr.Y, neg)...)
		case token.SUB:
			return append(splitSum(expr.X, neg), splitSum(expr.Y, !neg)...)
		}
	case *ir.UnaryExpr:
		if expr.Op == token.SUB {
			return splitSum(expr.X, !neg)
		}
	}
	return []*term{{raw: e, neg: neg}}
}

// sumTerms rebuilds the sum of the given terms, in order, preserving signs.
func sumTerms(terms []*term) ir.Expr {
	var e ir.Expr
	for _, t := range terms {
		if e == nil {
			if t.neg {
				e = ir.Neg(t.expr)
			} else {
				e = t.expr
			}
			continue
		}
		op := token.ADD
		if t.neg {
			op = token.SUB
		}
		e = ir.NewBinary(op, e, t.expr)
	}
	return e
}

// subsetBuilder synthesizes the subset loops of one index expression under
// one index variable loop.
type subsetBuilder struct {
	iexpr *ir.IndexExpr
	loop  IndexVariableLoop
	env   *ir.Environment
	// scope maps index variable names visible at this nesting level to
	// their induction variables.
	scope map[string]ir.Var

	cursors  []TensorIndexVar
	cursorOf map[string]int
}

// CreateSubsetLoops decomposes an index expression into the subset loops
// covering the iteration space of the given index variable loop.
//
// Operand accesses under the loop's index variable are classified as dense
// or sparse; sparse accesses produce one tensor index variable per distinct
// tensor index. Without sparse operands the result is a single dense loop
// computing the full expression. Otherwise one subset loop is returned for
// every combination of cursors that covers at least one additive term, in
// deterministic order: decreasing combination size, then first appearance
// of the member operands in the expression. The first loop always carries
// every cursor.
func CreateSubsetLoops(iexpr *ir.IndexExpr, loop IndexVariableLoop, env *ir.Environment) ([]SubsetLoop, error) {
	scope := map[string]ir.Var{}
	for l := loop; l.Defined(); {
		scope[l.IndexVar().Name] = l.InductionVar()
		if !l.IsLinked() {
			break
		}
		l = l.Linked()
	}
	return createSubsetLoops(iexpr, loop, scope, env)
}

func createSubsetLoops(iexpr *ir.IndexExpr, loop IndexVariableLoop, scope map[string]ir.Var, env *ir.Environment) ([]SubsetLoop, error) {
	b := &subsetBuilder{
		iexpr:    iexpr,
		loop:     loop,
		env:      env,
		scope:    scope,
		cursorOf: map[string]int{},
	}
	terms := splitSum(iexpr.Value, false)
	for _, t := range terms {
		for _, access := range ir.IndexedTensors(t.raw) {
			cursor, err := b.classify(access)
			if err != nil {
				return nil, err
			}
			if cursor >= 0 {
				t.members |= 1 << uint(cursor)
			}
		}
		var err error
		t.expr, err = b.rewrite(t.raw)
		if err != nil {
			return nil, err
		}
	}
	cop := ir.CompoundNone
	if loop.IndexVar().IsReduction() {
		cop = ir.CompoundAdd
	}
	merged := ir.NewVarExpr(loop.InductionVar())
	if len(b.cursors) == 0 {
		return []SubsetLoop{{
			cop:     cop,
			compute: sumTerms(terms),
			index:   merged,
		}}, nil
	}
	for _, t := range terms {
		if t.members == 0 {
			return nil, fmterr.Errorf(b.iexpr, "term %s is dense under the sparse variable %s: dense and sparse terms cannot merge", t.raw, loop.IndexVar())
		}
	}
	var loops []SubsetLoop
	for _, subset := range b.enumerate(terms) {
		var members []TensorIndexVar
		for c := range b.cursors {
			if subset&(1<<uint(c)) != 0 {
				members = append(members, b.cursors[c])
			}
		}
		var covered []*term
		for _, t := range terms {
			if t.members&^subset == 0 {
				covered = append(covered, t)
			}
		}
		loops = append(loops, SubsetLoop{
			tensorIndexVars: members,
			cop:             cop,
			compute:         sumTerms(covered),
			index:           merged,
		})
	}
	return loops, nil
}

// enumerate returns the cursor combinations that cover at least one term,
// largest first, ties broken by the first appearance of the members. Only
// combinations some term is contained in can compute anything: a
// coordinate whose active cursors match no returned combination needs no
// code. Worst case, k co-indexed sparse operands yield 2^k - 1
// combinations; expressions rarely co-index more than two.
func (b *subsetBuilder) enumerate(terms []*term) []uint {
	var subsets []uint
	for subset := uint(1); subset < 1<<uint(len(b.cursors)); subset++ {
		for _, t := range terms {
			if t.members&^subset == 0 {
				subsets = append(subsets, subset)
				break
			}
		}
	}
	slices.SortFunc(subsets, func(x, y uint) int {
		if d := bits.OnesCount(uint(y)) - bits.OnesCount(uint(x)); d != 0 {
			return d
		}
		return int(x) - int(y)
	})
	return subsets
}

// operand returns the variable behind a tensor access.
func (b *subsetBuilder) operand(access *ir.IndexedTensor) (ir.Var, error) {
	vexpr, ok := access.Tensor.(*ir.VarExpr)
	if !ok {
		return ir.Var{}, fmterr.Errorf(access, "operand is a %T, not a variable: only variable operands can be lowered", access.Tensor)
	}
	return vexpr.V, nil
}

// classify decides whether an access iterates densely or through a tensor
// index under the current loop. It returns the position of the cursor
// addressing the access, or -1 for a dense access, registering a new
// cursor the first time a tensor index appears.
func (b *subsetBuilder) classify(access *ir.IndexedTensor) (int, error) {
	v, err := b.operand(access)
	if err != nil {
		return -1, err
	}
	if len(access.IndexVars) > 2 {
		return -1, fmterr.Errorf(access, "operand %s has order %d: tensors of order above 2 must be flattened before lowering", v.Name, len(access.IndexVars))
	}
	iv := b.loop.IndexVar()
	storage, ok := b.env.StorageOf(v.Name)
	if !ok || storage.Kind == ir.DenseStorage {
		return -1, nil
	}
	uses := false
	for _, av := range access.IndexVars {
		if av.Name == iv.Name {
			uses = true
		}
	}
	if !uses {
		return -1, fmterr.Errorf(access, "operand %s is stored through %s but does not iterate %s: sparse operands cannot be read outside their own merge loop", v.Name, storage.Index.Name(), iv)
	}
	if len(access.IndexVars) != 2 || access.IndexVars[1].Name != iv.Name {
		return -1, fmterr.Errorf(access, "operand %s is stored through %s but is not accessed as (source,%s): transposed sparse accesses are not supported", v.Name, storage.Index.Name(), iv)
	}
	if !b.loop.IsLinked() {
		return -1, fmterr.Errorf(access, "operand %s is stored through %s but the loop over %s is not linked", v.Name, storage.Index.Name(), iv)
	}
	parent := b.loop.Linked()
	if access.IndexVars[0].Name != parent.IndexVar().Name {
		return -1, fmterr.Errorf(access, "operand %s is accessed from %s, not from the parent variable %s", v.Name, access.IndexVars[0], parent.IndexVar())
	}
	if !storage.Index.SinkSet().Equal(iv.Domain) {
		return -1, fmterr.Errorf(access, "sink domain %s of %s does not match the domain %s of %s", storage.Index.SinkSet(), storage.Index.Name(), iv.Domain, iv)
	}
	if cursor, ok := b.cursorOf[storage.Index.Name()]; ok {
		return cursor, nil
	}
	tiv := NewTensorIndexVar(iv.Name, v.Name, parent.InductionVar(), storage.Index, b.env)
	b.cursors = append(b.cursors, tiv)
	b.cursorOf[storage.Index.Name()] = len(b.cursors) - 1
	return len(b.cursors) - 1, nil
}

// rewrite replaces every tensor access below e with a load from its
// backing buffer: sparse accesses load at their cursor's coordinate, dense
// accesses at the row-major position of their index variables.
func (b *subsetBuilder) rewrite(e ir.Expr) (ir.Expr, error) {
	switch expr := e.(type) {
	case *ir.IndexedTensor:
		return b.rewriteAccess(expr)
	case *ir.BinaryExpr:
		x, err := b.rewrite(expr.X)
		if err != nil {
			return nil, err
		}
		y, err := b.rewrite(expr.Y)
		if err != nil {
			return nil, err
		}
		return &ir.BinaryExpr{Op: expr.Op, X: x, Y: y, Typ: expr.Typ}, nil
	case *ir.UnaryExpr:
		x, err := b.rewrite(expr.X)
		if err != nil {
			return nil, err
		}
		return &ir.UnaryExpr{Op: expr.Op, X: x}, nil
	}
	return e, nil
}

// value returns the expression holding the current value of an index
// variable at this nesting level.
func (b *subsetBuilder) value(iv ir.IndexVar, access *ir.IndexedTensor) (ir.Expr, error) {
	if iv.Name == b.loop.IndexVar().Name {
		return ir.NewVarExpr(b.loop.InductionVar()), nil
	}
	induction, ok := b.scope[iv.Name]
	if !ok {
		return nil, fmterr.Errorf(access, "index variable %s is not iterated at this nesting level", iv)
	}
	return ir.NewVarExpr(induction), nil
}

func (b *subsetBuilder) rewriteAccess(access *ir.IndexedTensor) (ir.Expr, error) {
	v, err := b.operand(access)
	if err != nil {
		return nil, err
	}
	if storage, ok := b.env.StorageOf(v.Name); ok && storage.Kind == ir.IndexedStorage {
		cursor, ok := b.cursorOf[storage.Index.Name()]
		if !ok {
			return nil, fmterr.Internalf(access, "operand %s has no cursor for %s", v.Name, storage.Index.Name())
		}
		return &ir.Load{
			Target: access.Tensor,
			Index:  ir.NewVarExpr(b.cursors[cursor].CoordinateVar()),
		}, nil
	}
	var index ir.Expr
	for _, iv := range access.IndexVars {
		at, err := b.value(iv, access)
		if err != nil {
			return nil, err
		}
		if index == nil {
			index = at
			continue
		}
		index = ir.NewBinary(token.ADD,
			ir.NewBinary(token.MUL, index, &ir.Length{Of: iv.Domain}), at)
	}
	if index == nil {
		return access.Tensor, nil
	}
	return &ir.Load{Target: access.Tensor, Index: index}, nil
}
