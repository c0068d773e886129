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

// Package lower turns tensor index expressions into loop code.
//
// An index expression computes one value per combination of its free index
// variables, summing over its reduction variables. When an operand only
// stores values at the coordinates of a [ir.TensorIndex], iterating the
// full domain of a variable is both wasteful and wrong: the loop over that
// variable must follow the index instead. Lowering builds one
// [IndexVariableLoop] per index variable, addresses sparse operands through
// [TensorIndexVar] cursors, decomposes the expression into [SubsetLoop]
// values with [CreateSubsetLoops], and emits the merged loop nest with
// [LowerIndexExpression].
package lower

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/neuroradiology/simit/build/fmterr"
	"github.com/neuroradiology/simit/build/ir"
)

// loopContent is the state shared by all copies of a loop.
type loopContent struct {
	indexVar  ir.IndexVar
	induction ir.Var
	linked    IndexVariableLoop
}

// IndexVariableLoop is the loop iterating one index variable of an index
// expression. A loop is either independent, iterating the full static
// domain of its variable, or linked to a parent loop: the values it visits
// are then the sinks a tensor index reaches from the parent's current
// induction value.
//
// IndexVariableLoop is a cheap handle over shared content: copies alias
// one loop and the parent chain is shared.
type IndexVariableLoop struct {
	content *loopContent
}

// NewLoop returns an independent loop over an index variable.
// The induction variable takes a fresh name derived from the variable name.
func NewLoop(iv ir.IndexVar, env *ir.Environment) IndexVariableLoop {
	return IndexVariableLoop{content: &loopContent{
		indexVar:  iv,
		induction: env.NewVar(iv.Name, ir.IntType()),
	}}
}

// NewLinkedLoop returns a loop linked to a parent loop. The values the
// loop visits are not the static domain of its index variable but the
// sinks reached from the parent's current induction value through a
// tensor index.
func NewLinkedLoop(iv ir.IndexVar, parent IndexVariableLoop, env *ir.Environment) IndexVariableLoop {
	return IndexVariableLoop{content: &loopContent{
		indexVar:  iv,
		induction: env.NewVar(iv.Name, ir.IntType()),
		linked:    parent,
	}}
}

// Defined returns true if the loop has been set.
func (l IndexVariableLoop) Defined() bool { return l.content != nil }

// IndexVar is the index variable the loop iterates.
func (l IndexVariableLoop) IndexVar() ir.IndexVar { return l.content.indexVar }

// InductionVar is the generated loop counter.
func (l IndexVariableLoop) InductionVar() ir.Var { return l.content.induction }

// IsLinked returns true if the loop is linked to a parent loop.
func (l IndexVariableLoop) IsLinked() bool { return l.content.linked.Defined() }

// Linked returns the parent loop. Calling Linked on an unlinked loop is a
// contract violation: callers guard with [IndexVariableLoop.IsLinked].
func (l IndexVariableLoop) Linked() IndexVariableLoop {
	if !l.IsLinked() {
		panic(fmterr.Internal(errors.Errorf("loop over %s is not linked", l.content.indexVar)))
	}
	return l.content.linked
}

// String representation of the loop.
func (l IndexVariableLoop) String() string {
	if !l.Defined() {
		return "undefined loop"
	}
	if l.IsLinked() {
		return fmt.Sprintf("%s->%s", l.content.linked.IndexVar(), l.content.indexVar)
	}
	return l.content.indexVar.String()
}
