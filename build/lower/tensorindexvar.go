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

	"github.com/neuroradiology/simit/build/ir"
)

// TensorIndexVar is the pair of variables addressing one tensor index from
// a source value: a coordinate variable, the cursor into the sink array for
// the current source, and a sink variable, the sink the cursor points at.
// That is, the mapping (tensorIndex, sourceVar) -> (coordinateVar, sinkVar).
//
// For (A_index, i) the generated variables are (ijA, jA), evaluated as
//
//	ijA = A_index.coords[i]
//	 jA = A_index.sinks[ijA]
//
// In c = A*b, ijA addresses the component of A stored at (i, jA), i
// addresses c and jA addresses b, as in c[i] += A[ijA] * b[jA]. When loops
// over several tensor index variables merge, their sink variables merge
// into the overall loop induction variable.
type TensorIndexVar struct {
	tensorName string
	source     ir.Var
	coordinate ir.Var
	sink       ir.Var
	index      ir.TensorIndex
}

// NewTensorIndexVar returns a tensor index variable reading index from the
// current value of source. The coordinate and sink variables take fresh
// names derived from the induction variable name and the name of the
// operand the index addresses; the operand name only serves readability.
func NewTensorIndexVar(inductionVarName, tensorName string, source ir.Var, index ir.TensorIndex, env *ir.Environment) TensorIndexVar {
	return TensorIndexVar{
		tensorName: tensorName,
		source:     source,
		coordinate: env.NewVar(source.Name+inductionVarName+tensorName, ir.IntType()),
		sink:       env.NewVar(inductionVarName+tensorName, ir.IntType()),
		index:      index,
	}
}

// SourceVar is the variable holding the current source value.
func (tiv TensorIndexVar) SourceVar() ir.Var { return tiv.source }

// SourceExpr is the expression of the current source value.
func (tiv TensorIndexVar) SourceExpr() ir.Expr { return ir.NewVarExpr(tiv.source) }

// CoordinateVar is the cursor into the sink array.
func (tiv TensorIndexVar) CoordinateVar() ir.Var { return tiv.coordinate }

// SinkVar is the sink the cursor points at.
func (tiv TensorIndexVar) SinkVar() ir.Var { return tiv.sink }

// Index is the tensor index being addressed.
func (tiv TensorIndexVar) Index() ir.TensorIndex { return tiv.index }

// LoadCoordinate reads the coordinate array at (source value + offset).
// Offset 0 is the start of the current source's sink span, offset 1 its
// exclusive end.
func (tiv TensorIndexVar) LoadCoordinate(offset ir.Int) ir.Expr {
	at := tiv.SourceExpr()
	if offset != 0 {
		at = ir.NewBinary(token.ADD, at, ir.IntLit(offset))
	}
	return &ir.Load{
		Target: &ir.TensorIndexRead{Index: tiv.index, Kind: ir.CoordArray},
		Index:  at,
	}
}

// LoadSink reads the sink array at the position held by the coordinate
// variable.
func (tiv TensorIndexVar) LoadSink() ir.Expr {
	return &ir.Load{
		Target: &ir.TensorIndexRead{Index: tiv.index, Kind: ir.SinkArray},
		Index:  ir.NewVarExpr(tiv.coordinate),
	}
}

// InitCoordinateVar declares the coordinate variable, initialized to the
// start of the current source's sink span.
func (tiv TensorIndexVar) InitCoordinateVar() ir.Stmt {
	return &ir.VarDecl{V: tiv.coordinate, Init: tiv.LoadCoordinate(0)}
}

// InitSinkVar declares the sink variable, initialized from the sink array.
func (tiv TensorIndexVar) InitSinkVar() ir.Stmt {
	return tiv.InitSinkVarInto(tiv.sink)
}

// InitSinkVarInto declares the given variable as the sink variable,
// initialized from the sink array. Merged loops use it to declare the
// unified induction variable from one of their cursors.
func (tiv TensorIndexVar) InitSinkVarInto(v ir.Var) ir.Stmt {
	return &ir.VarDecl{V: v, Init: tiv.LoadSink()}
}

// String representation of the variable, as in jA=A_index.sinks[ijA].
func (tiv TensorIndexVar) String() string {
	return fmt.Sprintf("%s=%s", tiv.sink.Name, tiv.LoadSink())
}
