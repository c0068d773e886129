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

package ir_test

import (
	"go/token"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"

	"github.com/neuroradiology/simit/build/ir"
)

var (
	vDom = ir.NewSetDomain("V")

	matrixT = &ir.TensorType{ComponentType: dtype.Float64, Dims: []ir.IndexSet{vDom, vDom}}
	vectorT = &ir.TensorType{ComponentType: dtype.Float64, Dims: []ir.IndexSet{vDom}}
)

func spmv() (*ir.IndexExpr, ir.IndexVar, ir.IndexVar) {
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	a := ir.NewVarExpr(ir.NewVar("A", matrixT))
	b := ir.NewVarExpr(ir.NewVar("b", vectorT))
	value := ir.NewBinary(token.MUL,
		&ir.IndexedTensor{Tensor: a, IndexVars: []ir.IndexVar{i, j}},
		&ir.IndexedTensor{Tensor: b, IndexVars: []ir.IndexVar{j}},
	)
	return &ir.IndexExpr{
		ResultVars: []ir.IndexVar{i},
		Value:      value,
		Typ:        vectorT,
	}, i, j
}

func TestExprString(t *testing.T) {
	iexpr, i, _ := spmv()
	c := ir.NewVar("c", vectorT)
	ti := ir.NewTensorIndex("A_index", vDom, vDom)
	iv := ir.NewVar(i.Name, ir.IntType())
	tests := []struct {
		node ir.Node
		want string
	}{
		{
			node: iexpr,
			want: "(i) -> (A(i,+j) * b(+j))",
		},
		{
			node: ir.Neg(ir.NewVarExpr(c)),
			want: "-c",
		},
		{
			node: ir.NewBinary(token.LSS, ir.NewVarExpr(iv), &ir.Length{Of: vDom}),
			want: "(i < |V|)",
		},
		{
			node: &ir.Load{
				Target: &ir.TensorIndexRead{Index: ti, Kind: ir.CoordArray},
				Index:  ir.NewVarExpr(iv),
			},
			want: "A_index.coords[i]",
		},
		{
			node: &ir.Load{
				Target: &ir.TensorIndexRead{Index: ti, Kind: ir.SinkArray},
				Index:  ir.IntLit(3),
			},
			want: "A_index.sinks[3]",
		},
		{
			node: ir.FloatLit(1.5),
			want: "1.5",
		},
		{
			node: matrixT,
			want: "tensor[V,V](float64)",
		},
		{
			node: ir.IndexArrayType(),
			want: "[]int64",
		},
	}
	for ti, test := range tests {
		got := test.node.String()
		if got != test.want {
			t.Errorf("test %d: got %s but want %s", ti, got, test.want)
		}
	}
}

func TestStmtString(t *testing.T) {
	i := ir.NewVar("i", ir.IntType())
	j := ir.NewVar("j", ir.IntType())
	c := ir.NewVar("c", vectorT)
	w := ir.NewVar("w", ir.FloatType())
	tests := []struct {
		stmt ir.Stmt
		want string
	}{
		{
			stmt: &ir.ForRange{
				V:     i,
				Begin: ir.IntLit(0),
				End:   &ir.Length{Of: vDom},
				Body: ir.Block(&ir.Store{
					Target: ir.NewVarExpr(c),
					Index:  ir.NewVarExpr(i),
					Value:  ir.FloatLit(0),
					Cop:    ir.CompoundNone,
				}),
			},
			want: "for i in 0:|V| {\n\tc[i] = 0\n}",
		},
		{
			stmt: &ir.While{
				Cond: ir.NewBinary(token.LSS, ir.NewVarExpr(i), ir.IntLit(8)),
				Body: ir.Block(&ir.AssignStmt{V: i, Value: ir.IntLit(1), Cop: ir.CompoundAdd}),
			},
			want: "while (i < 8) {\n\ti += 1\n}",
		},
		{
			stmt: &ir.IfStmt{
				Cond: ir.NewBinary(token.EQL, ir.NewVarExpr(i), ir.NewVarExpr(j)),
				Then: ir.Block(&ir.AssignStmt{V: w, Value: ir.FloatLit(1)}),
				Else: &ir.IfStmt{
					Cond: ir.NewBinary(token.LSS, ir.NewVarExpr(i), ir.NewVarExpr(j)),
					Then: ir.Block(&ir.AssignStmt{V: w, Value: ir.FloatLit(2)}),
					Else: ir.Block(&ir.AssignStmt{V: w, Value: ir.FloatLit(3)}),
				},
			},
			want: "if (i == j) {\n\tw = 1\n} else if (i < j) {\n\tw = 2\n} else {\n\tw = 3\n}",
		},
		{
			stmt: &ir.VarDecl{V: w, Init: ir.FloatLit(0)},
			want: "var w : float64 = 0",
		},
		{
			stmt: ir.NewComment("subset loop", &ir.VarDecl{V: j}),
			want: "% subset loop\nvar j : int64",
		},
	}
	for ti, test := range tests {
		got := test.stmt.String()
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("test %d: unexpected statement string (-want +got):\n%s", ti, diff)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	tests := []struct {
		x, y ir.Type
		want bool
	}{
		{
			x:    ir.IntType(),
			y:    ir.IntType(),
			want: true,
		},
		{
			x:    ir.IntType(),
			y:    ir.FloatType(),
			want: false,
		},
		{
			x:    matrixT,
			y:    &ir.TensorType{ComponentType: dtype.Float64, Dims: []ir.IndexSet{vDom, vDom}},
			want: true,
		},
		{
			x:    matrixT,
			y:    vectorT,
			want: false,
		},
		{
			x:    vectorT,
			y:    &ir.TensorType{ComponentType: dtype.Float64, Dims: []ir.IndexSet{ir.NewRangeSet(4)}},
			want: false,
		},
		{
			x:    ir.IndexArrayType(),
			y:    &ir.ArrayType{ComponentType: dtype.Int64},
			want: true,
		},
		{
			x:    &ir.SetType{},
			y:    &ir.SetType{},
			want: true,
		},
	}
	for ti, test := range tests {
		if got := test.x.Equal(test.y); got != test.want {
			t.Errorf("test %d: %s.Equal(%s) = %v but want %v", ti, test.x, test.y, got, test.want)
		}
	}
}

func TestIndexVar(t *testing.T) {
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", ir.NewRangeSet(3))
	if i.IsReduction() {
		t.Errorf("free variable %s reports itself as a reduction", i)
	}
	if !j.IsReduction() {
		t.Errorf("reduction variable %s reports itself as free", j)
	}
	if got, want := i.String(), "i"; got != want {
		t.Errorf("got %s but want %s", got, want)
	}
	if got, want := j.String(), "+j"; got != want {
		t.Errorf("got %s but want %s", got, want)
	}
	if got, want := j.Domain.String(), "0:3"; got != want {
		t.Errorf("got %s but want %s", got, want)
	}
	if !i.Domain.Equal(ir.NewSetDomain("V")) {
		t.Errorf("domains over the same set are not equal")
	}
}
