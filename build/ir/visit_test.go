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
	"slices"
	"testing"

	"github.com/neuroradiology/simit/build/ir"
)

func TestIndexedTensors(t *testing.T) {
	iexpr, _, j := spmv()
	var got []string
	for _, access := range ir.IndexedTensors(iexpr) {
		got = append(got, access.String())
	}
	want := []string{"A(i,+j)", "b(+j)"}
	if !slices.Equal(got, want) {
		t.Errorf("got accesses %v but want %v", got, want)
	}
	if !ir.UsesIndexVar(iexpr, j) {
		t.Errorf("expression does not report using %s", j)
	}
	k := ir.NewIndexVar("k", ir.NewSetDomain("V"))
	if ir.UsesIndexVar(iexpr, k) {
		t.Errorf("expression reports using %s", k)
	}
}

func TestVisitAbort(t *testing.T) {
	iexpr, _, _ := spmv()
	visited := 0
	ir.Visit(iexpr, func(ir.Node) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("visited %d nodes but want 1", visited)
	}
}

func TestVisitStmts(t *testing.T) {
	i := ir.NewVar("i", ir.IntType())
	c := ir.NewVar("c", vectorT)
	loop := &ir.ForRange{
		V:     i,
		Begin: ir.IntLit(0),
		End:   &ir.Length{Of: vDom},
		Body: ir.Block(
			&ir.Store{Target: ir.NewVarExpr(c), Index: ir.NewVarExpr(i), Value: ir.FloatLit(0)},
			&ir.IfStmt{
				Cond: ir.BoolLit(true),
				Then: ir.Block(&ir.Store{Target: ir.NewVarExpr(c), Index: ir.NewVarExpr(i), Value: ir.FloatLit(1), Cop: ir.CompoundAdd}),
			},
		),
	}
	stores := 0
	ir.Visit(loop, func(n ir.Node) bool {
		if _, ok := n.(*ir.Store); ok {
			stores++
		}
		return true
	})
	if stores != 2 {
		t.Errorf("visited %d stores but want 2", stores)
	}
}
