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

package lower_test

import (
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/neuroradiology/simit/build/ir"
	"github.com/neuroradiology/simit/build/lower"
)

func lowered(t *testing.T, target ir.Var, iexpr *ir.IndexExpr, env *ir.Environment) string {
	t.Helper()
	body, err := lower.LowerIndexExpression(target, iexpr, env)
	if err != nil {
		t.Fatal(err)
	}
	return body.String()
}

func TestLowerDenseAdd(t *testing.T) {
	env := ir.NewEnvironment()
	i := ir.NewIndexVar("i", vDom)
	c := ir.NewVar("c", vectorT)
	iexpr := iexprOver(ir.NewBinary(token.ADD, acc("a", i), acc("b", i)), i)
	want := `for i in 0:|V| {
	c[i] = (a[i] + b[i])
}
`
	if diff := cmp.Diff(want, lowered(t, c, iexpr, env)); diff != "" {
		t.Errorf("unexpected lowering (-want +got):\n%s", diff)
	}
}

func TestLowerMatrixVectorProduct(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "A", "A_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	c := ir.NewVar("c", vectorT)
	iexpr := iexprOver(ir.NewBinary(token.MUL, acc("A", i, j), acc("b", j)), i)
	want := `for i in 0:|V| {
	c[i] = 0
	for ijA in A_index.coords[i]:A_index.coords[(i + 1)] {
		var j : int64 = A_index.sinks[ijA]
		c[i] += (A[ijA] * b[j])
	}
}
`
	if diff := cmp.Diff(want, lowered(t, c, iexpr, env)); diff != "" {
		t.Errorf("unexpected lowering (-want +got):\n%s", diff)
	}
}

func TestLowerNestedReductionsClearOnce(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "B", "B_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	k := ir.NewReductionVar("k", vDom)
	c := ir.NewVar("c", vectorT)
	iexpr := iexprOver(ir.NewBinary(token.MUL, acc("a", i, j), acc("B", j, k)), i)
	want := `for i in 0:|V| {
	c[i] = 0
	for j in 0:|V| {
		for jkB in B_index.coords[j]:B_index.coords[(j + 1)] {
			var k : int64 = B_index.sinks[jkB]
			c[i] += (a[((i * |V|) + j)] * B[jkB])
		}
	}
}
`
	if diff := cmp.Diff(want, lowered(t, c, iexpr, env)); diff != "" {
		t.Errorf("unexpected lowering (-want +got):\n%s", diff)
	}
}

func TestLowerTwoWayMerge(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "A", "A_index", vDom)
	indexed(t, env, "B", "B_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	c := ir.NewVar("c", vectorT)
	iexpr := iexprOver(ir.NewBinary(token.ADD, acc("A", i, j), acc("B", i, j)), i)
	want := `for i in 0:|V| {
	c[i] = 0
	var ijA : int64 = A_index.coords[i]
	var ijAEnd : int64 = A_index.coords[(i + 1)]
	var ijB : int64 = B_index.coords[i]
	var ijBEnd : int64 = B_index.coords[(i + 1)]
	while ((ijA < ijAEnd) && (ijB < ijBEnd)) {
		var jA : int64 = A_index.sinks[ijA]
		var jB : int64 = B_index.sinks[ijB]
		if (jA == jB) {
			var j : int64 = jA
			c[i] += (A[ijA] + B[ijB])
			ijA += 1
			ijB += 1
		} else if (jA < jB) {
			var j : int64 = jA
			c[i] += A[ijA]
			ijA += 1
		} else {
			var j : int64 = jB
			c[i] += B[ijB]
			ijB += 1
		}
	}
	while (ijA < ijAEnd) {
		var j : int64 = A_index.sinks[ijA]
		c[i] += A[ijA]
		ijA += 1
	}
	while (ijB < ijBEnd) {
		var j : int64 = B_index.sinks[ijB]
		c[i] += B[ijB]
		ijB += 1
	}
}
`
	if diff := cmp.Diff(want, lowered(t, c, iexpr, env)); diff != "" {
		t.Errorf("unexpected lowering (-want +got):\n%s", diff)
	}
}

func TestLowerIntersectionHasNoDrains(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "A", "A_index", vDom)
	indexed(t, env, "B", "B_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	c := ir.NewVar("c", vectorT)
	iexpr := iexprOver(ir.NewBinary(token.MUL, acc("A", i, j), acc("B", i, j)), i)
	got := lowered(t, c, iexpr, env)
	if n := strings.Count(got, "while"); n != 1 {
		t.Errorf("got %d while loops but want 1, the comparison loop:\n%s", n, got)
	}
	if !strings.Contains(got, "c[i] += (A[ijA] * B[ijB])") {
		t.Errorf("missing intersection store:\n%s", got)
	}
}

func TestLowerMultiWayMerge(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "A", "A_index", vDom)
	indexed(t, env, "B", "B_index", vDom)
	indexed(t, env, "D", "D_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewReductionVar("j", vDom)
	c := ir.NewVar("c", vectorT)
	value := ir.NewBinary(token.ADD,
		ir.NewBinary(token.ADD, acc("A", i, j), acc("B", i, j)),
		acc("D", i, j))
	got := lowered(t, c, iexprOver(value, i), env)
	for _, want := range []string{
		"while (((ijA < ijAEnd) || (ijB < ijBEnd)) || (ijD < ijDEnd))",
		"var j : int64 = |V|",
		"c[i] += ((A[ijA] + B[ijB]) + D[ijD])",
		"if ((ijA < ijAEnd) && (A_index.sinks[ijA] == j)) {\n\t\t\tijA += 1\n\t\t}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("lowering misses %q:\n%s", want, got)
		}
	}
}

func TestLowerIndexedOutputScatters(t *testing.T) {
	env := ir.NewEnvironment()
	indexed(t, env, "A", "A_index", vDom)
	indexed(t, env, "B", "B_index", vDom)
	indexed(t, env, "C", "C_index", vDom)
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewIndexVar("j", vDom)
	target := ir.NewVar("C", matrixT)
	iexpr := &ir.IndexExpr{
		ResultVars: []ir.IndexVar{i, j},
		Value:      ir.NewBinary(token.ADD, acc("A", i, j), acc("B", i, j)),
		Typ:        matrixT,
	}
	got := lowered(t, target, iexpr, env)
	for _, want := range []string{
		"w[j] = (A[ijA] + B[ijB])",
		"for ijC in C_index.coords[i]:C_index.coords[(i + 1)]",
		"var jC : int64 = C_index.sinks[ijC]",
		"C[ijC] = w[jC]",
		"w[jC] = 0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("lowering misses %q:\n%s", want, got)
		}
	}
	var temps []string
	for v := range env.Temporaries() {
		temps = append(temps, v.Name)
	}
	if diff := cmp.Diff([]string{"w"}, temps); diff != "" {
		t.Errorf("unexpected temporaries (-want +got):\n%s", diff)
	}
}

func TestLowerDeterministic(t *testing.T) {
	build := func() string {
		env := ir.NewEnvironment()
		indexed(t, env, "A", "A_index", vDom)
		indexed(t, env, "B", "B_index", vDom)
		i := ir.NewIndexVar("i", vDom)
		j := ir.NewReductionVar("j", vDom)
		c := ir.NewVar("c", vectorT)
		iexpr := iexprOver(ir.NewBinary(token.ADD, acc("A", i, j), acc("B", i, j)), i)
		return lowered(t, c, iexpr, env)
	}
	first, second := build(), build()
	if first != second {
		t.Errorf("two lowerings of the same expression differ:\n%s\nversus:\n%s", first, second)
	}
}

func TestLowerErrors(t *testing.T) {
	i := ir.NewIndexVar("i", vDom)
	j := ir.NewIndexVar("j", vDom)
	k := ir.NewReductionVar("k", vDom)
	tests := []struct {
		name   string
		target ir.Var
		iexpr  func(env *ir.Environment) *ir.IndexExpr
		want   string
	}{
		{
			name:   "no result variable",
			target: ir.NewVar("s", ir.FloatType()),
			iexpr: func(env *ir.Environment) *ir.IndexExpr {
				return &ir.IndexExpr{Value: acc("a", k), Typ: ir.FloatType()}
			},
			want: "no result variable",
		},
		{
			name:   "linked loop not innermost",
			target: ir.NewVar("C", matrixT),
			iexpr: func(env *ir.Environment) *ir.IndexExpr {
				indexed(t, env, "A", "A_index", vDom)
				return &ir.IndexExpr{
					ResultVars: []ir.IndexVar{i, j},
					Value:      ir.NewBinary(token.MUL, acc("A", i, j), acc("b", k)),
					Typ:        matrixT,
				}
			},
			want: "not innermost",
		},
		{
			name:   "parent iterated further in",
			target: ir.NewVar("c", vectorT),
			iexpr: func(env *ir.Environment) *ir.IndexExpr {
				indexed(t, env, "A", "A_index", vDom)
				return iexprOver(acc("A", k, i), i)
			},
			want: "iterated further in",
		},
		{
			name:   "indexed output under a reduction",
			target: ir.NewVar("c", vectorT),
			iexpr: func(env *ir.Environment) *ir.IndexExpr {
				indexed(t, env, "A", "A_index", vDom)
				indexed(t, env, "c", "c_index", vDom)
				return iexprOver(ir.NewBinary(token.MUL, acc("A", i, k), acc("b", k)), i)
			},
			want: "reduction",
		},
		{
			name:   "indexed output without a source",
			target: ir.NewVar("c", vectorT),
			iexpr: func(env *ir.Environment) *ir.IndexExpr {
				indexed(t, env, "c", "c_index", vDom)
				return iexprOver(acc("a", i), i)
			},
			want: "no source variable",
		},
	}
	for ti, test := range tests {
		env := ir.NewEnvironment()
		iexpr := test.iexpr(env)
		_, err := lower.LowerIndexExpression(test.target, iexpr, env)
		if err == nil {
			t.Errorf("test %d (%s): no error returned", ti, test.name)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("test %d (%s): error %q does not mention %q", ti, test.name, err, test.want)
		}
	}
}
