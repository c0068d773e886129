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

package interp_test

import (
	"go/token"
	"testing"

	"github.com/gx-org/backend/dtype"
	"github.com/stretchr/testify/require"

	"github.com/neuroradiology/simit/build/ir"
	"github.com/neuroradiology/simit/interp"
)

var (
	vDom    = ir.NewSetDomain("V")
	vectorT = &ir.TensorType{ComponentType: dtype.Float64, Dims: []ir.IndexSet{vDom}}
)

// scaleFn doubles a vector: for i in 0:|V| { c[i] = (a[i] * 2) }.
func scaleFn() *interp.Function {
	env := ir.NewEnvironment()
	a := ir.NewVar("a", vectorT)
	c := ir.NewVar("c", vectorT)
	i := env.NewVar("i", ir.IntType())
	body := ir.Block(&ir.ForRange{
		V:     i,
		Begin: ir.IntLit(0),
		End:   &ir.Length{Of: vDom},
		Body: ir.Block(&ir.Store{
			Target: ir.NewVarExpr(c),
			Index:  ir.NewVarExpr(i),
			Value: ir.NewBinary(token.MUL,
				&ir.Load{Target: ir.NewVarExpr(a), Index: ir.NewVarExpr(i)},
				ir.IntLit(2)),
			Cop: ir.CompoundNone,
		}),
	})
	return &interp.Function{
		Name:    "scale",
		Params:  []ir.Var{a},
		Results: []ir.Var{c},
		Body:    body,
		Env:     env,
	}
}

func TestRunScale(t *testing.T) {
	ctx := interp.NewContext(scaleFn())
	require.NoError(t, ctx.BindSetLen("V", 3))
	require.NoError(t, ctx.BindFloatBuffer("a", []float64{1, 2, 3}))
	require.NoError(t, ctx.Run())
	got, err := ctx.Float("c")
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4, 6}, got)
}

func TestRunTwice(t *testing.T) {
	ctx := interp.NewContext(scaleFn())
	require.NoError(t, ctx.BindSetLen("V", 1))
	require.NoError(t, ctx.BindFloatBuffer("a", []float64{1}))
	require.NoError(t, ctx.Run())
	err := ctx.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "already ran")
}

func TestBindErrors(t *testing.T) {
	ctx := interp.NewContext(scaleFn())
	err := ctx.BindFloatBuffer("nope", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown name")
	require.Contains(t, err.Error(), "a")

	require.NoError(t, ctx.BindFloatBuffer("a", []float64{1}))
	err = ctx.BindFloatBuffer("a", []float64{2})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already bound")

	err = ctx.BindSetLen("V", -1)
	require.Error(t, err)
	require.NoError(t, ctx.BindSetLen("V", 1))
	err = ctx.BindSetLen("V", 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already bound")
}

func TestRunUnboundParam(t *testing.T) {
	ctx := interp.NewContext(scaleFn())
	require.NoError(t, ctx.BindSetLen("V", 3))
	err := ctx.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parameter a")
}

func TestBindIndexValidates(t *testing.T) {
	env := ir.NewEnvironment()
	ti := ir.NewTensorIndex("A_index", vDom, vDom)
	require.NoError(t, env.AddTensorIndex(ti))
	fn := &interp.Function{Name: "noop", Body: ir.Block(), Env: env}

	ctx := interp.NewContext(fn)
	err := ctx.BindIndex(ti, []ir.Int{1, 2}, []ir.Int{0})
	require.Error(t, err)
	err = ctx.BindIndex(ti, []ir.Int{0, 2}, []ir.Int{1, 1})
	require.Error(t, err)
	require.NoError(t, ctx.BindIndex(ti, []ir.Int{0, 2}, []ir.Int{0, 1}))

	other := ir.NewTensorIndex("B_index", vDom, vDom)
	err = ctx.BindIndex(other, []ir.Int{0}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not registered")
}

func TestResultErrors(t *testing.T) {
	ctx := interp.NewContext(scaleFn())
	_, err := ctx.Float("c")
	require.Error(t, err)
	require.Contains(t, err.Error(), "has not run")

	require.NoError(t, ctx.BindSetLen("V", 1))
	require.NoError(t, ctx.BindFloatBuffer("a", []float64{1}))
	require.NoError(t, ctx.Run())
	_, err = ctx.Ints("c")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not an integer buffer")
	_, err = ctx.Float("unknown")
	require.Error(t, err)
}

func TestDivisionByZero(t *testing.T) {
	env := ir.NewEnvironment()
	c := ir.NewVar("c", vectorT)
	body := ir.Block(&ir.Store{
		Target: ir.NewVarExpr(c),
		Index:  ir.IntLit(0),
		Value:  ir.NewBinary(token.QUO, ir.IntLit(1), ir.IntLit(0)),
		Cop:    ir.CompoundNone,
	})
	ctx := interp.NewContext(&interp.Function{
		Name: "div", Results: []ir.Var{c}, Body: body, Env: env,
	})
	require.NoError(t, ctx.BindSetLen("V", 1))
	err := ctx.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "division by zero")
}

func TestStoreOutOfRange(t *testing.T) {
	env := ir.NewEnvironment()
	c := ir.NewVar("c", vectorT)
	body := ir.Block(&ir.Store{
		Target: ir.NewVarExpr(c),
		Index:  ir.IntLit(5),
		Value:  ir.FloatLit(1),
		Cop:    ir.CompoundNone,
	})
	ctx := interp.NewContext(&interp.Function{
		Name: "oob", Results: []ir.Var{c}, Body: body, Env: env,
	})
	require.NoError(t, ctx.BindSetLen("V", 2))
	err := ctx.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of the buffer range")
}

func TestWhileAndCompoundAssign(t *testing.T) {
	env := ir.NewEnvironment()
	c := ir.NewVar("c", vectorT)
	i := env.NewVar("i", ir.IntType())
	// var i = 0; while (i < 4) { c[0] += i; i += 1 }
	body := ir.Block(
		&ir.VarDecl{V: i, Init: ir.IntLit(0)},
		&ir.While{
			Cond: ir.NewBinary(token.LSS, ir.NewVarExpr(i), ir.IntLit(4)),
			Body: ir.Block(
				&ir.Store{
					Target: ir.NewVarExpr(c),
					Index:  ir.IntLit(0),
					Value:  ir.NewVarExpr(i),
					Cop:    ir.CompoundAdd,
				},
				&ir.AssignStmt{V: i, Value: ir.IntLit(1), Cop: ir.CompoundAdd},
			),
		},
	)
	ctx := interp.NewContext(&interp.Function{
		Name: "loop", Results: []ir.Var{c}, Body: body, Env: env,
	})
	require.NoError(t, ctx.BindSetLen("V", 1))
	require.NoError(t, ctx.Run())
	got, err := ctx.Float("c")
	require.NoError(t, err)
	require.Equal(t, []float64{6}, got)
}
