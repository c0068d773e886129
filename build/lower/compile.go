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
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/neuroradiology/simit/build/fmterr"
	"github.com/neuroradiology/simit/build/ir"
	"github.com/neuroradiology/simit/interp"
)

// Func is one function to lower: a target written from an index expression.
type Func struct {
	Name   string
	Target ir.Var
	Expr   *ir.IndexExpr
}

// params are the operand variables of an expression, in order of
// appearance.
func params(iexpr *ir.IndexExpr) []ir.Var {
	var vars []ir.Var
	seen := map[string]bool{}
	for _, access := range ir.IndexedTensors(iexpr.Value) {
		vexpr, ok := access.Tensor.(*ir.VarExpr)
		if !ok || seen[vexpr.V.Name] {
			continue
		}
		seen[vexpr.V.Name] = true
		vars = append(vars, vexpr.V)
	}
	return vars
}

// Compile lowers one function into the given environment and returns it
// ready for binding and execution. The environment accumulates the
// declarations of every function compiled into it: use one environment per
// function body.
func Compile(fn Func, env *ir.Environment, opts ...Option) (*interp.Function, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	body, err := lowerExpr(cfg, fn.Target, fn.Expr, env)
	if err != nil {
		return nil, fmterr.PrefixWith("%s: ", fn.Name)(err)
	}
	return &interp.Function{
		Name:    fn.Name,
		Params:  params(fn.Expr),
		Results: []ir.Var{fn.Target},
		Body:    body,
		Env:     env,
	}, nil
}

// CompileAll lowers independent functions concurrently, each into its own
// clone of the environment. Results come back in input order; lowering
// errors are aggregated. Cancelling the context stops scheduling functions
// that have not started.
func CompileAll(ctx context.Context, fns []Func, env *ir.Environment, opts ...Option) ([]*interp.Function, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	compiled := make([]*interp.Function, len(fns))
	errs := make([]error, len(fns))
	sem := make(chan struct{}, cfg.workers)
	var wg sync.WaitGroup
	for i, fn := range fns {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, fn Func) {
			defer wg.Done()
			defer func() { <-sem }()
			compiled[i], errs[i] = Compile(fn, env.Clone(), opts...)
		}(i, fn)
	}
	wg.Wait()
	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	return compiled, nil
}
