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

package interp

import (
	"go/token"

	"github.com/pkg/errors"

	"github.com/neuroradiology/simit/base/scope"
	"github.com/neuroradiology/simit/build/fmterr"
	"github.com/neuroradiology/simit/build/ir"
)

type frame = scope.RWScope[value]

func (ctx *Context) evalStmt(f *frame, stmt ir.Stmt) error {
	switch s := stmt.(type) {
	case *ir.BlockStmt:
		child := f.NewChild()
		for _, inner := range s.List {
			if err := ctx.evalStmt(child, inner); err != nil {
				return err
			}
		}
		return nil
	case *ir.VarDecl:
		if s.Init == nil {
			f.Define(s.V.Name, zeroScalar(s.V.Typ))
			return nil
		}
		v, err := ctx.evalExpr(f, s.Init)
		if err != nil {
			return err
		}
		f.Define(s.V.Name, v)
		return nil
	case *ir.AssignStmt:
		return ctx.evalAssign(f, s)
	case *ir.Store:
		return ctx.evalStore(f, s)
	case *ir.ForRange:
		return ctx.evalForRange(f, s)
	case *ir.While:
		return ctx.evalWhile(f, s)
	case *ir.IfStmt:
		return ctx.evalIf(f, s)
	case *ir.Comment:
		if s.X == nil {
			return nil
		}
		return ctx.evalStmt(f, s.X)
	}
	return fmterr.Internalf(stmt, "cannot execute statement: %T not supported", stmt)
}

func (ctx *Context) evalAssign(f *frame, s *ir.AssignStmt) error {
	v, err := ctx.evalExpr(f, s.Value)
	if err != nil {
		return err
	}
	if s.Cop == ir.CompoundAdd {
		cur, ok := f.Find(s.V.Name)
		if !ok {
			return fmterr.Errorf(s, "variable %s is not defined", s.V.Name)
		}
		if v, err = add(cur, v); err != nil {
			return fmterr.Source(s, err)
		}
	}
	if err := f.Assign(s.V.Name, v); err != nil {
		return fmterr.Source(s, err)
	}
	return nil
}

func (ctx *Context) evalStore(f *frame, s *ir.Store) error {
	buf, err := ctx.evalExpr(f, s.Target)
	if err != nil {
		return err
	}
	at, err := ctx.evalInt(f, s.Index)
	if err != nil {
		return err
	}
	v, err := ctx.evalExpr(f, s.Value)
	if err != nil {
		return err
	}
	switch data := buf.(type) {
	case []float64:
		if at < 0 || at >= ir.Int(len(data)) {
			return fmterr.Errorf(s, "position %d is out of the buffer range [0, %d)", at, len(data))
		}
		fv, err := toFloat(v)
		if err != nil {
			return fmterr.Source(s, err)
		}
		if s.Cop == ir.CompoundAdd {
			data[at] += fv
		} else {
			data[at] = fv
		}
	case []ir.Int:
		if at < 0 || at >= ir.Int(len(data)) {
			return fmterr.Errorf(s, "position %d is out of the buffer range [0, %d)", at, len(data))
		}
		iv, err := toInt(v)
		if err != nil {
			return fmterr.Source(s, err)
		}
		if s.Cop == ir.CompoundAdd {
			data[at] += iv
		} else {
			data[at] = iv
		}
	default:
		return fmterr.Errorf(s, "cannot store into a %T", buf)
	}
	return nil
}

func (ctx *Context) evalForRange(f *frame, s *ir.ForRange) error {
	begin, err := ctx.evalInt(f, s.Begin)
	if err != nil {
		return err
	}
	end, err := ctx.evalInt(f, s.End)
	if err != nil {
		return err
	}
	loopFrame := f.NewChild()
	for i := begin; i < end; i++ {
		loopFrame.Define(s.V.Name, i)
		if err := ctx.evalStmt(loopFrame, s.Body); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) evalWhile(f *frame, s *ir.While) error {
	for {
		cond, err := ctx.evalBool(f, s.Cond)
		if err != nil {
			return err
		}
		if !cond {
			return nil
		}
		if err := ctx.evalStmt(f, s.Body); err != nil {
			return err
		}
	}
}

func (ctx *Context) evalIf(f *frame, s *ir.IfStmt) error {
	cond, err := ctx.evalBool(f, s.Cond)
	if err != nil {
		return err
	}
	if cond {
		return ctx.evalStmt(f, s.Then)
	}
	if s.Else == nil {
		return nil
	}
	return ctx.evalStmt(f, s.Else)
}

func (ctx *Context) evalExpr(f *frame, e ir.Expr) (value, error) {
	switch expr := e.(type) {
	case *ir.VarExpr:
		v, ok := f.Find(expr.V.Name)
		if !ok {
			return nil, fmterr.Errorf(e, "variable %s has not been bound", expr.V.Name)
		}
		return v, nil
	case *ir.AtomicValueT[ir.Int]:
		return expr.Val, nil
	case *ir.AtomicValueT[float64]:
		return expr.Val, nil
	case *ir.AtomicValueT[bool]:
		return expr.Val, nil
	case *ir.UnaryExpr:
		return ctx.evalUnary(f, expr)
	case *ir.BinaryExpr:
		return ctx.evalBinary(f, expr)
	case *ir.Load:
		return ctx.evalLoad(f, expr)
	case *ir.Length:
		n, err := ctx.setSize(expr.Of)
		if err != nil {
			return nil, fmterr.Source(e, err)
		}
		return n, nil
	case *ir.TensorIndexRead:
		name := expr.Index.CoordArray().Name
		if expr.Kind == ir.SinkArray {
			name = expr.Index.SinkArray().Name
		}
		v, ok := ctx.globals.Find(name)
		if !ok {
			return nil, fmterr.Errorf(e, "the arrays of %s have not been bound", expr.Index.Name())
		}
		return v, nil
	}
	return nil, fmterr.Errorf(e, "cannot evaluate %T: the expression has not been lowered", e)
}

func (ctx *Context) evalUnary(f *frame, e *ir.UnaryExpr) (value, error) {
	v, err := ctx.evalExpr(f, e.X)
	if err != nil {
		return nil, err
	}
	if e.Op != token.SUB {
		return nil, fmterr.Errorf(e, "unary operator %s not supported", e.Op)
	}
	switch x := v.(type) {
	case ir.Int:
		return -x, nil
	case float64:
		return -x, nil
	}
	return nil, fmterr.Errorf(e, "cannot negate a %T", v)
}

func (ctx *Context) evalBinary(f *frame, e *ir.BinaryExpr) (value, error) {
	// Logical operators short-circuit: merge guards rely on the right
	// operand not being evaluated when the left decides.
	if e.Op == token.LAND || e.Op == token.LOR {
		x, err := ctx.evalBool(f, e.X)
		if err != nil {
			return nil, err
		}
		if (e.Op == token.LAND && !x) || (e.Op == token.LOR && x) {
			return x, nil
		}
		return ctx.evalBool(f, e.Y)
	}
	x, err := ctx.evalExpr(f, e.X)
	if err != nil {
		return nil, err
	}
	y, err := ctx.evalExpr(f, e.Y)
	if err != nil {
		return nil, err
	}
	v, err := numeric(e.Op, x, y)
	if err != nil {
		return nil, fmterr.Source(e, err)
	}
	return v, nil
}

func (ctx *Context) evalLoad(f *frame, e *ir.Load) (value, error) {
	buf, err := ctx.evalExpr(f, e.Target)
	if err != nil {
		return nil, err
	}
	at, err := ctx.evalInt(f, e.Index)
	if err != nil {
		return nil, err
	}
	switch data := buf.(type) {
	case []float64:
		if at < 0 || at >= ir.Int(len(data)) {
			return nil, fmterr.Errorf(e, "position %d is out of the buffer range [0, %d)", at, len(data))
		}
		return data[at], nil
	case []ir.Int:
		if at < 0 || at >= ir.Int(len(data)) {
			return nil, fmterr.Errorf(e, "position %d is out of the buffer range [0, %d)", at, len(data))
		}
		return data[at], nil
	}
	return nil, fmterr.Errorf(e, "cannot load from a %T", buf)
}

func (ctx *Context) evalInt(f *frame, e ir.Expr) (ir.Int, error) {
	v, err := ctx.evalExpr(f, e)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmterr.Source(e, err)
	}
	return n, nil
}

func (ctx *Context) evalBool(f *frame, e ir.Expr) (bool, error) {
	v, err := ctx.evalExpr(f, e)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmterr.Errorf(e, "condition is a %T, not a boolean", v)
	}
	return b, nil
}

func toInt(v value) (ir.Int, error) {
	n, ok := v.(ir.Int)
	if !ok {
		return 0, errors.Errorf("value is a %T, not an integer", v)
	}
	return n, nil
}

func toFloat(v value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case ir.Int:
		return float64(x), nil
	}
	return 0, errors.Errorf("value is a %T, not a number", v)
}

func add(x, y value) (value, error) {
	return numeric(token.ADD, x, y)
}

// numeric applies an arithmetic or comparison operator, promoting to float
// when the operands mix integers and floats.
func numeric(op token.Token, x, y value) (value, error) {
	xi, xInt := x.(ir.Int)
	yi, yInt := y.(ir.Int)
	if xInt && yInt {
		return intOp(op, xi, yi)
	}
	xf, err := toFloat(x)
	if err != nil {
		return nil, err
	}
	yf, err := toFloat(y)
	if err != nil {
		return nil, err
	}
	return floatOp(op, xf, yf)
}

func intOp(op token.Token, x, y ir.Int) (value, error) {
	switch op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return nil, errors.New("integer division by zero")
		}
		return x / y, nil
	case token.EQL:
		return x == y, nil
	case token.NEQ:
		return x != y, nil
	case token.LSS:
		return x < y, nil
	case token.LEQ:
		return x <= y, nil
	case token.GTR:
		return x > y, nil
	case token.GEQ:
		return x >= y, nil
	}
	return nil, errors.Errorf("operator %s not supported on integers", op)
}

func floatOp(op token.Token, x, y float64) (value, error) {
	switch op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		return x / y, nil
	case token.EQL:
		return x == y, nil
	case token.NEQ:
		return x != y, nil
	case token.LSS:
		return x < y, nil
	case token.LEQ:
		return x <= y, nil
	case token.GTR:
		return x > y, nil
	case token.GEQ:
		return x >= y, nil
	}
	return nil, errors.Errorf("operator %s not supported on floats", op)
}
