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
	"go/token"

	"github.com/neuroradiology/simit/build/fmterr"
	"github.com/neuroradiology/simit/build/ir"
)

// lowerer emits the loop nest of one index expression.
type lowerer struct {
	cfg    *config
	env    *ir.Environment
	target ir.Var
	iexpr  *ir.IndexExpr

	// levels are the loops of the expression, outermost first: the result
	// variables in result order, then the reduction variables in order of
	// appearance. Only the innermost level can be linked.
	levels []IndexVariableLoop
	scope  map[string]ir.Var

	storage   ir.Storage
	workspace ir.Var
}

// LowerIndexExpression turns an index expression into the statements
// computing it into target: nested loops over the expression's index
// variables where the innermost level merges the sink spans of the sparse
// operands sharing its variable. Temporaries the emitted code needs
// allocated, such as the workspace row of a sparse output, are declared in
// the environment.
//
// An output stored through a tensor index is staged in a workspace row and
// scattered through that index once per source. Only positions the index
// lists are copied out and reset: the output's tensor index must cover
// every sink the expression can write for a source.
func LowerIndexExpression(target ir.Var, iexpr *ir.IndexExpr, env *ir.Environment) (ir.Stmt, error) {
	return lowerExpr(defaultConfig(), target, iexpr, env)
}

func lowerExpr(cfg *config, target ir.Var, iexpr *ir.IndexExpr, env *ir.Environment) (ir.Stmt, error) {
	lw := &lowerer{
		cfg:    cfg,
		env:    env,
		target: target,
		iexpr:  iexpr,
		scope:  map[string]ir.Var{},
	}
	if err := lw.buildLoops(); err != nil {
		return nil, err
	}
	innermost := lw.levels[len(lw.levels)-1]
	subsets, err := createSubsetLoops(iexpr, innermost, lw.scope, env)
	if err != nil {
		return nil, err
	}
	if err := lw.buildWorkspace(); err != nil {
		return nil, err
	}
	stmts, err := lw.emitInnermost(subsets)
	if err != nil {
		return nil, err
	}
	// Reduction variables nest contiguously innermost, all accumulating
	// into the position the free variables fix: the output is cleared once,
	// right before the outermost reduction loop.
	firstRed := len(lw.levels)
	for li, loop := range lw.levels {
		if loop.IndexVar().IsReduction() {
			firstRed = li
			break
		}
	}
	if firstRed == len(lw.levels)-1 {
		stmts = append([]ir.Stmt{lw.zeroInit()}, stmts...)
	}
	if lw.workspace.Defined() {
		stmts = append(stmts, lw.scatter())
	}
	for li := len(lw.levels) - 2; li >= 0; li-- {
		loop := lw.levels[li]
		stmts = []ir.Stmt{&ir.ForRange{
			V:     loop.InductionVar(),
			Begin: ir.IntLit(0),
			End:   &ir.Length{Of: loop.IndexVar().Domain},
			Body:  ir.Block(stmts...),
		}}
		if li == firstRed {
			stmts = append([]ir.Stmt{lw.zeroInit()}, stmts...)
		}
	}
	return ir.Block(stmts...), nil
}

// buildLoops creates one loop per index variable, result variables
// outermost. A variable's loop links to the loop of the variable a sparse
// operand accesses it under.
func (lw *lowerer) buildLoops() error {
	if len(lw.iexpr.ResultVars) == 0 {
		return fmterr.Errorf(lw.iexpr, "expression has no result variable: full reductions to a scalar must be lowered against a one element result")
	}
	names := []string{lw.target.Name}
	ir.Visit(lw.iexpr, func(n ir.Node) bool {
		if vexpr, ok := n.(*ir.VarExpr); ok {
			names = append(names, vexpr.V.Name)
		}
		return true
	})
	lw.env.Reserve(names...)

	ivars := append([]ir.IndexVar{}, lw.iexpr.ResultVars...)
	seen := map[string]bool{}
	for _, iv := range ivars {
		seen[iv.Name] = true
	}
	for _, access := range ir.IndexedTensors(lw.iexpr.Value) {
		for _, iv := range access.IndexVars {
			if iv.IsReduction() && !seen[iv.Name] {
				ivars = append(ivars, iv)
				seen[iv.Name] = true
			}
		}
	}
	loops := map[string]IndexVariableLoop{}
	for _, iv := range ivars {
		parent, err := lw.linkParent(iv, loops)
		if err != nil {
			return err
		}
		var loop IndexVariableLoop
		if parent.Defined() {
			loop = NewLinkedLoop(iv, parent, lw.env)
		} else {
			loop = NewLoop(iv, lw.env)
		}
		loops[iv.Name] = loop
		lw.levels = append(lw.levels, loop)
		lw.scope[iv.Name] = loop.InductionVar()
	}
	for _, loop := range lw.levels[:len(lw.levels)-1] {
		if loop.IsLinked() {
			return fmterr.Errorf(lw.iexpr, "loop over %s is linked but not innermost: nested sparse levels are not supported", loop.IndexVar())
		}
	}
	return nil
}

// linkParent returns the loop a variable links to: the loop of the
// variable it is accessed under through an indexed operand, if any.
func (lw *lowerer) linkParent(iv ir.IndexVar, loops map[string]IndexVariableLoop) (IndexVariableLoop, error) {
	var parent IndexVariableLoop
	for _, access := range ir.IndexedTensors(lw.iexpr.Value) {
		if len(access.IndexVars) != 2 || access.IndexVars[1].Name != iv.Name {
			continue
		}
		vexpr, ok := access.Tensor.(*ir.VarExpr)
		if !ok {
			continue
		}
		storage, ok := lw.env.StorageOf(vexpr.V.Name)
		if !ok || storage.Kind != ir.IndexedStorage {
			continue
		}
		p, ok := loops[access.IndexVars[0].Name]
		if !ok {
			return IndexVariableLoop{}, fmterr.Errorf(access, "operand %s accesses %s from %s, which is iterated further in", vexpr.V.Name, iv, access.IndexVars[0])
		}
		if parent.Defined() && parent.InductionVar() != p.InductionVar() {
			return IndexVariableLoop{}, fmterr.Errorf(access, "variable %s is reached through tensor indices from both %s and %s", iv, parent.IndexVar(), p.IndexVar())
		}
		parent = p
	}
	return parent, nil
}

// buildWorkspace declares the dense staging row of an indexed output.
// Subset loops write into the row at the merged sink; once a source row is
// complete it scatters into the output through the output's tensor index.
// The scatter visits the positions that index lists and no others: a write
// at a sink outside the output's index stays in the row.
func (lw *lowerer) buildWorkspace() error {
	storage, ok := lw.env.StorageOf(lw.target.Name)
	if !ok {
		storage = ir.Dense()
	}
	lw.storage = storage
	if storage.Kind != ir.IndexedStorage {
		return nil
	}
	innermost := lw.levels[len(lw.levels)-1]
	if innermost.IndexVar().IsReduction() {
		return fmterr.Errorf(lw.iexpr, "output %s is stored through %s but the innermost variable %s is a reduction", lw.target.Name, storage.Index.Name(), innermost.IndexVar())
	}
	if len(lw.levels) < 2 {
		return fmterr.Errorf(lw.iexpr, "output %s is stored through %s but there is no source variable to scatter from", lw.target.Name, storage.Index.Name())
	}
	source := lw.levels[len(lw.levels)-2]
	if !storage.Index.SourceSet().Equal(source.IndexVar().Domain) {
		return fmterr.Errorf(lw.iexpr, "source domain %s of %s does not match the domain %s of %s", storage.Index.SourceSet(), storage.Index.Name(), source.IndexVar().Domain, source.IndexVar())
	}
	if !storage.Index.SinkSet().Equal(innermost.IndexVar().Domain) {
		return fmterr.Errorf(lw.iexpr, "sink domain %s of %s does not match the domain %s of %s", storage.Index.SinkSet(), storage.Index.Name(), innermost.IndexVar().Domain, innermost.IndexVar())
	}
	lw.workspace = lw.env.NewVar(lw.cfg.workspaceRoot, &ir.TensorType{
		ComponentType: lw.target.Type().DataType(),
		Dims:          []ir.IndexSet{innermost.IndexVar().Domain},
	})
	lw.env.AddTemporary(lw.workspace)
	return nil
}

// outputPos is the position the output is written at: the row-major
// linearization of the result variables, the innermost one valued at the
// merged sink when it indexes the result.
func (lw *lowerer) outputPos(merged ir.Expr) ir.Expr {
	innermost := lw.levels[len(lw.levels)-1]
	var pos ir.Expr
	for _, rv := range lw.iexpr.ResultVars {
		var at ir.Expr
		if rv.Name == innermost.IndexVar().Name && merged != nil {
			at = merged
		} else {
			at = ir.NewVarExpr(lw.scope[rv.Name])
		}
		if pos == nil {
			pos = at
			continue
		}
		pos = ir.NewBinary(token.ADD,
			ir.NewBinary(token.MUL, pos, &ir.Length{Of: rv.Domain}), at)
	}
	return pos
}

// zeroInit clears the output position the reduction loops accumulate into.
func (lw *lowerer) zeroInit() ir.Stmt {
	return &ir.Store{
		Target: ir.NewVarExpr(lw.target),
		Index:  lw.outputPos(nil),
		Value:  ir.ZeroLit(lw.target.Type().DataType()),
		Cop:    ir.CompoundNone,
	}
}

// store writes the result of a subset loop at its merged sink, into the
// workspace row for an indexed output and directly into the output
// otherwise.
func (lw *lowerer) store(s SubsetLoop) ir.Stmt {
	var stmt ir.Stmt
	if lw.workspace.Defined() {
		stmt = &ir.Store{
			Target: ir.NewVarExpr(lw.workspace),
			Index:  s.IndexExpr(),
			Value:  s.ComputeExpr(),
			Cop:    s.CompoundOperator(),
		}
	} else {
		stmt = &ir.Store{
			Target: ir.NewVarExpr(lw.target),
			Index:  lw.outputPos(s.IndexExpr()),
			Value:  s.ComputeExpr(),
			Cop:    s.CompoundOperator(),
		}
	}
	if lw.cfg.comments {
		stmt = ir.NewComment(s.String(), stmt)
	}
	return stmt
}

// scatter copies the workspace row into the indexed output, resetting
// every copied position so the row is clean for the next source.
func (lw *lowerer) scatter() ir.Stmt {
	innermost := lw.levels[len(lw.levels)-1]
	source := lw.levels[len(lw.levels)-2]
	otiv := NewTensorIndexVar(innermost.IndexVar().Name, lw.target.Name,
		source.InductionVar(), lw.storage.Index, lw.env)
	return &ir.ForRange{
		V:     otiv.CoordinateVar(),
		Begin: otiv.LoadCoordinate(0),
		End:   otiv.LoadCoordinate(1),
		Body: ir.Block(
			otiv.InitSinkVar(),
			&ir.Store{
				Target: ir.NewVarExpr(lw.target),
				Index:  ir.NewVarExpr(otiv.CoordinateVar()),
				Value:  &ir.Load{Target: ir.NewVarExpr(lw.workspace), Index: ir.NewVarExpr(otiv.SinkVar())},
				Cop:    ir.CompoundNone,
			},
			&ir.Store{
				Target: ir.NewVarExpr(lw.workspace),
				Index:  ir.NewVarExpr(otiv.SinkVar()),
				Value:  ir.ZeroLit(lw.target.Type().DataType()),
				Cop:    ir.CompoundNone,
			},
		),
	}
}

// emitInnermost emits the loops of the innermost level: a dense loop over
// the full domain without sparse operands, the span of the single cursor,
// a three way merge for two cursors, and the generic sorted merge above.
func (lw *lowerer) emitInnermost(subsets []SubsetLoop) ([]ir.Stmt, error) {
	innermost := lw.levels[len(lw.levels)-1]
	cursors := subsets[0].TensorIndexVars()
	if len(cursors) == 0 {
		if len(subsets) != 1 {
			return nil, fmterr.Internal(fmterr.Errorf(lw.iexpr, "dense lowering produced %d subset loops", len(subsets)))
		}
		return []ir.Stmt{&ir.ForRange{
			V:     innermost.InductionVar(),
			Begin: ir.IntLit(0),
			End:   &ir.Length{Of: innermost.IndexVar().Domain},
			Body:  ir.Block(lw.store(subsets[0])),
		}}, nil
	}
	switch len(cursors) {
	case 1:
		return lw.emitSingle(subsets), nil
	case 2:
		return lw.emitThreeWay(subsets), nil
	}
	return lw.emitMultiWay(subsets), nil
}

// emitSingle iterates the sink span of the only cursor.
func (lw *lowerer) emitSingle(subsets []SubsetLoop) []ir.Stmt {
	innermost := lw.levels[len(lw.levels)-1]
	tiv := subsets[0].TensorIndexVars()[0]
	return []ir.Stmt{&ir.ForRange{
		V:     tiv.CoordinateVar(),
		Begin: tiv.LoadCoordinate(0),
		End:   tiv.LoadCoordinate(1),
		Body: ir.Block(
			tiv.InitSinkVarInto(innermost.InductionVar()),
			lw.store(subsets[0]),
		),
	}}
}

func advance(tiv TensorIndexVar) ir.Stmt {
	return &ir.AssignStmt{V: tiv.CoordinateVar(), Value: ir.IntLit(1), Cop: ir.CompoundAdd}
}

func (lw *lowerer) spanEnd(tiv TensorIndexVar) (ir.Var, ir.Stmt) {
	end := lw.env.NewVar(tiv.CoordinateVar().Name+"End", ir.IntType())
	return end, &ir.VarDecl{V: end, Init: tiv.LoadCoordinate(1)}
}

func inSpan(tiv TensorIndexVar, end ir.Var) ir.Expr {
	return ir.NewBinary(token.LSS, ir.NewVarExpr(tiv.CoordinateVar()), ir.NewVarExpr(end))
}

// findSubset returns the subset loop whose members are exactly the given
// cursors, if one was synthesized: combinations no term is contained in
// compute nothing and have no loop.
func findSubset(subsets []SubsetLoop, members ...TensorIndexVar) (SubsetLoop, bool) {
	for _, s := range subsets {
		if len(s.TensorIndexVars()) != len(members) {
			continue
		}
		match := true
		for i, tiv := range s.TensorIndexVars() {
			if !tiv.Index().Equal(members[i].Index()) {
				match = false
			}
		}
		if match {
			return s, true
		}
	}
	return SubsetLoop{}, false
}

// emitThreeWay merges two sorted cursors: a comparison loop while both
// spans have sinks left, then one drain loop per cursor whose lone subset
// computes something.
func (lw *lowerer) emitThreeWay(subsets []SubsetLoop) []ir.Stmt {
	innermost := lw.levels[len(lw.levels)-1]
	j := innermost.InductionVar()
	a := subsets[0].TensorIndexVars()[0]
	b := subsets[0].TensorIndexVars()[1]
	aEnd, aEndDecl := lw.spanEnd(a)
	bEnd, bEndDecl := lw.spanEnd(b)

	both := subsets[0]
	onlyA, hasA := findSubset(subsets, a)
	onlyB, hasB := findSubset(subsets, b)

	bothArm := ir.Block(
		&ir.VarDecl{V: j, Init: ir.NewVarExpr(a.SinkVar())},
		lw.store(both),
		advance(a),
		advance(b),
	)
	aArm := ir.Block()
	if hasA {
		aArm.Append(&ir.VarDecl{V: j, Init: ir.NewVarExpr(a.SinkVar())}, lw.store(onlyA))
	}
	aArm.Append(advance(a))
	bArm := ir.Block()
	if hasB {
		bArm.Append(&ir.VarDecl{V: j, Init: ir.NewVarExpr(b.SinkVar())}, lw.store(onlyB))
	}
	bArm.Append(advance(b))

	merge := &ir.While{
		Cond: ir.NewBinary(token.LAND, inSpan(a, aEnd), inSpan(b, bEnd)),
		Body: ir.Block(
			a.InitSinkVar(),
			b.InitSinkVar(),
			&ir.IfStmt{
				Cond: ir.NewBinary(token.EQL, ir.NewVarExpr(a.SinkVar()), ir.NewVarExpr(b.SinkVar())),
				Then: bothArm,
				Else: &ir.IfStmt{
					Cond: ir.NewBinary(token.LSS, ir.NewVarExpr(a.SinkVar()), ir.NewVarExpr(b.SinkVar())),
					Then: aArm,
					Else: bArm,
				},
			},
		),
	}
	stmts := []ir.Stmt{
		a.InitCoordinateVar(), aEndDecl,
		b.InitCoordinateVar(), bEndDecl,
		merge,
	}
	if hasA {
		stmts = append(stmts, &ir.While{
			Cond: inSpan(a, aEnd),
			Body: ir.Block(a.InitSinkVarInto(j), lw.store(onlyA), advance(a)),
		})
	}
	if hasB {
		stmts = append(stmts, &ir.While{
			Cond: inSpan(b, bEnd),
			Body: ir.Block(b.InitSinkVarInto(j), lw.store(onlyB), advance(b)),
		})
	}
	return stmts
}

// emitMultiWay merges any number of sorted cursors: while any span has
// sinks left, the merged sink is the smallest pending one, an exclusive
// cascade dispatches to the largest combination whose members all hold it,
// and every cursor holding it advances.
func (lw *lowerer) emitMultiWay(subsets []SubsetLoop) []ir.Stmt {
	innermost := lw.levels[len(lw.levels)-1]
	j := innermost.InductionVar()
	cursors := subsets[0].TensorIndexVars()

	var stmts []ir.Stmt
	ends := make(map[string]ir.Var, len(cursors))
	var anyLeft ir.Expr
	for _, tiv := range cursors {
		end, endDecl := lw.spanEnd(tiv)
		ends[tiv.Index().Name()] = end
		stmts = append(stmts, tiv.InitCoordinateVar(), endDecl)
		if anyLeft == nil {
			anyLeft = inSpan(tiv, end)
		} else {
			anyLeft = ir.NewBinary(token.LOR, anyLeft, inSpan(tiv, end))
		}
	}

	// The domain length bounds every sink, so it serves as the sentinel
	// the running minimum starts from.
	body := ir.Block(&ir.VarDecl{V: j, Init: &ir.Length{Of: innermost.IndexVar().Domain}})
	holds := func(tiv TensorIndexVar) ir.Expr {
		return ir.NewBinary(token.LAND,
			inSpan(tiv, ends[tiv.Index().Name()]),
			ir.NewBinary(token.EQL, tiv.LoadSink(), ir.NewVarExpr(j)))
	}
	for _, tiv := range cursors {
		body.Append(&ir.IfStmt{
			Cond: ir.NewBinary(token.LAND,
				inSpan(tiv, ends[tiv.Index().Name()]),
				ir.NewBinary(token.LSS, tiv.LoadSink(), ir.NewVarExpr(j))),
			Then: ir.Block(&ir.AssignStmt{V: j, Value: tiv.LoadSink()}),
		})
	}
	var cascade ir.Stmt
	for si := len(subsets) - 1; si >= 0; si-- {
		s := subsets[si]
		var cond ir.Expr
		for _, tiv := range s.TensorIndexVars() {
			if cond == nil {
				cond = holds(tiv)
			} else {
				cond = ir.NewBinary(token.LAND, cond, holds(tiv))
			}
		}
		cascade = &ir.IfStmt{Cond: cond, Then: ir.Block(lw.store(s)), Else: cascade}
	}
	body.Append(cascade)
	for _, tiv := range cursors {
		body.Append(&ir.IfStmt{Cond: holds(tiv), Then: ir.Block(advance(tiv))})
	}
	stmts = append(stmts, &ir.While{Cond: anyLeft, Body: body})
	return stmts
}
