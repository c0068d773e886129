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

// Package ir is the Intermediate Representation (IR) tree for tensor index
// expressions and the loop code they lower to.
//
// Before lowering, a computation is an [IndexExpr]: a value expression over
// [IndexedTensor] operands sharing [IndexVar] iteration variables. Lowering
// rewrites it into statements ([ForRange], [While], [Store], ...) that
// address sparse operands through [TensorIndex] adjacency structures.
package ir

import (
	"go/token"

	"github.com/gx-org/backend/dtype"
)

// Int is the type used to represent integer values, loop counters and
// coordinates in lowered code.
type Int = int64

// ----------------------------------------------------------------------------
// Types of node in the tree.

// Node in the tree.
type Node interface {
	// node marks a structure as a node structure.
	// It prevents external implementations of the interface.
	// It prevents using arbitrary structure in this package to be used as nodes.
	node()

	// String representation of the node.
	String() string
}

// ----------------------------------------------------------------------------
// Types definition.
type (
	// Type of a value.
	Type interface {
		Node

		// DataType returns the scalar component type.
		DataType() dtype.DataType

		// Equal returns true if other is the same type.
		Equal(Type) bool
	}

	scalarType struct {
		DType dtype.DataType
	}

	// TensorType is a tensor with one index set per dimension.
	// A tensor of order 0 is a scalar.
	TensorType struct {
		ComponentType dtype.DataType
		Dims          []IndexSet
	}

	// ArrayType is a flat backing buffer: the values of a tensor or the
	// coordinate and sink arrays of a tensor index. Its length is only
	// known once data is bound.
	ArrayType struct {
		ComponentType dtype.DataType
	}

	// SetType is an element set whose cardinality is known at bind time.
	SetType struct{}
)

var (
	_ Type = (*scalarType)(nil)
	_ Type = (*TensorType)(nil)
	_ Type = (*ArrayType)(nil)
	_ Type = (*SetType)(nil)
)

func (*scalarType) node() {}
func (*TensorType) node() {}
func (*ArrayType) node()  {}
func (*SetType) node()    {}

var (
	intT   = &scalarType{DType: dtype.Int64}
	floatT = &scalarType{DType: dtype.Float64}
	boolT  = &scalarType{DType: dtype.Bool}

	indexArrayT = &ArrayType{ComponentType: dtype.Int64}
)

// IntType returns the type of an integer scalar.
func IntType() Type { return intT }

// FloatType returns the type of a float scalar.
func FloatType() Type { return floatT }

// BoolType returns the type of a boolean scalar.
func BoolType() Type { return boolT }

// IndexArrayType returns the type of coordinate and sink arrays.
func IndexArrayType() *ArrayType { return indexArrayT }

// ScalarOf returns the scalar type with the given component type.
func ScalarOf(dt dtype.DataType) Type {
	switch dt {
	case dtype.Int64:
		return intT
	case dtype.Float64:
		return floatT
	case dtype.Bool:
		return boolT
	}
	return &scalarType{DType: dt}
}

// DataType returns the scalar component type.
func (t *scalarType) DataType() dtype.DataType { return t.DType }

// Equal returns true if other is the same type.
func (t *scalarType) Equal(o Type) bool {
	ot, ok := o.(*scalarType)
	return ok && t.DType == ot.DType
}

// DataType returns the scalar component type.
func (t *TensorType) DataType() dtype.DataType { return t.ComponentType }

// Order returns the number of dimensions of the tensor.
func (t *TensorType) Order() int { return len(t.Dims) }

// Equal returns true if other is the same type.
func (t *TensorType) Equal(o Type) bool {
	ot, ok := o.(*TensorType)
	if !ok || t.ComponentType != ot.ComponentType || len(t.Dims) != len(ot.Dims) {
		return false
	}
	for i, dim := range t.Dims {
		if !dim.Equal(ot.Dims[i]) {
			return false
		}
	}
	return true
}

// DataType returns the scalar component type.
func (t *ArrayType) DataType() dtype.DataType { return t.ComponentType }

// Equal returns true if other is the same type.
func (t *ArrayType) Equal(o Type) bool {
	ot, ok := o.(*ArrayType)
	return ok && t.ComponentType == ot.ComponentType
}

// DataType returns dtype.Invalid: a set has no scalar component.
func (t *SetType) DataType() dtype.DataType { return dtype.Invalid }

// Equal returns true if other is the same type.
func (t *SetType) Equal(o Type) bool {
	_, ok := o.(*SetType)
	return ok
}

// IsScalar returns true if the type holds a single component value.
func IsScalar(t Type) bool {
	if _, ok := t.(*scalarType); ok {
		return true
	}
	tt, ok := t.(*TensorType)
	return ok && tt.Order() == 0
}

// ----------------------------------------------------------------------------
// Variables.

// Var is a named storage location.
// The name is the identity: two Vars with the same name refer to the
// same storage. Name uniqueness comes from [Environment.NewVar].
type Var struct {
	Name string
	Typ  Type
}

// NewVar returns a variable with a name and a type.
func NewVar(name string, t Type) Var {
	return Var{Name: name, Typ: t}
}

// Type of the values the variable stores.
func (v Var) Type() Type { return v.Typ }

// Defined returns true if the variable has been set.
func (v Var) Defined() bool { return v.Name != "" }

// ----------------------------------------------------------------------------
// Compound operators.

// CompoundOperator tells a write how to combine the value with the
// current content of its target.
type CompoundOperator int

const (
	// CompoundNone stores the value, discarding the previous content.
	CompoundNone CompoundOperator = iota
	// CompoundAdd adds the value to the previous content.
	CompoundAdd
)

// ----------------------------------------------------------------------------
// Expressions.
type (
	// Expr is an expression that returns a (typed) result.
	Expr interface {
		Node
		Type() Type
	}

	// VarExpr reads a variable.
	VarExpr struct {
		V Var
	}

	// AtomicValueT is a scalar literal.
	AtomicValueT[T dtype.GoDataType] struct {
		Val T
		Typ Type
	}

	// UnaryExpr is an operator with a single argument.
	UnaryExpr struct {
		Op token.Token
		X  Expr
	}

	// BinaryExpr is an operator with two arguments.
	BinaryExpr struct {
		Op   token.Token
		X, Y Expr
		Typ  Type
	}

	// Load reads one component from a buffer.
	Load struct {
		Target Expr
		Index  Expr
	}

	// Length is the cardinality of an index set, resolved when sets
	// are bound.
	Length struct {
		Of IndexSet
	}

	// IndexedTensor is a tensor operand accessed through index variables.
	// It only appears before lowering; lowering rewrites it into loads.
	IndexedTensor struct {
		Tensor    Expr
		IndexVars []IndexVar
	}

	// IndexExpr is the root of an index expression: a value computed for
	// every combination of the result index variables, summing over
	// reduction variables appearing in the value.
	IndexExpr struct {
		ResultVars []IndexVar
		Value      Expr
		Typ        Type
	}

	// TensorIndexReadKind selects which backing array of a tensor index
	// a TensorIndexRead refers to.
	TensorIndexReadKind int

	// TensorIndexRead refers to a backing array of a tensor index.
	TensorIndexRead struct {
		Index TensorIndex
		Kind  TensorIndexReadKind
	}
)

const (
	// CoordArray is the coordinate (offset) array of a tensor index.
	CoordArray TensorIndexReadKind = iota
	// SinkArray is the sink array of a tensor index.
	SinkArray
)

var (
	_ Expr = (*VarExpr)(nil)
	_ Expr = (*AtomicValueT[Int])(nil)
	_ Expr = (*AtomicValueT[float64])(nil)
	_ Expr = (*UnaryExpr)(nil)
	_ Expr = (*BinaryExpr)(nil)
	_ Expr = (*Load)(nil)
	_ Expr = (*Length)(nil)
	_ Expr = (*IndexedTensor)(nil)
	_ Expr = (*IndexExpr)(nil)
	_ Expr = (*TensorIndexRead)(nil)
)

func (*VarExpr) node()         {}
func (*AtomicValueT[T]) node() {}
func (*UnaryExpr) node()       {}
func (*BinaryExpr) node()      {}
func (*Load) node()            {}
func (*Length) node()          {}
func (*IndexedTensor) node()   {}
func (*IndexExpr) node()       {}
func (*TensorIndexRead) node() {}

// NewVarExpr returns an expression reading a variable.
func NewVarExpr(v Var) *VarExpr {
	return &VarExpr{V: v}
}

// IntLit returns an integer literal.
func IntLit(v Int) *AtomicValueT[Int] {
	return &AtomicValueT[Int]{Val: v, Typ: IntType()}
}

// FloatLit returns a float literal.
func FloatLit(v float64) *AtomicValueT[float64] {
	return &AtomicValueT[float64]{Val: v, Typ: FloatType()}
}

// BoolLit returns a boolean literal.
func BoolLit(v bool) *AtomicValueT[bool] {
	return &AtomicValueT[bool]{Val: v, Typ: BoolType()}
}

// ZeroLit returns the zero literal of a component type.
func ZeroLit(dt dtype.DataType) Expr {
	switch dt {
	case dtype.Bool:
		return BoolLit(false)
	case dtype.Float32, dtype.Float64, dtype.Bfloat16:
		return FloatLit(0)
	}
	return IntLit(0)
}

// NewBinary returns a binary expression, inferring its type from the
// operator: comparisons and logical operators are booleans, arithmetic
// keeps the type of its left operand.
func NewBinary(op token.Token, x, y Expr) *BinaryExpr {
	typ := x.Type()
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ, token.LAND, token.LOR:
		typ = BoolType()
	}
	return &BinaryExpr{Op: op, X: x, Y: y, Typ: typ}
}

// Neg returns the negation of an expression.
func Neg(x Expr) *UnaryExpr {
	return &UnaryExpr{Op: token.SUB, X: x}
}

// Type of the value read from the variable.
func (e *VarExpr) Type() Type { return e.V.Typ }

// Type of the literal.
func (e *AtomicValueT[T]) Type() Type { return e.Typ }

// Type of the operand.
func (e *UnaryExpr) Type() Type { return e.X.Type() }

// Type of the result of the operator.
func (e *BinaryExpr) Type() Type { return e.Typ }

// Type of one component of the target buffer.
func (e *Load) Type() Type { return ScalarOf(e.Target.Type().DataType()) }

// Type of a cardinality, always an integer.
func (e *Length) Type() Type { return IntType() }

// Type of one component of the accessed tensor.
func (e *IndexedTensor) Type() Type { return ScalarOf(e.Tensor.Type().DataType()) }

// Type of the assembled result.
func (e *IndexExpr) Type() Type { return e.Typ }

// Type of the backing array.
func (e *TensorIndexRead) Type() Type { return IndexArrayType() }

// ----------------------------------------------------------------------------
// Statements.
type (
	// Stmt is a statement that performs an action.
	// No value is being returned.
	Stmt interface {
		Node
		// stmtNode marks a structure as a statement structure.
		stmtNode()
	}

	// BlockStmt is a statement list in its own scope.
	BlockStmt struct {
		List []Stmt
	}

	// VarDecl declares v in the current scope, initialized to Init,
	// or to the zero value of its type when Init is nil.
	VarDecl struct {
		V    Var
		Init Expr
	}

	// AssignStmt writes a value to a variable.
	AssignStmt struct {
		V     Var
		Value Expr
		Cop   CompoundOperator
	}

	// Store writes one component of a buffer.
	Store struct {
		Target Expr
		Index  Expr
		Value  Expr
		Cop    CompoundOperator
	}

	// ForRange iterates v over [Begin, End).
	ForRange struct {
		V          Var
		Begin, End Expr
		Body       *BlockStmt
	}

	// While iterates while the condition holds.
	While struct {
		Cond Expr
		Body *BlockStmt
	}

	// IfStmt branches on a condition. Else may be nil, another IfStmt
	// (else-if chain), or a BlockStmt.
	IfStmt struct {
		Cond Expr
		Then *BlockStmt
		Else Stmt
	}

	// Comment annotates a statement for readers of the printed code.
	// The wrapped statement may be nil for a bare comment line.
	Comment struct {
		Text string
		X    Stmt
	}
)

var (
	_ Stmt = (*BlockStmt)(nil)
	_ Stmt = (*VarDecl)(nil)
	_ Stmt = (*AssignStmt)(nil)
	_ Stmt = (*Store)(nil)
	_ Stmt = (*ForRange)(nil)
	_ Stmt = (*While)(nil)
	_ Stmt = (*IfStmt)(nil)
	_ Stmt = (*Comment)(nil)
)

func (*BlockStmt) stmtNode()  {}
func (*BlockStmt) node()      {}
func (*VarDecl) stmtNode()    {}
func (*VarDecl) node()        {}
func (*AssignStmt) stmtNode() {}
func (*AssignStmt) node()     {}
func (*Store) stmtNode()      {}
func (*Store) node()          {}
func (*ForRange) stmtNode()   {}
func (*ForRange) node()       {}
func (*While) stmtNode()      {}
func (*While) node()          {}
func (*IfStmt) stmtNode()     {}
func (*IfStmt) node()         {}
func (*Comment) stmtNode()    {}
func (*Comment) node()        {}

// NewComment annotates a statement with a printed note.
func NewComment(text string, x Stmt) *Comment {
	return &Comment{Text: text, X: x}
}

// Block groups statements into a block.
func Block(stmts ...Stmt) *BlockStmt {
	return &BlockStmt{List: stmts}
}

// Append adds statements at the end of the block.
func (b *BlockStmt) Append(stmts ...Stmt) {
	b.List = append(b.List, stmts...)
}
