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

package ir

import (
	"fmt"
	"slices"
	"strings"

	simfmt "github.com/neuroradiology/simit/base/fmt"
	"github.com/neuroradiology/simit/base/stringseq"
)

// String representation of the variable: its name.
func (v Var) String() string { return v.Name }

// String representation of the compound operator.
func (op CompoundOperator) String() string {
	if op == CompoundAdd {
		return "+="
	}
	return "="
}

func (t *scalarType) String() string { return t.DType.String() }

// String representation of the tensor type, as in tensor[V,V](float64).
func (t *TensorType) String() string {
	if t.Order() == 0 {
		return t.ComponentType.String()
	}
	return fmt.Sprintf("tensor[%s](%s)",
		stringseq.JoinStringer(slices.Values(t.Dims), ","), t.ComponentType)
}

func (t *ArrayType) String() string { return "[]" + t.ComponentType.String() }

func (t *SetType) String() string { return "set" }

func (e *VarExpr) String() string { return e.V.Name }

func (e *AtomicValueT[T]) String() string { return fmt.Sprintf("%v", e.Val) }

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s%s", e.Op, e.X)
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.X, e.Op, e.Y)
}

func (e *Load) String() string {
	return fmt.Sprintf("%s[%s]", e.Target, e.Index)
}

// String representation of a cardinality, as in |V|.
func (e *Length) String() string {
	return fmt.Sprintf("|%s|", e.Of)
}

func (e *IndexedTensor) String() string {
	return fmt.Sprintf("%s(%s)",
		e.Tensor, stringseq.JoinStringer(slices.Values(e.IndexVars), ","))
}

func (e *IndexExpr) String() string {
	return fmt.Sprintf("(%s) -> %s",
		stringseq.JoinStringer(slices.Values(e.ResultVars), ","), e.Value)
}

func (e *TensorIndexRead) String() string {
	if e.Kind == SinkArray {
		return e.Index.SinkArray().Name
	}
	return e.Index.CoordArray().Name
}

func (b *BlockStmt) String() string {
	stmts := make([]string, len(b.List))
	for i, stmt := range b.List {
		stmts[i] = stmt.String()
	}
	return strings.Join(stmts, "\n") + "\n"
}

func (s *VarDecl) String() string {
	if s.Init == nil {
		return fmt.Sprintf("var %s : %s", s.V.Name, s.V.Typ)
	}
	return fmt.Sprintf("var %s : %s = %s", s.V.Name, s.V.Typ, s.Init)
}

func (s *AssignStmt) String() string {
	return fmt.Sprintf("%s %s %s", s.V.Name, s.Cop, s.Value)
}

func (s *Store) String() string {
	return fmt.Sprintf("%s[%s] %s %s", s.Target, s.Index, s.Cop, s.Value)
}

func (s *ForRange) String() string {
	return fmt.Sprintf("for %s in %s:%s {\n%s}",
		s.V.Name, s.Begin, s.End, simfmt.Indent(s.Body.String()))
}

func (s *While) String() string {
	return fmt.Sprintf("while %s {\n%s}", s.Cond, simfmt.Indent(s.Body.String()))
}

func (s *IfStmt) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "if %s {\n%s}", s.Cond, simfmt.Indent(s.Then.String()))
	switch els := s.Else.(type) {
	case nil:
	case *IfStmt:
		fmt.Fprintf(&b, " else %s", els)
	default:
		fmt.Fprintf(&b, " else {\n%s}", simfmt.Indent(els.String()))
	}
	return b.String()
}

func (s *Comment) String() string {
	lines := "% " + strings.ReplaceAll(s.Text, "\n", "\n% ")
	if s.X == nil {
		return lines
	}
	return lines + "\n" + s.X.String()
}
