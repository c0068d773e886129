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

// Visit walks the tree rooted at n in depth-first, source order, calling f
// for each node. The children of a node are not visited when f returns
// false for it. Nil nodes are skipped.
func Visit(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch node := n.(type) {
	case *UnaryExpr:
		Visit(node.X, f)
	case *BinaryExpr:
		Visit(node.X, f)
		Visit(node.Y, f)
	case *Load:
		Visit(node.Target, f)
		Visit(node.Index, f)
	case *IndexedTensor:
		Visit(node.Tensor, f)
	case *IndexExpr:
		Visit(node.Value, f)
	case *BlockStmt:
		for _, stmt := range node.List {
			Visit(stmt, f)
		}
	case *VarDecl:
		if node.Init != nil {
			Visit(node.Init, f)
		}
	case *AssignStmt:
		Visit(node.Value, f)
	case *Store:
		Visit(node.Target, f)
		Visit(node.Index, f)
		Visit(node.Value, f)
	case *ForRange:
		Visit(node.Begin, f)
		Visit(node.End, f)
		Visit(node.Body, f)
	case *While:
		Visit(node.Cond, f)
		Visit(node.Body, f)
	case *IfStmt:
		Visit(node.Cond, f)
		Visit(node.Then, f)
		if node.Else != nil {
			Visit(node.Else, f)
		}
	case *Comment:
		if node.X != nil {
			Visit(node.X, f)
		}
	}
}

// IndexedTensors returns every tensor access in source order below n.
func IndexedTensors(n Node) []*IndexedTensor {
	var accesses []*IndexedTensor
	Visit(n, func(child Node) bool {
		if access, ok := child.(*IndexedTensor); ok {
			accesses = append(accesses, access)
		}
		return true
	})
	return accesses
}

// UsesIndexVar returns true if an access below n uses the index variable.
func UsesIndexVar(n Node, iv IndexVar) bool {
	uses := false
	Visit(n, func(child Node) bool {
		access, ok := child.(*IndexedTensor)
		if !ok {
			return true
		}
		for _, v := range access.IndexVars {
			if v.Name == iv.Name {
				uses = true
			}
		}
		return true
	})
	return uses
}
