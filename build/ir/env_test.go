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

func TestEnvironmentNames(t *testing.T) {
	env := ir.NewEnvironment()
	env.Reserve("A", "b")
	tests := []struct {
		root, want string
	}{
		{
			root: "i",
			want: "i",
		},
		{
			root: "i",
			want: "i1",
		},
		{
			root: "A",
			want: "A1",
		},
		{
			root: "b",
			want: "b1",
		},
	}
	for ti, test := range tests {
		got := env.NewVar(test.root, ir.IntType())
		if got.Name != test.want {
			t.Errorf("test %d: got %s but want %s", ti, got.Name, test.want)
		}
		if !got.Type().Equal(ir.IntType()) {
			t.Errorf("test %d: variable %s has type %s but want %s", ti, got.Name, got.Type(), ir.IntType())
		}
	}
}

func TestEnvironmentTemporaries(t *testing.T) {
	env := ir.NewEnvironment()
	w := env.NewVar("w", ir.FloatType())
	u := env.NewVar("u", ir.FloatType())
	env.AddTemporary(w)
	env.AddTemporary(u)
	var got []string
	for tmp := range env.Temporaries() {
		got = append(got, tmp.Name)
	}
	want := []string{"w", "u"}
	if !slices.Equal(got, want) {
		t.Errorf("got temporaries %v but want %v", got, want)
	}
}

func TestEnvironmentTensorIndexes(t *testing.T) {
	env := ir.NewEnvironment()
	v := ir.NewSetDomain("V")
	ti := ir.NewTensorIndex("A_index", v, v)
	if err := env.AddTensorIndex(ti); err != nil {
		t.Fatalf("cannot register tensor index: %v", err)
	}
	if err := env.AddTensorIndex(ti); err == nil {
		t.Errorf("registering the same tensor index twice does not fail")
	}
	got, ok := env.TensorIndex("A_index")
	if !ok {
		t.Fatalf("registered tensor index not found")
	}
	if !got.Equal(ti) {
		t.Errorf("got tensor index %s but want %s", got, ti)
	}
	if _, ok := env.TensorIndex("missing"); ok {
		t.Errorf("unknown tensor index reported as registered")
	}
	// The names of the backing arrays are taken.
	clash := env.NewVar("A_index.coords", ir.IndexArrayType())
	if clash.Name == ti.CoordArray().Name {
		t.Errorf("generated variable %s collides with a backing array", clash.Name)
	}
}

func TestEnvironmentStorage(t *testing.T) {
	env := ir.NewEnvironment()
	v := ir.NewSetDomain("V")
	ti := ir.NewTensorIndex("A_index", v, v)
	env.SetStorage("A", ir.Indexed(ti))
	env.SetStorage("D", ir.Dense())

	st, ok := env.StorageOf("A")
	if !ok || st.Kind != ir.IndexedStorage {
		t.Errorf("got storage (%v, %v) for A but want indexed storage", st, ok)
	}
	if !st.Index.Equal(ti) {
		t.Errorf("indexed storage carries index %s but want %s", st.Index, ti)
	}
	st, ok = env.StorageOf("D")
	if !ok || st.Kind != ir.DenseStorage {
		t.Errorf("got storage (%v, %v) for D but want dense storage", st, ok)
	}
	if _, ok := env.StorageOf("unknown"); ok {
		t.Errorf("unannotated variable reports a storage")
	}
}

func TestEnvironmentClone(t *testing.T) {
	env := ir.NewEnvironment()
	if got, want := env.NewVar("i", ir.IntType()).Name, "i"; got != want {
		t.Fatalf("got %s but want %s", got, want)
	}
	clone := env.Clone()
	if got, want := clone.NewVar("i", ir.IntType()).Name, "i1"; got != want {
		t.Errorf("clone: got %s but want %s", got, want)
	}
	// Names generated in the clone do not leak into the original.
	if got, want := env.NewVar("i", ir.IntType()).Name, "i1"; got != want {
		t.Errorf("original after clone: got %s but want %s", got, want)
	}
}
