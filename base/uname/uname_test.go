// Copyright 2025 Google LLC
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

package uname_test

import (
	"testing"

	"github.com/neuroradiology/simit/base/uname"
)

func TestName(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{
			name: "i",
			want: "i",
		},
		{
			name: "i",
			want: "i1",
		},
		{
			name: "i",
			want: "i2",
		},
		{
			name: "ij",
			want: "ij",
		},
		{
			name: "ij",
			want: "ij1",
		},
		{
			name: "j",
			want: "j",
		},
	}
	unames := uname.New()
	for i, test := range tests {
		got := unames.Name(test.name)
		if got != test.want {
			t.Errorf("test %d: for name %s, got %s but want %s", i, test.name, got, test.want)
		}
	}
}

func TestReserve(t *testing.T) {
	unames := uname.New()
	unames.Reserve("j", "j1")
	if !unames.Taken("j") || !unames.Taken("j1") {
		t.Errorf("reserved names are not marked as taken")
	}
	tests := []struct {
		name, want string
	}{
		{
			name: "j",
			want: "j2",
		},
		{
			name: "j",
			want: "j3",
		},
		{
			name: "k",
			want: "k",
		},
	}
	for i, test := range tests {
		got := unames.Name(test.name)
		if got != test.want {
			t.Errorf("test %d: for name %s, got %s but want %s", i, test.name, got, test.want)
		}
	}
}

func TestClone(t *testing.T) {
	unames := uname.New()
	if got, want := unames.Name("i"), "i"; got != want {
		t.Errorf("got %s but want %s", got, want)
	}
	clone := unames.Clone()
	if got, want := clone.Name("i"), "i1"; got != want {
		t.Errorf("clone: got %s but want %s", got, want)
	}
	// The clone does not write back into the original.
	if got, want := unames.Name("i"), "i1"; got != want {
		t.Errorf("original after clone: got %s but want %s", got, want)
	}
}
