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

package fmterr_test

import (
	"strings"
	"testing"

	"github.com/neuroradiology/simit/build/fmterr"
)

type frag string

func (f frag) String() string { return string(f) }

func TestErrorf(t *testing.T) {
	tests := []struct {
		src  fmterr.Node
		msg  string
		want string
	}{
		{
			src:  frag("A[i,j]"),
			msg:  "operand has no index",
			want: "A[i,j]: operand has no index",
		},
		{
			src:  frag("line1\nline2"),
			msg:  "boom",
			want: "line1 ...: boom",
		},
		{
			src:  nil,
			msg:  "no fragment",
			want: "no fragment",
		},
	}
	for i, test := range tests {
		err := fmterr.Errorf(test.src, "%s", test.msg)
		if got := err.Error(); got != test.want {
			t.Errorf("test %d: got %q but want %q", i, got, test.want)
		}
		withSrc, ok := err.(fmterr.ErrorWithSource)
		if !ok {
			t.Errorf("test %d: error does not carry its source", i)
			continue
		}
		if withSrc.Src() != test.src {
			t.Errorf("test %d: got source %v but want %v", i, withSrc.Src(), test.src)
		}
	}
}

func TestInternal(t *testing.T) {
	err := fmterr.Internalf(frag("while(jA < end)"), "cursor advanced past its span")
	if !strings.Contains(err.Error(), "internal error") {
		t.Errorf("internal error is missing its preamble: %v", err)
	}
	if !strings.Contains(err.Error(), "cursor advanced past its span") {
		t.Errorf("internal error lost its cause: %v", err)
	}
}

func TestErrors(t *testing.T) {
	errs := &fmterr.Errors{}
	if errs.ToError() != nil {
		t.Errorf("empty set returns a non-nil error")
	}
	errs.Push(fmterr.PrefixWith("lowering %s: ", "f"))
	errs.Appendf(frag("B[j,i]"), "transposed access")
	errs.Pop()
	errs.Appendf(frag("C[i,j]"), "no tensor index")
	err := errs.ToError()
	if err == nil {
		t.Fatalf("collected errors were dropped")
	}
	for _, want := range []string{
		"lowering f: ",
		"transposed access",
		"C[i,j]: no tensor index",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}
