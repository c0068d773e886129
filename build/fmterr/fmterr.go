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

// Package fmterr provides helpers to accumulate errors while lowering and
// format errors given the code fragment they relate to.
package fmterr

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
)

// Node is a code fragment an error is attached to.
// All IR nodes satisfy it.
type Node interface {
	String() string
}

// PrefixWith returns a function to prefix errors with a formatted string.
func PrefixWith(s string, o ...any) func(err error) error {
	return func(err error) error {
		return fmt.Errorf("%s%w", fmt.Sprintf(s, o...), err)
	}
}

type (
	// ErrorWithSource is an error attached to a fragment of lowered code.
	ErrorWithSource interface {
		error
		Src() Node
		Err() error
	}

	errorWithSource struct {
		src  Node
		frag string
		err  error
	}
)

// fragString renders the source fragment on a single line for error messages.
func fragString(src Node) string {
	if src == nil {
		return ""
	}
	s := src.String()
	if cut := strings.IndexByte(s, '\n'); cut >= 0 {
		s = s[:cut] + " ..."
	}
	return s
}

// Source attaches a code fragment to an error.
func Source(src Node, err error) ErrorWithSource {
	return errorWithSource{
		src:  src,
		frag: fragString(src), // Cache the fragment to make sure src is valid.
		err:  err,
	}
}

// Errorf returns a formatted lowering error for the user.
func Errorf(src Node, format string, a ...any) error {
	return Source(src, errors.Errorf(format, a...))
}

// Internal marks an error as internal, potentially adding additional information.
// The returned error renders the stack of its cause under verbose formatting.
func Internal(err error) error {
	return ToStackTraceError(fmt.Errorf("internal error. This is a bug in the lowering. Please report it. Error:\n%+v", err))
}

// Internalf returns a formatted internal error attached to a fragment.
func Internalf(src Node, format string, a ...any) error {
	return Internal(Errorf(src, format, a...))
}

// Error returns a string description of the error.
func (err errorWithSource) Error() (s string) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s = fmt.Sprintf("recovered from panic when building error message: %T:\n%v", err.err, string(debug.Stack()))
	}()
	if err.frag == "" {
		return err.err.Error()
	}
	return err.frag + ": " + err.err.Error()
}

// Unwrap the error.
func (err errorWithSource) Unwrap() error {
	return err.err
}

// Format writes the error into the state of the formatter.
func (err errorWithSource) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}

func (err errorWithSource) Src() Node {
	return err.src
}

func (err errorWithSource) Err() error {
	return err.err
}
