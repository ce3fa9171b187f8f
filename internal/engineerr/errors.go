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

// Package engineerr defines the error kinds the query engine pipeline
// surfaces to its callers.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of the pipeline produced an error.
type Kind string

const (
	KindParse      Kind = "ParseError"
	KindValidation Kind = "ValidationError"
	KindConnect    Kind = "ConnectError"
	KindFetch      Kind = "FetchError"
	KindCoercion   Kind = "CoercionError"
	KindFunction   Kind = "FunctionError"
	KindNotFound   Kind = "NotFound"
	KindAccess     Kind = "AccessDenied"
	KindInternal   Kind = "InternalError"
)

// Error is the engine's typed error. Every pipeline stage short-circuits on
// the first Error it produces; the stage name travels with it so a caller
// can tell where in parse -> plan -> fetch -> execute the failure happened.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, stage, msg string) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg}
}

// Wrap builds an Error that carries an underlying cause.
func Wrap(kind Kind, stage string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Msg: err.Error(), Err: err}
}

// Is reports whether err (or something it wraps) is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
