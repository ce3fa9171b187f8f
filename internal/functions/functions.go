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

// Package functions is the Function Capability Module: a per-data-source
// predicate over function calls, deciding whether a call can be rendered
// into the source's own query language (pushdown) or must be evaluated by
// the engine (platform).
package functions

import (
	"fmt"
	"sync"

	"github.com/googleapis/toolbox-federate/internal/parser"
)

// Call describes a single function call the planner is classifying: which
// function, and its parsed parameters.
type Call struct {
	Func   parser.FuncKind
	Params []parser.FuncParam
}

// Rendering is a source-side expression string a Capability produced for a
// supported call, ready to be projected as "{SQL} AS {ident}".
type Rendering struct {
	SQL string
}

// Capability decides whether a data source class can evaluate a function
// call itself.
type Capability interface {
	// Supports returns the source-side rendering of call and true if this
	// source class can evaluate it; otherwise a zero Rendering and false,
	// forcing platform evaluation.
	Supports(call Call) (Rendering, bool)
}

// ForceAllCapability refuses every call, used by the file and web-api
// connector classes, which have no query language to push anything into.
type ForceAllCapability struct{}

func (ForceAllCapability) Supports(Call) (Rendering, bool) { return Rendering{}, false }

// RelationalCapability supports the scalar, single-field-argument functions
// (LOWER, UPPER) over a relational source. Aggregates and scalar-varargs
// are never pushed down, per spec §4.4 ("Relational modules inspect only
// scalar calls; aggregates and scalar-varargs are always platform-evaluated").
type RelationalCapability struct{}

func (RelationalCapability) Supports(call Call) (Rendering, bool) {
	if call.Func != parser.FuncLower && call.Func != parser.FuncUpper {
		return Rendering{}, false
	}
	if len(call.Params) != 1 {
		return Rendering{}, false
	}
	field, ok := call.Params[0].(parser.FuncFieldParam)
	if !ok {
		return Rendering{}, false
	}
	name := "LOWER"
	if call.Func == parser.FuncUpper {
		name = "UPPER"
	}
	return Rendering{SQL: fmt.Sprintf("%s(%s)", name, field.Ref.String())}, true
}

type moduleRegistry struct {
	mu      sync.RWMutex
	modules map[string]Capability
}

var defaultModules = &moduleRegistry{modules: map[string]Capability{
	"relational": RelationalCapability{},
	"force_all":  ForceAllCapability{},
}}

// Register adds a named capability module, e.g. for a future source class.
// It reports false without overwriting if name is already registered.
func Register(name string, cap Capability) bool {
	defaultModules.mu.Lock()
	defer defaultModules.mu.Unlock()
	if _, ok := defaultModules.modules[name]; ok {
		return false
	}
	defaultModules.modules[name] = cap
	return true
}

// Lookup resolves a function-capability module by name.
func Lookup(name string) (Capability, bool) {
	defaultModules.mu.RLock()
	defer defaultModules.mu.RUnlock()
	cap, ok := defaultModules.modules[name]
	return cap, ok
}
