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

package planner

import (
	"github.com/googleapis/toolbox-federate/internal/functions"
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/parser"
)

// classifyFunctions marks each SELECT-list function call as platform
// (engine-evaluated) or pushdown (rendered into a single source's fetch),
// per spec §4.5 stage 4: aggregates are always platform; a scalar call
// pushes down only if every field argument belongs to the same resource and
// that resource's function module supports the call.
func classifyFunctions(ps *planState, md *metadata.Store) error {
	for _, fe := range ps.funcs {
		if fe.Call.Func.IsAggregate() {
			fe.Platform = true
			ps.hasAggregate = true
			continue
		}

		sources := paramSources(ps, fe.Call.Params)
		if len(sources) != 1 {
			fe.Platform = true
			continue
		}
		var src string
		for s := range sources {
			src = s
		}
		cap, err := md.FunctionModule(ps.resources[src].DataSource)
		if err != nil {
			fe.Platform = true
			continue
		}
		rendering, ok := cap.Supports(functions.Call{Func: fe.Call.Func, Params: fe.Call.Params})
		if !ok {
			fe.Platform = true
			continue
		}
		fe.Platform = false
		fe.PushdownSrc = src
		fe.Rendered = rendering.SQL
	}
	return nil
}

// paramSources returns the set of resource aliases a function's field
// arguments touch, resolving AliasRefParam through the alias map when it
// names a plain field (a function-call alias can never be pushed down
// through, so it forces multi-source/unknown classification instead).
func paramSources(ps *planState, params []parser.FuncParam) map[string]bool {
	sources := map[string]bool{}
	for _, p := range params {
		switch v := p.(type) {
		case parser.FuncFieldParam:
			sources[v.Ref.Resource] = true
		case parser.AliasRefParam:
			target, ok := ps.aliasMap[v.Alias]
			if !ok || target.isFunc {
				sources["\x00ambiguous:"+v.Alias] = true
				continue
			}
			sources[target.ref.Resource] = true
		}
	}
	return sources
}
