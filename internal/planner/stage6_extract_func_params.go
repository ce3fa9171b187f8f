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

import "github.com/googleapis/toolbox-federate/internal/parser"

// extractFuncParamFields adds, as dropped fields when not already
// projected, every field a platform function's parameters reference.
// Pushdown functions need no extra fetch: their argument fields are
// embedded in the rendered source-side expression itself, per spec §4.5
// stage 6.
func extractFuncParamFields(ps *planState) error {
	for _, fe := range ps.funcs {
		if !fe.Platform {
			continue
		}
		for _, p := range fe.Call.Params {
			if fp, ok := p.(parser.FuncFieldParam); ok {
				ps.ensureField(fp.Ref)
			}
		}
	}
	return nil
}
