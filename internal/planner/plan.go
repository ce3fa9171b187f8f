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
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/parser"
)

// Plan runs the seven-stage pipeline of spec §4.5 over a parsed query,
// short-circuiting on the first stage that fails, and returns the resulting
// fetch/merge/post-fetch plan for the engine to execute.
func Plan(query *parser.Query, md *metadata.Store) (*Plan, error) {
	ps := newPlanState(query)

	if err := preValidate(ps); err != nil {
		return nil, err
	}
	if err := extractSelectFields(ps); err != nil {
		return nil, err
	}
	if err := extractSegmentFields(ps, md); err != nil {
		return nil, err
	}
	if err := classifyFunctions(ps, md); err != nil {
		return nil, err
	}
	if err := validateGroupBy(ps); err != nil {
		return nil, err
	}
	if err := extractFuncParamFields(ps); err != nil {
		return nil, err
	}
	return prepareSegments(ps)
}
