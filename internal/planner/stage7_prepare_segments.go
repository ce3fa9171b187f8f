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

import "github.com/googleapis/toolbox-federate/internal/engineerr"

const stagePrepareSegments = "prepare_segments"

// prepareSegments attaches each resource's fetch attribute list and merge
// action, and resolves the post-fetch segments the engine evaluates after
// fetching, per spec §4.5 stage 7.
func prepareSegments(ps *planState) (*Plan, error) {
	plan := &Plan{
		Query: ps.query,
		Funcs: derefFuncs(ps.funcs),
		Where: ps.query.Where,
		Limit: ps.query.Limit,
	}

	for _, alias := range ps.resourceOrder {
		resource := ps.resources[alias]
		rp := ResourcePlan{
			Resource: resource,
			Star:     ps.resourceStar[alias],
		}
		for _, fe := range ps.fields[alias] {
			rp.Fields = append(rp.Fields, *fe)
		}
		for _, fe := range ps.funcs {
			if !fe.Platform && fe.PushdownSrc == alias {
				rp.PushdownFuncs = append(rp.PushdownFuncs, *fe)
			}
		}
		if ps.query.Join != nil && alias == ps.query.Join.Right.Alias {
			rp.Join = &JoinSpec{Type: ps.query.Join.Type, Clause: ps.query.Join.On}
		}
		plan.Resources = append(plan.Resources, rp)
	}

	if ps.groupBy != nil {
		plan.GroupBy = ps.groupBy
	}

	if ps.query.OrderBy != nil {
		if len(ps.query.OrderBy.Items) != 1 {
			return nil, engineerr.New(engineerr.KindValidation, stagePrepareSegments,
				"multi-column ORDER BY is not supported")
		}
		item := ps.query.OrderBy.Items[0]
		isFuncAlias, funcIndex, ref, err := ps.resolveAttr(item.Attr)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindValidation, stagePrepareSegments, err)
		}
		plan.OrderBy = &resolvedOrderBy{IsFuncAlias: isFuncAlias, FuncIndex: funcIndex, Ref: ref, Dir: item.Dir}
	}

	return plan, nil
}

func derefFuncs(funcs []*FuncEntry) []FuncEntry {
	out := make([]FuncEntry, len(funcs))
	for i, f := range funcs {
		out[i] = *f
	}
	return out
}
