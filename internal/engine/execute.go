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

package engine

import (
	"context"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/planner"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageExecute = "execute"

// Execute runs the full fetch/join/filter/function/group/order/limit/project
// pipeline described by spec §2's control-flow line and §4.6, against a
// plan the planner already validated and classified.
func Execute(ctx context.Context, plan *planner.Plan, resolver SourceResolver) (*ResultSet, error) {
	if len(plan.Resources) == 0 {
		return nil, engineerr.New(engineerr.KindInternal, stageExecute, "plan has no resources to fetch")
	}

	base, err := fetchResource(ctx, plan.Resources[0], resolver)
	if err != nil {
		return nil, err
	}

	columns, rows := base.columns, base.rows
	if len(plan.Resources) > 1 {
		joinRP := plan.Resources[1]
		joined, err := fetchResource(ctx, joinRP, resolver)
		if err != nil {
			return nil, err
		}
		if joinRP.Join == nil {
			return nil, engineerr.New(engineerr.KindInternal, stageExecute, "second resource has no join spec")
		}
		jr, err := joinStreams(joinRP.Join.Type, columns, joined.columns, rows, joined.rows, joinRP.Join.Clause)
		if err != nil {
			return nil, err
		}
		columns, rows = stripBookkeeping(jr.columns, jr.rows)
	}

	rows, err = applyWhere(columns, rows, plan.Where)
	if err != nil {
		return nil, err
	}

	columns, rows, err = applyScalarPlatformFunctions(columns, rows, plan.Funcs)
	if err != nil {
		return nil, err
	}

	groupKey := resolveGroupByAttr(plan)
	columns, rows, err = applyGroupByAndAggregates(columns, rows, plan.Funcs, groupKey)
	if err != nil {
		return nil, err
	}

	if plan.OrderBy != nil {
		keyIdx, err := resolveOrderByIndex(columns, plan)
		if err != nil {
			return nil, err
		}
		rows, err = applyOrderBy(columns, rows, keyIdx, plan.OrderBy.Dir)
		if err != nil {
			return nil, err
		}
	}

	if plan.Limit != nil {
		rows = applyLimit(rows, plan.Limit.N)
	}

	return finalizeProjection(columns, rows, plan.Query)
}

func resolveGroupByAttr(plan *planner.Plan) *resolvedGroupByAttr {
	if plan.GroupBy == nil {
		return nil
	}
	if plan.GroupBy.IsFuncAlias {
		return &resolvedGroupByAttr{alias: tabular.FuncAlias, field: plan.Funcs[plan.GroupBy.FuncIndex].Call.Ident()}
	}
	return &resolvedGroupByAttr{alias: plan.GroupBy.Ref.Resource, field: plan.GroupBy.Ref.Field}
}

func resolveOrderByIndex(columns *tabular.ColumnIndex, plan *planner.Plan) (int, error) {
	var alias, field string
	if plan.OrderBy.IsFuncAlias {
		alias, field = tabular.FuncAlias, plan.Funcs[plan.OrderBy.FuncIndex].Call.Ident()
	} else {
		alias, field = plan.OrderBy.Ref.Resource, plan.OrderBy.Ref.Field
	}
	idx, ok := columns.FindBySource(alias, field)
	if !ok {
		return 0, engineerr.New(engineerr.KindValidation, stageOrderBy,
			"order by key "+alias+"."+field+" is not in the evaluated schema")
	}
	return idx, nil
}
