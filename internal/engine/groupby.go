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
	"fmt"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/planner"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageGroupBy = "group_by_aggregate"

// applyGroupByAndAggregates evaluates every aggregate platform function, per
// spec §4.6.7. Without GROUP BY the whole row set is one group; with GROUP
// BY, rows partition by the resolved group-key column and each partition
// emits [group_value, agg1, …, aggN].
func applyGroupByAndAggregates(columns *tabular.ColumnIndex, rows []tabular.Row, funcs []planner.FuncEntry, groupBy *resolvedGroupByAttr) (*tabular.ColumnIndex, []tabular.Row, error) {
	var aggs []planner.FuncEntry
	for _, fn := range funcs {
		if fn.Call.Func.IsAggregate() {
			aggs = append(aggs, fn)
		}
	}
	if len(aggs) == 0 {
		return columns, rows, nil
	}

	if groupBy == nil {
		values := make([]any, len(aggs))
		for i, fn := range aggs {
			v, err := evalAggregate(columns, rows, fn.Call)
			if err != nil {
				return nil, nil, err
			}
			values[i] = v
		}
		return aggOutputColumns(aggs, nil), []tabular.Row{{Cells: values}}, nil
	}

	keyIdx, ok := columns.FindBySource(groupBy.alias, groupBy.field)
	if !ok {
		return nil, nil, engineerr.New(engineerr.KindValidation, stageGroupBy,
			"group by key "+groupBy.alias+"."+groupBy.field+" is not in the fetched schema")
	}

	order := make([]any, 0)
	partitions := map[any][]tabular.Row{}
	for _, row := range rows {
		key := row.Cells[keyIdx]
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], row)
	}

	out := make([]tabular.Row, 0, len(order))
	for _, key := range order {
		cells := make([]any, 0, len(aggs)+1)
		cells = append(cells, key)
		for _, fn := range aggs {
			v, err := evalAggregate(columns, partitions[key], fn.Call)
			if err != nil {
				return nil, nil, err
			}
			cells = append(cells, v)
		}
		out = append(out, tabular.Row{Cells: cells})
	}
	return aggOutputColumns(aggs, groupBy), out, nil
}

// resolvedGroupByAttr is the engine-side form of a planner-resolved GROUP BY
// key: a concrete (alias, field) pair, after any alias-vs-field-name
// disambiguation has already happened in the planner.
type resolvedGroupByAttr struct {
	alias string
	field string
}

// aggOutputColumns tags the group-key output column with the resolved
// source (alias, field) descriptor rather than a synthetic one, so a plain
// "SELECT group_field, AGG(...)" still resolves group_field against the
// post-aggregation row set in the project stage.
func aggOutputColumns(aggs []planner.FuncEntry, groupBy *resolvedGroupByAttr) *tabular.ColumnIndex {
	var descs []tabular.ColumnDescriptor
	if groupBy != nil {
		descs = append(descs, tabular.ColumnDescriptor{Alias: groupBy.alias, Field: groupBy.field})
	}
	for _, fn := range aggs {
		descs = append(descs, tabular.ColumnDescriptor{Alias: tabular.FuncAlias, Field: fn.Call.Ident(), UserAlias: fn.Call.Alias})
	}
	return tabular.NewColumnIndex(descs)
}

func evalAggregate(columns *tabular.ColumnIndex, rows []tabular.Row, call parser.FuncCallExpr) (any, error) {
	switch call.Func {
	case parser.FuncCount:
		return evalCount(columns, rows, call)
	case parser.FuncCountDistinct:
		return evalCountDistinct(columns, rows, call)
	case parser.FuncMin:
		return evalMinMax(columns, rows, call, true)
	case parser.FuncMax:
		return evalMinMax(columns, rows, call, false)
	case parser.FuncSum:
		return evalSumAvg(columns, rows, call, false)
	case parser.FuncAvg:
		return evalSumAvg(columns, rows, call, true)
	default:
		return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "unsupported aggregate function")
	}
}

func isStarParam(p parser.FuncParam) bool {
	_, ok := p.(parser.StarParam)
	return ok
}

// isUnjoinedPaddingRow reports whether every cell in row is nil — the
// all-null padding a LEFT/RIGHT join emits for an unmatched side, which
// COUNT(*) and COUNT(DISTINCT *) must reject per spec §4.6.7.
func isUnjoinedPaddingRow(row tabular.Row) bool {
	for _, c := range row.Cells {
		if c != nil {
			return false
		}
	}
	return true
}

func evalCount(columns *tabular.ColumnIndex, rows []tabular.Row, call parser.FuncCallExpr) (any, error) {
	if len(call.Params) == 1 && isStarParam(call.Params[0]) {
		n := 0
		for _, row := range rows {
			if !isUnjoinedPaddingRow(row) {
				n++
			}
		}
		return n, nil
	}
	if len(call.Params) != 1 {
		return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "COUNT takes exactly one argument")
	}
	n := 0
	for _, row := range rows {
		v, err := funcParamValue(columns, row, call.Params[0])
		if err != nil {
			return nil, err
		}
		if v != nil {
			n++
		}
	}
	return n, nil
}

func evalCountDistinct(columns *tabular.ColumnIndex, rows []tabular.Row, call parser.FuncCallExpr) (any, error) {
	if len(call.Params) == 1 && isStarParam(call.Params[0]) {
		seen := map[string]bool{}
		for _, row := range rows {
			if isUnjoinedPaddingRow(row) {
				continue
			}
			seen[fmt.Sprint(row.Cells)] = true
		}
		return len(seen), nil
	}
	if len(call.Params) != 1 {
		return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "COUNT(DISTINCT ...) takes exactly one argument")
	}
	seen := map[any]bool{}
	for _, row := range rows {
		v, err := funcParamValue(columns, row, call.Params[0])
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		seen[v] = true
	}
	return len(seen), nil
}

func evalMinMax(columns *tabular.ColumnIndex, rows []tabular.Row, call parser.FuncCallExpr, wantMin bool) (any, error) {
	if len(call.Params) != 1 {
		return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "MIN/MAX take exactly one argument")
	}
	var best any
	have := false
	for _, row := range rows {
		v, err := funcParamValue(columns, row, call.Params[0])
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if !have {
			best, have = v, true
			continue
		}
		cmp, err := compareValues(v, best)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindCoercion, stageGroupBy, err)
		}
		if (wantMin && cmp < 0) || (!wantMin && cmp > 0) {
			best = v
		}
	}
	if !have {
		return nil, nil
	}
	return best, nil
}

func evalSumAvg(columns *tabular.ColumnIndex, rows []tabular.Row, call parser.FuncCallExpr, wantAvg bool) (any, error) {
	if len(call.Params) != 1 {
		return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "SUM/AVG take exactly one argument")
	}
	var sum float64
	count := 0
	for _, row := range rows {
		v, err := funcParamValue(columns, row, call.Params[0])
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		n, ok := asFloat(v)
		if !ok {
			return nil, engineerr.New(engineerr.KindFunction, stageGroupBy, "Invalid values for sum/avg")
		}
		sum += n
		count++
	}
	if count == 0 {
		return nil, nil
	}
	if wantAvg {
		return sum / float64(count), nil
	}
	return sum, nil
}
