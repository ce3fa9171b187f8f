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
	"strings"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/planner"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

// toDisplayString renders a cell value for CONCAT/CONCAT_WS, which accept
// any scalar argument type.
func toDisplayString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

const stageScalarFuncs = "scalar_platform_functions"

// applyScalarPlatformFunctions evaluates every non-aggregate platform
// function in declaration order, prepending each output cell to the row and
// rebuilding the column index afterward, per spec §4.6.6.
func applyScalarPlatformFunctions(columns *tabular.ColumnIndex, rows []tabular.Row, funcs []planner.FuncEntry) (*tabular.ColumnIndex, []tabular.Row, error) {
	var scalars []planner.FuncEntry
	for _, fn := range funcs {
		if fn.Platform && !fn.Call.Func.IsAggregate() {
			scalars = append(scalars, fn)
		}
	}
	if len(scalars) == 0 {
		return columns, rows, nil
	}

	out := make([]tabular.Row, len(rows))
	for i, row := range rows {
		cells := make([]any, 0, len(scalars)+len(row.Cells))
		for _, fn := range scalars {
			v, err := evalScalarFunc(columns, row, fn.Call)
			if err != nil {
				return nil, nil, err
			}
			cells = append(cells, v)
		}
		cells = append(cells, row.Cells...)
		out[i] = tabular.Row{Cells: cells}
	}

	descs := make([]tabular.ColumnDescriptor, 0, len(scalars)+columns.Len())
	for _, fn := range scalars {
		descs = append(descs, tabular.ColumnDescriptor{Alias: tabular.FuncAlias, Field: fn.Call.Ident(), UserAlias: fn.Call.Alias})
	}
	descs = append(descs, columns.Descriptors()...)
	return tabular.NewColumnIndex(descs), out, nil
}

func evalScalarFunc(columns *tabular.ColumnIndex, row tabular.Row, call parser.FuncCallExpr) (any, error) {
	switch call.Func {
	case parser.FuncLower, parser.FuncUpper:
		if len(call.Params) != 1 {
			return nil, engineerr.New(engineerr.KindFunction, stageScalarFuncs, "LOWER/UPPER take exactly one argument")
		}
		v, err := funcParamValue(columns, row, call.Params[0])
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, engineerr.New(engineerr.KindFunction, stageScalarFuncs, "LOWER/UPPER require a string argument")
		}
		if call.Func == parser.FuncLower {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil
	case parser.FuncConcat, parser.FuncConcatWS:
		return evalConcat(columns, row, call)
	default:
		return nil, engineerr.New(engineerr.KindFunction, stageScalarFuncs, "unsupported scalar function")
	}
}

func evalConcat(columns *tabular.ColumnIndex, row tabular.Row, call parser.FuncCallExpr) (any, error) {
	params := call.Params
	sep := ""
	if call.Func == parser.FuncConcatWS {
		if len(params) == 0 {
			return nil, engineerr.New(engineerr.KindFunction, stageScalarFuncs, "CONCAT_WS requires a separator argument")
		}
		sepVal, err := funcParamValue(columns, row, params[0])
		if err != nil {
			return nil, err
		}
		sep = toDisplayString(sepVal)
		params = params[1:]
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		v, err := funcParamValue(columns, row, p)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		parts = append(parts, toDisplayString(v))
	}
	return strings.Join(parts, sep), nil
}

func funcParamValue(columns *tabular.ColumnIndex, row tabular.Row, p parser.FuncParam) (any, error) {
	switch v := p.(type) {
	case parser.FuncFieldParam:
		idx, ok := columns.FindBySource(v.Ref.Resource, v.Ref.Field)
		if !ok {
			return nil, engineerr.New(engineerr.KindValidation, stageScalarFuncs,
				"field "+v.Ref.Resource+"."+v.Ref.Field+" is not in the fetched schema")
		}
		return row.Cells[idx], nil
	case parser.QuotedStringParam:
		return v.Value, nil
	case parser.AtomLiteralParam:
		return v.Value, nil
	case parser.AliasRefParam:
		idx, ok := columns.FindBySource(tabular.FuncAlias, v.Alias)
		if !ok {
			return nil, engineerr.New(engineerr.KindValidation, stageScalarFuncs,
				"alias "+v.Alias+" does not reference a prior function output")
		}
		return row.Cells[idx], nil
	default:
		return nil, engineerr.New(engineerr.KindFunction, stageScalarFuncs, "unsupported function argument")
	}
}
