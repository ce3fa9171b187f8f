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
	"strconv"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageFilter = "filter"

// operandValue resolves one side of a BinaryClause against a row: a field
// reference reads the row's cell, a quoted string is used as-is, and a
// numeric literal is parsed to float64 so the coercion table in coerce.go
// treats it as a number rather than a digit string.
func operandValue(columns *tabular.ColumnIndex, row tabular.Row, op parser.Operand) (any, error) {
	switch v := op.(type) {
	case parser.FieldRefOperand:
		idx, ok := columns.FindBySource(v.Ref.Resource, v.Ref.Field)
		if !ok {
			return nil, engineerr.New(engineerr.KindValidation, stageFilter,
				"field "+v.Ref.Resource+"."+v.Ref.Field+" is not in the fetched schema")
		}
		return row.Cells[idx], nil
	case parser.QuotedStringOperand:
		return v.Value, nil
	case parser.NumberOperand:
		n, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindCoercion, stageFilter, err)
		}
		return n, nil
	default:
		return nil, engineerr.New(engineerr.KindInternal, stageFilter, "unrecognized operand")
	}
}

// applyWhere filters rows to those for which clause evaluates true, per spec
// §4.6.5.
func applyWhere(columns *tabular.ColumnIndex, rows []tabular.Row, clause *parser.WhereSegment) ([]tabular.Row, error) {
	if clause == nil {
		return rows, nil
	}
	var out []tabular.Row
	for _, row := range rows {
		v1, err := operandValue(columns, row, clause.Clause.P1)
		if err != nil {
			return nil, err
		}
		v2, err := operandValue(columns, row, clause.Clause.P2)
		if err != nil {
			return nil, err
		}
		cmp, err := compareValues(v1, v2)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindCoercion, stageFilter, err)
		}
		if matchOperator(clause.Clause.Op, cmp) {
			out = append(out, row)
		}
	}
	return out, nil
}
