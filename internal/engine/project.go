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
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageProject = "project"

// ResultSet is the engine's final, ordered output: the header row and the
// projected cell values, ready to spill per spec §3.3.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// finalizeProjection builds the output schema in SELECT declaration order,
// expanding Star to every one of its resource's fetched columns (preserving
// source ordering) and dropping bookkeeping/drop-flagged attributes, per
// spec §4.6.10.
func finalizeProjection(columns *tabular.ColumnIndex, rows []tabular.Row, query *parser.Query) (*ResultSet, error) {
	type slot struct {
		header string
		idx    int
	}
	var slots []slot

	for _, fe := range query.Select.Fields {
		switch f := fe.(type) {
		case parser.StarExpr:
			base := f.Src
			if base == "" {
				base = query.Select.From.Alias
			}
			for i, d := range columns.Descriptors() {
				if d.Alias == base {
					slots = append(slots, slot{header: d.OutputName(), idx: i})
				}
			}
		case parser.FieldExprItem:
			idx, ok := columns.FindBySource(f.Ref.Resource, f.Ref.Field)
			if !ok {
				return nil, engineerr.New(engineerr.KindValidation, stageProject,
					fmt.Sprintf("field %s.%s is not in the fetched schema", f.Ref.Resource, f.Ref.Field))
			}
			header := f.Alias
			if header == "" {
				header = f.Ref.Field
			}
			slots = append(slots, slot{header: header, idx: idx})
		case parser.FuncCallExpr:
			idx, ok := columns.FindBySource(tabular.FuncAlias, f.Ident())
			if !ok {
				return nil, engineerr.New(engineerr.KindValidation, stageProject,
					fmt.Sprintf("function output %s is not in the evaluated schema", f.Ident()))
			}
			header := f.Alias
			if header == "" {
				header = f.Ident()
			}
			slots = append(slots, slot{header: header, idx: idx})
		default:
			return nil, engineerr.New(engineerr.KindInternal, stageProject, fmt.Sprintf("unrecognized select field %T", fe))
		}
	}

	rs := &ResultSet{Columns: make([]string, len(slots)), Rows: make([][]any, len(rows))}
	for i, s := range slots {
		rs.Columns[i] = s.header
	}
	for ri, row := range rows {
		out := make([]any, len(slots))
		for i, s := range slots {
			out[i] = row.Cells[s.idx]
		}
		rs.Rows[ri] = out
	}
	return rs, nil
}
