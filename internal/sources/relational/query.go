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

package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

// Prepare builds and issues a single SQL projection covering both plain
// fields and pushdown-rendered function expressions, per spec §4.6.2's
// "pushdown-capable functions are rendered into the connector's native
// query" rule. A pushdown function's output column is tagged with the same
// tabular.FuncAlias convention internal/engine uses for platform-evaluated
// function outputs, so the project stage resolves either origin uniformly.
func (h *Handle) Prepare(ctx context.Context, fetch sources.PreparedFetch) (sources.ResultHandle, error) {
	var projExprs []string
	var cols []tabular.ColumnDescriptor

	if fetch.Star {
		names, err := h.describeColumns(ctx, fetch.Resource.Src)
		if err != nil {
			return nil, err
		}
		explicit := map[string]bool{}
		for _, attr := range fetch.Attributes {
			if attr.Field != "" {
				explicit[attr.Field] = true
			}
		}
		for _, name := range names {
			if explicit[name] {
				continue
			}
			projExprs = append(projExprs, name)
			cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: name})
		}
	}

	for _, attr := range fetch.Attributes {
		if attr.Rendered != "" {
			projExprs = append(projExprs, fmt.Sprintf("%s AS %s", attr.Rendered, attr.Ident))
			cols = append(cols, tabular.ColumnDescriptor{Alias: tabular.FuncAlias, Field: attr.Ident})
			continue
		}
		projExprs = append(projExprs, attr.Field)
		cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: attr.Field})
	}

	if len(projExprs) == 0 {
		return nil, engineerr.New(engineerr.KindValidation, stageRelational, "no attributes requested for "+fetch.Resource.Src)
	}

	from := fetch.Resource.Src
	if fetch.Resource.Alias != "" {
		from = from + " " + fetch.Resource.Alias
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(projExprs, ", "), from)

	rows, err := h.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageRelational, err)
	}
	return &queryResult{rows: rows, cols: cols}, nil
}

// describeColumns stands in for a DESCRIBE-TABLE statement, which has no
// portable syntax across ODBC-reachable engines: a zero-row SELECT * probes
// the driver's reported column names without reading any data.
func (h *Handle) describeColumns(ctx context.Context, src string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", src))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageRelational, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageRelational, err)
	}
	return names, nil
}

// queryResult wraps the *sql.Rows of one Prepare call.
type queryResult struct {
	rows *sql.Rows
	cols []tabular.ColumnDescriptor
}

func (r *queryResult) Columns() []tabular.ColumnDescriptor { return r.cols }

func (r *queryResult) Close() error { return r.rows.Close() }

func (r *queryResult) Stream(ctx context.Context) (sources.RowIter, error) {
	return &rowIter{rows: r.rows, width: len(r.cols)}, nil
}

type rowIter struct {
	rows  *sql.Rows
	width int
}

func (it *rowIter) Next(ctx context.Context) (tabular.Row, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return tabular.Row{}, engineerr.Wrap(engineerr.KindFetch, stageRelational, err)
		}
		return tabular.Row{}, sources.ErrIterDone
	}
	dest := make([]any, it.width)
	ptrs := make([]any, it.width)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return tabular.Row{}, engineerr.Wrap(engineerr.KindFetch, stageRelational, err)
	}
	cells := make([]any, it.width)
	for i, v := range dest {
		cells[i] = normalizeSQLValue(v)
	}
	return tabular.Row{Cells: cells}, nil
}

// normalizeSQLValue converts driver-returned []byte (many ODBC drivers
// surface text columns this way) into a plain string, and leaves every other
// driver-native type, including nil for SQL NULL, untouched.
func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
