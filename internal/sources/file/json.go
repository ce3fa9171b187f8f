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

package file

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

// jsonResult holds every row object already decoded and navigated down to
// resultPath. Column layout is resolved from the first row's keys when the
// fetch asked for Star (alphabetically, since a Go map loses JSON field
// order); an explicit projection is resolved directly by name instead.
type jsonResult struct {
	cols []tabular.ColumnDescriptor
	keys []string // the map key backing each output column, in order
	rows []map[string]any
	pos  int
}

func prepareJSON(path, resultPath string, fetch sources.PreparedFetch) (sources.ResultHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFile, err)
	}
	defer f.Close()
	var root any
	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFile, err)
	}
	node, err := navigateJSONPath(root, resultPath)
	if err != nil {
		return nil, err
	}
	arr, ok := node.([]any)
	if !ok {
		return nil, engineerr.New(engineerr.KindFetch, stageFile, "json result path does not resolve to an array")
	}
	rows := make([]map[string]any, 0, len(arr))
	for _, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, engineerr.New(engineerr.KindFetch, stageFile, "json result array element is not an object")
		}
		rows = append(rows, obj)
	}

	var cols []tabular.ColumnDescriptor
	var keys []string
	if fetch.Star || len(fetch.Attributes) == 0 {
		var names []string
		if len(rows) > 0 {
			for k := range rows[0] {
				names = append(names, k)
			}
			sort.Strings(names)
		}
		for _, name := range names {
			cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: name})
			keys = append(keys, name)
		}
	} else {
		for _, attr := range fetch.Attributes {
			cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: attr.Field})
			keys = append(keys, attr.Field)
		}
	}

	return &jsonResult{cols: cols, keys: keys, rows: rows}, nil
}

// navigateJSONPath walks a dot-separated path rooted at "$" (the document
// root) down through nested objects, e.g. "$.result" or "result.items".
func navigateJSONPath(root any, path string) (any, error) {
	trimmed := strings.TrimPrefix(path, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return root, nil
	}
	cur := root
	for _, seg := range strings.Split(trimmed, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, engineerr.New(engineerr.KindFetch, stageFile, "json result path segment "+seg+" is not an object")
		}
		next, ok := obj[seg]
		if !ok {
			return nil, engineerr.New(engineerr.KindFetch, stageFile, "json result path segment "+seg+" not found")
		}
		cur = next
	}
	return cur, nil
}

func (r *jsonResult) Columns() []tabular.ColumnDescriptor { return r.cols }

func (r *jsonResult) Close() error { return nil }

func (r *jsonResult) Stream(ctx context.Context) (sources.RowIter, error) {
	return &jsonIter{result: r}, nil
}

type jsonIter struct {
	result *jsonResult
}

func (it *jsonIter) Next(ctx context.Context) (tabular.Row, error) {
	if it.result.pos >= len(it.result.rows) {
		return tabular.Row{}, sources.ErrIterDone
	}
	obj := it.result.rows[it.result.pos]
	it.result.pos++
	cells := make([]any, len(it.result.keys))
	for i, k := range it.result.keys {
		cells[i] = normalizeJSONValue(obj[k])
	}
	return tabular.Row{Cells: cells}, nil
}

// normalizeJSONValue turns the json.Number the decoder produces (via
// UseNumber, so large integers survive without float rounding) into a plain
// int64 or float64, matching the numeric shapes internal/engine's coercion
// table already recognizes.
func normalizeJSONValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}
