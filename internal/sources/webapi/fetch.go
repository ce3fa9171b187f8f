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

package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

// Prepare resolves fetch.Resource.Src against the source's configured
// endpoint_mappings, issues a single GET, and decodes the JSON body down to
// the mapping's result path (default "$", the document root).
func (h *Handle) Prepare(ctx context.Context, fetch sources.PreparedFetch) (sources.ResultHandle, error) {
	mapping, ok := h.src.mappings[fetch.Resource.Src]
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, stageWebAPI,
			"no endpoint mapping configured for "+fetch.Resource.Src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mapping.URL, nil)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageWebAPI, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.doWithNegotiate(req)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindConnect, stageWebAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, engineerr.New(engineerr.KindFetch, stageWebAPI,
			"endpoint "+fetch.Resource.Src+" returned non-200 status")
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "application/json") {
		return nil, engineerr.New(engineerr.KindFetch, stageWebAPI,
			"endpoint "+fetch.Resource.Src+" returned non-JSON content type "+ct)
	}

	var root any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageWebAPI, err)
	}

	resultPath := mapping.ResultPath
	if resultPath == "" {
		resultPath = "$"
	}
	node, err := navigateJSONPath(root, resultPath)
	if err != nil {
		return nil, err
	}
	arr, ok := node.([]any)
	if !ok {
		return nil, engineerr.New(engineerr.KindFetch, stageWebAPI, "endpoint result path does not resolve to an array")
	}
	rows := make([]map[string]any, 0, len(arr))
	for _, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, engineerr.New(engineerr.KindFetch, stageWebAPI, "endpoint result array element is not an object")
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
// root) down through nested objects.
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
			return nil, engineerr.New(engineerr.KindFetch, stageWebAPI, "endpoint result path segment "+seg+" is not an object")
		}
		next, ok := obj[seg]
		if !ok {
			return nil, engineerr.New(engineerr.KindFetch, stageWebAPI, "endpoint result path segment "+seg+" not found")
		}
		cur = next
	}
	return cur, nil
}

// jsonResult holds the already-decoded, already-navigated row objects from
// one GET response.
type jsonResult struct {
	cols []tabular.ColumnDescriptor
	keys []string
	rows []map[string]any
	pos  int
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

// normalizeJSONValue turns the json.Number the decoder produces into a
// plain int64 or float64, matching internal/engine/coerce.go's numeric
// shapes.
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
