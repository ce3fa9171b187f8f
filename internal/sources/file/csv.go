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
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

var (
	intPattern   = regexp.MustCompile(`^[+-]?[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[+-]?[0-9]+\.[0-9]+$`)
)

// coerceCell applies the implicit CSV numeric coercion: an optionally signed
// all-digit cell becomes an int64, a digits.digits cell becomes a float64,
// and everything else stays a string exactly as written. A leading-zero
// identifier like "007" therefore becomes the int64 7 and does not
// round-trip to its original text.
func coerceCell(raw string) any {
	switch {
	case intPattern.MatchString(raw):
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case floatPattern.MatchString(raw):
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// csvResult is the prepared, already-schema-resolved CSV read: the header
// row has been consumed up front, so Columns() is known before Stream runs.
type csvResult struct {
	file    *os.File
	reader  *csv.Reader
	cols    []tabular.ColumnDescriptor
	indices []int // source column ordinal for each output column, in order
}

func prepareCSV(path, delimiter string, fetch sources.PreparedFetch) (sources.ResultHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFile, err)
	}
	r := csv.NewReader(f)
	if len(delimiter) == 1 {
		r.Comma = rune(delimiter[0])
	}
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFile, err)
	}
	byName := map[string]int{}
	for i, name := range header {
		byName[name] = i
	}

	var cols []tabular.ColumnDescriptor
	var indices []int
	if fetch.Star || len(fetch.Attributes) == 0 {
		for _, name := range header {
			cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: name})
			indices = append(indices, byName[name])
		}
	} else {
		for _, attr := range fetch.Attributes {
			idx, ok := byName[attr.Field]
			if !ok {
				f.Close()
				return nil, engineerr.New(engineerr.KindNotFound, stageFile, "csv file has no column named "+attr.Field)
			}
			cols = append(cols, tabular.ColumnDescriptor{Alias: fetch.Resource.Alias, Field: attr.Field})
			indices = append(indices, idx)
		}
	}

	return &csvResult{file: f, reader: r, cols: cols, indices: indices}, nil
}

func (r *csvResult) Columns() []tabular.ColumnDescriptor { return r.cols }

func (r *csvResult) Close() error { return r.file.Close() }

func (r *csvResult) Stream(ctx context.Context) (sources.RowIter, error) {
	return &csvIter{result: r}, nil
}

type csvIter struct {
	result *csvResult
}

func (it *csvIter) Next(ctx context.Context) (tabular.Row, error) {
	record, err := it.result.reader.Read()
	if errors.Is(err, io.EOF) {
		return tabular.Row{}, sources.ErrIterDone
	}
	if err != nil {
		return tabular.Row{}, engineerr.Wrap(engineerr.KindFetch, stageFile, err)
	}
	cells := make([]any, len(it.result.indices))
	for i, srcIdx := range it.result.indices {
		cells[i] = coerceCell(record[srcIdx])
	}
	return tabular.Row{Cells: cells}, nil
}
