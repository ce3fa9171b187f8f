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

// Package tabular holds the row and column-descriptor types shared by the
// connectors (internal/sources/...) and the execution engine
// (internal/engine). Keeping them in their own leaf package lets both sides
// depend on the shape of a row without creating an import cycle between the
// fetch layer and the operator layer.
package tabular

// ColumnDescriptor identifies the origin of one column. For a plain source
// field, Alias/Field name the source alias and field name and UserAlias is
// the query's AS rename (or empty). For a function output, Alias is the
// sentinel FuncAlias and Field is the call's ident (its AS alias, or the
// synthesized "<funcname>_<index>" name). For join bookkeeping
// columns (lhs_index/rhs_index), Alias and Field are both empty and
// UserAlias carries the bookkeeping name; these are always stripped before
// projection.
type ColumnDescriptor struct {
	Alias     string
	Field     string
	UserAlias string
}

// FuncAlias is the sentinel source-alias used for function-output columns.
const FuncAlias = ":func"

// Bookkeeping column names, stripped before the final projection.
const (
	LHSIndexColumn = "lhs_index"
	RHSIndexColumn = "rhs_index"
)

// IsBookkeeping reports whether d is a join-internal accounting column.
func (d ColumnDescriptor) IsBookkeeping() bool {
	return d.Alias == "" && d.Field == "" && (d.UserAlias == LHSIndexColumn || d.UserAlias == RHSIndexColumn)
}

// OutputName is the column header this descriptor is displayed under: the
// user alias if set, otherwise the source field name (or function ident).
func (d ColumnDescriptor) OutputName() string {
	if d.UserAlias != "" {
		return d.UserAlias
	}
	return d.Field
}

// Row is an ordered list of cell values. A nil cell is the universal null.
type Row struct {
	Cells []any
}

// Clone returns a row with a freshly allocated, independently mutable Cells slice.
func (r Row) Clone() Row {
	cells := make([]any, len(r.Cells))
	copy(cells, r.Cells)
	return Row{Cells: cells}
}

// ColumnIndex maps column descriptors to their ordinal position in a row.
type ColumnIndex struct {
	descs []ColumnDescriptor
}

// NewColumnIndex builds a ColumnIndex over descs, in row order.
func NewColumnIndex(descs []ColumnDescriptor) *ColumnIndex {
	cp := make([]ColumnDescriptor, len(descs))
	copy(cp, descs)
	return &ColumnIndex{descs: cp}
}

// Len returns the number of columns.
func (ci *ColumnIndex) Len() int { return len(ci.descs) }

// Descriptor returns the descriptor at ordinal i.
func (ci *ColumnIndex) Descriptor(i int) ColumnDescriptor { return ci.descs[i] }

// Descriptors returns every descriptor, in order.
func (ci *ColumnIndex) Descriptors() []ColumnDescriptor {
	cp := make([]ColumnDescriptor, len(ci.descs))
	copy(cp, ci.descs)
	return cp
}

// Find looks up a column by its full (alias, field, userAlias) triple.
func (ci *ColumnIndex) Find(d ColumnDescriptor) (int, bool) {
	for i, have := range ci.descs {
		if have == d {
			return i, true
		}
	}
	return -1, false
}

// FindBySource looks up a column ignoring the user alias: it matches the
// first column whose (alias, field) pair equals (alias, field).
func (ci *ColumnIndex) FindBySource(alias, field string) (int, bool) {
	for i, have := range ci.descs {
		if have.Alias == alias && have.Field == field {
			return i, true
		}
	}
	return -1, false
}

// Concat returns a new ColumnIndex holding lhs's descriptors followed by
// rhs's, in order — the layout a join produces.
func Concat(lhs, rhs *ColumnIndex) *ColumnIndex {
	all := make([]ColumnDescriptor, 0, lhs.Len()+rhs.Len())
	all = append(all, lhs.Descriptors()...)
	all = append(all, rhs.Descriptors()...)
	return NewColumnIndex(all)
}
