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
	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageJoin = "join"

// joinResult is the materialized output of the join stage: the concatenated
// column index (LHS then RHS, per spec §4.6.3) and the merged row set with
// the lhs_index/rhs_index bookkeeping columns still attached.
type joinResult struct {
	columns *tabular.ColumnIndex
	rows    []tabular.Row
}

// joinStreams implements spec §4.6.3: LEFT/RIGHT/INNER join of two
// materialized row sets on a single equality/inequality key, using a
// temporary (lhs_index, rhs_index) pair for INNER's dedup.
func joinStreams(jtype parser.JoinType, lhsCols, rhsCols *tabular.ColumnIndex, lhsRows, rhsRows []tabular.Row, clause parser.BinaryClause) (*joinResult, error) {
	lhsIdx, rhsIdx, lhsOnLHS, op, err := resolveJoinKeys(lhsCols, rhsCols, clause)
	if err != nil {
		return nil, err
	}
	if !lhsOnLHS {
		// clause named the RHS field first; swap to a uniform (lhs key, rhs
		// key, operator as written left-to-right across the two sides).
		lhsIdx, rhsIdx = rhsIdx, lhsIdx
	}

	switch jtype {
	case parser.JoinLeft:
		return leftJoin(lhsCols, rhsCols, lhsRows, rhsRows, lhsIdx, rhsIdx, op)
	case parser.JoinRight:
		// RIGHT is LEFT with source/join swapped and the operator inverted,
		// then the result's column order is swapped back to LHS-then-RHS so
		// callers never see an inverted schema, per spec §4.6.3.
		swapped, err := leftJoin(rhsCols, lhsCols, rhsRows, lhsRows, rhsIdx, lhsIdx, invertOperator(op))
		if err != nil {
			return nil, err
		}
		return swapJoinSides(swapped, lhsCols.Len(), rhsCols.Len()), nil
	case parser.JoinInner:
		left, err := leftJoin(lhsCols, rhsCols, lhsRows, rhsRows, lhsIdx, rhsIdx, op)
		if err != nil {
			return nil, err
		}
		rightSwapped, err := leftJoin(rhsCols, lhsCols, rhsRows, lhsRows, rhsIdx, lhsIdx, invertOperator(op))
		if err != nil {
			return nil, err
		}
		right := swapJoinSides(rightSwapped, lhsCols.Len(), rhsCols.Len())
		return dedupInner(left, right), nil
	default:
		return nil, engineerr.New(engineerr.KindInternal, stageJoin, "unrecognized join type")
	}
}

func resolveJoinKeys(lhsCols, rhsCols *tabular.ColumnIndex, clause parser.BinaryClause) (lhsIdx, rhsIdx int, lhsOnLHS bool, op parser.Operator, err error) {
	p1Idx, p1Side, ok1 := locateOperand(lhsCols, rhsCols, clause.P1)
	p2Idx, p2Side, ok2 := locateOperand(lhsCols, rhsCols, clause.P2)
	if !ok1 || !ok2 || p1Side == p2Side {
		return 0, 0, false, 0, engineerr.New(engineerr.KindValidation, stageJoin, "Invalid join clause")
	}
	if p1Side == sideLHS {
		return p1Idx, p2Idx, true, clause.Op, nil
	}
	return p2Idx, p1Idx, true, invertOperator(clause.Op), nil
}

type side int

const (
	sideLHS side = iota
	sideRHS
)

func locateOperand(lhsCols, rhsCols *tabular.ColumnIndex, op parser.Operand) (idx int, s side, ok bool) {
	ref, isField := op.(parser.FieldRefOperand)
	if !isField {
		return 0, 0, false
	}
	if i, found := lhsCols.FindBySource(ref.Ref.Resource, ref.Ref.Field); found {
		return i, sideLHS, true
	}
	if i, found := rhsCols.FindBySource(ref.Ref.Resource, ref.Ref.Field); found {
		return i, sideRHS, true
	}
	return 0, 0, false
}

func invertOperator(op parser.Operator) parser.Operator {
	switch op {
	case parser.OpLt:
		return parser.OpGt
	case parser.OpGt:
		return parser.OpLt
	case parser.OpLte:
		return parser.OpGte
	case parser.OpGte:
		return parser.OpLte
	default:
		return op
	}
}

func matchOperator(op parser.Operator, cmp int) bool {
	switch op {
	case parser.OpEq:
		return cmp == 0
	case parser.OpNeq:
		return cmp != 0
	case parser.OpLt:
		return cmp < 0
	case parser.OpLte:
		return cmp <= 0
	case parser.OpGt:
		return cmp > 0
	case parser.OpGte:
		return cmp >= 0
	default:
		return false
	}
}

// leftJoin emits every base row at least once: padded with nils if nothing
// on the join side matches, per spec §4.6.3's LEFT semantics. Emitted rows
// carry lhs_index/rhs_index bookkeeping cells appended last.
func leftJoin(baseCols, joinCols *tabular.ColumnIndex, baseRows, joinRows []tabular.Row, baseKeyIdx, joinKeyIdx int, op parser.Operator) (*joinResult, error) {
	columns := tabular.Concat(baseCols, joinCols)
	descs := columns.Descriptors()
	descs = append(descs,
		tabular.ColumnDescriptor{UserAlias: tabular.LHSIndexColumn},
		tabular.ColumnDescriptor{UserAlias: tabular.RHSIndexColumn},
	)
	columns = tabular.NewColumnIndex(descs)

	var rows []tabular.Row
	for bi, base := range baseRows {
		matched := false
		for ji, join := range joinRows {
			cmp, err := compareValues(base.Cells[baseKeyIdx], join.Cells[joinKeyIdx])
			if err != nil {
				return nil, engineerr.Wrap(engineerr.KindCoercion, stageJoin, err)
			}
			if !matchOperator(op, cmp) {
				continue
			}
			matched = true
			rows = append(rows, mergeRow(base, join, bi, ji))
		}
		if !matched {
			empty := tabular.Row{Cells: make([]any, joinCols.Len())}
			rows = append(rows, mergeRow(base, empty, bi, -1))
		}
	}
	return &joinResult{columns: columns, rows: rows}, nil
}

func mergeRow(base, join tabular.Row, baseIdx, joinIdx int) tabular.Row {
	cells := make([]any, 0, len(base.Cells)+len(join.Cells)+2)
	cells = append(cells, base.Cells...)
	cells = append(cells, join.Cells...)
	cells = append(cells, baseIdx, joinIdx)
	return tabular.Row{Cells: cells}
}

// swapJoinSides re-lays-out a joinResult computed as (rhs-as-base,
// lhs-as-join) back into canonical LHS-then-RHS column order, and swaps the
// trailing lhs_index/rhs_index bookkeeping cells to match.
func swapJoinSides(r *joinResult, lhsLen, rhsLen int) *joinResult {
	descs := r.columns.Descriptors()
	// descs is currently [rhs..., lhs..., rhs_index_bookkeeping, lhs_index_bookkeeping]
	swapped := make([]tabular.ColumnDescriptor, 0, len(descs))
	swapped = append(swapped, descs[rhsLen:rhsLen+lhsLen]...)
	swapped = append(swapped, descs[:rhsLen]...)
	swapped = append(swapped,
		tabular.ColumnDescriptor{UserAlias: tabular.LHSIndexColumn},
		tabular.ColumnDescriptor{UserAlias: tabular.RHSIndexColumn},
	)
	columns := tabular.NewColumnIndex(swapped)

	rows := make([]tabular.Row, len(r.rows))
	for i, row := range r.rows {
		rhsCells := row.Cells[:rhsLen]
		lhsCells := row.Cells[rhsLen : rhsLen+lhsLen]
		rhsIdx := row.Cells[len(row.Cells)-2]
		lhsIdx := row.Cells[len(row.Cells)-1]
		cells := make([]any, 0, len(row.Cells))
		cells = append(cells, lhsCells...)
		cells = append(cells, rhsCells...)
		cells = append(cells, lhsIdx, rhsIdx)
		rows[i] = tabular.Row{Cells: cells}
	}
	return &joinResult{columns: columns, rows: rows}
}

// dedupInner keeps left's null-padded-free subset unioned with right's,
// de-duplicated by the (lhs_index, rhs_index) pair both carry in their last
// two cells, per spec §4.6.3's INNER semantics.
func dedupInner(left, right *joinResult) *joinResult {
	seen := map[[2]any]bool{}
	var rows []tabular.Row
	consider := func(set *joinResult) {
		for _, row := range set.rows {
			lhsIdx := row.Cells[len(row.Cells)-2]
			rhsIdx := row.Cells[len(row.Cells)-1]
			if lhsIdx == -1 || rhsIdx == -1 {
				continue
			}
			key := [2]any{lhsIdx, rhsIdx}
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, row)
		}
	}
	consider(left)
	consider(right)
	return &joinResult{columns: left.columns, rows: rows}
}

// stripBookkeeping drops the trailing lhs_index/rhs_index columns a join
// produced, once they are no longer needed (dedup is done).
func stripBookkeeping(columns *tabular.ColumnIndex, rows []tabular.Row) (*tabular.ColumnIndex, []tabular.Row) {
	descs := columns.Descriptors()
	keep := make([]int, 0, len(descs))
	kept := make([]tabular.ColumnDescriptor, 0, len(descs))
	for i, d := range descs {
		if d.IsBookkeeping() {
			continue
		}
		keep = append(keep, i)
		kept = append(kept, d)
	}
	out := make([]tabular.Row, len(rows))
	for i, row := range rows {
		cells := make([]any, len(keep))
		for j, idx := range keep {
			cells[j] = row.Cells[idx]
		}
		out[i] = tabular.Row{Cells: cells}
	}
	return tabular.NewColumnIndex(kept), out
}
