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

package parser

import (
	"fmt"
)

// Resource names one of the two data sources a query reads from: a data
// source name, a source descriptor (table name, file path, or endpoint
// name), and the alias the rest of the query refers to it by.
type Resource struct {
	DataSource string
	Src        string
	Alias      string
}

// JoinType is the join variant named on the JOIN keyword. Only a single
// JOIN segment is supported per query; see the N-ary join decision in
// DESIGN.md.
type JoinType int

const (
	JoinNone JoinType = iota
	JoinLeft
	JoinRight
	JoinInner
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinInner:
		return "INNER"
	default:
		return "NONE"
	}
}

// Direction is an ORDER BY sort direction.
type Direction int

const (
	DirAsc Direction = iota
	DirDesc
)

// Operator is a WHERE/JOIN ON comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte
)

func operatorFromToken(tok Token) (Operator, bool) {
	switch tok {
	case EQ:
		return OpEq, true
	case NEQ:
		return OpNeq, true
	case LT:
		return OpLt, true
	case GT:
		return OpGt, true
	case LTE:
		return OpLte, true
	case GTE:
		return OpGte, true
	}
	return 0, false
}

// FuncKind is one of the closed set of platform functions a query may call.
type FuncKind int

const (
	FuncCount FuncKind = iota
	FuncCountDistinct
	FuncMin
	FuncMax
	FuncAvg
	FuncSum
	FuncConcat
	FuncConcatWS
	FuncLower
	FuncUpper
)

// IsAggregate reports whether the function requires a GROUP BY execution
// stage rather than the row-at-a-time scalar stage.
func (f FuncKind) IsAggregate() bool {
	switch f {
	case FuncCount, FuncCountDistinct, FuncMin, FuncMax, FuncAvg, FuncSum:
		return true
	default:
		return false
	}
}

// name returns the lowercase function name used when synthesizing an ident
// for an unaliased function call, e.g. "lower_2".
func (f FuncKind) name() string {
	switch f {
	case FuncCount, FuncCountDistinct:
		return "count"
	case FuncMin:
		return "min"
	case FuncMax:
		return "max"
	case FuncAvg:
		return "avg"
	case FuncSum:
		return "sum"
	case FuncConcat:
		return "concat"
	case FuncConcatWS:
		return "concat_ws"
	case FuncLower:
		return "lower"
	case FuncUpper:
		return "upper"
	}
	return "func"
}

// FieldRef is a data-source-qualified column reference, e.g. "csv.name".
type FieldRef struct {
	Resource string
	Field    string
}

func (r FieldRef) String() string {
	return fmt.Sprintf("%s.%s", r.Resource, r.Field)
}

// FieldExpr is one item of a SELECT list: a star, a bare field reference, or
// a function call. Index is the item's 0-based ordinal position in the
// SELECT list, used both for plan bookkeeping and for synthesizing an ident
// when a function call carries no AS alias.
type FieldExpr interface {
	fieldExprNode()
	Ordinal() int
}

// StarExpr is a "*" select item (spec §3.1's `Star{src}`). The planner marks
// its source alias as starred, and projection expands it after fetch into
// one output column per column of that alias's fetched schema. Src is empty for a bare "*", which binds to the SELECT
// resource's alias once it is known; "alias.*" sets Src explicitly, letting
// a star target the JOIN side too.
type StarExpr struct {
	Src   string
	Index int
}

func (StarExpr) fieldExprNode()  {}
func (s StarExpr) Ordinal() int { return s.Index }

// FieldExprItem selects a single column, optionally renamed with AS.
type FieldExprItem struct {
	Ref   FieldRef
	Alias string
	Index int
}

func (FieldExprItem) fieldExprNode()   {}
func (f FieldExprItem) Ordinal() int   { return f.Index }

// Ident returns the name downstream rows carry this field under: the
// explicit alias if present, otherwise the bare field name.
func (f FieldExprItem) Ident() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Ref.Field
}

// FuncCallExpr is a platform function call appearing in the SELECT list.
type FuncCallExpr struct {
	Func   FuncKind
	Params []FuncParam
	Alias  string
	Index  int
}

func (FuncCallExpr) fieldExprNode()  {}
func (f FuncCallExpr) Ordinal() int { return f.Index }

// Ident returns the name downstream rows carry this computed column under:
// the explicit alias if present, otherwise "<funcname>_<index>" (e.g.
// "lower_2").
func (f FuncCallExpr) Ident() string {
	if f.Alias != "" {
		return f.Alias
	}
	return fmt.Sprintf("%s_%d", f.Func.name(), f.Index)
}

// FuncParam is one argument of a function call.
type FuncParam interface {
	funcParamNode()
}

// FuncFieldParam is a column-reference argument, e.g. CONCAT(csv.first, ...).
type FuncFieldParam struct {
	Ref FieldRef
}

func (FuncFieldParam) funcParamNode() {}

// StarParam is the "*" argument, valid only inside COUNT(*).
type StarParam struct{}

func (StarParam) funcParamNode() {}

// QuotedStringParam is a string literal argument, e.g. CONCAT_WS(' ', ...).
type QuotedStringParam struct {
	Value string
}

func (QuotedStringParam) funcParamNode() {}

// AtomLiteralParam is a bare numeric literal argument.
type AtomLiteralParam struct {
	Value string
}

func (AtomLiteralParam) funcParamNode() {}

// AliasRefParam references an alias assigned earlier in the same SELECT
// list, e.g. CONCAT(full_name, ...) where full_name was itself a function
// call's alias.
type AliasRefParam struct {
	Alias string
}

func (AliasRefParam) funcParamNode() {}

// Operand is one side of a BinaryClause comparison.
type Operand interface {
	operandNode()
}

// FieldRefOperand compares against a column's runtime value.
type FieldRefOperand struct {
	Ref FieldRef
}

func (FieldRefOperand) operandNode() {}

// QuotedStringOperand compares against a string literal.
type QuotedStringOperand struct {
	Value string
}

func (QuotedStringOperand) operandNode() {}

// NumberOperand compares against a numeric literal.
type NumberOperand struct {
	Value string
}

func (NumberOperand) operandNode() {}

// BinaryClause is a single comparison, used by both JOIN ON and WHERE.
type BinaryClause struct {
	P1 Operand
	Op Operator
	P2 Operand
}

// AttrRef is a GROUP BY or ORDER BY attribute reference: either a source
// field or a reference to a SELECT-list alias.
type AttrRef interface {
	attrRefNode()
}

// FieldRefAttr names a source column directly.
type FieldRefAttr struct {
	Ref FieldRef
}

func (FieldRefAttr) attrRefNode() {}

// AliasRefAttr names a SELECT-list alias.
type AliasRefAttr struct {
	Alias string
}

func (AliasRefAttr) attrRefNode() {}

// OrderByItem is one ORDER BY term.
type OrderByItem struct {
	Attr AttrRef
	Dir  Direction
}

// SelectSegment is the SELECT ... FROM clause: the projected field list and
// the base resource every field in the query is read relative to.
type SelectSegment struct {
	Fields []FieldExpr
	From   Resource
}

// JoinSegment is the single optional JOIN ... ON clause.
type JoinSegment struct {
	Type  JoinType
	Right Resource
	On    BinaryClause
}

// WhereSegment is the single optional WHERE clause. The grammar has no AND
// / OR connective, so a query carries at most one comparison.
type WhereSegment struct {
	Clause BinaryClause
}

// GroupBySegment is the optional GROUP BY clause.
type GroupBySegment struct {
	Attrs []AttrRef
}

// OrderBySegment is the optional ORDER BY clause.
type OrderBySegment struct {
	Items []OrderByItem
}

// LimitSegment is the optional LIMIT clause.
type LimitSegment struct {
	N int
}

// Query is the fully parsed representation of one SQL-subset statement.
type Query struct {
	Select  SelectSegment
	Join    *JoinSegment
	Where   *WhereSegment
	GroupBy *GroupBySegment
	OrderBy *OrderBySegment
	Limit   *LimitSegment
}

// Resources returns every resource the query reads from, in clause order:
// the FROM resource, then the JOIN resource if present.
func (q *Query) Resources() []Resource {
	res := []Resource{q.Select.From}
	if q.Join != nil {
		res = append(res, q.Join.Right)
	}
	return res
}

// ResourceByAlias looks up a resource by its query alias.
func (q *Query) ResourceByAlias(alias string) (Resource, bool) {
	for _, r := range q.Resources() {
		if r.Alias == alias {
			return r, true
		}
	}
	return Resource{}, false
}
