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

// Package parser turns a restricted SQL-subset query string into a Query
// AST. The grammar supports a single SELECT ... FROM, an optional single
// JOIN ... ON, an optional single WHERE comparison, an optional GROUP BY,
// an optional ORDER BY, and an optional LIMIT.
package parser

import (
	"fmt"
	"strconv"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
)

const stageParse = "parse"

type parser struct {
	input string
	items []Item
	pos   int
}

// ParseQuery parses a single query string into a Query. Any failure is
// returned as an *engineerr.Error of kind KindParse, carrying the stage name
// "parse" and a message that names the unexpected token, its position, and
// the text remaining from that point on.
func ParseQuery(input string) (*Query, error) {
	p := &parser{input: input, items: lex(input)}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if tok := p.cur(); tok.Type != EOF {
		return nil, p.errorf(tok, "unexpected trailing input")
	}
	return q, nil
}

func (p *parser) cur() Item {
	if p.pos >= len(p.items) {
		return Item{Type: EOF}
	}
	return p.items[p.pos]
}

func (p *parser) advance() Item {
	it := p.cur()
	if p.pos < len(p.items) {
		p.pos++
	}
	return it
}

func (p *parser) expect(tok Token) (Item, error) {
	it := p.cur()
	if it.Type != tok {
		return Item{}, p.errorf(it, fmt.Sprintf("expected %s", tok))
	}
	return p.advance(), nil
}

// errorf builds a ParseError naming the offending item's position and the
// remaining input from that position on.
func (p *parser) errorf(it Item, msg string) error {
	remaining := ""
	if it.Pos.Offset < len(p.input) {
		remaining = p.input[it.Pos.Offset:]
	}
	full := fmt.Sprintf("%s at line %d, column %d (found %q); remaining input: %q",
		msg, it.Pos.Line, it.Pos.Column, it.Value, remaining)
	return engineerr.New(engineerr.KindParse, stageParse, full)
}

func (p *parser) parseQuery() (*Query, error) {
	if _, err := p.expect(SELECT); err != nil {
		return nil, err
	}
	fields, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(FROM); err != nil {
		return nil, err
	}
	from, err := p.parseResource()
	if err != nil {
		return nil, err
	}
	q := &Query{Select: SelectSegment{Fields: fields, From: from}}

	if jt, ok := p.peekJoinType(); ok {
		p.advance()
		if _, err := p.expect(JOIN); err != nil {
			return nil, err
		}
		right, err := p.parseResource()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(ON); err != nil {
			return nil, err
		}
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		on, err := p.parseBinaryClause()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		q.Join = &JoinSegment{Type: jt, Right: right, On: on}
	}

	if p.cur().Type == WHERE {
		p.advance()
		clause, err := p.parseBinaryClause()
		if err != nil {
			return nil, err
		}
		q.Where = &WhereSegment{Clause: clause}
	}

	if p.cur().Type == GROUP {
		p.advance()
		if _, err := p.expect(BY); err != nil {
			return nil, err
		}
		attrs, err := p.parseAttrRefList()
		if err != nil {
			return nil, err
		}
		q.GroupBy = &GroupBySegment{Attrs: attrs}
	}

	if p.cur().Type == ORDER {
		p.advance()
		if _, err := p.expect(BY); err != nil {
			return nil, err
		}
		items, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = &OrderBySegment{Items: items}
	}

	if p.cur().Type == LIMIT {
		p.advance()
		it, err := p.expect(NUMBER)
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(it.Value)
		if convErr != nil || n < 0 {
			return nil, p.errorf(it, "LIMIT value must be a non-negative integer")
		}
		q.Limit = &LimitSegment{N: n}
	}

	return q, nil
}

func (p *parser) peekJoinType() (JoinType, bool) {
	switch p.cur().Type {
	case LEFT:
		return JoinLeft, true
	case RIGHT:
		return JoinRight, true
	case INNER:
		return JoinInner, true
	}
	return JoinNone, false
}

func (p *parser) parseSelectList() ([]FieldExpr, error) {
	var fields []FieldExpr
	idx := 0
	for {
		f, err := p.parseSelectItem(idx)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		idx++
		if p.cur().Type != COMMA {
			break
		}
		p.advance()
	}
	return fields, nil
}

func (p *parser) parseSelectItem(idx int) (FieldExpr, error) {
	cur := p.cur()
	switch {
	case cur.Type == STAR:
		p.advance()
		return StarExpr{Index: idx}, nil
	case cur.Type == IDENT && p.peekAt(1).Type == DOT && p.peekAt(2).Type == STAR:
		alias := p.advance()
		p.advance() // DOT
		p.advance() // STAR
		return StarExpr{Src: alias.Value, Index: idx}, nil
	case IsFuncToken(cur.Type):
		return p.parseFuncCall(idx)
	case cur.Type == IDENT:
		ref, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.cur().Type == AS {
			p.advance()
			aliasItem, err := p.expect(IDENT)
			if err != nil {
				return nil, err
			}
			alias = aliasItem.Value
		}
		return FieldExprItem{Ref: ref, Alias: alias, Index: idx}, nil
	default:
		return nil, p.errorf(cur, "expected a select list item")
	}
}

func (p *parser) parseFuncCall(idx int) (FieldExpr, error) {
	tok := p.advance()
	kind, err := funcKindFromToken(tok.Type)
	if err != nil {
		return nil, p.errorf(tok, err.Error())
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	distinct := false
	if p.cur().Type == DISTINCT {
		p.advance()
		distinct = true
	}
	if distinct && kind != FuncCount {
		return nil, p.errorf(tok, "DISTINCT is only supported on COUNT")
	}
	if distinct {
		kind = FuncCountDistinct
	}
	var params []FuncParam
	if p.cur().Type != RPAREN {
		for {
			param, err := p.parseFuncParam()
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if p.cur().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	alias := ""
	if p.cur().Type == AS {
		p.advance()
		aliasItem, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		alias = aliasItem.Value
	}
	return FuncCallExpr{Func: kind, Params: params, Alias: alias, Index: idx}, nil
}

func funcKindFromToken(tok Token) (FuncKind, error) {
	switch tok {
	case COUNT:
		return FuncCount, nil
	case MIN:
		return FuncMin, nil
	case MAX:
		return FuncMax, nil
	case AVG:
		return FuncAvg, nil
	case SUM:
		return FuncSum, nil
	case CONCAT:
		return FuncConcat, nil
	case CONCATWS:
		return FuncConcatWS, nil
	case LOWER:
		return FuncLower, nil
	case UPPER:
		return FuncUpper, nil
	}
	return 0, fmt.Errorf("unsupported function %s", tok)
}

func (p *parser) parseFuncParam() (FuncParam, error) {
	cur := p.cur()
	switch cur.Type {
	case STAR:
		p.advance()
		return StarParam{}, nil
	case STRING:
		p.advance()
		return QuotedStringParam{Value: cur.Value}, nil
	case NUMBER:
		p.advance()
		return AtomLiteralParam{Value: cur.Value}, nil
	case IDENT:
		if p.peekAt(1).Type == DOT {
			ref, err := p.parseFieldRef()
			if err != nil {
				return nil, err
			}
			return FuncFieldParam{Ref: ref}, nil
		}
		p.advance()
		return AliasRefParam{Alias: cur.Value}, nil
	default:
		return nil, p.errorf(cur, "expected a function argument")
	}
}

func (p *parser) peekAt(offset int) Item {
	i := p.pos + offset
	if i >= len(p.items) {
		return Item{Type: EOF}
	}
	return p.items[i]
}

func (p *parser) parseFieldRef() (FieldRef, error) {
	res, err := p.expect(IDENT)
	if err != nil {
		return FieldRef{}, err
	}
	if _, err := p.expect(DOT); err != nil {
		return FieldRef{}, err
	}
	field, err := p.expect(IDENT)
	if err != nil {
		return FieldRef{}, err
	}
	return FieldRef{Resource: res.Value, Field: field.Value}, nil
}

// parseResource parses "<data_source>.<src> <alias>", where src is either a
// bare identifier (table name) or a single-quoted string (file path or
// endpoint name). The alias immediately follows with no AS keyword.
func (p *parser) parseResource() (Resource, error) {
	ds, err := p.expect(IDENT)
	if err != nil {
		return Resource{}, err
	}
	if _, err := p.expect(DOT); err != nil {
		return Resource{}, err
	}
	var src string
	switch p.cur().Type {
	case IDENT:
		src = p.advance().Value
	case STRING:
		src = p.advance().Value
	default:
		return Resource{}, p.errorf(p.cur(), "expected a table name or quoted source string")
	}
	alias, err := p.expect(IDENT)
	if err != nil {
		return Resource{}, err
	}
	return Resource{DataSource: ds.Value, Src: src, Alias: alias.Value}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	cur := p.cur()
	switch {
	case cur.Type == IDENT && p.peekAt(1).Type == DOT:
		ref, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		return FieldRefOperand{Ref: ref}, nil
	case cur.Type == STRING:
		p.advance()
		return QuotedStringOperand{Value: cur.Value}, nil
	case cur.Type == NUMBER:
		p.advance()
		return NumberOperand{Value: cur.Value}, nil
	default:
		return nil, p.errorf(cur, "expected a field reference, string, or number")
	}
}

func (p *parser) parseBinaryClause() (BinaryClause, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return BinaryClause{}, err
	}
	opItem := p.cur()
	op, ok := operatorFromToken(opItem.Type)
	if !ok {
		return BinaryClause{}, p.errorf(opItem, "expected a comparison operator")
	}
	p.advance()
	rhs, err := p.parseOperand()
	if err != nil {
		return BinaryClause{}, err
	}
	return BinaryClause{P1: lhs, Op: op, P2: rhs}, nil
}

func (p *parser) parseAttrRef() (AttrRef, error) {
	cur := p.cur()
	if cur.Type != IDENT {
		return nil, p.errorf(cur, "expected a field or alias reference")
	}
	if p.peekAt(1).Type == DOT {
		ref, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		return FieldRefAttr{Ref: ref}, nil
	}
	p.advance()
	return AliasRefAttr{Alias: cur.Value}, nil
}

func (p *parser) parseAttrRefList() ([]AttrRef, error) {
	var attrs []AttrRef
	for {
		a, err := p.parseAttrRef()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
		if p.cur().Type != COMMA {
			break
		}
		p.advance()
	}
	return attrs, nil
}

func (p *parser) parseOrderByList() ([]OrderByItem, error) {
	var items []OrderByItem
	for {
		attr, err := p.parseAttrRef()
		if err != nil {
			return nil, err
		}
		dir := DirAsc
		switch p.cur().Type {
		case ASC:
			p.advance()
		case DESC:
			dir = DirDesc
			p.advance()
		}
		items = append(items, OrderByItem{Attr: attr, Dir: dir})
		if p.cur().Type != COMMA {
			break
		}
		p.advance()
	}
	return items, nil
}
