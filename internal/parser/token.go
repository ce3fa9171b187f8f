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

// Token identifies the lexical class of an Item.
type Token int

const (
	ILLEGAL Token = iota
	EOF

	IDENT  // bare identifier: table, column, data source, alias
	NUMBER // [+-]?digits(.digits)?
	STRING // 'single quoted', '' escapes an embedded quote

	DOT       // .
	COMMA     // ,
	LPAREN    // (
	RPAREN    // )
	STAR      // *
	EQ        // =
	NEQ       // <> or !=
	LT        // <
	GT        // >
	LTE       // <=
	GTE       // >=

	// keywords
	SELECT
	FROM
	JOIN
	LEFT
	RIGHT
	INNER
	ON
	WHERE
	GROUP
	BY
	ORDER
	ASC
	DESC
	LIMIT
	AS
	DISTINCT
	COUNT
	MIN
	MAX
	AVG
	SUM
	CONCAT
	CONCATWS
	LOWER
	UPPER
)

var keywords = map[string]Token{
	"SELECT":    SELECT,
	"FROM":      FROM,
	"JOIN":      JOIN,
	"LEFT":      LEFT,
	"RIGHT":     RIGHT,
	"INNER":     INNER,
	"ON":        ON,
	"WHERE":     WHERE,
	"GROUP":     GROUP,
	"BY":        BY,
	"ORDER":     ORDER,
	"ASC":       ASC,
	"DESC":      DESC,
	"LIMIT":     LIMIT,
	"AS":        AS,
	"DISTINCT":  DISTINCT,
	"COUNT":     COUNT,
	"MIN":       MIN,
	"MAX":       MAX,
	"AVG":       AVG,
	"SUM":       SUM,
	"CONCAT":    CONCAT,
	"CONCAT_WS": CONCATWS,
	"LOWER":     LOWER,
	"UPPER":     UPPER,
}

// aggregateFuncs and scalarVarargsFuncs and scalarFuncs classify function-name
// tokens per spec §3.1's closed function sets.
var aggregateFuncs = map[Token]bool{COUNT: true, MIN: true, MAX: true, AVG: true, SUM: true}
var scalarVarargsFuncs = map[Token]bool{CONCAT: true, CONCATWS: true}
var scalarFuncs = map[Token]bool{LOWER: true, UPPER: true}

// IsFuncToken reports whether tok names one of the closed set of supported functions.
func IsFuncToken(tok Token) bool {
	return aggregateFuncs[tok] || scalarVarargsFuncs[tok] || scalarFuncs[tok]
}

// Pos is a position in the original query string.
type Pos struct {
	Offset int
	Line   int
	Column int
}

// Item is a single lexeme: its token class, literal text, and position.
type Item struct {
	Type  Token
	Value string
	Pos   Pos
}

func (t Token) String() string {
	for name, tok := range keywords {
		if tok == t {
			return name
		}
	}
	switch t {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case IDENT:
		return "IDENT"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case DOT:
		return "."
	case COMMA:
		return ","
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case STAR:
		return "*"
	case EQ:
		return "="
	case NEQ:
		return "<>"
	case LT:
		return "<"
	case GT:
		return ">"
	case LTE:
		return "<="
	case GTE:
		return ">="
	}
	return "UNKNOWN"
}
