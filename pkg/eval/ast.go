// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package eval

import (
	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
	"github.com/alecthomas/participle/lexer/ebnf"
)

// exprLexer tokenizes the Python-flavored filter expressions accepted by the
// search API. Keywords (and, or, not, in, True, False, None) are plain Ident
// tokens matched by value in the grammar.
var exprLexer = lexer.Must(ebnf.New(`
Ident = (alpha | "_") { "_" | alpha | digit } .
String = "\"" { " "…"￿"-"\""-"\\" | "\\" any } "\"" | "'" { " "…"￿"-"'"-"\\" | "\\" any } "'" .
Float = digit { digit } "." { digit } .
Int = digit { digit } .
Punct = "!"…"/" | ":"…"@" | "["…` + "\"`\"" + ` | "{"…"~" .
Whitespace = ( " " | "\t" | "\n" ) { " " | "\t" | "\n" } .
alpha = "a"…"z" | "A"…"Z" .
digit = "0"…"9" .
any = " "…"￿" .
`))

var exprParser = participle.MustBuild(&Expression{},
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Expression is the root node: "or" has the loosest binding.
type Expression struct {
	Pos lexer.Position

	Left  *AndExpression   `parser:"@@"`
	Right []*AndExpression `parser:"{ \"or\" @@ }"`
}

// AndExpression binds tighter than "or".
type AndExpression struct {
	Pos lexer.Position

	Left  *NotExpression   `parser:"@@"`
	Right []*NotExpression `parser:"{ \"and\" @@ }"`
}

// NotExpression is an optional unary "not" in front of a comparison.
type NotExpression struct {
	Pos lexer.Position

	Not        *NotExpression `parser:"\"not\" @@"`
	Comparison *Comparison    `parser:"| @@"`
}

// Comparison supports Python-style chaining: a < b <= c.
type Comparison struct {
	Pos lexer.Position

	Left *ArithExpression `parser:"@@"`
	Ops  []*ComparisonOp  `parser:"{ @@ }"`
}

// ComparisonOp is a single comparison operator and its right operand.
// "not" "in" is captured as the single op "notin".
type ComparisonOp struct {
	Pos lexer.Position

	Op    string           `parser:"@( \"=\" \"=\" | \"!\" \"=\" | \"<\" \"=\" | \">\" \"=\" | \"<\" | \">\" | \"not\" \"in\" | \"in\" )"`
	Right *ArithExpression `parser:"@@"`
}

// ArithExpression handles additive operators.
type ArithExpression struct {
	Pos lexer.Position

	Left *Term      `parser:"@@"`
	Ops  []*ArithOp `parser:"{ @@ }"`
}

// ArithOp is a single additive operator and its right operand.
type ArithOp struct {
	Pos lexer.Position

	Op    string `parser:"@( \"+\" | \"-\" )"`
	Right *Term  `parser:"@@"`
}

// Term handles multiplicative operators.
type Term struct {
	Pos lexer.Position

	Left *Unary    `parser:"@@"`
	Ops  []*TermOp `parser:"{ @@ }"`
}

// TermOp is a single multiplicative operator and its right operand.
type TermOp struct {
	Pos lexer.Position

	Op    string `parser:"@( \"*\" | \"/\" | \"%\" )"`
	Right *Unary `parser:"@@"`
}

// Unary is an optional unary minus in front of a postfix expression.
type Unary struct {
	Pos lexer.Position

	Minus   *string  `parser:"[ @\"-\" ]"`
	Postfix *Postfix `parser:"@@"`
}

// Postfix is a primary followed by zero or more attribute accesses,
// e.g. brand.lower().startswith("app").
type Postfix struct {
	Pos lexer.Position

	Primary *Primary     `parser:"@@"`
	Attrs   []*Attribute `parser:"{ @@ }"`
}

// Attribute is a dotted attribute access with an optional call.
type Attribute struct {
	Pos lexer.Position

	Name string    `parser:"\".\" @Ident"`
	Call *CallArgs `parser:"[ @@ ]"`
}

// CallArgs is a parenthesized argument list.
type CallArgs struct {
	Pos lexer.Position

	Args []*Expression `parser:"\"(\" [ @@ { \",\" @@ } ] \")\""`
}

// Call is a free function call, e.g. int(price).
type Call struct {
	Pos lexer.Position

	Name string        `parser:"@Ident"`
	Args []*Expression `parser:"\"(\" [ @@ { \",\" @@ } ] \")\""`
}

// List is a list literal.
type List struct {
	Pos lexer.Position

	Items []*Expression `parser:"\"[\" [ @@ { \",\" @@ } ] \"]\""`
}

// Primary is a literal, a list, a call, a name reference or a
// parenthesized subexpression.
type Primary struct {
	Pos lexer.Position

	Float  *float64    `parser:"@Float"`
	Int    *int64      `parser:"| @Int"`
	String *string     `parser:"| @String"`
	True   bool        `parser:"| @\"True\""`
	False  bool        `parser:"| @\"False\""`
	None   bool        `parser:"| @\"None\""`
	List   *List       `parser:"| @@"`
	Call   *Call       `parser:"| @@"`
	Ident  *string     `parser:"| @Ident"`
	Sub    *Expression `parser:"| \"(\" @@ \")\""`
}

func parseExpression(src string) (*Expression, error) {
	expr := &Expression{}
	if err := exprParser.ParseString(src, expr); err != nil {
		return nil, err
	}
	return expr, nil
}
