// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package parser turns a lexer.Token stream into an ast.Node tree.
//
// The grammar is deliberately precedence-free: binary operator chains
// are rewritten into a strict left fold after the fact, rather than
// being driven by a precedence table, so that `1 + 2 * 3` evaluates to
// 9, not 7. Conventional precedence is obtained only by explicit
// parenthesisation. This is load-bearing behavior, not a simplification
// to "fix" later.
package parser

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/cleaner-bot/filterrules/ast"
	"github.com/cleaner-bot/filterrules/lexer"
)

const maxDepth = 100

var unaryOps = map[byte]ast.UnaryOp{
	'!': ast.Not,
	'~': ast.BNot,
	'+': ast.UnaryPlus,
	'-': ast.UnaryMinus,
}

var binaryOps = map[string]ast.BinaryOp{
	"+":  ast.Add,
	"-":  ast.Subtract,
	"*":  ast.Multiply,
	"/":  ast.Divide,
	"%":  ast.Modulo,
	"**": ast.Pow,
	"==": ast.Equals,
	"!=": ast.NotEquals,
	">":  ast.GreaterThan,
	">=": ast.GreaterThanOrEquals,
	"<":  ast.LessThan,
	"<=": ast.LessThanOrEquals,
	"&&": ast.And,
	"||": ast.Or,
	"&":  ast.BAnd,
	"|":  ast.BOr,
	"^":  ast.BXor,
	"<<": ast.LShift,
	">>": ast.RShift,
	"~":  ast.In,
}

func isUnaryByte(b byte) bool {
	_, ok := unaryOps[b]
	return ok
}

// Parse lexes and parses code in one step, returning the root of the
// expression tree.
func Parse(code []byte) (ast.Node, error) {
	tokens, err := lexer.Lex(code)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	return p.parseExpr(0, true)
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() lexer.Token { return p.tokens[p.pos] }

func (p *parser) pop() lexer.Token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func quoteBytes(b []byte) string { return "'" + string(b) + "'" }

func quoteByte(c byte) string { return "'" + string(c) + "'" }

func (p *parser) parseExpr(depth int, consumeTail bool) (ast.Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("too deeply nested code")
	}
	if p.done() {
		return nil, fmt.Errorf("unexpected end of input")
	}

	tok := p.pop()
	firstKind := tok.Kind
	var node ast.Node

	switch {
	case tok.Kind == lexer.NAME:
		node = parseNamePrimary(tok.Bytes)

	case tok.Kind == lexer.STRING:
		node = &ast.Constant{Value: ast.Bytes(append([]byte(nil), tok.Bytes...))}

	case tok.Kind == lexer.SEPARATOR && tok.Bytes[0] == '(':
		inner, err := p.parseExpr(depth+1, true)
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(')'); err != nil {
			return nil, err
		}
		node = &ast.Block{Inner: inner}

	case tok.Kind == lexer.SEPARATOR && tok.Bytes[0] == '[':
		items, err := p.parseSeparated(depth, ']')
		if err != nil {
			return nil, err
		}
		node = &ast.ArrayConstructor{Items: items}

	case tok.Kind == lexer.SEPARATOR && tok.Bytes[0] == '{':
		comp, err := p.parseArrayComprehension(depth)
		if err != nil {
			return nil, err
		}
		node = comp

	case tok.Kind == lexer.OPERATOR && isUnaryByte(tok.Bytes[0]):
		operand, err := p.parseExpr(depth+1, false)
		if err != nil {
			return nil, err
		}
		node = &ast.UnaryOperation{Op: unaryOps[tok.Bytes[0]], Value: operand}

	default:
		return nil, fmt.Errorf("unexpected %s (%s)", quoteBytes(tok.Bytes), tok.Kind)
	}

	if p.done() || !consumeTail {
		return node, nil
	}

	for !p.done() && p.peek().Kind == lexer.SEPARATOR {
		if p.peek().Bytes[0] != '(' {
			return node, nil
		}
		p.pop()
		if firstKind != lexer.NAME {
			return nil, fmt.Errorf("must be a NAME before a function call, not %s", firstKind)
		}
		args, err := p.parseSeparated(depth, ')')
		if err != nil {
			return nil, err
		}
		node = &ast.FunctionCall{Name: string(tok.Bytes), Arguments: args}
	}

	if p.done() {
		return node, nil
	}

	next := p.peek()
	if next.Kind != lexer.OPERATOR {
		return nil, fmt.Errorf("expected OPERATOR, not %s", next.Kind)
	}

	op, err := p.fuseBinaryOp()
	if err != nil {
		return nil, err
	}
	right, err := p.parseExpr(depth+1, true)
	if err != nil {
		return nil, err
	}
	return foldLeft(op, node, right), nil
}

// foldLeft implements the mandated "no precedence" rewrite: parsing
// `left op right` where right is itself `l' op' r'` restructures to
// `(left op l') op' r'`, so chains of binary operators always read
// left to right regardless of which operators appear.
func foldLeft(op ast.BinaryOp, left, right ast.Node) ast.Node {
	if rb, ok := right.(*ast.BinaryOperation); ok {
		return &ast.BinaryOperation{
			Op:    rb.Op,
			Left:  foldLeft(op, left, rb.Left),
			Right: rb.Right,
		}
	}
	return &ast.BinaryOperation{Op: op, Left: left, Right: right}
}

// fuseBinaryOp consumes a run of contiguous OPERATOR tokens and maps
// the fused spelling to its tag. Once the run is non-empty, a byte
// from the unary set stops the run instead of extending it, so `a +
// -b` fuses `+` alone and leaves `-` for the following unary.
func (p *parser) fuseBinaryOp() (ast.BinaryOp, error) {
	var buf []byte
	for !p.done() && p.peek().Kind == lexer.OPERATOR {
		b := p.peek().Bytes[0]
		if len(buf) > 0 && isUnaryByte(b) {
			break
		}
		buf = append(buf, b)
		p.pop()
	}
	op, ok := binaryOps[string(buf)]
	if !ok {
		return 0, fmt.Errorf("unknown OPERATOR: %s", quoteBytes(buf))
	}
	return op, nil
}

func (p *parser) expectClose(c byte) error {
	if p.done() {
		return fmt.Errorf("expected closing SEPARATOR, expected %s, not end of input", quoteByte(c))
	}
	tok := p.pop()
	if tok.Bytes[0] != c {
		return fmt.Errorf("expected closing SEPARATOR, expected %s, not %s", quoteByte(c), quoteBytes(tok.Bytes))
	}
	return nil
}

// parseSeparated parses a comma-separated, possibly-empty expression
// list terminated by close (')' for call arguments, ']' for array
// literals).
func (p *parser) parseSeparated(depth int, closing byte) ([]ast.Node, error) {
	if !p.done() && p.peek().Bytes[0] == closing {
		p.pop()
		return nil, nil
	}
	var items []ast.Node
	for {
		item, err := p.parseExpr(depth+1, true)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.done() {
			return nil, fmt.Errorf("unexpected SEPARATOR, expected , or %s, not end of input", string(closing))
		}
		sep := p.pop()
		if sep.Bytes[0] == closing {
			break
		}
		if sep.Bytes[0] != ',' {
			return nil, fmt.Errorf("unexpected SEPARATOR, expected , or %s, not %s", string(closing), quoteBytes(sep.Bytes))
		}
	}
	return items, nil
}

// parseArrayComprehension parses the body following an already-consumed
// '{': an ArrayConstructor, a binary operator, a right-hand expression,
// and the closing '}'.
func (p *parser) parseArrayComprehension(depth int) (ast.Node, error) {
	if p.done() || p.peek().Kind != lexer.SEPARATOR || p.peek().Bytes[0] != '[' {
		if p.done() {
			return nil, fmt.Errorf("unexpected end of input")
		}
		t := p.peek()
		return nil, fmt.Errorf("unexpected %s (%s)", quoteBytes(t.Bytes), t.Kind)
	}
	p.pop()
	items, err := p.parseSeparated(depth+1, ']')
	if err != nil {
		return nil, err
	}
	arr := &ast.ArrayConstructor{Items: items}

	if p.done() || p.peek().Kind != lexer.OPERATOR {
		if p.done() {
			return nil, fmt.Errorf("expected OPERATOR, not end of input")
		}
		return nil, fmt.Errorf("expected OPERATOR, not %s", p.peek().Kind)
	}
	op, err := p.fuseBinaryOp()
	if err != nil {
		return nil, err
	}
	right, err := p.parseExpr(depth+1, true)
	if err != nil {
		return nil, err
	}
	body := &ast.BinaryOperation{Op: op, Left: arr, Right: right}

	if err := p.expectClose('}'); err != nil {
		return nil, err
	}
	return &ast.ArrayComprehension{Body: body}, nil
}

func parseNamePrimary(raw []byte) ast.Node {
	s := string(raw)
	if isAllDigits(s) {
		return &ast.Constant{Value: ast.Int(parseInt(s))}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &ast.Constant{Value: ast.Float(f)}
	}
	return &ast.Variable{Name: s}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseInt clamps oversized literals instead of halting the parse;
// the language surface makes no arbitrary-precision promise for
// literals.
func parseInt(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0
	}
	if !bi.IsInt64() {
		return math.MaxInt64
	}
	return bi.Int64()
}
