// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package lint statically type-checks an ast.Node against a schema of
// declared variable and function types. It never executes user code,
// so it is safe to run directly on untrusted rule text, and it never
// panics: a type error is returned as a plain string, not an error
// value, matching the "exactly one message, first error wins" contract
// rule authors expect to display verbatim.
package lint

import (
	"fmt"

	"github.com/cleaner-bot/filterrules/ast"
)

// Type is the statically inferred shape of an expression.
type Type struct {
	kind Kind
	elem *Type // only meaningful when kind == ListKind; nil means "untyped list"
}

type Kind int

const (
	IntKind Kind = iota
	FloatKind
	BytesKind
	BoolKind
	ListKind
)

var (
	Int   = Type{kind: IntKind}
	Float = Type{kind: FloatKind}
	Bytes = Type{kind: BytesKind}
	Bool  = Type{kind: BoolKind}
)

// List builds a typed-list Type from its element type. A bare `list`
// schema declaration with no known element type is UntypedList.
func List(elem Type) Type {
	e := elem
	return Type{kind: ListKind, elem: &e}
}

// UntypedList is the Type of a schema variable declared as a generic
// list with no known element type.
var UntypedList = Type{kind: ListKind, elem: nil}

func (t Type) String() string {
	switch t.kind {
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case BytesKind:
		return "bytes"
	case BoolKind:
		return "bool"
	case ListKind:
		if t.elem == nil {
			return "list"
		}
		return fmt.Sprintf("list[%s]", t.elem.String())
	default:
		return "unknown"
	}
}

func (t Type) Equal(other Type) bool {
	if t.kind != other.kind {
		return false
	}
	if t.kind != ListKind {
		return true
	}
	if (t.elem == nil) != (other.elem == nil) {
		return false
	}
	if t.elem == nil {
		return true
	}
	return t.elem.Equal(*other.elem)
}

func numeric(t Type) bool { return t.kind == IntKind || t.kind == FloatKind }

// Variables maps a declared variable name to its type.
type Variables map[string]Type

// FunctionSignature is the ordered argument types and return type of a
// host-supplied function.
type FunctionSignature struct {
	Args   []Type
	Return Type
}

// Functions maps a declared function name to its signature.
type Functions map[string]FunctionSignature

// lintError is a sentinel wrapper so internal recursive calls can
// return an error value while the exported Lint still hands back a
// plain string, matching the rest of the package's "no panics, no
// wrapped Go errors across the public boundary" contract.
type lintError struct{ msg string }

func (e *lintError) Error() string { return e.msg }

func errf(format string, args ...any) error {
	return &lintError{msg: fmt.Sprintf(format, args...)}
}

// Lint type-checks expr and returns nil, or a human-readable message
// describing the first type error encountered in a left-to-right,
// bottom-up walk. In untrusted mode (the default) the pow operator is
// rejected outright, regardless of operand types.
func Lint(expr ast.Node, variables Variables, functions Functions, untrusted bool) *string {
	ctx := &context{variables: variables, functions: functions, untrusted: untrusted}
	if _, err := ctx.lint(expr); err != nil {
		msg := err.Error()
		return &msg
	}
	return nil
}

type context struct {
	variables Variables
	functions Functions
	untrusted bool
}

func (c *context) lint(expr ast.Node) (Type, error) {
	switch n := expr.(type) {
	case *ast.Block:
		return c.lint(n.Inner)

	case *ast.Constant:
		switch n.Value.(type) {
		case ast.Int:
			return Int, nil
		case ast.Float:
			return Float, nil
		case ast.Bytes:
			return Bytes, nil
		}
		return Type{}, errf("unknown constant value")

	case *ast.Variable:
		t, ok := c.variables[n.Name]
		if !ok {
			return Type{}, errf("variable not found: '%s'", n.Name)
		}
		return t, nil

	case *ast.ArrayConstructor:
		return c.lintArrayConstructor(n)

	case *ast.ArrayComprehension:
		return c.lintArrayComprehension(n)

	case *ast.BinaryOperation:
		return c.lintBinaryOp(n)

	case *ast.UnaryOperation:
		return c.lintUnaryOp(n)

	case *ast.FunctionCall:
		return c.lintFunctionCall(n)
	}

	return Type{}, errf("unknown ast node: %T", expr)
}

func (c *context) lintArrayConstructor(n *ast.ArrayConstructor) (Type, error) {
	if len(n.Items) == 0 {
		return Type{}, errf("unable to determine array type: empty array")
	}
	elem, err := c.lint(n.Items[0])
	if err != nil {
		return Type{}, err
	}
	for _, item := range n.Items[1:] {
		t, err := c.lint(item)
		if err != nil {
			return Type{}, err
		}
		if !t.Equal(elem) {
			return Type{}, errf("unable to determine array type: mixed '%s' and '%s'", elem, t)
		}
	}
	return List(elem), nil
}

func (c *context) lintArrayComprehension(n *ast.ArrayComprehension) (Type, error) {
	arr, ok := n.Body.Left.(*ast.ArrayConstructor)
	if !ok {
		return Type{}, errf("cannot use list comprehension on non-lists: '%s'", "unknown")
	}
	left, err := c.lintArrayConstructor(arr)
	if err != nil {
		return Type{}, err
	}
	right, err := c.lint(n.Body.Right)
	if err != nil {
		return Type{}, err
	}
	resultType, err := binaryOpType(n.Body.Op, *left.elem, right, c.untrusted)
	if err != nil {
		return Type{}, err
	}
	return List(resultType), nil
}

func (c *context) lintBinaryOp(n *ast.BinaryOperation) (Type, error) {
	left, err := c.lint(n.Left)
	if err != nil {
		return Type{}, err
	}

	if n.Op == ast.In {
		return lintIn(left, n, c)
	}

	right, err := c.lint(n.Right)
	if err != nil {
		return Type{}, err
	}
	return binaryOpType(n.Op, left, right, c.untrusted)
}

func lintIn(left Type, n *ast.BinaryOperation, c *context) (Type, error) {
	right, err := c.lint(n.Right)
	if err != nil {
		return Type{}, err
	}
	if right.kind != ListKind {
		return Type{}, errf("cannot use in operator on non-lists: '%s'", right)
	}
	if right.elem == nil {
		return Type{}, errf("cannot use in operator on untyped lists: '%s'", right)
	}
	if !left.Equal(*right.elem) {
		return Type{}, errf("cannot use in operator on different types: '%s' and '%s'", left, *right.elem)
	}
	return Bool, nil
}

// binaryOpType is the shared operator typing table, consulted both
// for ordinary BinaryOperation nodes and for the implicit operator
// inside an ArrayComprehension body. Every ast.BinaryOp value except
// ast.Modulo has a case here; Modulo has no typing rule and reaches the
// default case, which reports "unknown operator: modulo", although
// eval does compute it.
func binaryOpType(op ast.BinaryOp, left, right Type, untrusted bool) (Type, error) {
	switch op {
	case ast.Add, ast.Multiply:
		if mixed, ok := numericMix(left, right); ok {
			return mixed, nil
		}
		if !left.Equal(right) {
			return Type{}, errf("cannot use %s operator on different types: '%s' and '%s'", op, left, right)
		}
		return left, nil

	case ast.Subtract, ast.Divide:
		if mixed, ok := numericMix(left, right); ok {
			return mixed, nil
		}
		if !left.Equal(right) {
			return Type{}, errf("cannot use %s operator on different types: '%s' and '%s'", op, left, right)
		}
		if !numeric(left) {
			return Type{}, errf("cannot use %s operator on non-numbers: '%s'", op, left)
		}
		return left, nil

	case ast.BAnd, ast.BOr, ast.BXor, ast.LShift, ast.RShift:
		if !left.Equal(right) {
			return Type{}, errf("cannot use %s operator on different types: '%s' and '%s'", op, left, right)
		}
		if left.kind != IntKind {
			return Type{}, errf("cannot use %s operator on non-integer: '%s'", op, left)
		}
		return left, nil

	case ast.Pow:
		if untrusted {
			return Type{}, errf("cannot use pow operator in untrusted code")
		}
		if !left.Equal(right) {
			return Type{}, errf("cannot use pow operator on different types: '%s' and '%s'", left, right)
		}
		if !numeric(left) {
			return Type{}, errf("cannot use pow operator on non-numbers: '%s'", left)
		}
		return left, nil

	case ast.Equals, ast.NotEquals:
		return Bool, nil

	case ast.GreaterThan, ast.GreaterThanOrEquals, ast.LessThan, ast.LessThanOrEquals:
		if !left.Equal(right) {
			return Type{}, errf("cannot use %s operator on different types: '%s' and '%s'", op, left, right)
		}
		if !numeric(left) {
			return Type{}, errf("cannot use %s operator on non-numbers: '%s'", op, left)
		}
		return Bool, nil

	case ast.And, ast.Or:
		if !left.Equal(right) {
			return Type{}, errf("cannot use %s operator on different types: '%s' and '%s'", op, left, right)
		}
		return right, nil

	case ast.In:
		// handled by lintIn; reaching here means a caller applied the
		// shared table to an `in` node directly (e.g. a comprehension
		// body), which is only valid when left is already the element
		// type, so fall back to an equality check against a list type.
		if right.kind != ListKind || right.elem == nil {
			return Type{}, errf("cannot use in operator on untyped lists: '%s'", right)
		}
		if !left.Equal(*right.elem) {
			return Type{}, errf("cannot use in operator on different types: '%s' and '%s'", left, *right.elem)
		}
		return Bool, nil

	default:
		return Type{}, errf("unknown operator: %v", op)
	}
}

func numericMix(left, right Type) (Type, bool) {
	if left.kind == IntKind && right.kind == FloatKind {
		return Float, true
	}
	if left.kind == FloatKind && right.kind == IntKind {
		return Float, true
	}
	return Type{}, false
}

func (c *context) lintUnaryOp(n *ast.UnaryOperation) (Type, error) {
	t, err := c.lint(n.Value)
	if err != nil {
		return Type{}, err
	}
	switch n.Op {
	case ast.Not:
		return Bool, nil
	case ast.BNot, ast.UnaryPlus, ast.UnaryMinus:
		if t.kind != IntKind {
			return Type{}, errf("cannot use %s operator on non-integer: '%s'", n.Op, t)
		}
		return Int, nil
	default:
		return Type{}, errf("unknown operator: %v", n.Op)
	}
}

func (c *context) lintFunctionCall(n *ast.FunctionCall) (Type, error) {
	fn, ok := c.functions[n.Name]
	if !ok {
		return Type{}, errf("function not found: '%s'", n.Name)
	}
	if len(n.Arguments) != len(fn.Args) {
		return Type{}, errf("function has incorrect amount of arguments, got %d, expected %d", len(n.Arguments), len(fn.Args))
	}
	argTypes := make([]Type, len(n.Arguments))
	for i, arg := range n.Arguments {
		t, err := c.lint(arg)
		if err != nil {
			return Type{}, err
		}
		argTypes[i] = t
	}
	for i, t := range argTypes {
		if !t.Equal(fn.Args[i]) {
			return Type{}, errf(
				"function has incorrect argument signature, got (%s), expected (%s)",
				joinTypes(argTypes), joinTypes(fn.Args),
			)
		}
	}
	return fn.Return, nil
}

func joinTypes(types []Type) string {
	if len(types) == 0 {
		return ""
	}
	out := "'" + types[0].String() + "'"
	for _, t := range types[1:] {
		out += ", '" + t.String() + "'"
	}
	if len(types) == 1 {
		out += ","
	}
	return out
}
