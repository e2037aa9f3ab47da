// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package eval walks an already-linted ast.Node and produces a Value.
// It trusts the caller to have run lint.Lint first: eval does not
// re-derive types, it only computes. The one exception is the
// untrusted resource policy, which is a runtime concern (operand
// magnitudes are not visible to the static linter) and is enforced
// here whenever Untrusted is set on the Env.
//
// Integers are arbitrary precision. The untrusted lshift cap compares
// the operand against 2**128, which only means anything if a prior
// trusted-free shift could have produced a value that large; capping
// at the host machine word would make the cap unreachable and the
// policy dead code.
package eval

import (
	"bytes"
	"fmt"
	"math"
	"math/big"

	"github.com/cleaner-bot/filterrules/ast"
)

// Value is the result of evaluating an expression: exactly one of
// Int, Float, Bytes, Bool or List is meaningful, discriminated by Kind.
type Value struct {
	Kind  Kind
	Int   *big.Int
	Float float64
	Bytes []byte
	Bool  bool
	List  []Value
}

type Kind int

const (
	IntKind Kind = iota
	FloatKind
	BytesKind
	BoolKind
	ListKind
)

func (k Kind) String() string {
	switch k {
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	case BytesKind:
		return "bytes"
	case BoolKind:
		return "bool"
	case ListKind:
		return "list"
	default:
		return "unknown"
	}
}

func IntValue(v int64) Value       { return Value{Kind: IntKind, Int: big.NewInt(v)} }
func BigIntValue(v *big.Int) Value { return Value{Kind: IntKind, Int: v} }
func FloatValue(v float64) Value   { return Value{Kind: FloatKind, Float: v} }
func BytesValue(v []byte) Value    { return Value{Kind: BytesKind, Bytes: v} }
func BoolValue(v bool) Value       { return Value{Kind: BoolKind, Bool: v} }
func ListValue(v []Value) Value    { return Value{Kind: ListKind, List: v} }

func (v Value) numeric() bool { return v.Kind == IntKind || v.Kind == FloatKind }

func (v Value) asFloat() float64 {
	if v.Kind == IntKind {
		f, _ := new(big.Float).SetInt(v.Int).Float64()
		return f
	}
	return v.Float
}

// Truthy is the short-circuit (and `not`) interpretation of a value:
// zero, empty bytes and empty lists are false, everything else true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case IntKind:
		return v.Int.Sign() != 0
	case FloatKind:
		return v.Float != 0
	case BytesKind:
		return len(v.Bytes) > 0
	case BoolKind:
		return v.Bool
	case ListKind:
		return len(v.List) > 0
	}
	return false
}

// Equal is value equality across kinds: int and float compare
// numerically (1 == 1.0), everything else requires the same kind.
func (v Value) Equal(other Value) bool {
	if v.numeric() && other.numeric() {
		if v.Kind == IntKind && other.Kind == IntKind {
			return v.Int.Cmp(other.Int) == 0
		}
		return v.asFloat() == other.asFloat()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case BytesKind:
		return bytes.Equal(v.Bytes, other.Bytes)
	case BoolKind:
		return v.Bool == other.Bool
	case ListKind:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Untrusted resource caps. The messages are part of the public
// contract and verified literally by the test suite.
const (
	maxUntrustedStringLen = 65536
	maxUntrustedShift     = 128
)

var maxUntrustedShiftOperand = new(big.Int).Lsh(big.NewInt(1), 128)

// Functions resolves a host-supplied function by name at evaluation
// time. The linter validates arity and types ahead of time; Eval
// trusts that and only needs the callable itself.
type Functions map[string]func(args []Value) (Value, error)

// Env carries the variable bindings, function table, and trust mode
// for one evaluation.
type Env struct {
	Variables map[string]Value
	Functions Functions
	Untrusted bool
}

// Eval computes the value of expr, or an error describing a runtime
// fault: an unbound variable, an unknown function, an operand shape
// the operator cannot handle, or an untrusted resource-cap violation.
func Eval(expr ast.Node, env *Env) (Value, error) {
	switch n := expr.(type) {
	case *ast.Block:
		return Eval(n.Inner, env)

	case *ast.Constant:
		switch v := n.Value.(type) {
		case ast.Int:
			return IntValue(int64(v)), nil
		case ast.Float:
			return FloatValue(float64(v)), nil
		case ast.Bytes:
			return BytesValue([]byte(v)), nil
		}
		return Value{}, fmt.Errorf("unknown constant value: %T", n.Value)

	case *ast.Variable:
		v, ok := env.Variables[n.Name]
		if !ok {
			return Value{}, fmt.Errorf("variable not found: '%s'", n.Name)
		}
		return v, nil

	case *ast.ArrayConstructor:
		items := make([]Value, len(n.Items))
		for i, item := range n.Items {
			v, err := Eval(item, env)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return ListValue(items), nil

	case *ast.ArrayComprehension:
		return evalComprehension(n, env)

	case *ast.UnaryOperation:
		return evalUnary(n, env)

	case *ast.BinaryOperation:
		return evalBinary(n, env)

	case *ast.FunctionCall:
		return evalCall(n, env)
	}

	return Value{}, fmt.Errorf("unknown ast node: %T", expr)
}

// evalComprehension maps the body operator over the element list. The
// right-hand side is evaluated at most once, lazily: an empty element
// list, or elements that short-circuit an and/or body, never touch it.
func evalComprehension(n *ast.ArrayComprehension, env *Env) (Value, error) {
	arr, ok := n.Body.Left.(*ast.ArrayConstructor)
	if !ok {
		return Value{}, fmt.Errorf("malformed array comprehension")
	}

	var right *Value
	rightOnce := func() (Value, error) {
		if right == nil {
			v, err := Eval(n.Body.Right, env)
			if err != nil {
				return Value{}, err
			}
			right = &v
		}
		return *right, nil
	}

	out := make([]Value, len(arr.Items))
	for i, item := range arr.Items {
		left, err := Eval(item, env)
		if err != nil {
			return Value{}, err
		}
		if n.Body.Op == ast.And && !left.Truthy() {
			out[i] = left
			continue
		}
		if n.Body.Op == ast.Or && left.Truthy() {
			out[i] = left
			continue
		}
		r, err := rightOnce()
		if err != nil {
			return Value{}, err
		}
		v, err := applyBinary(n.Body.Op, left, r, env.Untrusted)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return ListValue(out), nil
}

func evalUnary(n *ast.UnaryOperation, env *Env) (Value, error) {
	v, err := Eval(n.Value, env)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case ast.Not:
		return BoolValue(!v.Truthy()), nil
	case ast.BNot:
		if v.Kind != IntKind {
			return Value{}, fmt.Errorf("cannot use bnot operator on %s value", v.Kind)
		}
		return BigIntValue(new(big.Int).Not(v.Int)), nil
	case ast.UnaryPlus:
		if !v.numeric() {
			return Value{}, fmt.Errorf("cannot use plus operator on %s value", v.Kind)
		}
		return v, nil
	case ast.UnaryMinus:
		switch v.Kind {
		case IntKind:
			return BigIntValue(new(big.Int).Neg(v.Int)), nil
		case FloatKind:
			return FloatValue(-v.Float), nil
		}
		return Value{}, fmt.Errorf("cannot use minus operator on %s value", v.Kind)
	}
	return Value{}, fmt.Errorf("unknown operator: %v", n.Op)
}

// evalBinary evaluates left eagerly, short-circuits and/or on the
// left operand's truthiness (returning the operand itself, not a
// normalized boolean), and otherwise evaluates right and applies the
// operator. The short-circuit matters beyond performance: the right
// operand may contain a division by zero, a host-function call, or an
// array comprehension, and none of those may run when the left
// operand settles the result.
func evalBinary(n *ast.BinaryOperation, env *Env) (Value, error) {
	left, err := Eval(n.Left, env)
	if err != nil {
		return Value{}, err
	}

	if n.Op == ast.And && !left.Truthy() {
		return left, nil
	}
	if n.Op == ast.Or && left.Truthy() {
		return left, nil
	}

	right, err := Eval(n.Right, env)
	if err != nil {
		return Value{}, err
	}
	return applyBinary(n.Op, left, right, env.Untrusted)
}

// stringGuardExempt lists the operators allowed to see a string on
// the left and a non-string on the right in untrusted mode: equality
// is defined across any kinds, and `in` compares the left value
// against a list. Everything else would be an implicit promotion or
// repetition and is blocked before dispatch, so e.g. `'x' * (1 << 32)`
// never materialises anything.
func stringGuardExempt(op ast.BinaryOp) bool {
	switch op {
	case ast.Equals, ast.NotEquals, ast.In:
		return true
	}
	return false
}

func applyBinary(op ast.BinaryOp, left, right Value, untrusted bool) (Value, error) {
	if untrusted && left.Kind == BytesKind && right.Kind != BytesKind && !stringGuardExempt(op) {
		return Value{}, fmt.Errorf("cannot use non-string right-value on a string in untrusted mode")
	}

	switch op {
	case ast.Add:
		return evalAdd(left, right, untrusted)
	case ast.Subtract:
		return numericOp(op, left, right,
			func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) },
			func(a, b float64) float64 { return a - b })
	case ast.Multiply:
		return numericOp(op, left, right,
			func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) },
			func(a, b float64) float64 { return a * b })
	case ast.Divide:
		return evalDivide(left, right)
	case ast.Modulo:
		if left.Kind != IntKind || right.Kind != IntKind {
			return Value{}, fmt.Errorf("cannot use modulo operator on %s and %s values", left.Kind, right.Kind)
		}
		if right.Int.Sign() == 0 {
			return Value{}, fmt.Errorf("modulo by zero")
		}
		return BigIntValue(new(big.Int).Rem(left.Int, right.Int)), nil
	case ast.Pow:
		return evalPow(left, right, untrusted)
	case ast.Equals:
		return BoolValue(left.Equal(right)), nil
	case ast.NotEquals:
		return BoolValue(!left.Equal(right)), nil
	case ast.GreaterThan:
		return compareOp(op, left, right, func(c int) bool { return c > 0 })
	case ast.GreaterThanOrEquals:
		return compareOp(op, left, right, func(c int) bool { return c >= 0 })
	case ast.LessThan:
		return compareOp(op, left, right, func(c int) bool { return c < 0 })
	case ast.LessThanOrEquals:
		return compareOp(op, left, right, func(c int) bool { return c <= 0 })
	case ast.And, ast.Or:
		// Short-circuiting already happened on the left operand; a
		// fully evaluated and/or yields its right operand as-is.
		return right, nil
	case ast.BAnd:
		return bitwiseOp(op, left, right, func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) })
	case ast.BOr:
		return bitwiseOp(op, left, right, func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) })
	case ast.BXor:
		return bitwiseOp(op, left, right, func(a, b *big.Int) *big.Int { return new(big.Int).Xor(a, b) })
	case ast.LShift:
		return evalLShift(left, right, untrusted)
	case ast.RShift:
		return evalRShift(left, right)
	case ast.In:
		return evalIn(left, right)
	}
	return Value{}, fmt.Errorf("unknown operator: %v", op)
}

// evalAdd concatenates byte strings and adds numbers. The untrusted
// length cap is checked against the combined input lengths before any
// concatenation happens, so an oversized result is never materialised.
func evalAdd(left, right Value, untrusted bool) (Value, error) {
	if left.Kind == BytesKind && right.Kind == BytesKind {
		if untrusted && len(left.Bytes)+len(right.Bytes) >= maxUntrustedStringLen {
			return Value{}, fmt.Errorf("string longer than allowed in untrusted mode")
		}
		out := make([]byte, 0, len(left.Bytes)+len(right.Bytes))
		out = append(out, left.Bytes...)
		out = append(out, right.Bytes...)
		return BytesValue(out), nil
	}
	return numericOp(ast.Add, left, right,
		func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) },
		func(a, b float64) float64 { return a + b })
}

func numericOp(op ast.BinaryOp, left, right Value, intOp func(a, b *big.Int) *big.Int, floatOp func(a, b float64) float64) (Value, error) {
	if !left.numeric() || !right.numeric() {
		return Value{}, fmt.Errorf("cannot use %s operator on %s and %s values", op, left.Kind, right.Kind)
	}
	if left.Kind == FloatKind || right.Kind == FloatKind {
		return FloatValue(floatOp(left.asFloat(), right.asFloat())), nil
	}
	return BigIntValue(intOp(left.Int, right.Int)), nil
}

func bitwiseOp(op ast.BinaryOp, left, right Value, intOp func(a, b *big.Int) *big.Int) (Value, error) {
	if left.Kind != IntKind || right.Kind != IntKind {
		return Value{}, fmt.Errorf("cannot use %s operator on %s and %s values", op, left.Kind, right.Kind)
	}
	return BigIntValue(intOp(left.Int, right.Int)), nil
}

// compareOp orders two values: integers exactly, mixed numerics
// through float conversion, byte strings lexicographically.
func compareOp(op ast.BinaryOp, left, right Value, verdict func(c int) bool) (Value, error) {
	if left.Kind == IntKind && right.Kind == IntKind {
		return BoolValue(verdict(left.Int.Cmp(right.Int))), nil
	}
	if left.numeric() && right.numeric() {
		a, b := left.asFloat(), right.asFloat()
		switch {
		case a < b:
			return BoolValue(verdict(-1)), nil
		case a > b:
			return BoolValue(verdict(1)), nil
		}
		return BoolValue(verdict(0)), nil
	}
	if left.Kind == BytesKind && right.Kind == BytesKind {
		return BoolValue(verdict(bytes.Compare(left.Bytes, right.Bytes))), nil
	}
	return Value{}, fmt.Errorf("cannot use %s operator on %s and %s values", op, left.Kind, right.Kind)
}

func evalDivide(left, right Value) (Value, error) {
	if !left.numeric() || !right.numeric() {
		return Value{}, fmt.Errorf("cannot use divide operator on %s and %s values", left.Kind, right.Kind)
	}
	if left.Kind == FloatKind || right.Kind == FloatKind {
		return FloatValue(left.asFloat() / right.asFloat()), nil
	}
	if right.Int.Sign() == 0 {
		return Value{}, fmt.Errorf("division by zero")
	}
	return BigIntValue(new(big.Int).Quo(left.Int, right.Int)), nil
}

// evalPow rejects untrusted pow before looking at the operands: the
// check must not depend on their magnitude, and the linter's own
// rejection cannot be relied on by a caller that skipped linting.
func evalPow(left, right Value, untrusted bool) (Value, error) {
	if untrusted {
		return Value{}, fmt.Errorf("pow operation (**) is disabled in untrusted mode")
	}
	if !left.numeric() || !right.numeric() {
		return Value{}, fmt.Errorf("cannot use pow operator on %s and %s values", left.Kind, right.Kind)
	}
	if left.Kind == FloatKind || right.Kind == FloatKind || right.Int.Sign() < 0 {
		return FloatValue(math.Pow(left.asFloat(), right.asFloat())), nil
	}
	return BigIntValue(new(big.Int).Exp(left.Int, right.Int, nil)), nil
}

func evalLShift(left, right Value, untrusted bool) (Value, error) {
	if left.Kind != IntKind || right.Kind != IntKind {
		return Value{}, fmt.Errorf("cannot use lshift operator on %s and %s values", left.Kind, right.Kind)
	}
	if untrusted && (right.Int.Cmp(big.NewInt(maxUntrustedShift)) > 0 || left.Int.CmpAbs(maxUntrustedShiftOperand) >= 0) {
		return Value{}, fmt.Errorf("lshift operation with too big values")
	}
	if right.Int.Sign() < 0 {
		return Value{}, fmt.Errorf("negative shift amount")
	}
	if !right.Int.IsUint64() {
		return Value{}, fmt.Errorf("shift amount too large")
	}
	return BigIntValue(new(big.Int).Lsh(left.Int, uint(right.Int.Uint64()))), nil
}

func evalRShift(left, right Value) (Value, error) {
	if left.Kind != IntKind || right.Kind != IntKind {
		return Value{}, fmt.Errorf("cannot use rshift operator on %s and %s values", left.Kind, right.Kind)
	}
	if right.Int.Sign() < 0 {
		return Value{}, fmt.Errorf("negative shift amount")
	}
	if !right.Int.IsUint64() {
		return Value{}, fmt.Errorf("shift amount too large")
	}
	return BigIntValue(new(big.Int).Rsh(left.Int, uint(right.Int.Uint64()))), nil
}

func evalIn(left, right Value) (Value, error) {
	if right.Kind != ListKind {
		return Value{}, fmt.Errorf("cannot use in operator on %s value", right.Kind)
	}
	for _, item := range right.List {
		if item.Equal(left) {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

func evalCall(n *ast.FunctionCall, env *Env) (Value, error) {
	fn, ok := env.Functions[n.Name]
	if !ok {
		return Value{}, fmt.Errorf("function not found: '%s'", n.Name)
	}
	args := make([]Value, len(n.Arguments))
	for i, arg := range n.Arguments {
		v, err := Eval(arg, env)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return fn(args)
}
