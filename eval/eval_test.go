// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

package eval

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleaner-bot/filterrules/parser"
)

func evalSource(t *testing.T, source string, env *Env) (Value, error) {
	t.Helper()
	node, err := parser.Parse([]byte(source))
	require.NoError(t, err)
	if env == nil {
		env = &Env{Untrusted: true}
	}
	return Eval(node, env)
}

func mustEval(t *testing.T, source string, env *Env) Value {
	t.Helper()
	v, err := evalSource(t, source, env)
	require.NoError(t, err)
	return v
}

func assertValue(t *testing.T, expected, got Value) {
	t.Helper()
	if !expected.Equal(got) {
		t.Fatalf("expected %+v, got %+v", expected, got)
	}
	assert.Equal(t, expected.Kind, got.Kind)
}

func TestEvalExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected Value
	}{
		{"123 + 456", IntValue(579)},
		{"(123)", IntValue(123)},
		{"0 ~ [0, 1]", BoolValue(true)},
		{"0 ~ [1]", BoolValue(false)},
		{"'b' ~ ['a', 'b']", BoolValue(true)},
		{"!0 ~ {[0, 1] == 1}", BoolValue(true)},
		{"1 == 1.0", BoolValue(true)},
		{"'ab' + 'cd'", BytesValue([]byte("abcd"))},
		{"[1, 2]", ListValue([]Value{IntValue(1), IntValue(2)})},
		{"{[1, 2] + 10}", ListValue([]Value{IntValue(11), IntValue(12)})},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assertValue(t, tt.expected, mustEval(t, tt.input, nil))
		})
	}
}

// The grammar has no precedence: chains evaluate as a strict left
// fold, and anything else must be spelled with parentheses.
func TestEvalNoPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1 + 2 * 3", 9},
		{"10 * 2 + 3", 23},
		{"(10 * 2) + 3", 23},
		{"10 * 5 - 3", 47},
		{"10 * (2 + 3)", 50},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assertValue(t, IntValue(tt.expected), mustEval(t, tt.input, nil))
		})
	}
}

func TestEvalMath(t *testing.T) {
	tests := []struct {
		op       string
		expected Value
	}{
		{"+", IntValue(579)},
		{"-", IntValue(333)},
		{"*", IntValue(56088)},
		{"/", IntValue(3)},
		{"%", IntValue(87)},
		{"==", BoolValue(false)},
		{"!=", BoolValue(true)},
		{">", BoolValue(true)},
		{">=", BoolValue(true)},
		{"<", BoolValue(false)},
		{"<=", BoolValue(false)},
		{"&", IntValue(72)},
		{"|", IntValue(507)},
		{"^", IntValue(435)},
		{"<<", BigIntValue(new(big.Int).Lsh(big.NewInt(456), 123))},
		{">>", IntValue(0)},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			env := &Env{Untrusted: false}
			assertValue(t, tt.expected, mustEval(t, fmt.Sprintf("456 %s 123", tt.op), env))
		})
	}
}

func TestEvalTrustedPow(t *testing.T) {
	env := &Env{Untrusted: false}
	assertValue(t, IntValue(1024), mustEval(t, "2 ** 10", env))
	assertValue(t, FloatValue(0.25), mustEval(t, "2.0 ** (0 - 2)", env))
}

func TestEvalUnary(t *testing.T) {
	tests := []struct {
		input    string
		expected Value
	}{
		{"! -42069", BoolValue(false)},
		{"~ -42069", IntValue(42068)},
		{"+ -42069", IntValue(-42069)},
		{"- -42069", IntValue(42069)},
		{"!0", BoolValue(true)},
		{"!''", BoolValue(true)},
		{"!'x'", BoolValue(false)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assertValue(t, tt.expected, mustEval(t, tt.input, nil))
		})
	}
}

func TestEvalVariable(t *testing.T) {
	env := &Env{Variables: map[string]Value{"true": BoolValue(true)}, Untrusted: true}
	assertValue(t, BoolValue(true), mustEval(t, "true", env))

	_, err := evalSource(t, "missing", env)
	require.Error(t, err)
	assert.EqualError(t, err, "variable not found: 'missing'")
}

func TestEvalFunctionCall(t *testing.T) {
	double := func(args []Value) (Value, error) {
		return BigIntValue(new(big.Int).Mul(args[0].Int, big.NewInt(2))), nil
	}
	env := &Env{Functions: Functions{"fn": double}, Untrusted: true}
	assertValue(t, IntValue(246), mustEval(t, "fn(123)", env))

	_, err := evalSource(t, "missing()", env)
	require.Error(t, err)
	assert.EqualError(t, err, "function not found: 'missing'")
}

func boom(args []Value) (Value, error) {
	return Value{}, errors.New("must not be evaluated")
}

func constFunc(v Value) func(args []Value) (Value, error) {
	return func(args []Value) (Value, error) { return v, nil }
}

// Short-circuited and/or return the deciding left operand itself and
// never evaluate the right; fully evaluated ones return the right
// operand as-is rather than a normalized boolean.
func TestEvalShortCircuit(t *testing.T) {
	env := &Env{
		Functions: Functions{"a": constFunc(BoolValue(false)), "b": boom},
		Untrusted: true,
	}
	assertValue(t, BoolValue(false), mustEval(t, "a() && b()", env))

	env = &Env{
		Functions: Functions{"a": constFunc(BoolValue(true)), "b": boom},
		Untrusted: true,
	}
	assertValue(t, BoolValue(true), mustEval(t, "a() || b()", env))

	env = &Env{
		Functions: Functions{"a": constFunc(BoolValue(true)), "b": constFunc(IntValue(1337))},
		Untrusted: true,
	}
	assertValue(t, IntValue(1337), mustEval(t, "a() && b()", env))

	env = &Env{
		Functions: Functions{"a": constFunc(BoolValue(false)), "b": constFunc(IntValue(1337))},
		Untrusted: true,
	}
	assertValue(t, IntValue(1337), mustEval(t, "a() || b()", env))
}

// A comprehension's right-hand side is evaluated lazily, at most
// once: an empty element list or a short-circuiting element never
// reaches the division by zero.
func TestEvalComprehensionShortCircuit(t *testing.T) {
	for _, input := range []string{
		"{[] == (1 / 0)}",
		"{[!0] || (1 / 0)}",
		"{[!1] && (1 / 0)}",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := evalSource(t, input, nil)
			assert.NoError(t, err)
		})
	}

	// Reached comprehension bodies do fail.
	_, err := evalSource(t, "{[1] + (1 / 0)}", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "division by zero")
}

func TestEvalComprehensionRHSOnce(t *testing.T) {
	calls := 0
	counting := func(args []Value) (Value, error) {
		calls++
		return IntValue(10), nil
	}
	env := &Env{Functions: Functions{"fn": counting}, Untrusted: true}
	v := mustEval(t, "{[1, 2, 3] + fn()}", env)
	assertValue(t, ListValue([]Value{IntValue(11), IntValue(12), IntValue(13)}), v)
	assert.Equal(t, 1, calls)
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := evalSource(t, "1 / 0", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "division by zero")

	_, err = evalSource(t, "1 % 0", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "modulo by zero")
}

func TestEvalDeterminism(t *testing.T) {
	node, err := parser.Parse([]byte("(1 + 2) * var ~ [9, 12]"))
	require.NoError(t, err)
	env := &Env{Variables: map[string]Value{"var": IntValue(3)}, Untrusted: true}
	first, err := Eval(node, env)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Eval(node, env)
		require.NoError(t, err)
		assertValue(t, first, again)
	}
}

func TestEvalUnknownNode(t *testing.T) {
	_, err := Eval(nil, &Env{Untrusted: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ast node")
}

func TestRuleDefaultsUntrusted(t *testing.T) {
	node, err := parser.Parse([]byte("2 ** 2"))
	require.NoError(t, err)

	rule := NewRule(node)
	assert.True(t, rule.Untrusted)
	_, err = rule.Evaluate(nil, nil)
	require.Error(t, err)

	rule.Untrusted = false
	v, err := rule.Evaluate(nil, nil)
	require.NoError(t, err)
	assertValue(t, IntValue(4), v)
}

func TestValueTruthy(t *testing.T) {
	assert.False(t, IntValue(0).Truthy())
	assert.True(t, IntValue(-1).Truthy())
	assert.False(t, FloatValue(0).Truthy())
	assert.True(t, FloatValue(0.1).Truthy())
	assert.False(t, BytesValue(nil).Truthy())
	assert.True(t, BytesValue([]byte("x")).Truthy())
	assert.False(t, BoolValue(false).Truthy())
	assert.True(t, BoolValue(true).Truthy())
	assert.False(t, ListValue(nil).Truthy())
	assert.True(t, ListValue([]Value{IntValue(0)}).Truthy())
}
