// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

package eval

import (
	"bytes"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleaner-bot/filterrules/parser"
)

// The untrusted caps must reject before any expensive computation
// happens; each of these completes well under a second.

func TestUntrustedPow(t *testing.T) {
	start := time.Now()

	_, err := evalSource(t, "2 ** 99999999999999", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "pow operation (**) is disabled in untrusted mode")

	assert.Less(t, time.Since(start), time.Second)
}

func TestUntrustedLShift(t *testing.T) {
	start := time.Now()

	v := mustEval(t, "1 << 128", nil)
	require.Equal(t, IntKind, v.Kind)
	assert.Zero(t, v.Int.Cmp(new(big.Int).Lsh(big.NewInt(1), 128)))

	_, err := evalSource(t, "1 << 99999999999999", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "lshift operation with too big values")

	_, err = evalSource(t, "(1 << 128) << 8", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "lshift operation with too big values")

	assert.Less(t, time.Since(start), time.Second)
}

func TestUntrustedStringMemory(t *testing.T) {
	start := time.Now()

	// String repetition through implicit promotion is cut off before
	// the right-hand magnitude matters.
	_, err := evalSource(t, "'x' * (1 << 32)", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "cannot use non-string right-value on a string in untrusted mode")

	_, err = evalSource(t, "'x' + 1", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "cannot use non-string right-value on a string in untrusted mode")

	// Repeated concatenation trips the length cap once the combined
	// result would reach 64 KiB.
	source := strings.Repeat("x + ", 9) + "x"
	env := &Env{
		Variables: map[string]Value{"x": BytesValue(bytes.Repeat([]byte("x"), 10000))},
		Untrusted: true,
	}
	_, err = evalSource(t, source, env)
	require.Error(t, err)
	assert.EqualError(t, err, "string longer than allowed in untrusted mode")

	assert.Less(t, time.Since(start), time.Second)
}

func TestUntrustedConcatBelowCap(t *testing.T) {
	env := &Env{
		Variables: map[string]Value{"x": BytesValue(bytes.Repeat([]byte("x"), 10000))},
		Untrusted: true,
	}
	v := mustEval(t, "x + x", env)
	require.Equal(t, BytesKind, v.Kind)
	assert.Len(t, v.Bytes, 20000)
}

func TestTrustedModeSkipsCaps(t *testing.T) {
	env := &Env{
		Variables: map[string]Value{"x": BytesValue(bytes.Repeat([]byte("x"), 40000))},
		Untrusted: false,
	}
	v := mustEval(t, "x + x", env)
	require.Equal(t, BytesKind, v.Kind)
	assert.Len(t, v.Bytes, 80000)

	w := mustEval(t, "1 << 200", env)
	require.Equal(t, IntKind, w.Kind)
	assert.Zero(t, w.Int.Cmp(new(big.Int).Lsh(big.NewInt(1), 200)))
}

// The evaluator enforces pow rejection on its own even though the
// linter already refuses untrusted pow, so a caller that skipped
// linting is still covered.
func TestUntrustedPowWithoutLint(t *testing.T) {
	node, err := parser.Parse([]byte("2 ** 2"))
	require.NoError(t, err)
	_, err = Eval(node, &Env{Untrusted: true})
	require.Error(t, err)
	assert.EqualError(t, err, "pow operation (**) is disabled in untrusted mode")
}
