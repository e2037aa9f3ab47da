// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

package eval

import "github.com/cleaner-bot/filterrules/ast"

// Rule pairs a parsed expression with its trust mode. The same Rule
// may be evaluated any number of times against different bindings;
// evaluation never mutates the expression tree.
type Rule struct {
	Expr      ast.Node
	Untrusted bool
}

// NewRule wraps expr in untrusted mode, the default for any rule
// whose source text came from outside the host application.
func NewRule(expr ast.Node) Rule {
	return Rule{Expr: expr, Untrusted: true}
}

// Evaluate computes the rule against the given bindings.
func (r Rule) Evaluate(variables map[string]Value, functions Functions) (Value, error) {
	return Eval(r.Expr, &Env{
		Variables: variables,
		Functions: functions,
		Untrusted: r.Untrusted,
	})
}
