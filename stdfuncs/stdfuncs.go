// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package stdfuncs is a small, optional library of example
// host-supplied functions for a filter-rule/moderation use case. The
// host application that actually supplies bindings to a rule's
// Functions map is out of scope for the core language, so nothing in
// this package is imported by ast, lexer, parser, lint, or eval; it
// only demonstrates the binding contract those packages expect.
package stdfuncs

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/cleaner-bot/filterrules/eval"
	"github.com/cleaner-bot/filterrules/lint"
)

// PublicSuffix returns the registrable domain (eTLD+1) of domain, or
// the input unchanged if no public suffix rule matches it.
func PublicSuffix(domain string) string {
	d, err := publicsuffix.Parse(domain)
	if err != nil {
		return domain
	}
	return d.SLD + "." + d.TLD
}

// CIDRContains reports whether ip falls within cidr. The candidate
// address is normalized through a layers.IPv4 endpoint the way a
// gopacket-based packet pipeline would address a host, rather than
// comparing the parsed net.IP directly. An IPv4-mapped IPv6 address
// (::ffff:a.b.c.d) is accepted as its IPv4 form; any other IPv6
// address is an error.
func CIDRContains(cidr, ip string) (bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return false, fmt.Errorf("invalid IP %q", ip)
	}
	v4 := addr.To4()
	if v4 == nil {
		return false, fmt.Errorf("CIDRContains only supports IPv4 addresses, got %q", ip)
	}
	endpoint := layers.NewIPEndpoint(v4)
	normalized := net.IP(endpoint.Raw())
	return network.Contains(normalized), nil
}

// PublicSuffixSignature is the lint.FunctionSignature a schema author
// should register alongside PublicSuffixFunc.
var PublicSuffixSignature = lint.FunctionSignature{Args: []lint.Type{lint.Bytes}, Return: lint.Bytes}

// PublicSuffixFunc adapts PublicSuffix to the eval.Functions calling
// convention: a single Bytes argument in, a single Bytes result out.
func PublicSuffixFunc(args []eval.Value) (eval.Value, error) {
	return eval.BytesValue([]byte(PublicSuffix(string(args[0].Bytes)))), nil
}

// CIDRContainsSignature is the lint.FunctionSignature a schema author
// should register alongside CIDRContainsFunc.
var CIDRContainsSignature = lint.FunctionSignature{Args: []lint.Type{lint.Bytes, lint.Bytes}, Return: lint.Bool}

// CIDRContainsFunc adapts CIDRContains to the eval.Functions calling
// convention.
func CIDRContainsFunc(args []eval.Value) (eval.Value, error) {
	ok, err := CIDRContains(string(args[0].Bytes), string(args[1].Bytes))
	if err != nil {
		return eval.Value{}, err
	}
	return eval.BoolValue(ok), nil
}
