// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package ruleset compiles and caches named rules for a host
// application that re-validates the same rule set repeatedly (every
// incoming request, every config poll). It sits above lint and eval
// and is shared across goroutines; neither of those core packages
// needs to know it exists.
package ruleset

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/jellydator/ttlcache/v3"
	"github.com/skydive-project/go-debouncer"
	"go.uber.org/atomic"

	"github.com/cleaner-bot/filterrules/ast"
	"github.com/cleaner-bot/filterrules/eval"
	"github.com/cleaner-bot/filterrules/internal/rlog"
	"github.com/cleaner-bot/filterrules/lint"
	"github.com/cleaner-bot/filterrules/parser"
)

const (
	astCacheSize       = 4096
	negativeCacheTTL   = 5 * time.Minute
	reloadDebounceWait = 250 * time.Millisecond
)

// Rule is one named, source-backed rule entry.
type Rule struct {
	Name   string
	Source string
}

// compiled is the cache value for a source string that parsed
// successfully: its AST plus a stable identity stamp, so two
// observations of identical source text within the process lifetime
// share one cache slot.
type compiled struct {
	id   uuid.UUID
	node ast.Node
}

// Store is a cache of compiled rules plus a negative cache of rules
// already known to fail linting, backed by an LRU and a TTL cache
// respectively so neither grows unbounded nor goes stale forever.
type Store struct {
	mu sync.RWMutex

	asts     *lru.Cache[string, compiled]
	badLint  *ttlcache.Cache[string, string]
	debounce *debouncer.Debouncer

	hits   atomic.Uint64
	misses atomic.Uint64

	rules     []Rule
	variables lint.Variables
	functions lint.Functions
	untrusted bool

	reload func() ([]Rule, error)
}

// NewStore builds an empty Store. reload is invoked by Reload (after
// debouncing) to fetch the current rule set from wherever the host
// keeps it; NewStore never calls it itself.
func NewStore(variables lint.Variables, functions lint.Functions, untrusted bool, reload func() ([]Rule, error)) (*Store, error) {
	asts, err := lru.New[string, compiled](astCacheSize)
	if err != nil {
		return nil, err
	}
	badLint := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](negativeCacheTTL),
	)
	go badLint.Start()

	s := &Store{
		asts:      asts,
		badLint:   badLint,
		variables: variables,
		functions: functions,
		untrusted: untrusted,
		reload:    reload,
	}
	s.debounce = debouncer.New(reloadDebounceWait, s.reloadNow)
	s.debounce.Start()
	return s, nil
}

// sourceKey hashes source text into the cache key so two rules with
// identical text (a common occurrence across near-duplicate filter
// configs) share one compiled AST regardless of name.
func sourceKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return string(sum[:])
}

// Compile parses source, consulting and populating the AST cache.
// Compile itself does not cache parse errors: a failed parse adds
// nothing to the AST cache and counts as a miss on every call. (Lint
// records a parse error's message in its negative cache.)
func (s *Store) Compile(source string) (ast.Node, error) {
	key := sourceKey(source)

	s.mu.RLock()
	if c, ok := s.asts.Get(key); ok {
		s.mu.RUnlock()
		s.hits.Inc()
		return c.node, nil
	}
	s.mu.RUnlock()

	s.misses.Inc()
	node, err := parser.Parse([]byte(source))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.asts.Add(key, compiled{id: uuid.New(), node: node})
	s.mu.Unlock()
	return node, nil
}

// Lint compiles and lints source, consulting the negative cache first
// so a rule already known to be broken doesn't re-run the type
// checker on every call.
func (s *Store) Lint(source string) *string {
	key := sourceKey(source)
	if item := s.badLint.Get(key); item != nil {
		msg := item.Value()
		return &msg
	}

	node, err := s.Compile(source)
	if err != nil {
		msg := err.Error()
		s.badLint.Set(key, msg, ttlcache.DefaultTTL)
		return &msg
	}

	if msg := lint.Lint(node, s.variables, s.functions, s.untrusted); msg != nil {
		s.badLint.Set(key, *msg, ttlcache.DefaultTTL)
		return msg
	}
	return nil
}

// Evaluate compiles source (through the AST cache) and evaluates it
// against the given bindings under the Store's trust mode.
func (s *Store) Evaluate(source string, variables map[string]eval.Value, functions eval.Functions) (eval.Value, error) {
	node, err := s.Compile(source)
	if err != nil {
		return eval.Value{}, err
	}
	return eval.Rule{Expr: node, Untrusted: s.untrusted}.Evaluate(variables, functions)
}

// LintAll lints every known rule and aggregates every failure into a
// single multierror, the batch-mode counterpart to Lint's
// first-error-wins contract.
func (s *Store) LintAll() error {
	s.mu.RLock()
	rules := append([]Rule(nil), s.rules...)
	s.mu.RUnlock()

	var result *multierror.Error
	for _, r := range rules {
		if msg := s.Lint(r.Source); msg != nil {
			result = multierror.Append(result, &RuleError{Name: r.Name, Message: *msg})
		}
	}
	return result.ErrorOrNil()
}

// RuleError names which rule failed, for LintAll's aggregated report.
type RuleError struct {
	Name    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Name + ": " + e.Message
}

// Reload schedules a recompilation pass via the debouncer; a burst of
// calls within reloadDebounceWait collapses into one reloadNow.
func (s *Store) Reload() {
	s.debounce.Call()
}

func (s *Store) reloadNow() {
	rules, err := s.reload()
	if err != nil {
		rlog.With("ruleset").WithError(err).Error("reload failed")
		return
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	rlog.With("ruleset").WithField("count", len(rules)).Info("ruleset reloaded")
}

// Stats reports the AST cache's hit/miss counters since Store creation.
type Stats struct {
	Hits   uint64
	Misses uint64
}

func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Close stops the debouncer and the negative cache's background
// eviction goroutine.
func (s *Store) Close() {
	s.debounce.Stop()
	s.badLint.Stop()
}
