// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Command rulelint reads a schema document and a rule file, lints
// every rule against the schema, and prints a report. It is tooling
// around the library, not part of the core language surface.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cleaner-bot/filterrules/internal/rlog"
	"github.com/cleaner-bot/filterrules/lint"
	"github.com/cleaner-bot/filterrules/parser"
	"github.com/cleaner-bot/filterrules/schema"
)

var (
	schemaPath string
	untrusted  bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulelint [rule-file]",
		Short: "Lint filter rules against a schema document",
		Args:  cobra.ExactArgs(1),
		RunE:  runLint,
	}

	flags := cmd.Flags()
	flags.StringVar(&schemaPath, "schema", "", "path to the schema document (YAML or JSON)")
	flags.BoolVar(&untrusted, "untrusted", true, "lint rules under the untrusted resource policy")
	_ = cmd.MarkFlagRequired("schema")
	pflag.CommandLine.AddFlagSet(flags)

	return cmd
}

func runLint(cmd *cobra.Command, args []string) error {
	log := rlog.With("cmd/rulelint")

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	var resolved *schema.Resolved
	if strings.HasSuffix(schemaPath, ".json") {
		resolved, err = schema.LoadJSON(schemaData)
	} else {
		resolved, err = schema.LoadYAML(schemaData)
	}
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	rules, err := readRules(args[0])
	if err != nil {
		return fmt.Errorf("reading rules: %w", err)
	}

	failed := 0
	for _, rule := range rules {
		node, err := parser.Parse([]byte(rule))
		if err != nil {
			failed++
			fmt.Printf("FAIL %q: %s\n", rule, err)
			continue
		}
		if msg := lint.Lint(node, resolved.Variables, resolved.Functions, untrusted); msg != nil {
			failed++
			fmt.Printf("FAIL %q: %s\n", rule, *msg)
			continue
		}
		fmt.Printf("OK   %q\n", rule)
	}

	log.WithField("total", len(rules)).WithField("failed", failed).Info("lint run complete")
	if failed > 0 {
		return fmt.Errorf("%d of %d rules failed linting", failed, len(rules))
	}
	return nil
}

// readRules reads one rule expression per non-blank line; lines whose
// first non-space character is '#' are skipped.
func readRules(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return rules, scanner.Err()
}
