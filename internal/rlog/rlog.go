// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package rlog is a thin structured-logging wrapper around logrus,
// shared by the packages above the core (ruleset, schema,
// cmd/rulelint). The core packages (ast, lexer, parser, lint, eval)
// never import this package: they are pure functions and have nothing
// to log.
package rlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger *logrus.Logger
)

// L returns the package-wide logger, initialized lazily on first use
// with a JSON formatter and level taken from RULELINT_LOG_LEVEL (falls
// back to "info" on anything unrecognised).
func L() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stderr)
		level, err := logrus.ParseLevel(os.Getenv("RULELINT_LOG_LEVEL"))
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	})
	return logger
}

// With is a shorthand for L().WithFields, used throughout ruleset and
// schema to attach a consistent component field.
func With(component string) *logrus.Entry {
	return L().WithField("component", component)
}
