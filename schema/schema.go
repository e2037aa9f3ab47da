// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// Copyright 2026-present the filterrules authors.

// Package schema loads the variable/function type declarations a host
// application exposes to rule authors, from a YAML or JSON document,
// and turns them into the lint.Variables/lint.Functions maps the core
// linter consumes. Loading is the only place user-facing schema
// authoring errors are reported; lint.Lint itself trusts its inputs.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/cleaner-bot/filterrules/internal/rlog"
	"github.com/cleaner-bot/filterrules/lint"
)

// supportedVersions is the range of schema_version values this build
// of the linter understands. Bump the constraint, not just the
// documents, when the document shape changes in a backward-incompatible
// way.
var supportedVersions = mustConstraint("^1.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// TypeSpec is the raw, document-level spelling of a type: either a
// scalar name ("int", "float", "bytes", "bool") or a list, expressed
// as {"list": <TypeSpec>} / an untyped {"list": null}.
type TypeSpec struct {
	Scalar string    `yaml:"-" json:"-"`
	List   *TypeSpec `yaml:"list,omitempty" json:"list,omitempty"`
}

func (t *TypeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Scalar = value.Value
		return nil
	}
	var wrapper struct {
		List *TypeSpec `yaml:"list"`
	}
	if err := value.Decode(&wrapper); err != nil {
		return err
	}
	t.List = wrapper.List
	if t.List == nil {
		t.List = &TypeSpec{}
	}
	return nil
}

func (t *TypeSpec) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		t.Scalar = scalar
		return nil
	}
	var wrapper struct {
		List *TypeSpec `json:"list"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	t.List = wrapper.List
	if t.List == nil {
		t.List = &TypeSpec{}
	}
	return nil
}

func (t *TypeSpec) resolve() (lint.Type, error) {
	if t.List != nil {
		if t.List.Scalar == "" && t.List.List == nil {
			return lint.UntypedList, nil
		}
		elem, err := t.List.resolve()
		if err != nil {
			return lint.Type{}, err
		}
		return lint.List(elem), nil
	}
	switch t.Scalar {
	case "int":
		return lint.Int, nil
	case "float":
		return lint.Float, nil
	case "bytes":
		return lint.Bytes, nil
	case "bool":
		return lint.Bool, nil
	default:
		return lint.Type{}, fmt.Errorf("unknown schema type: %q", t.Scalar)
	}
}

// FunctionSpec is the document-level spelling of a function signature.
type FunctionSpec struct {
	Args   []TypeSpec `yaml:"args" json:"args"`
	Return TypeSpec   `yaml:"return" json:"return"`
}

// Document is the raw, as-parsed schema document before its types are
// resolved into lint.Variables/lint.Functions.
type Document struct {
	SchemaVersion string                  `yaml:"schema_version" json:"schema_version"`
	Variables     map[string]TypeSpec     `yaml:"variables" json:"variables"`
	Functions     map[string]FunctionSpec `yaml:"functions" json:"functions"`
}

// Resolved is a Document with its types checked and converted.
type Resolved struct {
	Variables lint.Variables
	Functions lint.Functions
}

// LoadYAML parses a YAML schema document and resolves it.
func LoadYAML(data []byte) (*Resolved, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema yaml: %w", err)
	}
	return resolve(&doc)
}

// metaSchema constrains the shape of a JSON schema document before it
// is unmarshalled into Document, catching authoring mistakes (a typo
// in "variables", a function with no "return") with a precise
// JSON-pointer path rather than a generic unmarshal error.
const metaSchema = `{
  "type": "object",
  "required": ["schema_version"],
  "additionalProperties": false,
  "properties": {
    "schema_version": {"type": "string"},
    "variables": {"type": "object"},
    "functions": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["args", "return"],
        "properties": {
          "args": {"type": "array"},
          "return": {}
        }
      }
    }
  }
}`

// LoadJSON validates a JSON schema document against the package's
// meta-schema, then resolves it. Returns the aggregated validation
// errors as a single error if the document doesn't conform.
func LoadJSON(data []byte) (*Resolved, error) {
	schemaLoader := gojsonschema.NewStringLoader(metaSchema)
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validating schema json: %w", err)
	}
	if !result.Valid() {
		rlog.With("schema").WithField("errors", len(result.Errors())).Warn("schema document failed validation")
		msg := "invalid schema document:"
		for _, e := range result.Errors() {
			msg += "\n  - " + e.String()
		}
		return nil, fmt.Errorf("%s", msg)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema json: %w", err)
	}
	return resolve(&doc)
}

func resolve(doc *Document) (*Resolved, error) {
	v, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid schema_version %q: %w", doc.SchemaVersion, err)
	}
	if !supportedVersions.Check(v) {
		return nil, fmt.Errorf("unsupported schema_version %q, expected %s", doc.SchemaVersion, supportedVersions.String())
	}

	variables := lint.Variables{}
	for name, spec := range doc.Variables {
		spec := spec
		t, err := spec.resolve()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		variables[name] = t
	}

	functions := lint.Functions{}
	for name, spec := range doc.Functions {
		args := make([]lint.Type, len(spec.Args))
		for i, a := range spec.Args {
			a := a
			t, err := a.resolve()
			if err != nil {
				return nil, fmt.Errorf("function %q arg %d: %w", name, i, err)
			}
			args[i] = t
		}
		ret, err := spec.Return.resolve()
		if err != nil {
			return nil, fmt.Errorf("function %q return: %w", name, err)
		}
		functions[name] = lint.FunctionSignature{Args: args, Return: ret}
	}

	rlog.With("schema").WithField("variables", len(variables)).WithField("functions", len(functions)).Debug("schema resolved")
	return &Resolved{Variables: variables, Functions: functions}, nil
}
