// Package rules loads and validates compliance check definitions from YAML.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/andrej220/secuaudit/pkg/audit"
)

var (
	ErrNoRules   = errors.New("no rules defined")
	ErrUnknownID = errors.New("unknown rule id")
)

var (
	validate  = validator.New()
	ruleIDPat = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

func init() {
	_ = validate.RegisterValidation("ruleid", validateRuleID)
}

func validateRuleID(fl validator.FieldLevel) bool {
	return ruleIDPat.MatchString(fl.Field().String())
}

// LoadFile reads rules from a YAML file.
func LoadFile(path string) ([]audit.Check, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	checks, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return checks, nil
}

// Parse decodes either a top-level list of rules or a mapping with a "rules" key.
func Parse(data []byte) ([]audit.Check, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, ErrNoRules
	}

	var checks []audit.Check
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&checks); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Rules []audit.Check `yaml:"rules"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
		checks = wrapped.Rules
	default:
		return nil, fmt.Errorf("decode rules: expected a list of rules at line %d", root.Line)
	}

	if err := Validate(checks); err != nil {
		return nil, err
	}
	return checks, nil
}

// Validate checks required fields, id format and id uniqueness.
func Validate(checks []audit.Check) error {
	if len(checks) == 0 {
		return ErrNoRules
	}
	seen := make(map[string]int, len(checks))
	for i, c := range checks {
		if err := validate.Struct(c); err != nil {
			return fmt.Errorf("rule #%d (id %q): %w", i+1, c.ID, err)
		}
		if first, dup := seen[c.ID]; dup {
			return fmt.Errorf("rule #%d: duplicate id %q, first defined as rule #%d", i+1, c.ID, first+1)
		}
		seen[c.ID] = i
	}
	return nil
}

// Filter keeps the checks whose id is listed, preserving file order.
// An empty ids list keeps everything.
func Filter(checks []audit.Check, ids []string) ([]audit.Check, error) {
	if len(ids) == 0 {
		return checks, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}
	var out []audit.Check
	for _, c := range checks {
		if _, ok := want[c.ID]; ok {
			want[c.ID] = true
			out = append(out, c)
		}
	}
	for _, id := range ids {
		if !want[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
		}
	}
	return out, nil
}
