package healer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/healer/core"
)

// FixRule is one entry of the deterministic fix table: when an open error
// in Category carries Substring in its message, Fix applies with a fixed
// confidence. No learning is involved.
type FixRule struct {
	Category   core.Category `yaml:"category"`
	Substring  string        `yaml:"substring"`
	Fix        string        `yaml:"fix"`
	Confidence float64       `yaml:"confidence"`
}

// FixTable holds the deterministic rules in match order.
type FixTable struct {
	Rules []FixRule `yaml:"rules"`
}

// DefaultFixTable returns the built-in deterministic fixes.
func DefaultFixTable() *FixTable {
	return &FixTable{Rules: []FixRule{
		{core.CategoryDependency, "cannot find module", "install the missing module from the lockfile", 0.9},
		{core.CategoryDependency, "version conflict", "pin the conflicting dependency", 0.8},
		{core.CategoryBuild, "cannot find module", "install the missing module and rebuild", 0.9},
		{core.CategoryBuild, "syntax error", "revert to the last building revision", 0.7},
		{core.CategoryNetwork, "timeout", "retry with exponential backoff", 0.85},
		{core.CategoryNetwork, "connection refused", "restart the unreachable endpoint", 0.75},
		{core.CategoryAuth, "token expired", "refresh the access token", 0.9},
		{core.CategoryAuth, "unauthorized", "re-issue credentials with required scopes", 0.7},
		{core.CategoryRuntime, "nil pointer", "guard the dereference and restart", 0.6},
		{core.CategoryRuntime, "out of memory", "restart with a higher memory limit", 0.65},
		{core.CategoryPerformance, "slow query", "apply the prepared index migration", 0.6},
		{core.CategoryIntegration, "schema mismatch", "re-sync the integration contract", 0.7},
	}}
}

// LoadFixTable loads rules from a YAML file; an empty path or a missing
// file falls back to the built-in table.
func LoadFixTable(path string) (*FixTable, error) {
	if path == "" {
		return DefaultFixTable(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultFixTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fix table %s: %w", path, err)
	}

	var table FixTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse fix table %s: %w", path, err)
	}
	for _, rule := range table.Rules {
		if _, err := core.ParseCategory(string(rule.Category)); err != nil {
			return nil, fmt.Errorf("fix table %s: %w", path, err)
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			return nil, fmt.Errorf("fix table %s: rule %q confidence %.3f out of [0,1]", path, rule.Substring, rule.Confidence)
		}
	}
	return &table, nil
}

// Match finds the first rule matching the record's category and message.
func (t *FixTable) Match(rec core.ErrorRecord) (FixRule, bool) {
	msg := strings.ToLower(rec.Message)
	for _, rule := range t.Rules {
		if rule.Category == rec.Category && strings.Contains(msg, strings.ToLower(rule.Substring)) {
			return rule, true
		}
	}
	return FixRule{}, false
}

// humanActions are the static per-category escalation hints handed to a
// human when the ladder is exhausted.
var humanActions = map[core.Category]string{
	core.CategoryRuntime:     "inspect recent stack traces and roll back the last deploy if they correlate",
	core.CategoryAuth:        "verify identity provider health and rotate the affected credentials manually",
	core.CategoryBuild:       "reproduce the build locally and bisect the breaking change",
	core.CategoryIntegration: "compare the integration contract with the partner's current API schema",
	core.CategoryPerformance: "profile the hot path and review recent query plan changes",
	core.CategoryDependency:  "audit the dependency tree for conflicting or yanked versions",
	core.CategoryNetwork:     "check upstream connectivity, DNS, and firewall rules for the affected host",
}

// HumanAction returns the escalation hint for a category.
func HumanAction(category core.Category) string {
	if hint, ok := humanActions[category]; ok {
		return hint
	}
	return "triage the error manually; no automated guidance is available for this category"
}
