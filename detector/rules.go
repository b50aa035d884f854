package detector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/healer/core"
)

// Rules configure the scanners: recommendation substrings and the
// keywords that widen each category scan.
type Rules struct {
	Recommendations []recommendationRule       `yaml:"recommendations"`
	Keywords        map[core.Category][]string `yaml:"keywords"`
}

// DefaultRules returns the built-in scanner rules.
func DefaultRules() Rules {
	return Rules{Recommendations: defaultRules, Keywords: categoryKeywords}
}

// LoadRules reads scanner rules from a YAML file. An empty path or a
// missing file yields the built-in rules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("read detector rules %s: %w", path, err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse detector rules %s: %w", path, err)
	}
	for category := range rules.Keywords {
		if _, err := core.ParseCategory(string(category)); err != nil {
			return Rules{}, fmt.Errorf("detector rules %s: %w", path, err)
		}
	}
	for i, rule := range rules.Recommendations {
		if rule.Substring == "" || rule.Recommendation == "" {
			return Rules{}, fmt.Errorf("detector rules %s: recommendation %d is incomplete", path, i)
		}
	}
	if len(rules.Recommendations) == 0 {
		rules.Recommendations = defaultRules
	}
	if len(rules.Keywords) == 0 {
		rules.Keywords = categoryKeywords
	}
	return rules, nil
}
