package recommend

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// TemplateKind names the half of a recommendation a rule renders.
type TemplateKind string

const (
	KindReason TemplateKind = "reason"
	KindAction TemplateKind = "action"
)

// TemplateRule is one template text with the conditions under which it applies.
// Percentages are fractions of capacity; nil bounds and an empty trend match anything.
type TemplateRule struct {
	Level    domain.RiskLevel `yaml:"level"`
	Kind     TemplateKind     `yaml:"kind"`
	Text     string           `yaml:"text"`
	MinPct   *float64         `yaml:"min_pct,omitempty"`
	MaxPct   *float64         `yaml:"max_pct,omitempty"`
	Trend    domain.Trend     `yaml:"trend,omitempty"`
	Priority int              `yaml:"priority"`
	Disabled bool             `yaml:"disabled,omitempty"`
}

// Matches reports whether the rule applies to the given verdict attributes.
func (r TemplateRule) Matches(level domain.RiskLevel, pct float64, trend domain.Trend) bool {
	switch {
	case r.Disabled, r.Level != level:
		return false
	case r.MinPct != nil && pct < *r.MinPct:
		return false
	case r.MaxPct != nil && pct > *r.MaxPct:
		return false
	case r.Trend != "" && r.Trend != trend:
		return false
	}
	return true
}

// RuleSet is an in-memory TemplateStore.
type RuleSet []TemplateRule

// Template walks the matching rules in ascending priority; for each kind the last one
// seen wins, so the highest priority text is used. ok is true when any rule matched.
func (rs RuleSet) Template(_ context.Context, level domain.RiskLevel, pct float64, trend domain.Trend) (domain.Template, bool, error) {
	matched := make([]TemplateRule, 0, 2)
	for _, r := range rs {
		if r.Matches(level, pct, trend) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return domain.Template{}, false, nil
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })

	var tpl domain.Template
	for _, r := range matched {
		switch r.Kind {
		case KindReason:
			tpl.Reason = r.Text
		case KindAction:
			tpl.Action = r.Text
		}
	}
	return tpl, true, nil
}

// Validate rejects rules with an unknown level or kind.
func (rs RuleSet) Validate() error {
	for i, r := range rs {
		if r.Level.Severity() == 0 {
			return fmt.Errorf("template %d: unknown level %q", i, r.Level)
		}
		if r.Kind != KindReason && r.Kind != KindAction {
			return fmt.Errorf("template %d: unknown kind %q", i, r.Kind)
		}
		if r.MinPct != nil && r.MaxPct != nil && *r.MinPct > *r.MaxPct {
			return fmt.Errorf("template %d: min_pct %g above max_pct %g", i, *r.MinPct, *r.MaxPct)
		}
	}
	return nil
}

type rulesFile struct {
	Templates RuleSet `yaml:"templates"`
}

// ParseRules decodes a `templates:` YAML document.
func ParseRules(data []byte) (RuleSet, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := f.Templates.Validate(); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return f.Templates, nil
}

// LoadRules reads a template file from disk.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseRules(data)
}
