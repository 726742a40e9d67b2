package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

type Effect string

const (
	EffectNegate Effect = "negate"
	EffectHalve  Effect = "halve"
)

type Rule struct {
	Keyword string `yaml:"keyword"`
	Effect  Effect `yaml:"effect"`
}

func (r Rule) apply(v float64) float64 {
	switch r.Effect {
	case EffectNegate:
		if v > 0 {
			return -v
		}
		return v
	case EffectHalve:
		return v / 2
	}
	return v
}

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleTable is an ordered, immutable keyword table.
type RuleTable struct {
	rules  []Rule
	folded []string
}

func LoadRules(path string) (*RuleTable, error) {
	raw := defaultRulesYAML
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read scoring rules: %w", err)
		}
		raw = b
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (*RuleTable, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse scoring rules: %w", err)
	}
	t := &RuleTable{}
	fold := cases.Fold()
	for i, r := range doc.Rules {
		r.Keyword = strings.TrimSpace(r.Keyword)
		if r.Keyword == "" {
			return nil, fmt.Errorf("rule %d: empty keyword", i)
		}
		switch r.Effect {
		case EffectNegate, EffectHalve:
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown effect %q", i, r.Keyword, r.Effect)
		}
		t.rules = append(t.rules, r)
		t.folded = append(t.folded, fold.String(r.Keyword))
	}
	return t, nil
}

// Match returns the first rule whose keyword occurs in description.
func (t *RuleTable) Match(description string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	d := cases.Fold().String(description)
	for i, kw := range t.folded {
		if strings.Contains(d, kw) {
			return t.rules[i], true
		}
	}
	return Rule{}, false
}

func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
