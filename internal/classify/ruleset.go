package classify

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet is returned when a rule file fails validation.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// RuleSet is a taxonomy plus the rules that target it.
type RuleSet struct {
	Taxonomy *model.Taxonomy      `yaml:"-"`
	Rules    []model.CategoryRule `yaml:"rules" validate:"required,min=1,dive"`
}

type ruleFile struct {
	Taxonomy []model.Category     `yaml:"taxonomy" validate:"dive"`
	Rules    []model.CategoryRule `yaml:"rules"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the built-in taxonomy and rule set.
func Default() *RuleSet {
	rs, err := NewRuleSet(DefaultTaxonomy(), DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("built-in rule set is invalid: %v", err))
	}
	return rs
}

// NewRuleSet validates rules against a taxonomy. Rule types are inferred
// when missing and target placements are rewritten with the taxonomy's
// spelling.
func NewRuleSet(categories []model.Category, rules []model.CategoryRule) (*RuleSet, error) {
	tax, err := model.NewTaxonomy(categories)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	rs := &RuleSet{Taxonomy: tax, Rules: make([]model.CategoryRule, len(rules))}
	copy(rs.Rules, rules)

	if err := validate.Struct(rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	var problems []string
	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		r.Order = i

		key := strings.ToLower(strings.TrimSpace(r.Name))
		if seen[key] {
			problems = append(problems, fmt.Sprintf("rule %q: duplicate name", r.Name))
		}
		seen[key] = true

		if r.Type == "" {
			r.Type = model.RuleTypeKeyword
			if len(r.Brands) > 0 {
				r.Type = model.RuleTypeBrand
			}
		}
		switch r.Type {
		case model.RuleTypeBrand:
			if len(r.Brands) == 0 {
				problems = append(problems, fmt.Sprintf("rule %q: brand rule without brands", r.Name))
			}
		case model.RuleTypeKeyword:
			if len(r.Include) == 0 {
				problems = append(problems, fmt.Sprintf("rule %q: keyword rule without include keywords", r.Name))
			}
		}

		target, ok := tax.Canonical(r.Target)
		if !ok || target.IsZero() {
			problems = append(problems, fmt.Sprintf("rule %q: target %s is not in the taxonomy", r.Name, r.Target))
		}
		r.Target = target

		if r.When != nil {
			when, ok := tax.Canonical(*r.When)
			if !ok {
				problems = append(problems, fmt.Sprintf("rule %q: scope %s is not in the taxonomy", r.Name, *r.When))
			}
			r.When = &when
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w:\n  %s", ErrInvalidRuleSet, strings.Join(problems, "\n  "))
	}
	return rs, nil
}

// LoadFile reads a YAML rule file. A file without a taxonomy section uses
// the built-in taxonomy.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule document.
func Parse(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	categories := f.Taxonomy
	if len(categories) == 0 {
		categories = DefaultTaxonomy()
	}
	return NewRuleSet(categories, f.Rules)
}

// Load returns the rule set at path, or the built-in one when path is empty.
func Load(path string) (*RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
