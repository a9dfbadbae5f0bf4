// Package classify maps product text onto storefront categories using a
// declarative, prioritized rule list.
package classify

import (
	"fmt"
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/textnorm"
)

// Decision is the placement a rule assigned to a product.
type Decision struct {
	Placement model.Placement
	Rule      string
	Matched   string
	Priority  int
}

// Reason describes the decision for mutation logs.
func (d Decision) Reason() string {
	return fmt.Sprintf("rule %q (priority %d) matched %q", d.Rule, d.Priority, d.Matched)
}

type compiledRule struct {
	when    *model.Placement
	name    string
	target  model.Placement
	include []string
	exclude []string
	brands  []string
	prio    int
	order   int
}

// Classifier evaluates products against a rule set. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	norm  textnorm.Normalizer
	rules []compiledRule
}

// NewClassifier compiles a validated rule set.
func NewClassifier(rs *RuleSet, norm textnorm.Normalizer) *Classifier {
	c := &Classifier{norm: norm, rules: make([]compiledRule, 0, len(rs.Rules))}
	for i, r := range rs.Rules {
		c.rules = append(c.rules, compiledRule{
			name:    r.Name,
			when:    r.When,
			target:  r.Target,
			include: c.lowerAll(r.Include),
			exclude: c.lowerAll(r.Exclude),
			brands:  c.lowerAll(r.Brands),
			prio:    r.Priority,
			order:   i,
		})
	}
	return c
}

// Rules returns the number of compiled rules.
func (c *Classifier) Rules() int {
	return len(c.rules)
}

// Classify returns the winning decision for a product, or nil when no rule
// matches. The highest priority wins; equal priorities go to the rule
// declared first. Blank text never matches.
func (c *Classifier) Classify(p model.Product) *Decision {
	text := c.norm.Lower(p.SearchText())
	if strings.TrimSpace(text) == "" {
		return nil
	}
	brand := c.norm.Lower(p.BrandName())
	current := p.Placement()

	var best *Decision
	for _, r := range c.rules {
		term, ok := c.matches(r, text, brand, current)
		if !ok {
			continue
		}
		if best != nil && r.prio <= best.Priority {
			continue
		}
		best = &Decision{
			Placement: r.target,
			Rule:      r.name,
			Matched:   term,
			Priority:  r.prio,
		}
	}
	return best
}

// matches reports whether a rule applies and which term triggered it.
func (c *Classifier) matches(r compiledRule, text, brand string, current model.Placement) (string, bool) {
	if r.when != nil && !inScope(*r.when, current) {
		return "", false
	}

	for _, ex := range r.exclude {
		if strings.Contains(text, ex) {
			return "", false
		}
	}

	if brand != "" {
		for _, b := range r.brands {
			if strings.Contains(brand, b) {
				return b, true
			}
		}
	}

	for _, kw := range r.include {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}

	return "", false
}

// inScope checks the rule's source placement. An empty subcategory in the
// scope accepts any subcategory of the category.
func inScope(when, current model.Placement) bool {
	if !strings.EqualFold(strings.TrimSpace(when.Category), strings.TrimSpace(current.Category)) {
		return false
	}
	if when.Subcategory == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(when.Subcategory), strings.TrimSpace(current.Subcategory))
}

func (c *Classifier) lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(c.norm.Lower(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
