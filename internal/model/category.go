package model

import (
	"fmt"
	"sort"
	"strings"
)

// Placement is the two-level storefront position of a product.
type Placement struct {
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
}

// IsZero reports whether no category is set.
func (p Placement) IsZero() bool {
	return strings.TrimSpace(p.Category) == ""
}

// Equal compares two placements ignoring case and surrounding whitespace.
func (p Placement) Equal(o Placement) bool {
	return strings.EqualFold(strings.TrimSpace(p.Category), strings.TrimSpace(o.Category)) &&
		strings.EqualFold(strings.TrimSpace(p.Subcategory), strings.TrimSpace(o.Subcategory))
}

func (p Placement) String() string {
	if p.Subcategory == "" {
		return p.Category
	}
	return fmt.Sprintf("%s / %s", p.Category, p.Subcategory)
}

// Category is a top-level storefront category with its allowed subcategories.
type Category struct {
	Name          string   `json:"name" yaml:"name" validate:"required"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
}

// Taxonomy is the authoritative category tree. Classification targets must
// belong to it.
type Taxonomy struct {
	index      map[string]map[string]string
	categories []Category
}

// NewTaxonomy builds a taxonomy from a category list. Duplicate category or
// subcategory names are rejected.
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	t := &Taxonomy{
		index:      make(map[string]map[string]string, len(categories)),
		categories: make([]Category, 0, len(categories)),
	}
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("taxonomy: category name cannot be empty")
		}
		key := strings.ToLower(name)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate category %q", name)
		}
		subs := make(map[string]string, len(c.Subcategories))
		var names []string
		for _, s := range c.Subcategories {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, fmt.Errorf("taxonomy: empty subcategory under %q", name)
			}
			if _, dup := subs[strings.ToLower(s)]; dup {
				return nil, fmt.Errorf("taxonomy: duplicate subcategory %q under %q", s, name)
			}
			subs[strings.ToLower(s)] = s
			names = append(names, s)
		}
		t.index[key] = subs
		t.categories = append(t.categories, Category{Name: name, Subcategories: names})
	}
	return t, nil
}

// Categories returns the categories in declaration order.
func (t *Taxonomy) Categories() []Category {
	return t.categories
}

// Contains reports whether a placement is part of the taxonomy. A placement
// without a subcategory is valid when the category exists.
func (t *Taxonomy) Contains(p Placement) bool {
	subs, ok := t.index[strings.ToLower(strings.TrimSpace(p.Category))]
	if !ok {
		return false
	}
	if strings.TrimSpace(p.Subcategory) == "" {
		return true
	}
	_, ok = subs[strings.ToLower(strings.TrimSpace(p.Subcategory))]
	return ok
}

// Canonical rewrites a placement with the taxonomy's spelling.
func (t *Taxonomy) Canonical(p Placement) (Placement, bool) {
	if !t.Contains(p) {
		return p, false
	}
	for _, c := range t.categories {
		if !strings.EqualFold(c.Name, strings.TrimSpace(p.Category)) {
			continue
		}
		out := Placement{Category: c.Name}
		if s := strings.TrimSpace(p.Subcategory); s != "" {
			out.Subcategory = t.index[strings.ToLower(c.Name)][strings.ToLower(s)]
		}
		return out, true
	}
	return p, false
}

// Pairs flattens the taxonomy into sorted placements.
func (t *Taxonomy) Pairs() []Placement {
	var out []Placement
	for _, c := range t.categories {
		out = append(out, Placement{Category: c.Name})
		subs := append([]string(nil), c.Subcategories...)
		sort.Strings(subs)
		for _, s := range subs {
			out = append(out, Placement{Category: c.Name, Subcategory: s})
		}
	}
	return out
}
