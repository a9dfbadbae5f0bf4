package model

// RuleType distinguishes brand-anchored rules from keyword rules.
type RuleType string

// Rule type constants.
const (
	RuleTypeBrand   RuleType = "brand"
	RuleTypeKeyword RuleType = "keyword"
)

// CategoryRule maps product text to a placement.
type CategoryRule struct {
	When     *Placement `json:"when,omitempty" yaml:"when,omitempty"`
	Name     string     `json:"name" yaml:"name" validate:"required"`
	Type     RuleType   `json:"type" yaml:"type" validate:"omitempty,oneof=brand keyword"`
	Target   Placement  `json:"target" yaml:"target"`
	Include  []string   `json:"include,omitempty" yaml:"include,omitempty" validate:"dive,required"`
	Exclude  []string   `json:"exclude,omitempty" yaml:"exclude,omitempty" validate:"dive,required"`
	Brands   []string   `json:"brands,omitempty" yaml:"brands,omitempty" validate:"dive,required"`
	Priority int        `json:"priority" yaml:"priority" validate:"gte=0"`
	// Order is the declaration index. It breaks priority ties.
	Order int `json:"-" yaml:"-"`
}
