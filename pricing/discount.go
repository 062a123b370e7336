package pricing

import (
	"errors"
	"strings"
	"time"
)

// DiscountKind selects how a DiscountRule reduces the subtotal.
type DiscountKind string

const (
	// DiscountPercent reduces the subtotal by Value percent, rounded down.
	DiscountPercent DiscountKind = "percent"
	// DiscountFixed reduces the subtotal by Value units.
	DiscountFixed DiscountKind = "fixed"
)

var (
	ErrUnknownDiscount = errors.New("pricing: unknown discount code")
	ErrDiscountExpired = errors.New("pricing: discount code expired")
)

// DiscountRule maps a code to a reduction. Rules are never mutated by a session;
// sessions keep a copy of the rule they applied.
type DiscountRule struct {
	Code      string       `yaml:"code" json:"code"`
	Kind      DiscountKind `yaml:"kind" json:"kind"`
	Value     int64        `yaml:"value" json:"value"`
	ExpiresAt *time.Time   `yaml:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the rule can no longer be applied at now.
func (r DiscountRule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Amount returns the reduction for subtotal, never more than subtotal.
func (r DiscountRule) Amount(subtotal int64) int64 {
	if subtotal <= 0 || r.Value <= 0 {
		return 0
	}
	var amount int64
	switch r.Kind {
	case DiscountPercent:
		pct := r.Value
		if pct > 100 {
			pct = 100
		}
		// Split to keep subtotal*pct from overflowing; the result is still
		// floor(subtotal*pct/100).
		amount = subtotal/100*pct + subtotal%100*pct/100
	case DiscountFixed:
		amount = r.Value
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

// DiscountTable is the merchant's read-only set of discount rules.
type DiscountTable struct {
	rules map[string]DiscountRule
}

// NewDiscountTable indexes rules by their upper-cased code.
func NewDiscountTable(rules ...DiscountRule) *DiscountTable {
	index := make(map[string]DiscountRule, len(rules))
	for _, r := range rules {
		index[normalizeCode(r.Code)] = r
	}
	return &DiscountTable{rules: index}
}

// Lookup resolves code case-insensitively and rejects expired rules.
func (t *DiscountTable) Lookup(code string, now time.Time) (DiscountRule, error) {
	if t == nil {
		return DiscountRule{}, ErrUnknownDiscount
	}
	rule, ok := t.rules[normalizeCode(code)]
	if !ok {
		return DiscountRule{}, ErrUnknownDiscount
	}
	if rule.Expired(now) {
		return DiscountRule{}, ErrDiscountExpired
	}
	return rule, nil
}

// Len reports the number of rules, expired ones included.
func (t *DiscountTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
