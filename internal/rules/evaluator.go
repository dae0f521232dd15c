// Package rules evaluates dynamic rules: ordered (conditions, output) cases
// with an optional default case.
package rules

import (
	"github.com/kosarica/feed-service/internal/conditions"
	"github.com/kosarica/feed-service/internal/types"
)

// Evaluate returns the output of the first matching non-default case. The
// default case is only used when no other case matched; without one the
// result is (nil, false).
func Evaluate(rule *types.DynamicRule, lookup conditions.Lookup) (any, bool) {
	if rule == nil {
		return nil, false
	}

	var fallback *types.RuleCase
	for i := range rule.Cases {
		c := &rule.Cases[i]
		if c.IsDefault {
			if fallback == nil {
				fallback = c
			}
			continue
		}
		if conditions.Match(c.Conditions, lookup) {
			return Output(c, lookup), true
		}
	}

	if fallback != nil {
		return Output(fallback, lookup), true
	}
	return nil, false
}

// Output resolves a case's output value
func Output(c *types.RuleCase, lookup conditions.Lookup) any {
	switch c.OutputType {
	case types.OutputStatic:
		return c.OutputValue
	case types.OutputAttribute:
		v, _ := lookup(attributeName(c))
		return v
	case types.OutputCombined:
		v, _ := lookup(c.OutputAttribute)
		attrValue := types.ToString(v)
		if c.CombinedPosition == types.PositionSuffix {
			return attrValue + c.OutputValue
		}
		return c.OutputValue + attrValue
	}
	return nil
}

// attributeName tolerates cases that store the attribute code in OutputValue
func attributeName(c *types.RuleCase) string {
	if c.OutputAttribute != "" {
		return c.OutputAttribute
	}
	return c.OutputValue
}
