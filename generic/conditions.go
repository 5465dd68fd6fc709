package generic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONDITIONS - field/operator/value predicates over trigger data
// =============================================================================

type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpIsNull         Operator = "is_null"
	OpNotNull        Operator = "not_null"
)

// Condition tests one field of trigger data. Field may be a dot path
// ("lead.status") into nested maps.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
		OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpIsNull, OpNotNull:
		return true
	}
	return false
}

func (c Condition) Validate() error {
	if c.Field == "" {
		return Invalid("condition.field", "required")
	}
	if !c.Operator.Valid() {
		return Invalid("condition.operator", fmt.Sprintf("unknown operator %q", c.Operator))
	}
	return nil
}

// Matches evaluates the condition against data. Numeric operators return
// false when either side is not a number.
func (c Condition) Matches(data map[string]any) bool {
	v, present := Lookup(data, c.Field)
	isNull := !present || v == nil

	switch c.Operator {
	case OpIsNull:
		return isNull
	case OpNotNull:
		return !isNull
	}

	switch c.Operator {
	case OpEquals:
		return !isNull && looseEqual(v, c.Value)
	case OpNotEquals:
		return isNull || !looseEqual(v, c.Value)
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		if isNull {
			return false
		}
		a, okA := toDecimal(v)
		b, okB := toDecimal(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return a.GreaterThan(b)
		case OpLessThan:
			return a.LessThan(b)
		case OpGreaterOrEqual:
			return a.GreaterThanOrEqual(b)
		default:
			return a.LessThanOrEqual(b)
		}
	case OpContains:
		return !isNull && contains(v, c.Value)
	case OpNotContains:
		return isNull || !contains(v, c.Value)
	case OpStartsWith:
		return !isNull && strings.HasPrefix(toString(v), toString(c.Value))
	case OpEndsWith:
		return !isNull && strings.HasSuffix(toString(v), toString(c.Value))
	}
	return false
}

// MatchAll reports whether every condition matches. No conditions = match.
func MatchAll(conds []Condition, data map[string]any) bool {
	for _, c := range conds {
		if !c.Matches(data) {
			return false
		}
	}
	return true
}

// Lookup resolves a dot path inside nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// =============================================================================
// COERCION HELPERS
// =============================================================================

func looseEqual(a, b any) bool {
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Equal(db)
		}
	}
	return toString(a) == toString(b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		n := toString(needle)
		for _, item := range h {
			if item == n {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(haystack), toString(needle))
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	}
	if d, ok := toDecimal(v); ok {
		return d.String()
	}
	return fmt.Sprint(v)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint:
		return decimal.NewFromInt(int64(t)), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case decimal.Decimal:
		return t, true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	}
	return decimal.Zero, false
}
