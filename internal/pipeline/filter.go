package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/reearth/cms-items-api/internal/cms"
)

// ErrInvalidFilter is returned in strict mode when a filter expression has malformed conditions.
var ErrInvalidFilter = errors.New("invalid filter expression")

const (
	conditionSeparator = ";"
	keySeparator       = "==="
	valueSeparator     = "|"
)

// FilterMode selects how malformed filter conditions are handled.
type FilterMode string

const (
	// FilterPermissive skips malformed conditions.
	FilterPermissive FilterMode = "permissive"
	// FilterStrict rejects expressions holding any malformed condition.
	FilterStrict FilterMode = "strict"
)

// ParseFilterMode returns the filter mode named s. An empty name selects FilterPermissive.
func ParseFilterMode(s string) (FilterMode, error) {
	switch m := FilterMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return FilterPermissive, nil
	case FilterPermissive, FilterStrict:
		return m, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q, expected %q or %q", s, FilterPermissive, FilterStrict)
	}
}

// Clause admits items whose field Key stringifies to one of Values.
type Clause struct {
	Key    string
	Values []string
}

// Filter is a conjunction of clauses. A filter without clauses admits every item.
type Filter struct {
	Clauses []Clause
}

// ConditionError describes one malformed condition of a filter expression.
type ConditionError struct {
	// Index is the 0-based position of the condition in the expression.
	Index     int
	Condition string
	Reason    string
}

func (e ConditionError) Error() string {
	return fmt.Sprintf("condition %d %q: %s", e.Index+1, e.Condition, e.Reason)
}

// ParseFilter parses a filter expression of the form "key===v1|v2;key2===v3".
//
// Keys and values are trimmed. Empty conditions, such as a trailing separator, are ignored.
// In permissive mode, malformed conditions are skipped. In strict mode, every malformed condition
// is reported as a ConditionError joined with ErrInvalidFilter.
func ParseFilter(expr string, mode FilterMode) (Filter, error) {
	var f Filter
	var errs []error

	for i, raw := range strings.Split(expr, conditionSeparator) {
		cond := strings.TrimSpace(raw)
		if cond == "" {
			continue
		}

		c, reason := parseCondition(cond, mode)
		if reason != "" {
			errs = append(errs, ConditionError{Index: i, Condition: cond, Reason: reason})
			continue
		}
		f.Clauses = append(f.Clauses, c)
	}

	if mode == FilterStrict && len(errs) > 0 {
		return Filter{}, errors.Join(append([]error{ErrInvalidFilter}, errs...)...)
	}
	return f, nil
}

// parseCondition returns the clause of cond, or the reason why cond is malformed.
func parseCondition(cond string, mode FilterMode) (Clause, string) {
	parts := strings.Split(cond, keySeparator)
	if len(parts) < 2 {
		return Clause{}, fmt.Sprintf("missing %q separator", keySeparator)
	}
	if mode == FilterStrict && len(parts) > 2 {
		return Clause{}, fmt.Sprintf("more than one %q separator", keySeparator)
	}

	key := strings.TrimSpace(parts[0])
	if key == "" {
		return Clause{}, "empty key"
	}
	rhs := strings.TrimSpace(parts[1])
	if rhs == "" {
		return Clause{}, "empty value list"
	}

	values := strings.Split(rhs, valueSeparator)
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
		if mode == FilterStrict && values[i] == "" {
			return Clause{}, "empty value"
		}
	}

	return Clause{Key: key, Values: values}, ""
}

// Admit reports whether item satisfies every clause.
// An item without a field for a clause key is rejected.
func (f Filter) Admit(item cms.Item) bool {
	for _, c := range f.Clauses {
		field, ok := lookupField(item, c.Key)
		if !ok {
			return false
		}
		v := Stringify(field.Value)
		found := false
		for _, want := range c.Values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the admitted items, in order.
func (f Filter) Apply(items []cms.Item) []cms.Item {
	if len(f.Clauses) == 0 {
		return items
	}
	admitted := make([]cms.Item, 0, len(items))
	for _, item := range items {
		if f.Admit(item) {
			admitted = append(admitted, item)
		}
	}
	return admitted
}

// lookupField returns the first field of item with the given key.
func lookupField(item cms.Item, key string) (cms.Field, bool) {
	for _, f := range item.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return cms.Field{}, false
}

// Stringify returns the string form a field value is compared with.
//
// Strings are returned as is, numbers in their shortest decimal form, booleans as true or false
// and null as "null". List elements are joined with commas, null elements being empty.
// Objects are encoded as compact JSON.
func Stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return formatNumber(v.String())
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatFloat(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		elems := make([]string, len(v))
		for i, e := range v {
			if e == nil {
				continue
			}
			elems[i] = Stringify(e)
		}
		return strings.Join(elems, ",")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// formatNumber returns the shortest decimal form of the number literal lit, so that 1.50 and 1e2
// read as 1.5 and 100. Integer literals, and literals a float64 can't represent exactly, are
// returned unchanged.
func formatNumber(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	s := formatFloat(f)

	exact, ok := new(big.Rat).SetString(lit)
	if !ok {
		return lit
	}
	short, ok := new(big.Rat).SetString(s)
	if !ok || exact.Cmp(short) != 0 {
		return lit
	}
	return s
}

// formatFloat formats f in plain decimal notation, switching to an exponent only for magnitudes
// of 1e21 and more, or under 1e-6.
func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs < 1e21 && abs >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// Exponents are written without zero padding: 1e-7, not 1e-07.
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}
