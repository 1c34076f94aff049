package cohort

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "<>"
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpIn      Operator = "in"
	OpBetween Operator = "between"
)

// Qualifier restricts a feature to a set of values.
type Qualifier struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
	ValueA   any      `json:"value_a,omitempty"`
	ValueB   any      `json:"value_b,omitempty"`
}

func (q Qualifier) Validate() error {
	switch q.Operator {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if q.Value == nil {
			return fmt.Errorf("operator %q requires value", q.Operator)
		}
	case OpIn:
		if len(q.Values) == 0 {
			return fmt.Errorf("operator %q requires values", q.Operator)
		}
	case OpBetween:
		if q.ValueA == nil || q.ValueB == nil {
			return fmt.Errorf("operator %q requires value_a and value_b", q.Operator)
		}
	default:
		return fmt.Errorf("unsupported operator %q", q.Operator)
	}
	return nil
}

// Match reports whether an observed value satisfies the qualifier.
func (q Qualifier) Match(v any) bool {
	switch q.Operator {
	case OpEq:
		return Compare(v, q.Value) == 0
	case OpNe:
		return Compare(v, q.Value) != 0
	case OpLt:
		return Compare(v, q.Value) < 0
	case OpLe:
		return Compare(v, q.Value) <= 0
	case OpGt:
		return Compare(v, q.Value) > 0
	case OpGe:
		return Compare(v, q.Value) >= 0
	case OpIn:
		for _, candidate := range q.Values {
			if Compare(v, candidate) == 0 {
				return true
			}
		}
		return false
	case OpBetween:
		return Compare(v, q.ValueA) >= 0 && Compare(v, q.ValueB) <= 0
	}
	return false
}

// SQL renders the qualifier as a where fragment over an already quoted column.
func (q Qualifier) SQL(column string) (string, []any) {
	switch q.Operator {
	case OpIn:
		return column + " IN ?", []any{q.Values}
	case OpBetween:
		return column + " BETWEEN ? AND ?", []any{q.ValueA, q.ValueB}
	default:
		return column + " " + string(q.Operator) + " ?", []any{q.Value}
	}
}

func (q Qualifier) String() string {
	switch q.Operator {
	case OpIn:
		parts := make([]string, 0, len(q.Values))
		for _, v := range q.Values {
			parts = append(parts, FormatValue(v))
		}
		return "in [" + strings.Join(parts, ", ") + "]"
	case OpBetween:
		return fmt.Sprintf("between %s and %s", FormatValue(q.ValueA), FormatValue(q.ValueB))
	default:
		return fmt.Sprintf("%s %s", q.Operator, FormatValue(q.Value))
	}
}

// Compare orders two scalar values numerically when both look like numbers
// and lexically otherwise.
func Compare(a, b any) int {
	fa, okA := AsFloat(a)
	fb, okB := AsFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}

func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case []byte:
		return AsFloat(string(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Features is a cohort definition: every named feature must satisfy its qualifier.
type Features map[string]Qualifier

func (f Features) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Key is a canonical encoding used to detect identical cohort definitions.
func (f Features) Key() string {
	if len(f) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys.
	b, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(b)
}

func (f Features) Validate() error {
	for _, name := range f.Names() {
		if err := f[name].Validate(); err != nil {
			return fmt.Errorf("feature %s: %w", name, err)
		}
	}
	return nil
}
