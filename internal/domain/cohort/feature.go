package cohort

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FeatureSpec names a feature and how its values are binned into contingency
// table rows or columns.
//
//   - no bins: one bin per distinct observed value
//   - Binary with one bin: the qualifier and its complement (2 bins)
//   - otherwise: one bin per qualifier, in order
type FeatureSpec struct {
	Name   string      `json:"feature_name"`
	Bins   []Qualifier `json:"feature_qualifiers,omitempty"`
	Binary bool        `json:"-"`
}

func Whole(name string) FeatureSpec { return FeatureSpec{Name: name} }

func (s FeatureSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("feature name is required")
	}
	if s.Binary && len(s.Bins) != 1 {
		return fmt.Errorf("feature %s: binary spec needs exactly one qualifier", s.Name)
	}
	for i, q := range s.Bins {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("feature %s bin %d: %w", s.Name, i, err)
		}
	}
	return nil
}

// Key is a stable cache and identity key for the feature.
func (s FeatureSpec) Key() string {
	b, _ := json.Marshal(struct {
		Name   string      `json:"n"`
		Bins   []Qualifier `json:"b,omitempty"`
		Binary bool        `json:"x,omitempty"`
	}{s.Name, s.Bins, s.Binary})
	return string(b)
}

// BinLabels returns the bin labels for the feature given the distinct values
// observed for the feature.
func (s FeatureSpec) BinLabels(observed []any) []string {
	switch {
	case len(s.Bins) == 0:
		vals := SortedDistinct(observed)
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			out = append(out, FormatValue(v))
		}
		return out
	case s.Binary:
		q := s.Bins[0]
		return []string{q.String(), "not " + q.String()}
	default:
		out := make([]string, 0, len(s.Bins))
		for _, q := range s.Bins {
			out = append(out, q.String())
		}
		return out
	}
}

// BinIndex returns the bin for an observed value, or -1 when no bin matches.
// labels must come from BinLabels over the same observations.
func (s FeatureSpec) BinIndex(v any, labels []string) int {
	switch {
	case len(s.Bins) == 0:
		want := FormatValue(v)
		for i, l := range labels {
			if l == want {
				return i
			}
		}
		return -1
	case s.Binary:
		if s.Bins[0].Match(v) {
			return 0
		}
		return 1
	default:
		for i, q := range s.Bins {
			if q.Match(v) {
				return i
			}
		}
		return -1
	}
}

// Uncovered returns the observed values that fall in no bin.
func (s FeatureSpec) Uncovered(observed []any) []any {
	if len(s.Bins) == 0 || s.Binary {
		return nil
	}
	var out []any
	for _, v := range SortedDistinct(observed) {
		matched := false
		for _, q := range s.Bins {
			if q.Match(v) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, v)
		}
	}
	return out
}

// SortedDistinct deduplicates values by their formatted form and orders them
// with Compare.
func SortedDistinct(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		k := FormatValue(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	return out
}
