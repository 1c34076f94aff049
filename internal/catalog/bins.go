package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Bins holds precomputed bin boundaries keyed by year, table and feature.
type Bins struct {
	data map[string]map[string]map[string]any
}

func LoadBins(path string) (*Bins, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Bins{data: map[string]map[string]map[string]any{}}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Bins{data: map[string]map[string]map[string]any{}}, nil
		}
		return nil, fmt.Errorf("read bins %s: %w", path, err)
	}
	return ParseBins(b)
}

func ParseBins(b []byte) (*Bins, error) {
	data := map[string]map[string]map[string]any{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse bins: %w", err)
	}
	return &Bins{data: data}, nil
}

// Lookup narrows the bins by feature, then table, then year. Each filter is
// optional; missing keys yield nil at that level rather than an error.
func (b *Bins) Lookup(year, table, feature *string) any {
	var out any
	switch {
	case feature != nil && table != nil:
		byYear := map[string]any{}
		for y, tables := range b.data {
			var v any
			if features, ok := tables[*table]; ok {
				v = features[*feature]
			}
			byYear[y] = v
		}
		out = byYear
	case feature != nil:
		byYear := map[string]any{}
		for y, tables := range b.data {
			byTable := map[string]any{}
			for t, features := range tables {
				byTable[t] = features[*feature]
			}
			byYear[y] = byTable
		}
		out = byYear
	case table != nil:
		byYear := map[string]any{}
		for y, tables := range b.data {
			if features, ok := tables[*table]; ok {
				byYear[y] = features
			} else {
				byYear[y] = nil
			}
		}
		out = byYear
	default:
		byYear := map[string]any{}
		for y, tables := range b.data {
			byYear[y] = tables
		}
		out = byYear
	}

	if year == nil {
		return out
	}
	return out.(map[string]any)[*year]
}
