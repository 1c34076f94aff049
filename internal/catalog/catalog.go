package catalog

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CategoryNamedThing = "biolink:NamedThing"

	TypeString  = "string"
	TypeInteger = "integer"
)

var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownFeature = errors.New("unknown feature")
)

//go:embed features.yml
var defaultFS embed.FS

type Identifier struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category,omitempty" json:"category"`
}

type Feature struct {
	Name        string       `yaml:"-" json:"feature_name"`
	Type        string       `yaml:"type" json:"type"`
	Categories  []string     `yaml:"categories,omitempty" json:"categories,omitempty"`
	Identifiers []Identifier `yaml:"identifiers,omitempty" json:"identifiers,omitempty"`
	// Values lists the admissible values, used to check bin coverage.
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
}

type yamlCatalog struct {
	Tables map[string]map[string]Feature `yaml:"tables"`
}

type table struct {
	features map[string]Feature
	names    []string
	byID     map[string]string
	ids      []Identifier
}

// Catalog maps the columns of each clinical table to external identifiers and
// semantic categories. It is immutable after construction.
type Catalog struct {
	tables map[string]*table
	names  []string
}

// Load reads the catalog at path, falling back to the bundled catalog when
// path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Default() (*Catalog, error) {
	data, err := defaultFS.ReadFile("features.yml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(raw.Tables) == 0 {
		return nil, errors.New("catalog declares no tables")
	}

	c := &Catalog{tables: make(map[string]*table, len(raw.Tables))}
	for tableName, features := range raw.Tables {
		t := &table{
			features: make(map[string]Feature, len(features)),
			byID:     map[string]string{},
		}
		for name, f := range features {
			if strings.ContainsAny(name, "\"`") {
				return nil, fmt.Errorf("table %s: invalid feature name %q", tableName, name)
			}
			f.Name = name
			if f.Type == "" {
				f.Type = TypeString
			}
			for i := range f.Identifiers {
				id := &f.Identifiers[i]
				if id.Category == "" {
					if len(f.Categories) > 0 {
						id.Category = f.Categories[0]
					} else {
						id.Category = CategoryNamedThing
					}
				}
				if prev, dup := t.byID[id.ID]; dup && prev != name {
					return nil, fmt.Errorf("table %s: identifier %s mapped to both %s and %s", tableName, id.ID, prev, name)
				}
				if _, dup := t.byID[id.ID]; !dup {
					t.byID[id.ID] = name
					t.ids = append(t.ids, *id)
				}
			}
			t.features[name] = f
			t.names = append(t.names, name)
		}
		sort.Strings(t.names)
		sort.Slice(t.ids, func(i, j int) bool { return t.ids[i].ID < t.ids[j].ID })
		c.tables[tableName] = t
		c.names = append(c.names, tableName)
	}
	sort.Strings(c.names)
	return c, nil
}

func (c *Catalog) Tables() []string {
	return append([]string(nil), c.names...)
}

func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

func (c *Catalog) table(name string) (*table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Features returns every feature of a table ordered by name.
func (c *Catalog) Features(tableName string) ([]Feature, error) {
	t, err := c.table(tableName)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, t.features[name])
	}
	return out, nil
}

func (c *Catalog) Feature(tableName, feature string) (Feature, error) {
	t, err := c.table(tableName)
	if err != nil {
		return Feature{}, err
	}
	f, ok := t.features[feature]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s.%s", ErrUnknownFeature, tableName, feature)
	}
	return f, nil
}

// Column returns a feature name that is safe to quote into SQL.
func (c *Catalog) Column(tableName, feature string) (string, error) {
	f, err := c.Feature(tableName, feature)
	if err != nil {
		return "", err
	}
	return `"` + f.Name + `"`, nil
}

func (c *Catalog) Identifiers(tableName, feature string) ([]Identifier, error) {
	f, err := c.Feature(tableName, feature)
	if err != nil {
		return nil, err
	}
	return append([]Identifier(nil), f.Identifiers...), nil
}

// FeatureFor maps an external identifier to the feature it is measured by.
func (c *Catalog) FeatureFor(tableName, id string) (string, bool) {
	t, ok := c.tables[tableName]
	if !ok {
		return "", false
	}
	name, ok := t.byID[id]
	return name, ok
}

// Category returns the catalog category of a known identifier.
func (c *Catalog) Category(tableName, id string) (string, bool) {
	t, ok := c.tables[tableName]
	if !ok {
		return "", false
	}
	i := sort.Search(len(t.ids), func(i int) bool { return t.ids[i].ID >= id })
	if i < len(t.ids) && t.ids[i].ID == id {
		return t.ids[i].Category, true
	}
	return "", false
}

// ListIdentifiers returns the identifiers of a table whose category matches,
// ordered by id. The root category and the empty category match everything.
func (c *Catalog) ListIdentifiers(tableName, category string) []Identifier {
	t, ok := c.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]Identifier, 0, len(t.ids))
	for _, id := range t.ids {
		if CategoryMatches(category, id.Category) {
			out = append(out, id)
		}
	}
	return out
}

// CategoryMatches reports whether an identifier of category have satisfies a
// request for category want.
func CategoryMatches(want, have string) bool {
	return want == "" || want == CategoryNamedThing || want == have
}
