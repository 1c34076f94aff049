package reasoner

import (
	"sort"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
)

// Catalog lists the identifiers known for a table.
type Catalog interface {
	ListIdentifiers(table, category string) []catalog.Identifier
	FeatureFor(table, id string) (string, bool)
	Category(table, id string) (string, bool)
}

// Expansion is the outcome of expanding one query graph.
type Expansion struct {
	Associations []*Association
	Directional  bool
	Evaluated    int
	Truncated    bool
}

type Expander struct {
	schema   *Schema
	catalog  Catalog
	resolver *Resolver
	maxPairs int
}

func NewExpander(schema *Schema, cat Catalog, resolver *Resolver, maxPairs int) *Expander {
	if maxPairs <= 0 {
		maxPairs = 10000
	}
	return &Expander{schema: schema, catalog: cat, resolver: resolver, maxPairs: maxPairs}
}

// Expand resolves both sides of the hop and evaluates each candidate pair in
// order. Empty sides and unmatched predicates yield an empty expansion.
func (x *Expander) Expand(dbc dbctx.Context, ref cohort.Ref, hop *OneHop) (*Expansion, error) {
	out := &Expansion{}
	directional, ok := x.schema.Match(hop.Predicates)
	if !ok {
		return out, nil
	}
	out.Directional = directional

	subjects := x.resolveSide(ref.Table, hop.Subject, hop.subjectPinned())
	objects := x.resolveSide(ref.Table, hop.Object, hop.objectPinned())
	if len(subjects) == 0 || len(objects) == 0 {
		return out, nil
	}
	if !x.anyValidCombination(subjects, objects, hop.Predicates) {
		return out, nil
	}

	// A symmetric reading of (a, b) and (b, a) is the same association; keep
	// the lexically smaller subject.
	var inSubjects, inObjects map[string]struct{}
	if !directional {
		inSubjects = idSet(subjects)
		inObjects = idSet(objects)
	}

	for _, s := range subjects {
		for _, o := range objects {
			if s.ID == o.ID || (s.Feature != "" && s.Feature == o.Feature) {
				continue
			}
			if !directional && s.ID > o.ID {
				_, sIsObject := inObjects[s.ID]
				_, oIsSubject := inSubjects[o.ID]
				if sIsObject && oIsSubject {
					continue
				}
			}
			if !x.validPair(s, o, hop.Predicates) {
				continue
			}
			if out.Evaluated >= x.maxPairs {
				out.Truncated = true
				return out, nil
			}
			out.Evaluated++
			assoc, err := x.resolver.Resolve(dbc, ref, s, o)
			if err != nil {
				return nil, err
			}
			if assoc != nil {
				out.Associations = append(out.Associations, assoc)
			}
		}
	}
	return out, nil
}

// resolveSide builds the ordered identifier set of one query node.
func (x *Expander) resolveSide(table string, n QNode, pinned bool) []Concept {
	if pinned {
		return x.pinned(table, n)
	}
	wanted := n.Categories
	if len(wanted) == 0 {
		wanted = []string{""}
	}
	seen := make(map[string]struct{})
	var out []Concept
	for _, category := range wanted {
		for _, id := range x.catalog.ListIdentifiers(table, category) {
			if _, dup := seen[id.ID]; dup {
				continue
			}
			seen[id.ID] = struct{}{}
			feature, _ := x.catalog.FeatureFor(table, id.ID)
			out = append(out, Concept{ID: id.ID, Category: id.Category, Feature: feature})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pinned keeps the caller's identifiers in order. An id is dropped only when
// its catalog category is known and contradicts the node's declared
// categories; unknown ids take the first declared category.
func (x *Expander) pinned(table string, n QNode) []Concept {
	seen := make(map[string]struct{}, len(n.IDs))
	out := make([]Concept, 0, len(n.IDs))
	for _, id := range n.IDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		c := Concept{ID: id}
		if category, ok := x.catalog.Category(table, id); ok {
			c.Category = category
			c.Feature, _ = x.catalog.FeatureFor(table, id)
		} else if len(n.Categories) > 0 {
			c.Category = n.Categories[0]
		} else {
			c.Category = CategoryNamedThing
		}
		if !declares(n.Categories, c.Category) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func declares(declared []string, category string) bool {
	if len(declared) == 0 {
		return true
	}
	for _, want := range declared {
		if catalog.CategoryMatches(want, category) {
			return true
		}
	}
	return false
}

func (x *Expander) validPair(s, o Concept, predicates []string) bool {
	for _, p := range predicates {
		if x.schema.IsValidPredicate(s.Category, o.Category, p) {
			return true
		}
	}
	return false
}

func (x *Expander) anyValidCombination(subjects, objects []Concept, predicates []string) bool {
	sc := categorySet(subjects)
	oc := categorySet(objects)
	for a := range sc {
		for b := range oc {
			if x.validPair(Concept{Category: a}, Concept{Category: b}, predicates) {
				return true
			}
		}
	}
	return false
}

func categorySet(cs []Concept) map[string]struct{} {
	out := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		out[c.Category] = struct{}{}
	}
	return out
}

func idSet(cs []Concept) map[string]struct{} {
	out := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		out[c.ID] = struct{}{}
	}
	return out
}
