package reasoner

import "sort"

const (
	PredicateCorrelatedWith = "biolink:correlated_with"

	CategoryNamedThing  = "biolink:NamedThing"
	CategoryPopulation  = "biolink:PopulationOfIndividualOrganisms"
	attrPValue          = "biolink:p_value"
	attrSupportingData  = "biolink:supporting_data_source"
	attrOriginalSource  = "biolink:original_knowledge_source"
	attrSignificant     = "icees:significant"
	attrChiSquared      = "icees:chi_squared"
	attrContingency     = "icees:contingency"
	attrCohortSize      = "icees:cohort_size"
	valueTypeInfores    = "biolink:InformationResource"
	valueTypeFloat      = "xsd:float"
	valueTypeBoolean    = "xsd:boolean"
	valueTypeInteger    = "xsd:integer"
	valueTypeContingent = "icees:ContingencyTable"
)

// Categories are the entity classes the reasoner answers for.
var Categories = []string{
	"biolink:ActivityAndBehavior",
	"biolink:ChemicalSubstance",
	"biolink:Disease",
	"biolink:Drug",
	"biolink:Environment",
	CategoryNamedThing,
	"biolink:PhenotypicFeature",
}

// broaderPredicates subsume correlated_with. They read as directional, so a
// match yields an edge per direction.
var broaderPredicates = []string{
	"biolink:related_to",
	"biolink:related_to_at_instance_level",
	"biolink:associated_with",
}

// Schema is the category x category x predicate table. It is built once and
// never mutated.
type Schema struct {
	categories map[string]struct{}
	broader    map[string]struct{}
}

// DefaultSchema is shared by every request.
var DefaultSchema = NewSchema(Categories)

func NewSchema(categories []string) *Schema {
	s := &Schema{
		categories: make(map[string]struct{}, len(categories)),
		broader:    make(map[string]struct{}, len(broaderPredicates)),
	}
	for _, c := range categories {
		s.categories[c] = struct{}{}
	}
	for _, p := range broaderPredicates {
		s.broader[p] = struct{}{}
	}
	return s
}

func (s *Schema) HasCategory(category string) bool {
	_, ok := s.categories[category]
	return ok
}

// IsValidPredicate reports whether predicate may connect the two categories.
// Broader predicates are accepted in place of the canonical one.
func (s *Schema) IsValidPredicate(categoryA, categoryB, predicate string) bool {
	if !s.HasCategory(categoryA) || !s.HasCategory(categoryB) {
		return false
	}
	if predicate == PredicateCorrelatedWith {
		return true
	}
	_, ok := s.broader[predicate]
	return ok
}

// Match picks the reading of a requested predicate set. directional is true
// when only broader predicates matched. ok is false when nothing matched.
func (s *Schema) Match(predicates []string) (directional, ok bool) {
	broader := false
	for _, p := range predicates {
		if p == PredicateCorrelatedWith {
			return false, true
		}
		if _, hit := s.broader[p]; hit {
			broader = true
		}
	}
	return broader, broader
}

// Schema returns category -> category -> predicates for every declared pair.
func (s *Schema) Schema() map[string]map[string][]string {
	cats := s.sortedCategories()
	out := make(map[string]map[string][]string, len(cats))
	for _, a := range cats {
		row := make(map[string][]string, len(cats))
		for _, b := range cats {
			row[b] = []string{PredicateCorrelatedWith}
		}
		out[a] = row
	}
	return out
}

// CohortSchema relates a patient population to every category.
func (s *Schema) CohortSchema() map[string]map[string][]string {
	row := make(map[string][]string, len(s.categories))
	for _, c := range s.sortedCategories() {
		row[c] = []string{PredicateCorrelatedWith}
	}
	return map[string]map[string][]string{CategoryPopulation: row}
}

func (s *Schema) sortedCategories() []string {
	out := make([]string, 0, len(s.categories))
	for c := range s.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
