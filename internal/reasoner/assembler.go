package reasoner

import (
	"fmt"
	"sort"
)

// Contingency is the edge attribute carrying the table behind a p-value.
type Contingency struct {
	RowFeature    string   `json:"row_feature"`
	ColumnFeature string   `json:"column_feature"`
	RowLabels     []string `json:"row_labels"`
	ColumnLabels  []string `json:"column_labels"`
	Counts        [][]int  `json:"counts"`
	DOF           int      `json:"dof"`
}

// Assembler accumulates the knowledge graph and results of one response.
// Edge ids come from its own counter, so two assemblers never share state.
type Assembler struct {
	infores string
	next    int
	nodes   map[string]Node
	edges   map[string]Edge
	results []Result
}

func NewAssembler(infores string) *Assembler {
	return &Assembler{
		infores: infores,
		nodes:   make(map[string]Node),
		edges:   make(map[string]Edge),
		results: make([]Result, 0),
	}
}

// Seed starts from an existing knowledge graph. New edge ids skip the ones
// already present.
func (a *Assembler) Seed(kg *KnowledgeGraph) {
	if kg == nil {
		return
	}
	for id, n := range kg.Nodes {
		a.nodes[id] = n
	}
	for id, e := range kg.Edges {
		a.edges[id] = e
	}
}

func (a *Assembler) AddNode(c Concept) {
	n := a.nodes[c.ID]
	n.Categories = unionSorted(n.Categories, c.Category)
	a.nodes[c.ID] = n
}

// AddEdge records a correlated_with edge from subject to object and returns
// its id.
func (a *Assembler) AddEdge(assoc *Association, subject, object string) string {
	id := a.newEdgeID()
	a.edges[id] = Edge{
		Subject:    subject,
		Object:     object,
		Predicate:  PredicateCorrelatedWith,
		Attributes: a.attributes(assoc),
	}
	return id
}

// Add turns one association into nodes, one or two edges and a result
// binding the query graph keys.
func (a *Assembler) Add(assoc *Association, hop *OneHop, directional bool) {
	a.AddNode(assoc.Subject)
	a.AddNode(assoc.Object)

	ids := []string{a.AddEdge(assoc, assoc.Subject.ID, assoc.Object.ID)}
	if directional {
		ids = append(ids, a.AddEdge(assoc, assoc.Object.ID, assoc.Subject.ID))
	}
	edgeBindings := make([]Binding, 0, len(ids))
	for _, id := range ids {
		edgeBindings = append(edgeBindings, Binding{ID: id})
	}
	a.results = append(a.results, Result{
		NodeBindings: map[string][]Binding{
			hop.SubjectKey: {{ID: assoc.Subject.ID}},
			hop.ObjectKey:  {{ID: assoc.Object.ID}},
		},
		EdgeBindings: map[string][]Binding{hop.EdgeKey: edgeBindings},
		Score:        1 - assoc.PValue(),
	})
}

func (a *Assembler) KnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{Nodes: a.nodes, Edges: a.edges}
}

func (a *Assembler) Results() []Result { return a.results }

func (a *Assembler) newEdgeID() string {
	for {
		a.next++
		id := fmt.Sprintf("icees_e%d", a.next)
		if _, taken := a.edges[id]; !taken {
			return id
		}
	}
}

func (a *Assembler) attributes(assoc *Association) []Attribute {
	m := assoc.Matrix
	return []Attribute{
		{AttributeTypeID: attrPValue, Value: m.PValue, ValueTypeID: valueTypeFloat},
		{AttributeTypeID: attrSignificant, Value: assoc.Significant(), ValueTypeID: valueTypeBoolean},
		{AttributeTypeID: attrChiSquared, Value: m.ChiSquared, ValueTypeID: valueTypeFloat},
		{AttributeTypeID: attrCohortSize, Value: m.Total, ValueTypeID: valueTypeInteger},
		{AttributeTypeID: attrContingency, Value: Contingency{
			RowFeature:    m.FeatureA.Name,
			ColumnFeature: m.FeatureB.Name,
			RowLabels:     m.RowLabels,
			ColumnLabels:  m.ColumnLabels,
			Counts:        m.Counts(),
			DOF:           m.DOF,
		}, ValueTypeID: valueTypeContingent},
		{AttributeTypeID: attrSupportingData, Value: assoc.Source, ValueTypeID: valueTypeInfores},
		{AttributeTypeID: attrOriginalSource, Value: a.infores, ValueTypeID: valueTypeInfores},
	}
}

func unionSorted(have []string, add string) []string {
	if add == "" {
		return have
	}
	for _, c := range have {
		if c == add {
			return have
		}
	}
	out := append(append([]string(nil), have...), add)
	sort.Strings(out)
	return out
}
