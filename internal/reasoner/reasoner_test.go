package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/data/repos/testutil"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/services"
)

type fakeBackend struct {
	calls         int
	notComputable map[string]bool
	err           error
	pvalue        float64
}

func (f *fakeBackend) FeatureAssociation(_ dbctx.Context, _ cohort.Ref, a, b cohort.FeatureSpec) (*services.FeatureMatrix, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.notComputable[a.Name+"|"+b.Name] || f.notComputable[b.Name+"|"+a.Name] {
		return nil, services.ErrNotComputable
	}
	p := f.pvalue
	if p == 0 {
		p = 0.04
	}
	return &services.FeatureMatrix{
		FeatureA:     a,
		FeatureB:     b,
		RowLabels:    []string{"0", "1"},
		ColumnLabels: []string{"0", "1"},
		Matrix: [][]services.Cell{
			{{Frequency: 8}, {Frequency: 2}},
			{{Frequency: 3}, {Frequency: 7}},
		},
		Total:      20,
		ChiSquared: 5.05,
		DOF:        1,
		PValue:     p,
	}, nil
}

type fakeCohorts struct {
	refs map[string]cohort.Ref
}

func (f fakeCohorts) Definition(_ dbctx.Context, _ string, id string) (cohort.Ref, error) {
	ref, ok := f.refs[id]
	if !ok {
		return cohort.Ref{}, fmt.Errorf("%w: %s", repos.ErrCohortNotFound, id)
	}
	return ref, nil
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

func newTestService(t *testing.T, backend Backend, maxPairs int) *Service {
	t.Helper()
	if maxPairs == 0 {
		maxPairs = 10000
	}
	svc := NewService(testutil.Logger(t), testutil.Catalog(t), backend, fakeCohorts{refs: map[string]cohort.Ref{
		"COHORT:1": {CohortID: "COHORT:1", Table: "patient"},
	}}, nil, config.ReasonerConfig{
		ToolVersion:  "ICEES test",
		InforesCurie: "infores:icees",
		MaxPairs:     maxPairs,
	}, "patient")
	svc.SetClock(fixedNow)
	return svc
}

func oneHop(subject, object QNode, predicates ...string) *Query {
	return &Query{Message: Message{QueryGraph: &QueryGraph{
		Nodes: map[string]QNode{"n00": subject, "n01": object},
		Edges: map[string]QEdge{"e00": {Subject: "n00", Object: "n01", Predicates: predicates}},
	}}}
}

func pin(ids ...string) QNode     { return QNode{IDs: ids} }
func category(cs ...string) QNode { return QNode{Categories: cs} }

func run(t *testing.T, svc *Service, q *Query) *Response {
	t.Helper()
	resp, err := svc.OneHop(dbctx.Context{Ctx: context.Background()}, q)
	if err != nil {
		t.Fatalf("OneHop: %v", err)
	}
	return resp
}

// checkInvariants asserts the properties every response must hold.
func checkInvariants(t *testing.T, resp *Response) {
	t.Helper()
	kg := resp.Message.KnowledgeGraph
	bound := map[string]struct{}{}
	for _, r := range resp.Message.Results {
		if len(r.EdgeBindings) == 0 {
			t.Fatal("result without edge bindings")
		}
		for _, bs := range r.EdgeBindings {
			if len(bs) == 0 {
				t.Fatal("empty edge binding")
			}
			for _, b := range bs {
				bound[b.ID] = struct{}{}
			}
		}
		for _, bs := range r.NodeBindings {
			for _, b := range bs {
				if _, ok := kg.Nodes[b.ID]; !ok {
					t.Fatalf("node binding %s missing from knowledge graph", b.ID)
				}
			}
		}
	}
	if len(bound) != len(kg.Edges) {
		t.Fatalf("bound %d edges, knowledge graph has %d", len(bound), len(kg.Edges))
	}
	for id, e := range kg.Edges {
		if _, ok := bound[id]; !ok {
			t.Fatalf("edge %s is not bound by any result", id)
		}
		pvalues, provenance := 0, 0
		for _, a := range e.Attributes {
			switch a.AttributeTypeID {
			case attrPValue:
				pvalues++
			case attrSupportingData, attrOriginalSource:
				provenance++
			}
		}
		if pvalues != 1 || provenance == 0 {
			t.Fatalf("edge %s: %d p-values, %d provenance attributes", id, pvalues, provenance)
		}
		if e.Predicate != PredicateCorrelatedWith {
			t.Fatalf("edge %s predicate %s", id, e.Predicate)
		}
	}
}

func TestOneHopShapes(t *testing.T) {
	cases := []struct {
		name                  string
		query                 *Query
		results, nodes, edges int
	}{
		{"both pinned symmetric", oneHop(pin("PUBCHEM:2083"), pin("MESH:D052638"), PredicateCorrelatedWith), 1, 2, 1},
		{"both pinned directional", oneHop(pin("PUBCHEM:2083"), pin("MESH:D052638"), "biolink:related_to"), 1, 2, 2},
		{"subject pinned, self excluded", oneHop(pin("PUBCHEM:2083"), category("biolink:ChemicalSubstance"), PredicateCorrelatedWith), 1, 2, 1},
		{"subject pinned, phenotypes", oneHop(pin("PUBCHEM:2083", "MESH:D052638"), category("biolink:PhenotypicFeature"), PredicateCorrelatedWith), 4, 4, 4},
		{"object pinned, unconstrained subject", oneHop(QNode{}, pin("MESH:D052638"), "biolink:related_to"), 6, 7, 12},
		// 21 unordered pairs less the two AsthmaDx identifiers
		{"neither pinned symmetric", oneHop(QNode{}, QNode{}, PredicateCorrelatedWith), 20, 7, 20},
		{"neither pinned directional", oneHop(QNode{}, QNode{}, "biolink:associated_with"), 40, 7, 80},
		{"named thing matches all", oneHop(pin("PUBCHEM:2083"), category(CategoryNamedThing), PredicateCorrelatedWith), 6, 7, 6},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := run(t, newTestService(t, &fakeBackend{}, 0), c.query)
			checkInvariants(t, resp)
			kg := resp.Message.KnowledgeGraph
			if len(resp.Message.Results) != c.results || len(kg.Nodes) != c.nodes || len(kg.Edges) != c.edges {
				t.Fatalf("got %d results, %d nodes, %d edges", len(resp.Message.Results), len(kg.Nodes), len(kg.Edges))
			}
			if resp.MessageCode != CodeOK || resp.ToolVersion != "ICEES test" || resp.Datetime != "2024-03-01 12:30:00" {
				t.Fatalf("envelope: %+v", resp)
			}
		})
	}
}

func TestOneHopNodeAttributesAndScore(t *testing.T) {
	resp := run(t, newTestService(t, &fakeBackend{pvalue: 0.25}, 0),
		oneHop(pin("PUBCHEM:2083", "MESH:D052638"), category("biolink:PhenotypicFeature"), PredicateCorrelatedWith))

	node := resp.Message.KnowledgeGraph.Nodes["PUBCHEM:2083"]
	if !reflect.DeepEqual(node.Categories, []string{"biolink:ChemicalSubstance"}) {
		t.Fatalf("categories: %v", node.Categories)
	}
	for _, r := range resp.Message.Results {
		if r.Score != 0.75 {
			t.Fatalf("score: %v", r.Score)
		}
	}
	for _, e := range resp.Message.KnowledgeGraph.Edges {
		for _, a := range e.Attributes {
			switch a.AttributeTypeID {
			case attrSupportingData:
				if a.Value != "infores:icees-patient" {
					t.Fatalf("supporting source: %v", a.Value)
				}
			case attrSignificant:
				if a.Value != false {
					t.Fatalf("p=0.25 should not be significant")
				}
			}
		}
	}
}

func TestOneHopEmptyOutcomes(t *testing.T) {
	cases := []struct {
		name  string
		query *Query
		calls bool
	}{
		{"unsupported predicate", oneHop(pin("PUBCHEM:2083", "MESH:D052638"), category("biolink:PhenotypicFeature"), "biolink:affects"), false},
		{"category without identifiers", oneHop(pin("PUBCHEM:2083"), category("biolink:ActivityAndBehavior"), PredicateCorrelatedWith), false},
		{"category outside the schema", oneHop(pin("PUBCHEM:2083"), category("biolink:Gene"), PredicateCorrelatedWith), false},
		{"pinned id contradicts category", oneHop(QNode{IDs: []string{"PUBCHEM:2083"}, Categories: []string{"biolink:Disease"}}, QNode{}, PredicateCorrelatedWith), false},
		{"unknown identifier", oneHop(pin("CHEBI:0"), pin("MESH:D052638"), PredicateCorrelatedWith), false},
		{"same feature", oneHop(pin("MONDO:0004979"), pin("HP:0002099"), PredicateCorrelatedWith), false},
		{"self pair", oneHop(pin("MESH:D052638"), pin("MESH:D052638"), PredicateCorrelatedWith), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			backend := &fakeBackend{}
			resp := run(t, newTestService(t, backend, 0), c.query)
			if resp.MessageCode != CodeOK || len(resp.Message.Results) != 0 || len(resp.Message.KnowledgeGraph.Edges) != 0 {
				t.Fatalf("expected an empty OK envelope, got %s with %d results", resp.MessageCode, len(resp.Message.Results))
			}
			if resp.Message.Results == nil {
				t.Fatal("results should encode as an empty list")
			}
			if (backend.calls > 0) != c.calls {
				t.Fatalf("backend calls: %d", backend.calls)
			}
		})
	}
}

func TestOneHopSkipsNonComputablePairs(t *testing.T) {
	backend := &fakeBackend{notComputable: map[string]bool{"Albuterol|ObesityDx": true}}
	resp := run(t, newTestService(t, backend, 0),
		oneHop(pin("PUBCHEM:2083"), category("biolink:PhenotypicFeature"), PredicateCorrelatedWith))
	checkInvariants(t, resp)
	if len(resp.Message.Results) != 1 || backend.calls != 2 {
		t.Fatalf("results=%d calls=%d", len(resp.Message.Results), backend.calls)
	}
	if _, ok := resp.Message.KnowledgeGraph.Nodes["HP:0001513"]; ok {
		t.Fatal("non computable object should not become a node")
	}
}

func TestOneHopBackendFailure(t *testing.T) {
	svc := newTestService(t, &fakeBackend{err: errors.New("connection refused")}, 0)
	_, err := svc.OneHop(dbctx.Context{Ctx: context.Background()}, oneHop(pin("PUBCHEM:2083"), pin("MESH:D052638"), PredicateCorrelatedWith))
	ae := apierr.As(err, "")
	if err == nil || ae.Status != http.StatusInternalServerError || ae.Code != "backend_unavailable" {
		t.Fatalf("want backend_unavailable, got %v", err)
	}
}

func TestOneHopStructuralErrors(t *testing.T) {
	three := oneHop(pin("PUBCHEM:2083"), category("biolink:ChemicalSubstance"), PredicateCorrelatedWith)
	three.Message.QueryGraph.Nodes["n02"] = category("biolink:ChemicalSubstance")

	twoEdges := oneHop(QNode{}, QNode{}, PredicateCorrelatedWith)
	twoEdges.Message.QueryGraph.Edges["e01"] = QEdge{Subject: "n01", Object: "n00", Predicates: []string{PredicateCorrelatedWith}}

	dangling := oneHop(QNode{}, QNode{}, PredicateCorrelatedWith)
	dangling.Message.QueryGraph.Edges["e00"] = QEdge{Subject: "n00", Object: "n09", Predicates: []string{PredicateCorrelatedWith}}

	loop := oneHop(QNode{}, QNode{}, PredicateCorrelatedWith)
	loop.Message.QueryGraph.Edges["e00"] = QEdge{Subject: "n00", Object: "n00", Predicates: []string{PredicateCorrelatedWith}}

	cases := []struct {
		name  string
		query *Query
		code  string
	}{
		{"three nodes", three, CodeUnsupportedNodeCount},
		{"two edges", twoEdges, CodeUnsupportedEdgeCount},
		{"dangling edge", dangling, CodeUnknownNode},
		{"self loop", loop, CodeQueryGraphInvalid},
		{"no predicates", oneHop(QNode{}, QNode{}), CodeMissingPredicate},
		{"no query graph", &Query{}, CodeQueryGraphInvalid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			backend := &fakeBackend{}
			resp := run(t, newTestService(t, backend, 0), c.query)
			if resp.MessageCode != c.code {
				t.Fatalf("code: got %s want %s", resp.MessageCode, c.code)
			}
			if resp.Message.QueryGraph != c.query.Message.QueryGraph {
				t.Fatal("query graph should be echoed")
			}
			if len(resp.Message.Results) != 0 || resp.Message.KnowledgeGraph == nil || len(resp.Message.KnowledgeGraph.Nodes) != 0 {
				t.Fatal("structural errors carry an empty graph")
			}
			if backend.calls != 0 {
				t.Fatal("backend should not be called")
			}
		})
	}
}

func TestOneHopIsIdempotent(t *testing.T) {
	svc := newTestService(t, &fakeBackend{}, 0)
	q := oneHop(QNode{}, category("biolink:PhenotypicFeature", "biolink:Disease"), "biolink:related_to")
	first, err := json.Marshal(run(t, svc, q))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(run(t, svc, q))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("responses differ:\n%s\n%s", first, second)
	}
}

func TestOneHopEdgeIDsAreUniquePerResponse(t *testing.T) {
	resp := run(t, newTestService(t, &fakeBackend{}, 0), oneHop(QNode{}, QNode{}, "biolink:related_to"))
	ids := make([]string, 0)
	for _, r := range resp.Message.Results {
		for _, b := range r.EdgeBindings["e00"] {
			ids = append(ids, b.ID)
		}
	}
	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("edge id %s bound twice", ids[i])
		}
	}
	if resp.Message.Results[0].EdgeBindings["e00"][0].ID != "icees_e1" {
		t.Fatalf("numbering should restart per response: %v", resp.Message.Results[0].EdgeBindings)
	}
}

func TestOneHopPairCap(t *testing.T) {
	backend := &fakeBackend{}
	resp := run(t, newTestService(t, backend, 3), oneHop(QNode{}, QNode{}, PredicateCorrelatedWith))
	checkInvariants(t, resp)
	if backend.calls != 3 || len(resp.Message.Results) != 3 {
		t.Fatalf("calls=%d results=%d", backend.calls, len(resp.Message.Results))
	}
	if resp.Description == "" {
		t.Fatal("truncation should be described")
	}
}

func TestOneHopWorkflowAndCohortOptions(t *testing.T) {
	svc := newTestService(t, &fakeBackend{}, 0)
	dbc := dbctx.Context{Ctx: context.Background()}

	q := oneHop(pin("PUBCHEM:2083"), pin("MESH:D052638"), PredicateCorrelatedWith)
	q.Workflow = []Operation{{ID: "fill"}}
	if _, err := svc.OneHop(dbc, q); apierr.As(err, "").Status != http.StatusBadRequest {
		t.Fatalf("unsupported workflow should be a 400, got %v", err)
	}

	q.Workflow = []Operation{{ID: WorkflowLookup}}
	q.QueryOptions = &QueryOptions{CohortID: "COHORT:404"}
	_, err := svc.OneHop(dbc, q)
	if ae := apierr.As(err, ""); ae.Code != "invalid_cohort" || ae.Error() != invalidCohortMessage {
		t.Fatalf("unknown cohort: %v", err)
	}

	q.QueryOptions = &QueryOptions{CohortID: "COHORT:1"}
	if resp, err := svc.OneHop(dbc, q); err != nil || len(resp.Message.Results) != 1 {
		t.Fatalf("saved cohort: %v", err)
	}

	q.QueryOptions = &QueryOptions{CohortFeatures: cohort.Features{"Nope": {Operator: cohort.OpEq, Value: 1.0}}}
	if _, err := svc.OneHop(dbc, q); apierr.As(err, "").Code != "invalid_cohort_features" {
		t.Fatalf("unknown cohort feature: %v", err)
	}
}

func TestOverlay(t *testing.T) {
	backend := &fakeBackend{notComputable: map[string]bool{"AvgDailyPM2.5Exposure|ObesityDx": true}}
	svc := newTestService(t, backend, 0)
	results := []Result{{NodeBindings: map[string][]Binding{"n0": {{ID: "PUBCHEM:2083"}}}, EdgeBindings: map[string][]Binding{}}}
	q := &Query{Message: Message{
		KnowledgeGraph: &KnowledgeGraph{
			Nodes: map[string]Node{
				"PUBCHEM:2083": {Categories: []string{"biolink:ChemicalSubstance"}},
				"MESH:D052638": {Categories: []string{"biolink:ChemicalSubstance"}},
				"HP:0001513":   {Categories: []string{"biolink:PhenotypicFeature"}},
				"CHEBI:0":      {Categories: []string{"biolink:ChemicalSubstance"}},
			},
			Edges: map[string]Edge{
				"icees_e1": {Subject: "PUBCHEM:2083", Object: "CHEBI:0", Predicate: "biolink:treats"},
			},
		},
		Results: results,
	}}

	resp, err := svc.Overlay(dbctx.Context{Ctx: context.Background()}, q)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	edges := resp.Message.KnowledgeGraph.Edges
	// 3 computable candidates less the one the backend rejects, plus the original edge
	if len(edges) != 3 || backend.calls != 3 {
		t.Fatalf("edges=%d calls=%d", len(edges), backend.calls)
	}
	if edges["icees_e1"].Predicate != "biolink:treats" {
		t.Fatal("existing edges pass through")
	}
	for id, e := range edges {
		if id == "icees_e1" {
			continue
		}
		if e.Predicate != PredicateCorrelatedWith || e.Subject > e.Object {
			t.Fatalf("support edge %s: %+v", id, e)
		}
	}
	if !reflect.DeepEqual(resp.Message.Results, results) {
		t.Fatal("results pass through unchanged")
	}

	empty, err := svc.Overlay(dbctx.Context{Ctx: context.Background()}, &Query{})
	if err != nil || empty.MessageCode != CodeKnowledgeGraphEmpty {
		t.Fatalf("empty overlay: %+v %v", empty, err)
	}
}

func TestSchema(t *testing.T) {
	s := DefaultSchema
	if !s.IsValidPredicate("biolink:Drug", "biolink:Drug", PredicateCorrelatedWith) {
		t.Fatal("self pairs are valid")
	}
	if !s.IsValidPredicate("biolink:Drug", "biolink:Disease", "biolink:related_to") {
		t.Fatal("broader predicates are accepted")
	}
	if s.IsValidPredicate("biolink:Drug", "biolink:Disease", "biolink:affects") {
		t.Fatal("unrelated predicate accepted")
	}
	if s.IsValidPredicate("biolink:Gene", "biolink:Disease", PredicateCorrelatedWith) {
		t.Fatal("undeclared category accepted")
	}
	table := s.Schema()
	if len(table) != len(Categories) {
		t.Fatalf("schema rows: %d", len(table))
	}
	for a, row := range table {
		for b, preds := range row {
			if !reflect.DeepEqual(preds, []string{PredicateCorrelatedWith}) {
				t.Fatalf("%s -> %s: %v", a, b, preds)
			}
		}
	}
	cs := s.CohortSchema()
	if got := cs[CategoryPopulation]["biolink:ChemicalSubstance"]; !reflect.DeepEqual(got, []string{PredicateCorrelatedWith}) {
		t.Fatalf("cohort schema: %v", cs)
	}
	if d, ok := s.Match([]string{"biolink:affects", "biolink:related_to"}); !d || !ok {
		t.Fatal("broader predicate should read as directional")
	}
	if d, ok := s.Match([]string{"biolink:related_to", PredicateCorrelatedWith}); d || !ok {
		t.Fatal("canonical predicate wins")
	}
}

func TestPinnedIdentifiers(t *testing.T) {
	x := NewExpander(DefaultSchema, testutil.Catalog(t), nil, 100)

	got := x.pinned("patient", QNode{
		IDs:        []string{"CHEBI:0", "PUBCHEM:2083", "MONDO:0004979", "CHEBI:0"},
		Categories: []string{"biolink:Disease"},
	})
	want := []Concept{
		{ID: "CHEBI:0", Category: "biolink:Disease"},
		{ID: "MONDO:0004979", Category: "biolink:Disease", Feature: "AsthmaDx"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("declared categories: got %+v want %+v", got, want)
	}

	got = x.pinned("patient", QNode{IDs: []string{"CHEBI:0", "PUBCHEM:2083"}})
	if len(got) != 2 {
		t.Fatalf("expected both ids to pass through, got %+v", got)
	}
	if got[0] != (Concept{ID: "CHEBI:0", Category: CategoryNamedThing}) {
		t.Fatalf("unknown id: got %+v", got[0])
	}
	if got[1].Category != "biolink:ChemicalSubstance" || got[1].Feature == "" {
		t.Fatalf("known id should keep its catalog category and feature, got %+v", got[1])
	}
}
