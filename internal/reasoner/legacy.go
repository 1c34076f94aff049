package reasoner

import (
	"encoding/json"
	"sort"
	"strings"
)

const biolinkPrefix = "biolink:"

// StringList decodes from either a JSON string or a list of strings and
// encodes a single item as a bare string.
type StringList []string

func (s *StringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

type LegacyQNode struct {
	ID    string     `json:"id"`
	Curie StringList `json:"curie,omitempty"`
	Type  StringList `json:"type,omitempty"`
	Set   bool       `json:"set,omitempty"`
}

type LegacyQEdge struct {
	ID       string     `json:"id"`
	SourceID string     `json:"source_id"`
	TargetID string     `json:"target_id"`
	Type     StringList `json:"type,omitempty"`
}

type LegacyQueryGraph struct {
	Nodes []LegacyQNode `json:"nodes"`
	Edges []LegacyQEdge `json:"edges"`
}

type LegacyNode struct {
	ID         string      `json:"id"`
	Name       string      `json:"name,omitempty"`
	Type       StringList  `json:"type,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type LegacyEdge struct {
	ID         string      `json:"id"`
	SourceID   string      `json:"source_id"`
	TargetID   string      `json:"target_id"`
	Type       string      `json:"type,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type LegacyKnowledgeGraph struct {
	Nodes []LegacyNode `json:"nodes"`
	Edges []LegacyEdge `json:"edges"`
}

type LegacyBinding struct {
	QgID string     `json:"qg_id"`
	KgID StringList `json:"kg_id"`
}

type LegacyResult struct {
	NodeBindings []LegacyBinding `json:"node_bindings"`
	EdgeBindings []LegacyBinding `json:"edge_bindings"`
	Score        float64         `json:"score"`
}

type LegacyMessage struct {
	QueryGraph     *LegacyQueryGraph     `json:"query_graph,omitempty"`
	KnowledgeGraph *LegacyKnowledgeGraph `json:"knowledge_graph,omitempty"`
	Results        []LegacyResult        `json:"results"`
}

// Standardize converts a list based message to the map based shape.
func Standardize(lm LegacyMessage) Message {
	var m Message
	if lm.QueryGraph != nil {
		qg := &QueryGraph{
			Nodes: make(map[string]QNode, len(lm.QueryGraph.Nodes)),
			Edges: make(map[string]QEdge, len(lm.QueryGraph.Edges)),
		}
		for _, n := range lm.QueryGraph.Nodes {
			qg.Nodes[n.ID] = QNode{
				IDs:        nonEmpty(n.Curie),
				Categories: mapStrings(n.Type, upCategory),
				IsSet:      n.Set,
			}
		}
		for _, e := range lm.QueryGraph.Edges {
			qg.Edges[e.ID] = QEdge{
				Subject:    e.SourceID,
				Object:     e.TargetID,
				Predicates: mapStrings(e.Type, upPredicate),
			}
		}
		m.QueryGraph = qg
	}
	if lm.KnowledgeGraph != nil {
		kg := &KnowledgeGraph{
			Nodes: make(map[string]Node, len(lm.KnowledgeGraph.Nodes)),
			Edges: make(map[string]Edge, len(lm.KnowledgeGraph.Edges)),
		}
		for _, n := range lm.KnowledgeGraph.Nodes {
			kg.Nodes[n.ID] = Node{
				Name:       n.Name,
				Categories: mapStrings(n.Type, upCategory),
				Attributes: nonEmptyAttrs(n.Attributes),
			}
		}
		for _, e := range lm.KnowledgeGraph.Edges {
			predicate := ""
			if e.Type != "" {
				predicate = upPredicate(e.Type)
			}
			kg.Edges[e.ID] = Edge{
				Subject:    e.SourceID,
				Object:     e.TargetID,
				Predicate:  predicate,
				Attributes: nonEmptyAttrs(e.Attributes),
			}
		}
		m.KnowledgeGraph = kg
	}
	m.Results = make([]Result, 0, len(lm.Results))
	for _, r := range lm.Results {
		m.Results = append(m.Results, Result{
			NodeBindings: standardBindings(r.NodeBindings),
			EdgeBindings: standardBindings(r.EdgeBindings),
			Score:        r.Score,
		})
	}
	return m
}

// Legacy converts a map based message to the list based shape. Map entries
// are emitted in key order.
func Legacy(m Message) LegacyMessage {
	var lm LegacyMessage
	if m.QueryGraph != nil {
		qg := &LegacyQueryGraph{
			Nodes: make([]LegacyQNode, 0, len(m.QueryGraph.Nodes)),
			Edges: make([]LegacyQEdge, 0, len(m.QueryGraph.Edges)),
		}
		for _, id := range sortedKeys(m.QueryGraph.Nodes) {
			n := m.QueryGraph.Nodes[id]
			qg.Nodes = append(qg.Nodes, LegacyQNode{
				ID:    id,
				Curie: StringList(nonEmpty(n.IDs)),
				Type:  StringList(mapStrings(n.Categories, downCategory)),
				Set:   n.IsSet,
			})
		}
		for _, id := range sortedKeys(m.QueryGraph.Edges) {
			e := m.QueryGraph.Edges[id]
			qg.Edges = append(qg.Edges, LegacyQEdge{
				ID:       id,
				SourceID: e.Subject,
				TargetID: e.Object,
				Type:     StringList(mapStrings(e.Predicates, downPredicate)),
			})
		}
		lm.QueryGraph = qg
	}
	if m.KnowledgeGraph != nil {
		kg := &LegacyKnowledgeGraph{
			Nodes: make([]LegacyNode, 0, len(m.KnowledgeGraph.Nodes)),
			Edges: make([]LegacyEdge, 0, len(m.KnowledgeGraph.Edges)),
		}
		for _, id := range sortedKeys(m.KnowledgeGraph.Nodes) {
			n := m.KnowledgeGraph.Nodes[id]
			kg.Nodes = append(kg.Nodes, LegacyNode{
				ID:         id,
				Name:       n.Name,
				Type:       StringList(mapStrings(n.Categories, downCategory)),
				Attributes: nonEmptyAttrs(n.Attributes),
			})
		}
		for _, id := range sortedKeys(m.KnowledgeGraph.Edges) {
			e := m.KnowledgeGraph.Edges[id]
			predicate := ""
			if e.Predicate != "" {
				predicate = downPredicate(e.Predicate)
			}
			kg.Edges = append(kg.Edges, LegacyEdge{
				ID:         id,
				SourceID:   e.Subject,
				TargetID:   e.Object,
				Type:       predicate,
				Attributes: nonEmptyAttrs(e.Attributes),
			})
		}
		lm.KnowledgeGraph = kg
	}
	lm.Results = make([]LegacyResult, 0, len(m.Results))
	for _, r := range m.Results {
		lm.Results = append(lm.Results, LegacyResult{
			NodeBindings: legacyBindings(r.NodeBindings),
			EdgeBindings: legacyBindings(r.EdgeBindings),
			Score:        r.Score,
		})
	}
	return lm
}

func standardBindings(in []LegacyBinding) map[string][]Binding {
	out := make(map[string][]Binding, len(in))
	for _, b := range in {
		for _, id := range b.KgID {
			out[b.QgID] = append(out[b.QgID], Binding{ID: id})
		}
	}
	return out
}

func legacyBindings(in map[string][]Binding) []LegacyBinding {
	out := make([]LegacyBinding, 0, len(in))
	for _, qg := range sortedKeys(in) {
		ids := make(StringList, 0, len(in[qg]))
		for _, b := range in[qg] {
			ids = append(ids, b.ID)
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, LegacyBinding{QgID: qg, KgID: ids})
	}
	return out
}

// upCategory turns "chemical_substance" into "biolink:ChemicalSubstance".
// Values that already carry a prefix are kept.
func upCategory(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	var b strings.Builder
	b.WriteString(biolinkPrefix)
	for _, part := range strings.Split(v, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// downCategory is the inverse of upCategory for plain CamelCase names. Other
// values are kept so they survive a round trip.
func downCategory(v string) string {
	name, ok := strings.CutPrefix(v, biolinkPrefix)
	if !ok || name == "" || !isUpper(name[0]) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isUpper(c):
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteByte(c + ('a' - 'A'))
		case isLower(c) || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		default:
			return v
		}
	}
	return b.String()
}

func upPredicate(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return biolinkPrefix + v
}

func downPredicate(v string) string {
	name, ok := strings.CutPrefix(v, biolinkPrefix)
	if !ok || name == "" || strings.Contains(name, ":") {
		return v
	}
	return name
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

func mapStrings(in []string, f func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func nonEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}

func nonEmptyAttrs(in []Attribute) []Attribute {
	if len(in) == 0 {
		return nil
	}
	return append([]Attribute(nil), in...)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
