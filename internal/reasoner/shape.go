package reasoner

import "fmt"

// Structural diagnostic codes reported in message_code.
const (
	CodeOK                   = "OK"
	CodeQueryGraphInvalid    = "QueryGraphInvalid"
	CodeUnsupportedNodeCount = "UnsupportedNodeCount"
	CodeUnsupportedEdgeCount = "UnsupportedEdgeCount"
	CodeUnknownNode          = "UnknownNodeReference"
	CodeMissingPredicate     = "MissingPredicate"
	CodeKnowledgeGraphEmpty  = "KnowledgeGraphEmpty"
)

// StructureError is a malformed but parseable query. It is answered with an
// empty envelope, never a transport failure.
type StructureError struct {
	Code   string
	Detail string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Shape says which side of the edge the caller pinned by id.
type Shape int

const (
	NeitherPinned Shape = iota
	SubjectPinned
	ObjectPinned
	BothPinned
)

func (s Shape) String() string {
	switch s {
	case BothPinned:
		return "both_pinned"
	case SubjectPinned:
		return "subject_pinned"
	case ObjectPinned:
		return "object_pinned"
	default:
		return "neither_pinned"
	}
}

// OneHop is a validated one-hop query graph.
type OneHop struct {
	SubjectKey string
	ObjectKey  string
	EdgeKey    string
	Subject    QNode
	Object     QNode
	Predicates []string
	Shape      Shape
}

// ParseOneHop validates the query graph and classifies its shape.
func ParseOneHop(qg *QueryGraph) (*OneHop, error) {
	if qg == nil {
		return nil, &StructureError{Code: CodeQueryGraphInvalid, Detail: "message has no query_graph"}
	}
	if len(qg.Nodes) != 2 {
		return nil, &StructureError{Code: CodeUnsupportedNodeCount, Detail: fmt.Sprintf("one-hop queries need 2 nodes, got %d", len(qg.Nodes))}
	}
	if len(qg.Edges) != 1 {
		return nil, &StructureError{Code: CodeUnsupportedEdgeCount, Detail: fmt.Sprintf("one-hop queries need 1 edge, got %d", len(qg.Edges))}
	}
	var (
		edgeKey string
		edge    QEdge
	)
	for k, e := range qg.Edges {
		edgeKey, edge = k, e
	}
	subject, ok := qg.Nodes[edge.Subject]
	if !ok {
		return nil, &StructureError{Code: CodeUnknownNode, Detail: fmt.Sprintf("edge %s subject %q is not a query node", edgeKey, edge.Subject)}
	}
	object, ok := qg.Nodes[edge.Object]
	if !ok {
		return nil, &StructureError{Code: CodeUnknownNode, Detail: fmt.Sprintf("edge %s object %q is not a query node", edgeKey, edge.Object)}
	}
	if edge.Subject == edge.Object {
		return nil, &StructureError{Code: CodeQueryGraphInvalid, Detail: fmt.Sprintf("edge %s must connect both nodes", edgeKey)}
	}
	if len(edge.Predicates) == 0 {
		return nil, &StructureError{Code: CodeMissingPredicate, Detail: fmt.Sprintf("edge %s declares no predicates", edgeKey)}
	}

	shape := NeitherPinned
	switch {
	case len(subject.IDs) > 0 && len(object.IDs) > 0:
		shape = BothPinned
	case len(subject.IDs) > 0:
		shape = SubjectPinned
	case len(object.IDs) > 0:
		shape = ObjectPinned
	}
	return &OneHop{
		SubjectKey: edge.Subject,
		ObjectKey:  edge.Object,
		EdgeKey:    edgeKey,
		Subject:    subject,
		Object:     object,
		Predicates: edge.Predicates,
		Shape:      shape,
	}, nil
}

func (h *OneHop) subjectPinned() bool { return h.Shape == BothPinned || h.Shape == SubjectPinned }
func (h *OneHop) objectPinned() bool  { return h.Shape == BothPinned || h.Shape == ObjectPinned }
