package reasoner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/icees-go/icees-api/internal/domain/cohort"
)

type QNode struct {
	IDs        []string `json:"ids,omitempty"`
	Categories []string `json:"categories,omitempty"`
	IsSet      bool     `json:"is_set,omitempty"`
}

type QEdge struct {
	Subject    string   `json:"subject"`
	Object     string   `json:"object"`
	Predicates []string `json:"predicates,omitempty"`
}

type QueryGraph struct {
	Nodes map[string]QNode `json:"nodes"`
	Edges map[string]QEdge `json:"edges"`
}

type Attribute struct {
	AttributeTypeID string `json:"attribute_type_id"`
	Value           any    `json:"value"`
	ValueTypeID     string `json:"value_type_id,omitempty"`
}

type Node struct {
	Name       string      `json:"name,omitempty"`
	Categories []string    `json:"categories"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type Edge struct {
	Subject    string      `json:"subject"`
	Object     string      `json:"object"`
	Predicate  string      `json:"predicate"`
	Attributes []Attribute `json:"attributes"`
}

type KnowledgeGraph struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

type Binding struct {
	ID string `json:"id"`
}

type Result struct {
	NodeBindings map[string][]Binding `json:"node_bindings"`
	EdgeBindings map[string][]Binding `json:"edge_bindings"`
	Score        float64              `json:"score"`
}

type Message struct {
	QueryGraph     *QueryGraph     `json:"query_graph,omitempty"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	Results        []Result        `json:"results"`
}

// QueryOptions selects the cohort a query is evaluated over.
type QueryOptions struct {
	Table          string          `json:"table,omitempty"`
	Year           *int            `json:"year,omitempty"`
	CohortID       string          `json:"cohort_id,omitempty"`
	CohortFeatures cohort.Features `json:"cohort_features,omitempty"`
}

type Operation struct {
	ID string `json:"id"`
}

type Query struct {
	Message      Message       `json:"message"`
	QueryOptions *QueryOptions `json:"query_options,omitempty"`
	Workflow     []Operation   `json:"workflow,omitempty"`

	// Legacy is set when the message arrived in the list based shape.
	Legacy bool `json:"-"`
}

var ErrMissingMessage = errors.New("request has no message")

// DecodeQuery parses a query body in either message shape. Legacy messages
// are standardized and flagged so the response can be converted back.
func DecodeQuery(data []byte) (*Query, error) {
	var raw struct {
		Message      json.RawMessage `json:"message"`
		QueryOptions *QueryOptions   `json:"query_options"`
		Workflow     []Operation     `json:"workflow"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	if len(bytes.TrimSpace(raw.Message)) == 0 || bytes.Equal(bytes.TrimSpace(raw.Message), []byte("null")) {
		return nil, ErrMissingMessage
	}
	q := &Query{QueryOptions: raw.QueryOptions, Workflow: raw.Workflow}

	legacy, err := isLegacyMessage(raw.Message)
	if err != nil {
		return nil, err
	}
	if legacy {
		var lm LegacyMessage
		if err := json.Unmarshal(raw.Message, &lm); err != nil {
			return nil, fmt.Errorf("decode legacy message: %w", err)
		}
		q.Message = Standardize(lm)
		q.Legacy = true
		return q, nil
	}
	if err := json.Unmarshal(raw.Message, &q.Message); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return q, nil
}

// isLegacyMessage detects list encoded graphs.
func isLegacyMessage(msg json.RawMessage) (bool, error) {
	var probe struct {
		QueryGraph *struct {
			Nodes json.RawMessage `json:"nodes"`
		} `json:"query_graph"`
		KnowledgeGraph *struct {
			Nodes json.RawMessage `json:"nodes"`
		} `json:"knowledge_graph"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return false, fmt.Errorf("decode message: %w", err)
	}
	isList := func(b json.RawMessage) bool {
		b = bytes.TrimSpace(b)
		return len(b) > 0 && b[0] == '['
	}
	if probe.QueryGraph != nil && isList(probe.QueryGraph.Nodes) {
		return true, nil
	}
	if probe.KnowledgeGraph != nil && isList(probe.KnowledgeGraph.Nodes) {
		return true, nil
	}
	return false, nil
}
