package reasoner

import "time"

const datetimeLayout = "2006-01-02 15:04:05"

type Response struct {
	Message     Message `json:"message"`
	MessageCode string  `json:"message_code"`
	ToolVersion string  `json:"tool_version"`
	Datetime    string  `json:"datetime"`
	Description string  `json:"description,omitempty"`
}

type LegacyResponse struct {
	Message     LegacyMessage `json:"message"`
	MessageCode string        `json:"message_code"`
	ToolVersion string        `json:"tool_version"`
	Datetime    string        `json:"datetime"`
	Description string        `json:"description,omitempty"`
}

type Envelope struct {
	ToolVersion string
	Now         func() time.Time
}

// Wrap builds a successful response around the assembled graph.
func (e Envelope) Wrap(qg *QueryGraph, kg *KnowledgeGraph, results []Result, description string) *Response {
	if results == nil {
		results = []Result{}
	}
	return &Response{
		Message:     Message{QueryGraph: qg, KnowledgeGraph: kg, Results: results},
		MessageCode: CodeOK,
		ToolVersion: e.ToolVersion,
		Datetime:    e.now().Format(datetimeLayout),
		Description: description,
	}
}

// Fail echoes the query graph with an empty knowledge graph and the
// diagnostic code of a structural error.
func (e Envelope) Fail(qg *QueryGraph, serr *StructureError) *Response {
	r := e.Wrap(qg, &KnowledgeGraph{Nodes: map[string]Node{}, Edges: map[string]Edge{}}, nil, serr.Detail)
	r.MessageCode = serr.Code
	return r
}

func (e Envelope) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Legacy converts the response to the list based message shape.
func (r *Response) Legacy() *LegacyResponse {
	return &LegacyResponse{
		Message:     Legacy(r.Message),
		MessageCode: r.MessageCode,
		ToolVersion: r.ToolVersion,
		Datetime:    r.Datetime,
		Description: r.Description,
	}
}
