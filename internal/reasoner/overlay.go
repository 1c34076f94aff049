package reasoner

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
)

// Overlay connects every unordered pair of knowledge graph nodes with a
// correlated_with support edge when an association is computable. Results
// and existing edges pass through unchanged.
func (s *Service) Overlay(dbc dbctx.Context, q *Query) (*Response, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctxOf(dbc), "reasoner.overlay")
	defer span.End()
	dbc.Ctx = ctx

	if err := CheckWorkflow(q.Workflow, WorkflowLookup, WorkflowOverlay); err != nil {
		return nil, err
	}
	kg := q.Message.KnowledgeGraph
	if kg == nil || len(kg.Nodes) == 0 {
		return s.envelope.Fail(q.Message.QueryGraph, &StructureError{
			Code:   CodeKnowledgeGraphEmpty,
			Detail: "overlay needs a knowledge_graph with nodes",
		}), nil
	}

	ref, err := s.cohortRef(dbc, q.QueryOptions)
	if err != nil {
		return nil, err
	}

	ids := sortedKeys(kg.Nodes)
	concepts := make([]Concept, len(ids))
	for i, id := range ids {
		c := Concept{ID: id, Category: CategoryNamedThing}
		if category, ok := s.catalog.Category(ref.Table, id); ok {
			c.Category = category
			c.Feature, _ = s.catalog.FeatureFor(ref.Table, id)
		} else if cats := kg.Nodes[id].Categories; len(cats) > 0 {
			c.Category = cats[0]
		}
		concepts[i] = c
	}

	asm := NewAssembler(s.cfg.InforesCurie)
	asm.Seed(kg)
	evaluated, added, truncated := 0, 0, false
pairs:
	for i := 0; i < len(concepts); i++ {
		for j := i + 1; j < len(concepts); j++ {
			a, b := concepts[i], concepts[j]
			if a.Feature == "" || b.Feature == "" || a.Feature == b.Feature {
				continue
			}
			if evaluated >= s.cfg.MaxPairs {
				truncated = true
				break pairs
			}
			evaluated++
			assoc, err := s.resolver.Resolve(dbc, ref, a, b)
			if err != nil {
				failSpan(span, err)
				s.metrics.ObserveQuery("overlay", "error", evaluated, time.Since(start))
				return nil, apierr.Unavailable(err)
			}
			if assoc == nil {
				continue
			}
			asm.AddEdge(assoc, a.ID, b.ID)
			added++
		}
	}

	description, outcome := "", "ok"
	if truncated {
		outcome = "truncated"
		description = fmt.Sprintf("evaluated the first %d node pairs only", evaluated)
	}
	span.SetAttributes(attribute.Int("reasoner.pairs", evaluated), attribute.Int("reasoner.edges_added", added))
	s.metrics.ObserveQuery("overlay", outcome, evaluated, time.Since(start))
	return s.envelope.Wrap(q.Message.QueryGraph, asm.KnowledgeGraph(), q.Message.Results, description), nil
}
