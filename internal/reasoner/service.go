package reasoner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

const (
	WorkflowLookup  = "lookup"
	WorkflowOverlay = "overlay_connect_knodes"

	invalidCohortMessage = "Input cohort_id invalid. Please try again."
)

// CohortSource resolves saved cohorts named in query options.
type CohortSource interface {
	Definition(dbc dbctx.Context, table, cohortID string) (cohort.Ref, error)
}

// FeatureCatalog is the catalog view the service needs beyond expansion.
type FeatureCatalog interface {
	Catalog
	Feature(table, name string) (catalog.Feature, error)
}

type Service struct {
	log          *logger.Logger
	schema       *Schema
	catalog      FeatureCatalog
	cohorts      CohortSource
	expander     *Expander
	resolver     *Resolver
	envelope     Envelope
	metrics      *observability.Metrics
	cfg          config.ReasonerConfig
	defaultTable string
}

// NewService wires the one-hop engine. metrics may be nil.
func NewService(
	baseLog *logger.Logger,
	cat FeatureCatalog,
	backend Backend,
	cohorts CohortSource,
	metrics *observability.Metrics,
	cfg config.ReasonerConfig,
	defaultTable string,
) *Service {
	s := &Service{
		log:          baseLog.With("service", "ReasonerService"),
		schema:       DefaultSchema,
		catalog:      cat,
		cohorts:      cohorts,
		envelope:     Envelope{ToolVersion: cfg.ToolVersion},
		metrics:      metrics,
		cfg:          cfg,
		defaultTable: defaultTable,
	}
	s.resolver = NewResolver(backend, s.supportingSource)
	s.expander = NewExpander(s.schema, cat, s.resolver, cfg.MaxPairs)
	return s
}

func (s *Service) Schema() *Schema { return s.schema }

// SetClock overrides the envelope timestamp source.
func (s *Service) SetClock(now func() time.Time) { s.envelope.Now = now }

func (s *Service) supportingSource(table string) string {
	return s.cfg.InforesCurie + "-" + table
}

// CheckWorkflow rejects operations other than the allowed ones.
func CheckWorkflow(ops []Operation, allowed ...string) error {
	for _, op := range ops {
		ok := false
		for _, a := range allowed {
			if op.ID == a {
				ok = true
				break
			}
		}
		if !ok {
			return apierr.BadRequest("unsupported_workflow",
				fmt.Errorf("workflow operation %q is not supported", op.ID))
		}
	}
	return nil
}

// OneHop answers a one-hop query. Structural problems and empty matches are
// reported inside the envelope; only backend failures return an error.
func (s *Service) OneHop(dbc dbctx.Context, q *Query) (*Response, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctxOf(dbc), "reasoner.one_hop")
	defer span.End()
	dbc.Ctx = ctx

	if err := CheckWorkflow(q.Workflow, WorkflowLookup); err != nil {
		return nil, err
	}
	qg := q.Message.QueryGraph
	hop, err := ParseOneHop(qg)
	if err != nil {
		var serr *StructureError
		if errors.As(err, &serr) {
			span.SetAttributes(attribute.String("reasoner.message_code", serr.Code))
			s.metrics.ObserveQuery("invalid", "invalid", 0, time.Since(start))
			s.log.Debug("structural query error", "code", serr.Code, "detail", serr.Detail)
			return s.envelope.Fail(qg, serr), nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("reasoner.shape", hop.Shape.String()))

	ref, err := s.cohortRef(dbc, q.QueryOptions)
	if err != nil {
		return nil, err
	}

	exp, err := s.expander.Expand(dbc, ref, hop)
	if err != nil {
		failSpan(span, err)
		s.metrics.ObserveQuery(hop.Shape.String(), "error", 0, time.Since(start))
		return nil, apierr.Unavailable(err)
	}

	asm := NewAssembler(s.cfg.InforesCurie)
	for _, assoc := range exp.Associations {
		asm.Add(assoc, hop, exp.Directional)
	}

	outcome, description := "ok", ""
	switch {
	case exp.Truncated:
		outcome = "truncated"
		description = fmt.Sprintf("evaluated the first %d candidate pairs only", exp.Evaluated)
		s.log.Warn("one-hop pair cap reached", "max_pairs", s.cfg.MaxPairs, "shape", hop.Shape.String())
	case len(exp.Associations) == 0:
		outcome = "empty"
	}
	span.SetAttributes(
		attribute.Int("reasoner.pairs", exp.Evaluated),
		attribute.Int("reasoner.results", len(exp.Associations)),
	)
	s.metrics.ObserveQuery(hop.Shape.String(), outcome, exp.Evaluated, time.Since(start))
	return s.envelope.Wrap(qg, asm.KnowledgeGraph(), asm.Results(), description), nil
}

// cohortRef turns query options into the filter the backend evaluates.
func (s *Service) cohortRef(dbc dbctx.Context, opts *QueryOptions) (cohort.Ref, error) {
	table := s.defaultTable
	if opts == nil {
		return cohort.Ref{Table: table}, nil
	}
	if opts.Table != "" {
		table = opts.Table
	}
	if opts.CohortID != "" {
		ref, err := s.cohorts.Definition(dbc, table, opts.CohortID)
		if errors.Is(err, repos.ErrCohortNotFound) {
			return cohort.Ref{}, apierr.BadRequest("invalid_cohort", errors.New(invalidCohortMessage))
		}
		return ref, err
	}
	if err := opts.CohortFeatures.Validate(); err != nil {
		return cohort.Ref{}, apierr.BadRequest("invalid_cohort_features", err)
	}
	for _, name := range opts.CohortFeatures.Names() {
		if _, err := s.catalog.Feature(table, name); err != nil {
			return cohort.Ref{}, apierr.BadRequest("invalid_cohort_features", err)
		}
	}
	return cohort.Ref{Table: table, Year: opts.Year, Features: opts.CohortFeatures}, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}
