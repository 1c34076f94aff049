package reasoner

import (
	"errors"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/services"
)

// Backend computes the contingency table of two features over a cohort.
// services.ErrNotComputable marks an expected absence.
type Backend interface {
	FeatureAssociation(dbc dbctx.Context, ref cohort.Ref, a, b cohort.FeatureSpec) (*services.FeatureMatrix, error)
}

// Concept is a concrete identifier with its category and the feature it
// measures in the cohort's table. Feature is empty for unknown identifiers.
type Concept struct {
	ID       string
	Category string
	Feature  string
}

type Association struct {
	Subject Concept
	Object  Concept
	Matrix  *services.FeatureMatrix
	// Source is the supporting data source label.
	Source string
}

func (a *Association) PValue() float64   { return a.Matrix.PValue }
func (a *Association) Significant() bool { return a.Matrix.Significant() }

type Resolver struct {
	backend Backend
	source  func(table string) string
}

func NewResolver(backend Backend, source func(table string) string) *Resolver {
	return &Resolver{backend: backend, source: source}
}

// Resolve returns nil, nil when no association is computable for the pair.
// Only backend failures are returned as errors.
func (r *Resolver) Resolve(dbc dbctx.Context, ref cohort.Ref, a, b Concept) (*Association, error) {
	if a.Feature == "" || b.Feature == "" {
		return nil, nil
	}
	m, err := r.backend.FeatureAssociation(dbc, ref, cohort.Whole(a.Feature), cohort.Whole(b.Feature))
	if errors.Is(err, services.ErrNotComputable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Association{Subject: a, Object: b, Matrix: m, Source: r.source(ref.Table)}, nil
}
