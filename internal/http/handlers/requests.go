package handlers

import (
	"errors"
	"fmt"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/stats"
)

// qualifiedFeature is {"<feature>": qualifier}.
type qualifiedFeature map[string]cohort.Qualifier

// binnedFeature is {"<feature>": [qualifier, ...]}.
type binnedFeature map[string][]cohort.Qualifier

func (f qualifiedFeature) spec() (cohort.FeatureSpec, error) {
	if len(f) != 1 {
		return cohort.FeatureSpec{}, fmt.Errorf("expected exactly one feature, got %d", len(f))
	}
	var spec cohort.FeatureSpec
	for name, q := range f {
		spec = cohort.FeatureSpec{Name: name, Bins: []cohort.Qualifier{q}, Binary: true}
	}
	return spec, nil
}

func (f binnedFeature) spec() (cohort.FeatureSpec, error) {
	if len(f) != 1 {
		return cohort.FeatureSpec{}, fmt.Errorf("expected exactly one feature, got %d", len(f))
	}
	var spec cohort.FeatureSpec
	for name, bins := range f {
		spec = cohort.FeatureSpec{Name: name, Bins: bins}
	}
	if len(spec.Bins) == 0 {
		return cohort.FeatureSpec{}, errors.New("feature " + spec.Name + " needs at least one bin")
	}
	return spec, nil
}

type correctionRequest struct {
	Method string `json:"method"`
}

func (c *correctionRequest) parse() (stats.Correction, error) {
	if c == nil {
		return stats.CorrectionNone, nil
	}
	return stats.ParseCorrection(c.Method)
}

type featureAssociationRequest struct {
	FeatureA qualifiedFeature `json:"feature_a" binding:"required"`
	FeatureB qualifiedFeature `json:"feature_b" binding:"required"`
}

type featureAssociation2Request struct {
	FeatureA            binnedFeature `json:"feature_a" binding:"required"`
	FeatureB            binnedFeature `json:"feature_b" binding:"required"`
	CheckCoverageIsFull bool          `json:"check_coverage_is_full"`
}

type allFeaturesRequest struct {
	Feature       qualifiedFeature   `json:"feature" binding:"required"`
	MaximumPValue *float64           `json:"maximum_p_value" binding:"omitempty,gte=0,lte=1"`
	Correction    *correctionRequest `json:"correction"`
}

type allFeatures2Request struct {
	Feature             binnedFeature      `json:"feature" binding:"required"`
	MaximumPValue       *float64           `json:"maximum_p_value" binding:"required,gte=0,lte=1"`
	Correction          *correctionRequest `json:"correction"`
	CheckCoverageIsFull bool               `json:"check_coverage_is_full"`
}

type addNameRequest struct {
	CohortID string `json:"cohort_id" binding:"required"`
}
