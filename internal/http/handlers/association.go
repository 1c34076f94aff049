package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/services"
	"github.com/icees-go/icees-api/internal/stats"
)

type AssociationHandler struct {
	log     *logger.Logger
	cohorts services.CohortService
	assoc   services.AssociationService
}

func NewAssociationHandler(log *logger.Logger, cohorts services.CohortService, assoc services.AssociationService) *AssociationHandler {
	return &AssociationHandler{
		log:     log.With("handler", "AssociationHandler"),
		cohorts: cohorts,
		assoc:   assoc,
	}
}

func (h *AssociationHandler) cohortRef(c *gin.Context) (cohort.Ref, bool) {
	ref, err := h.cohorts.Definition(dbcOf(c), c.Param("table"), c.Param("cohort_id"))
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return cohort.Ref{}, false
	}
	return ref, true
}

func (h *AssociationHandler) checkCoverage(c *gin.Context, ref cohort.Ref, specs ...cohort.FeatureSpec) bool {
	for _, spec := range specs {
		if err := h.assoc.CheckCoverage(dbcOf(c), ref, spec); err != nil {
			respondServiceError(c, h.log, h.cohorts, err)
			return false
		}
	}
	return true
}

func (h *AssociationHandler) pair(c *gin.Context, ref cohort.Ref, a, b cohort.FeatureSpec) {
	m, err := h.assoc.FeatureAssociation(dbcOf(c), ref, a, b)
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, m)
}

// POST /:table/cohort/:cohort_id/feature_association
func (h *AssociationHandler) FeatureAssociation(c *gin.Context) {
	var req featureAssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	a, err := req.FeatureA.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	b, err := req.FeatureB.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	ref, ok := h.cohortRef(c)
	if !ok {
		return
	}
	h.pair(c, ref, a, b)
}

// POST /:table/cohort/:cohort_id/feature_association2
func (h *AssociationHandler) FeatureAssociation2(c *gin.Context) {
	var req featureAssociation2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	a, err := req.FeatureA.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	b, err := req.FeatureB.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	ref, ok := h.cohortRef(c)
	if !ok {
		return
	}
	if req.CheckCoverageIsFull && !h.checkCoverage(c, ref, a, b) {
		return
	}
	h.pair(c, ref, a, b)
}

func (h *AssociationHandler) toAll(c *gin.Context, feature cohort.FeatureSpec, maxP float64, correction stats.Correction, checkCoverage bool) {
	ref, ok := h.cohortRef(c)
	if !ok {
		return
	}
	if checkCoverage && !h.checkCoverage(c, ref, feature) {
		return
	}
	matrices, err := h.assoc.AssociationsToAllFeatures(dbcOf(c), ref, feature, maxP, correction)
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, matrices)
}

// POST /:table/cohort/:cohort_id/associations_to_all_features
func (h *AssociationHandler) AssociationsToAllFeatures(c *gin.Context) {
	var req allFeaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	feature, err := req.Feature.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	correction, err := req.Correction.parse()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correction", err)
		return
	}
	maxP := 1.0
	if req.MaximumPValue != nil {
		maxP = *req.MaximumPValue
	}
	h.toAll(c, feature, maxP, correction, false)
}

// POST /:table/cohort/:cohort_id/associations_to_all_features2
func (h *AssociationHandler) AssociationsToAllFeatures2(c *gin.Context) {
	var req allFeatures2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	feature, err := req.Feature.spec()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_feature", err)
		return
	}
	correction, err := req.Correction.parse()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_correction", err)
		return
	}
	h.toAll(c, feature, *req.MaximumPValue, correction, req.CheckCoverageIsFull)
}
