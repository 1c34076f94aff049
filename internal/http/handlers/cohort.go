package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/services"
)

type CohortHandler struct {
	log     *logger.Logger
	cohorts services.CohortService
}

func NewCohortHandler(log *logger.Logger, cohorts services.CohortService) *CohortHandler {
	return &CohortHandler{log: log.With("handler", "CohortHandler"), cohorts: cohorts}
}

// bindFeatures reads a cohort definition. An empty body selects the whole table.
func bindFeatures(c *gin.Context) (cohort.Features, error) {
	features := cohort.Features{}
	if err := c.ShouldBindJSON(&features); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return features, nil
}

func queryYear(c *gin.Context) (*int, error) {
	raw := c.Query("year")
	if raw == "" {
		return nil, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &year, nil
}

func dbcOf(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

// POST /:table/cohort
func (h *CohortHandler) Discover(c *gin.Context) {
	features, err := bindFeatures(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	year, err := queryYear(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_year", err)
		return
	}
	info, err := h.cohorts.Discover(dbcOf(c), c.Param("table"), year, features)
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, info)
}

// GET /:table/cohort/dictionary
func (h *CohortHandler) Dictionary(c *gin.Context) {
	entries, err := h.cohorts.Dictionary(dbcOf(c), c.Param("table"))
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, entries)
}

// PUT /:table/cohort/:cohort_id
func (h *CohortHandler) Edit(c *gin.Context) {
	features, err := bindFeatures(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	info, err := h.cohorts.Edit(dbcOf(c), c.Param("table"), c.Param("cohort_id"), features)
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, info)
}

// GET /:table/cohort/:cohort_id
func (h *CohortHandler) Get(c *gin.Context) {
	row, err := h.cohorts.Get(dbcOf(c), c.Param("table"), c.Param("cohort_id"))
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	features, err := row.DecodeFeatures()
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, services.DictionaryEntry{CohortID: row.CohortID, Features: features, Size: row.Size})
}

// GET /:table/cohort/:cohort_id/features
func (h *CohortHandler) Features(c *gin.Context) {
	profile, err := h.cohorts.FeatureProfile(dbcOf(c), c.Param("table"), c.Param("cohort_id"))
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, profile)
}

// GET /:table/name/:name
func (h *CohortHandler) GetName(c *gin.Context) {
	info, err := h.cohorts.GetName(dbcOf(c), c.Param("table"), c.Param("name"))
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	if info == nil {
		response.RespondError(c, http.StatusNotFound, "name_not_found", errors.New("no cohort is named "+c.Param("name")))
		return
	}
	response.RespondValue(c, info)
}

// POST /:table/name/:name
func (h *CohortHandler) AddName(c *gin.Context) {
	var req addNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	info, err := h.cohorts.AddName(dbcOf(c), c.Param("table"), c.Param("name"), req.CohortID)
	if err != nil {
		respondServiceError(c, h.log, h.cohorts, err)
		return
	}
	response.RespondValue(c, info)
}
