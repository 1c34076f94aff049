package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/ctxutil"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/services"
)

const invalidCohortIDMessage = "Input cohort_id invalid. Please try again."

// respondServiceError reports a service failure. Invalid and unknown cohorts
// are answered with a message as the return value, as existing clients expect.
func respondServiceError(c *gin.Context, log *logger.Logger, cohorts services.CohortService, err error) {
	switch {
	case errors.Is(err, services.ErrCohortInvalid):
		response.RespondValue(c, cohorts.InvalidMessage())
		return
	case errors.Is(err, repos.ErrCohortNotFound):
		response.RespondValue(c, invalidCohortIDMessage)
		return
	case errors.Is(err, repos.ErrNameTaken):
		err = apierr.Conflict("name_taken", err)
	case errors.Is(err, services.ErrNotComputable):
		err = apierr.Unprocessable(err)
	case errors.Is(err, catalog.ErrUnknownTable), errors.Is(err, catalog.ErrUnknownFeature):
		err = apierr.NotFound(apierr.CodeUnknownFeature, err)
	}
	if apierr.IsServerError(err) && log != nil {
		log.Error("request failed", append([]any{"route", c.FullPath(), "error", err}, ctxutil.Fields(c.Request.Context())...)...)
		c.Error(err)
	}
	response.RespondAPIError(c, err, apierr.CodeBackendUnavailable)
}
