package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/ctxutil"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/reasoner"
)

type ReasonerHandler struct {
	log *logger.Logger
	svc *reasoner.Service
}

func NewReasonerHandler(log *logger.Logger, svc *reasoner.Service) *ReasonerHandler {
	return &ReasonerHandler{log: log.With("handler", "ReasonerHandler"), svc: svc}
}

type queryFunc func(dbctx.Context, *reasoner.Query) (*reasoner.Response, error)

// reasonerFlag reads ?reasoner=; true answers with the bare envelope, false
// wraps it in {"return value": ...}.
func reasonerFlag(c *gin.Context, def bool) (bool, error) {
	raw, ok := c.GetQuery("reasoner")
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func (h *ReasonerHandler) serve(c *gin.Context, run queryFunc, defaultReasoner bool) {
	bare, err := reasonerFlag(c, defaultReasoner)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "request_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	q, err := reasoner.DecodeQuery(body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", err)
		return
	}

	resp, err := run(dbcOf(c), q)
	if err != nil {
		if apierr.IsServerError(err) {
			h.log.Error("reasoner query failed", append([]any{"route", c.FullPath(), "error", err}, ctxutil.Fields(c.Request.Context())...)...)
			c.Error(err)
		}
		response.RespondAPIError(c, err, apierr.CodeBackendUnavailable)
		return
	}

	var payload any = resp
	if q.Legacy {
		payload = resp.Legacy()
	}
	if !bare {
		response.RespondValue(c, payload)
		return
	}
	response.RespondOK(c, payload)
}

// OneHop answers /query and the deprecated /knowledge_graph_one_hop
// (defaultReasoner true) as well as /knowledge_graph (false).
func (h *ReasonerHandler) OneHop(defaultReasoner bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.serve(c, h.svc.OneHop, defaultReasoner)
	}
}

// POST /knowledge_graph_overlay
func (h *ReasonerHandler) Overlay(c *gin.Context) {
	h.serve(c, h.svc.Overlay, false)
}

// GET /knowledge_graph/schema
func (h *ReasonerHandler) Schema(c *gin.Context) {
	bare, err := reasonerFlag(c, false)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	schema := h.svc.Schema().CohortSchema()
	if !bare {
		response.RespondValue(c, schema)
		return
	}
	response.RespondOK(c, schema)
}

// GET /predicates
func (h *ReasonerHandler) Predicates(c *gin.Context) {
	response.RespondOK(c, h.svc.Schema().Schema())
}
