package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/platform/apierr"
)

type CatalogHandler struct {
	cat  *catalog.Catalog
	bins *catalog.Bins
}

func NewCatalogHandler(cat *catalog.Catalog, bins *catalog.Bins) *CatalogHandler {
	return &CatalogHandler{cat: cat, bins: bins}
}

// GET /:table/:feature/identifiers
func (h *CatalogHandler) Identifiers(c *gin.Context) {
	ids, err := h.cat.Identifiers(c.Param("table"), c.Param("feature"))
	if err != nil {
		response.RespondError(c, http.StatusNotFound, apierr.CodeUnknownFeature, err)
		return
	}
	if ids == nil {
		ids = []catalog.Identifier{}
	}
	response.RespondValue(c, gin.H{"identifiers": ids})
}

func optionalQuery(c *gin.Context, key string) *string {
	if v, ok := c.GetQuery(key); ok {
		return &v
	}
	return nil
}

// GET /bins?year=&table=&feature=
func (h *CatalogHandler) Bins(c *gin.Context) {
	bins := h.bins.Lookup(optionalQuery(c, "year"), optionalQuery(c, "table"), optionalQuery(c, "feature"))
	// this route has always used an underscore
	response.RespondOK(c, gin.H{"return_value": bins})
}
