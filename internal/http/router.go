package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/icees-go/icees-api/internal/http/handlers"
	httpMW "github.com/icees-go/icees-api/internal/http/middleware"
	"github.com/icees-go/icees-api/internal/http/response"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics

	AllowOrigins    []string
	MaxRequestBytes int64
	APIKey          *httpMW.APIKeyMiddleware

	HealthHandler      *httpH.HealthHandler
	CohortHandler      *httpH.CohortHandler
	AssociationHandler *httpH.AssociationHandler
	CatalogHandler     *httpH.CatalogHandler
	ReasonerHandler    *httpH.ReasonerHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/")
	if cfg.APIKey != nil {
		protected.Use(cfg.APIKey.RequireKey())
	}

	// Reasoner
	if h := cfg.ReasonerHandler; h != nil {
		protected.POST("/query", h.OneHop(true))
		protected.POST("/knowledge_graph_one_hop", deprecated, h.OneHop(true))
		protected.POST("/knowledge_graph", h.OneHop(false))
		protected.POST("/knowledge_graph_overlay", h.Overlay)
		protected.GET("/knowledge_graph/schema", h.Schema)
		protected.GET("/predicates", h.Predicates)
	}

	// Catalog
	if h := cfg.CatalogHandler; h != nil {
		protected.GET("/bins", h.Bins)
		protected.GET("/:table/:feature/identifiers", h.Identifiers)
	}

	// Cohorts
	if h := cfg.CohortHandler; h != nil {
		protected.POST("/:table/cohort", h.Discover)
		protected.GET("/:table/cohort/dictionary", h.Dictionary)
		protected.PUT("/:table/cohort/:cohort_id", h.Edit)
		protected.GET("/:table/cohort/:cohort_id", h.Get)
		protected.GET("/:table/cohort/:cohort_id/features", h.Features)
		protected.GET("/:table/name/:name", h.GetName)
		protected.POST("/:table/name/:name", h.AddName)
	}

	// Associations
	if h := cfg.AssociationHandler; h != nil {
		protected.POST("/:table/cohort/:cohort_id/feature_association", h.FeatureAssociation)
		protected.POST("/:table/cohort/:cohort_id/feature_association2", h.FeatureAssociation2)
		protected.POST("/:table/cohort/:cohort_id/associations_to_all_features", h.AssociationsToAllFeatures)
		protected.POST("/:table/cohort/:cohort_id/associations_to_all_features2", h.AssociationsToAllFeatures2)
	}

	r.NoRoute(func(c *gin.Context) {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})
	return r
}

func deprecated(c *gin.Context) {
	c.Header("Deprecation", "true")
	c.Next()
}
