package app

import (
	"github.com/icees-go/icees-api/internal/config"
	httpx "github.com/icees-go/icees-api/internal/http"
	httpMW "github.com/icees-go/icees-api/internal/http/middleware"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type Middleware struct {
	APIKey *httpMW.APIKeyMiddleware
}

func wireMiddleware(log *logger.Logger, cfg *config.Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.Auth.APIKey == "" {
		log.Warn("API_KEY is not set; requests are not authenticated")
	}
	return Middleware{
		APIKey: httpMW.NewAPIKeyMiddleware(log, cfg.Auth.APIKey, cfg.Auth.APIKeyName),
	}
}

func routerConfig(log *logger.Logger, cfg *config.Config, s Services, h Handlers, mw Middleware) httpx.RouterConfig {
	return httpx.RouterConfig{
		Log:                log,
		ServiceName:        cfg.Telemetry.ServiceName,
		Metrics:            s.Metrics,
		AllowOrigins:       cfg.HTTP.AllowOrigins,
		MaxRequestBytes:    cfg.HTTP.MaxRequestBytes,
		APIKey:             mw.APIKey,
		HealthHandler:      h.Health,
		CohortHandler:      h.Cohort,
		AssociationHandler: h.Association,
		CatalogHandler:     h.Catalog,
		ReasonerHandler:    h.Reasoner,
	}
}
