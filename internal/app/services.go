package app

import (
	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/reasoner"
	"github.com/icees-go/icees-api/internal/services"
)

type Services struct {
	Metrics      *observability.Metrics
	Cohorts      services.CohortService
	Associations services.AssociationService
	Reasoner     *reasoner.Service
}

func wireServices(log *logger.Logger, cfg *config.Config, cat *catalog.Catalog, clients Clients, r Repos) Services {
	log.Info("Wiring services...")

	var metrics *observability.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = observability.NewMetrics(cfg.Telemetry.ServiceName)
	}

	cohorts := services.NewCohortService(log, r.Cohorts, r.Names, r.Records, cat, cfg.Cohort)
	assoc := services.NewAssociationService(log, r.Records, cat, clients.AssociationCache, metrics, cfg.Cohort)
	rs := reasoner.NewService(log, cat, assoc, cohorts, metrics, cfg.Reasoner, cfg.Cohort.DefaultTable)

	return Services{
		Metrics:      metrics,
		Cohorts:      cohorts,
		Associations: assoc,
		Reasoner:     rs,
	}
}
