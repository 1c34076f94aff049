package app

import (
	"github.com/icees-go/icees-api/internal/catalog"
	httpH "github.com/icees-go/icees-api/internal/http/handlers"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Cohort      *httpH.CohortHandler
	Association *httpH.AssociationHandler
	Catalog     *httpH.CatalogHandler
	Reasoner    *httpH.ReasonerHandler
}

func wireHandlers(log *logger.Logger, s Services, cat *catalog.Catalog, bins *catalog.Bins, db httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(db),
		Cohort:      httpH.NewCohortHandler(log, s.Cohorts),
		Association: httpH.NewAssociationHandler(log, s.Cohorts, s.Associations),
		Catalog:     httpH.NewCatalogHandler(cat, bins),
		Reasoner:    httpH.NewReasonerHandler(log, s.Reasoner),
	}
}
