package repos

import (
	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/data/repos/cohorts"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type CohortRepo = cohorts.CohortRepo
type CohortNameRepo = cohorts.CohortNameRepo
type RecordRepo = cohorts.RecordRepo
type ValueCount = cohorts.ValueCount
type PairCount = cohorts.PairCount

var (
	ErrCohortNotFound = cohorts.ErrCohortNotFound
	ErrNameTaken      = cohorts.ErrNameTaken
)

// Repos is the set of repositories the services are built from.
type Repos struct {
	Cohorts CohortRepo
	Names   CohortNameRepo
	Records RecordRepo
}

func New(db *gorm.DB, cat *catalog.Catalog, log *logger.Logger) Repos {
	return Repos{
		Cohorts: cohorts.NewCohortRepo(db, log),
		Names:   cohorts.NewCohortNameRepo(db, log),
		Records: cohorts.NewRecordRepo(db, cat, log),
	}
}
