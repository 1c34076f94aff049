package db

import (
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"gorm.io/gorm"
)

// AutoMigrateAll creates the service-owned tables. Clinical record tables are
// provisioned by the data loader and are never migrated here.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&cohort.Cohort{},
		&cohort.CohortName{},
	)
}
