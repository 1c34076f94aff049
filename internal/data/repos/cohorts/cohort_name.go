package cohorts

import (
	"errors"

	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

var ErrNameTaken = errors.New("cohort name already exists")

type CohortNameRepo interface {
	Create(dbc dbctx.Context, row *cohort.CohortName) error
	GetByName(dbc dbctx.Context, table, name string) (*cohort.CohortName, error)
}

type cohortNameRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCohortNameRepo(db *gorm.DB, baseLog *logger.Logger) CohortNameRepo {
	return &cohortNameRepo{db: db, log: baseLog.With("repo", "CohortNameRepo")}
}

func (r *cohortNameRepo) Create(dbc dbctx.Context, row *cohort.CohortName) error {
	if row == nil {
		return nil
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&cohort.CohortName{}).
			Where("table_name = ? AND name = ?", row.Table, row.Name).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrNameTaken
		}
		if err := tx.Create(row).Error; err != nil {
			// a concurrent insert won the race past the count
			if isUniqueViolation(err) {
				return ErrNameTaken
			}
			return err
		}
		return nil
	})
}

// GetByName returns nil when the name is not registered.
func (r *cohortNameRepo) GetByName(dbc dbctx.Context, table, name string) (*cohort.CohortName, error) {
	var row cohort.CohortName
	err := dbc.DB(r.db).
		Where("table_name = ? AND name = ?", table, name).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
