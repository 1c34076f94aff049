package cohorts

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

var ErrCohortNotFound = errors.New("cohort not found")

type CohortRepo interface {
	Create(dbc dbctx.Context, row *cohort.Cohort) (*cohort.Cohort, error)
	Update(dbc dbctx.Context, row *cohort.Cohort) error
	GetByCohortID(dbc dbctx.Context, table, cohortID string) (*cohort.Cohort, error)
	FindByDefinition(dbc dbctx.Context, table string, year *int, featuresKey string) (*cohort.Cohort, error)
	ListByTable(dbc dbctx.Context, table string) ([]*cohort.Cohort, error)
}

type cohortRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCohortRepo(db *gorm.DB, baseLog *logger.Logger) CohortRepo {
	return &cohortRepo{db: db, log: baseLog.With("repo", "CohortRepo")}
}

// Create inserts the row and assigns its public id COHORT:<n> from the
// autoincrement key, inside one transaction.
func (r *cohortRepo) Create(dbc dbctx.Context, row *cohort.Cohort) (*cohort.Cohort, error) {
	if row == nil {
		return nil, errors.New("cohort required")
	}
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		row.CohortID = "pending:" + uuid.NewString()
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		row.CohortID = fmt.Sprintf("COHORT:%d", row.ID)
		return tx.Model(row).Update("cohort_id", row.CohortID).Error
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("cohort created", "cohort_id", row.CohortID, "table", row.Table, "size", row.Size)
	return row, nil
}

func (r *cohortRepo) Update(dbc dbctx.Context, row *cohort.Cohort) error {
	if row == nil || row.ID == 0 {
		return errors.New("persisted cohort required")
	}
	return dbc.DB(r.db).Model(&cohort.Cohort{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"year":         row.Year,
			"features":     row.Features,
			"features_key": row.FeaturesKey,
			"size":         row.Size,
		}).Error
}

func (r *cohortRepo) GetByCohortID(dbc dbctx.Context, table, cohortID string) (*cohort.Cohort, error) {
	var row cohort.Cohort
	err := dbc.DB(r.db).
		Where("cohort_id = ? AND table_name = ?", cohortID, table).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCohortNotFound, cohortID)
		}
		return nil, err
	}
	return &row, nil
}

// FindByDefinition returns the cohort with an identical definition, or nil.
func (r *cohortRepo) FindByDefinition(dbc dbctx.Context, table string, year *int, featuresKey string) (*cohort.Cohort, error) {
	q := dbc.DB(r.db).Where("table_name = ? AND features_key = ?", table, featuresKey)
	if year == nil {
		q = q.Where("year IS NULL")
	} else {
		q = q.Where("year = ?", *year)
	}
	var row cohort.Cohort
	if err := q.Order("id ASC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *cohortRepo) ListByTable(dbc dbctx.Context, table string) ([]*cohort.Cohort, error) {
	var out []*cohort.Cohort
	if err := dbc.DB(r.db).Where("table_name = ?", table).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
