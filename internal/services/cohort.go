package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

// ErrCohortInvalid is returned when a definition names unknown features or
// selects too few records.
var ErrCohortInvalid = errors.New("cohort invalid")

type CohortInfo struct {
	CohortID string `json:"cohort_id"`
	Size     int    `json:"size"`
}

type DictionaryEntry struct {
	CohortID string          `json:"cohort_id"`
	Features cohort.Features `json:"features"`
	Size     int             `json:"size"`
}

type ValueFrequency struct {
	Value      any     `json:"value"`
	Frequency  int     `json:"frequency"`
	Percentage float64 `json:"percentage"`
}

type FeatureProfile struct {
	FeatureName string           `json:"feature_name"`
	Values      []ValueFrequency `json:"feature_matrix"`
}

type NameInfo struct {
	Name     string `json:"name"`
	CohortID string `json:"cohort_id"`
}

type CohortService interface {
	Discover(dbc dbctx.Context, table string, year *int, features cohort.Features) (*CohortInfo, error)
	Edit(dbc dbctx.Context, table, cohortID string, features cohort.Features) (*CohortInfo, error)
	Get(dbc dbctx.Context, table, cohortID string) (*cohort.Cohort, error)
	// Definition resolves a saved cohort to the filter it stands for.
	Definition(dbc dbctx.Context, table, cohortID string) (cohort.Ref, error)
	Dictionary(dbc dbctx.Context, table string) ([]DictionaryEntry, error)
	FeatureProfile(dbc dbctx.Context, table, cohortID string) ([]FeatureProfile, error)
	GetName(dbc dbctx.Context, table, name string) (*NameInfo, error)
	AddName(dbc dbctx.Context, table, name, cohortID string) (*NameInfo, error)
	InvalidMessage() string
}

type cohortService struct {
	log     *logger.Logger
	cohorts repos.CohortRepo
	names   repos.CohortNameRepo
	records repos.RecordRepo
	cat     *catalog.Catalog
	cfg     config.CohortConfig
}

func NewCohortService(
	baseLog *logger.Logger,
	cohorts repos.CohortRepo,
	names repos.CohortNameRepo,
	records repos.RecordRepo,
	cat *catalog.Catalog,
	cfg config.CohortConfig,
) CohortService {
	return &cohortService{
		log:     baseLog.With("service", "CohortService"),
		cohorts: cohorts,
		names:   names,
		records: records,
		cat:     cat,
		cfg:     cfg,
	}
}

func (s *cohortService) InvalidMessage() string {
	return fmt.Sprintf("Input features invalid or cohort ≤%d patients. Please try again.", s.cfg.MinSize)
}

// measure validates a definition and counts the records it selects.
func (s *cohortService) measure(dbc dbctx.Context, ref cohort.Ref) (int, error) {
	if !s.cat.HasTable(ref.Table) {
		return 0, fmt.Errorf("%w: %w", ErrCohortInvalid, catalog.ErrUnknownTable)
	}
	if err := ref.Features.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCohortInvalid, err)
	}
	for _, name := range ref.Features.Names() {
		if _, err := s.cat.Feature(ref.Table, name); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCohortInvalid, err)
		}
		ok, err := s.records.HasFeature(dbc, ref.Table, name)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: feature %s absent", ErrCohortInvalid, name)
		}
	}
	size, err := s.records.Count(dbc, ref)
	if err != nil {
		return 0, err
	}
	if size <= s.cfg.MinSize {
		return 0, fmt.Errorf("%w: size %d", ErrCohortInvalid, size)
	}
	return size, nil
}

func (s *cohortService) Discover(dbc dbctx.Context, table string, year *int, features cohort.Features) (*CohortInfo, error) {
	if features == nil {
		features = cohort.Features{}
	}
	ref := cohort.Ref{Table: table, Year: year, Features: features}
	size, err := s.measure(dbc, ref)
	if err != nil {
		return nil, err
	}

	key := features.Key()
	existing, err := s.cohorts.FindByDefinition(dbc, table, year, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Size != size {
			existing.Size = size
			if err := s.cohorts.Update(dbc, existing); err != nil {
				return nil, err
			}
		}
		return &CohortInfo{CohortID: existing.CohortID, Size: size}, nil
	}

	created, err := s.cohorts.Create(dbc, &cohort.Cohort{
		Table:       table,
		Year:        year,
		FeaturesKey: key,
		Features:    datatypes.JSON(key),
		Size:        size,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cohort discovered", "cohort_id", created.CohortID, "table", table, "size", size)
	return &CohortInfo{CohortID: created.CohortID, Size: size}, nil
}

func (s *cohortService) Edit(dbc dbctx.Context, table, cohortID string, features cohort.Features) (*CohortInfo, error) {
	row, err := s.cohorts.GetByCohortID(dbc, table, cohortID)
	if err != nil {
		return nil, err
	}
	if features == nil {
		features = cohort.Features{}
	}
	size, err := s.measure(dbc, cohort.Ref{Table: table, Year: row.Year, Features: features})
	if err != nil {
		return nil, err
	}
	key := features.Key()
	row.FeaturesKey = key
	row.Features = datatypes.JSON(key)
	row.Size = size
	if err := s.cohorts.Update(dbc, row); err != nil {
		return nil, err
	}
	return &CohortInfo{CohortID: row.CohortID, Size: size}, nil
}

func (s *cohortService) Get(dbc dbctx.Context, table, cohortID string) (*cohort.Cohort, error) {
	return s.cohorts.GetByCohortID(dbc, table, strings.TrimSpace(cohortID))
}

func (s *cohortService) Definition(dbc dbctx.Context, table, cohortID string) (cohort.Ref, error) {
	row, err := s.Get(dbc, table, cohortID)
	if err != nil {
		return cohort.Ref{}, err
	}
	features, err := row.DecodeFeatures()
	if err != nil {
		return cohort.Ref{}, fmt.Errorf("decode cohort %s: %w", cohortID, err)
	}
	return cohort.Ref{CohortID: row.CohortID, Table: row.Table, Year: row.Year, Features: features}, nil
}

func (s *cohortService) Dictionary(dbc dbctx.Context, table string) ([]DictionaryEntry, error) {
	rows, err := s.cohorts.ListByTable(dbc, table)
	if err != nil {
		return nil, err
	}
	out := make([]DictionaryEntry, 0, len(rows))
	for _, row := range rows {
		features, err := row.DecodeFeatures()
		if err != nil {
			s.log.Warn("skipping undecodable cohort", "cohort_id", row.CohortID, "error", err)
			continue
		}
		out = append(out, DictionaryEntry{CohortID: row.CohortID, Features: features, Size: row.Size})
	}
	return out, nil
}

// FeatureProfile reports the value distribution of every cataloged feature
// present in the cohort's table.
func (s *cohortService) FeatureProfile(dbc dbctx.Context, table, cohortID string) ([]FeatureProfile, error) {
	ref, err := s.Definition(dbc, table, cohortID)
	if err != nil {
		return nil, err
	}
	features, err := s.cat.Features(table)
	if err != nil {
		return nil, err
	}
	out := make([]FeatureProfile, 0, len(features))
	for _, f := range features {
		ok, err := s.records.HasFeature(dbc, table, f.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		counts, err := s.records.ValueCounts(dbc, ref, f.Name)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(counts))
		byValue := make(map[string]int, len(counts))
		total := 0
		for _, c := range counts {
			values = append(values, c.Value)
			byValue[cohort.FormatValue(c.Value)] += c.N
			total += c.N
		}
		profile := FeatureProfile{FeatureName: f.Name}
		for _, v := range cohort.SortedDistinct(values) {
			n := byValue[cohort.FormatValue(v)]
			profile.Values = append(profile.Values, ValueFrequency{Value: v, Frequency: n, Percentage: ratio(n, total)})
		}
		out = append(out, profile)
	}
	return out, nil
}

// GetName returns nil when the name is not registered.
func (s *cohortService) GetName(dbc dbctx.Context, table, name string) (*NameInfo, error) {
	row, err := s.names.GetByName(dbc, table, name)
	if err != nil || row == nil {
		return nil, err
	}
	return &NameInfo{Name: row.Name, CohortID: row.CohortID}, nil
}

func (s *cohortService) AddName(dbc dbctx.Context, table, name, cohortID string) (*NameInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	if _, err := s.cohorts.GetByCohortID(dbc, table, cohortID); err != nil {
		return nil, err
	}
	if err := s.names.Create(dbc, &cohort.CohortName{Table: table, Name: name, CohortID: cohortID}); err != nil {
		return nil, err
	}
	return &NameInfo{Name: name, CohortID: cohortID}, nil
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}
