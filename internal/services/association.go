package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/clients/redis"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/observability"
	"github.com/icees-go/icees-api/internal/platform/apierr"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
	"github.com/icees-go/icees-api/internal/stats"
)

// ErrNotComputable marks an expected absence of an association: the cohort
// is too small, a feature is absent from the data, or both specs name the
// same feature.
var ErrNotComputable = errors.New("association not computable")

type Cell struct {
	Frequency        int     `json:"frequency"`
	RowPercentage    float64 `json:"row_percentage"`
	ColumnPercentage float64 `json:"column_percentage"`
	TotalPercentage  float64 `json:"total_percentage"`
}

type Margin struct {
	Frequency  int     `json:"frequency"`
	Percentage float64 `json:"percentage"`
}

// FeatureMatrix is the contingency table of two features over a cohort with
// its chi-square test.
type FeatureMatrix struct {
	FeatureA        cohort.FeatureSpec `json:"feature_a"`
	FeatureB        cohort.FeatureSpec `json:"feature_b"`
	RowLabels       []string           `json:"row_labels"`
	ColumnLabels    []string           `json:"column_labels"`
	Matrix          [][]Cell           `json:"feature_matrix"`
	Rows            []Margin           `json:"rows"`
	Columns         []Margin           `json:"columns"`
	Total           int                `json:"total"`
	ChiSquared      float64            `json:"chi_squared"`
	DOF             int                `json:"dof"`
	PValue          float64            `json:"p_value"`
	PValueCorrected *float64           `json:"p_value_corrected,omitempty"`
}

func (m *FeatureMatrix) Significant() bool { return m.PValue < stats.SignificanceLevel }

// Counts returns the raw frequencies, rows by columns.
func (m *FeatureMatrix) Counts() [][]int {
	out := make([][]int, len(m.Matrix))
	for i, row := range m.Matrix {
		out[i] = make([]int, len(row))
		for j, c := range row {
			out[i][j] = c.Frequency
		}
	}
	return out
}

type AssociationService interface {
	FeatureAssociation(dbc dbctx.Context, ref cohort.Ref, a, b cohort.FeatureSpec) (*FeatureMatrix, error)
	AssociationsToAllFeatures(dbc dbctx.Context, ref cohort.Ref, feature cohort.FeatureSpec, maxPValue float64, correction stats.Correction) ([]*FeatureMatrix, error)
	CheckCoverage(dbc dbctx.Context, ref cohort.Ref, spec cohort.FeatureSpec) error
}

type associationService struct {
	log     *logger.Logger
	records repos.RecordRepo
	cat     *catalog.Catalog
	cache   redis.AssociationCache
	metrics *observability.Metrics
	cfg     config.CohortConfig
}

// NewAssociationService builds the statistical backend. cache and metrics
// may be nil.
func NewAssociationService(
	baseLog *logger.Logger,
	records repos.RecordRepo,
	cat *catalog.Catalog,
	cache redis.AssociationCache,
	metrics *observability.Metrics,
	cfg config.CohortConfig,
) AssociationService {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	return &associationService{
		log:     baseLog.With("service", "AssociationService"),
		records: records,
		cat:     cat,
		cache:   cache,
		metrics: metrics,
		cfg:     cfg,
	}
}

func (s *associationService) FeatureAssociation(dbc dbctx.Context, ref cohort.Ref, a, b cohort.FeatureSpec) (*FeatureMatrix, error) {
	if err := a.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_feature", err)
	}
	if err := b.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_feature", err)
	}
	if a.Name == b.Name {
		return nil, fmt.Errorf("%w: %s paired with itself", ErrNotComputable, a.Name)
	}
	for _, name := range []string{a.Name, b.Name} {
		if _, err := s.cat.Feature(ref.Table, name); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotComputable, err)
		}
	}

	key := "assoc|" + ref.Key() + "|" + a.Key() + "|" + b.Key()
	if cached, ok := s.cacheGet(dbc, key); ok {
		return cached, nil
	}

	for _, name := range []string{a.Name, b.Name} {
		ok, err := s.records.HasFeature(dbc, ref.Table, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.metrics.IncAssociation("not_computable")
			return nil, fmt.Errorf("%w: feature %s absent from %s", ErrNotComputable, name, ref.Table)
		}
	}

	size, err := s.records.Count(dbc, ref)
	if err != nil {
		return nil, err
	}
	if size <= s.cfg.MinSize {
		s.metrics.IncAssociation("not_computable")
		return nil, fmt.Errorf("%w: cohort of %d records", ErrNotComputable, size)
	}

	pairs, err := s.records.PairCounts(dbc, ref, a.Name, b.Name)
	if err != nil {
		return nil, err
	}
	m, err := buildMatrix(a, b, pairs)
	if err != nil {
		return nil, err
	}
	s.metrics.IncAssociation("computed")
	s.cacheSet(dbc, key, m)
	return m, nil
}

func buildMatrix(a, b cohort.FeatureSpec, pairs []repos.PairCount) (*FeatureMatrix, error) {
	obsA := make([]any, 0, len(pairs))
	obsB := make([]any, 0, len(pairs))
	for _, p := range pairs {
		obsA = append(obsA, p.A)
		obsB = append(obsB, p.B)
	}
	rows := a.BinLabels(obsA)
	cols := b.BinLabels(obsB)
	if len(rows) == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("%w: no observations", ErrNotComputable)
	}

	tbl := stats.NewTable(rows, cols)
	for _, p := range pairs {
		tbl.Add(a.BinIndex(p.A, rows), b.BinIndex(p.B, cols), p.N)
	}
	test, err := stats.ChiSquare(tbl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotComputable, err)
	}

	rowTotals, colTotals, total := tbl.RowTotals(), tbl.ColTotals(), tbl.Total()
	m := &FeatureMatrix{
		FeatureA:     a,
		FeatureB:     b,
		RowLabels:    rows,
		ColumnLabels: cols,
		Matrix:       make([][]Cell, len(rows)),
		Rows:         make([]Margin, len(rows)),
		Columns:      make([]Margin, len(cols)),
		Total:        total,
		ChiSquared:   test.ChiSquared,
		DOF:          test.DOF,
		PValue:       test.PValue,
	}
	for i := range rows {
		m.Rows[i] = Margin{Frequency: rowTotals[i], Percentage: ratio(rowTotals[i], total)}
		m.Matrix[i] = make([]Cell, len(cols))
		for j := range cols {
			n := tbl.Counts[i][j]
			m.Matrix[i][j] = Cell{
				Frequency:        n,
				RowPercentage:    ratio(n, rowTotals[i]),
				ColumnPercentage: ratio(n, colTotals[j]),
				TotalPercentage:  ratio(n, total),
			}
		}
	}
	for j := range cols {
		m.Columns[j] = Margin{Frequency: colTotals[j], Percentage: ratio(colTotals[j], total)}
	}
	return m, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// AssociationsToAllFeatures tests feature against every other feature of the
// table, ordered by feature name. Non-computable pairs are skipped.
func (s *associationService) AssociationsToAllFeatures(dbc dbctx.Context, ref cohort.Ref, feature cohort.FeatureSpec, maxPValue float64, correction stats.Correction) ([]*FeatureMatrix, error) {
	if err := feature.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_feature", err)
	}
	if _, err := s.cat.Feature(ref.Table, feature.Name); err != nil {
		return nil, apierr.BadRequest(apierr.CodeUnknownFeature, err)
	}
	features, err := s.cat.Features(ref.Table)
	if err != nil {
		return nil, apierr.BadRequest("unknown_table", err)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*FeatureMatrix, len(features))
	)
	g, ctx := errgroup.WithContext(ctxOf(dbc))
	if dbc.Tx != nil {
		// a transaction is a single connection
		g.SetLimit(1)
	} else {
		g.SetLimit(s.cfg.MaxParallel)
	}
	for _, f := range features {
		if f.Name == feature.Name {
			continue
		}
		other := cohort.Whole(f.Name)
		g.Go(func() error {
			m, err := s.FeatureAssociation(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, ref, feature, other)
			if errors.Is(err, ErrNotComputable) {
				s.log.Debug("skipping feature", "feature", other.Name, "reason", err.Error())
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			results[other.Name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]*FeatureMatrix, 0, len(names))
	pvalues := make([]float64, 0, len(names))
	for _, name := range names {
		// copies keep cached values free of per-request corrections
		m := *results[name]
		ordered = append(ordered, &m)
		pvalues = append(pvalues, m.PValue)
	}

	out := ordered[:0]
	if correction != stats.CorrectionNone {
		adjusted := stats.Adjust(pvalues, correction)
		for i, m := range ordered {
			p := adjusted[i]
			m.PValueCorrected = &p
		}
	}
	for _, m := range ordered {
		p := m.PValue
		if m.PValueCorrected != nil {
			p = *m.PValueCorrected
		}
		if p <= maxPValue {
			out = append(out, m)
		}
	}
	return out, nil
}

// CheckCoverage fails when some admissible value of the feature falls in no
// bin. Admissible values come from the catalog when declared, otherwise
// from the records of the cohort's table.
func (s *associationService) CheckCoverage(dbc dbctx.Context, ref cohort.Ref, spec cohort.FeatureSpec) error {
	f, err := s.cat.Feature(ref.Table, spec.Name)
	if err != nil {
		return apierr.BadRequest(apierr.CodeUnknownFeature, err)
	}
	var observed []any
	if len(f.Values) > 0 {
		for _, v := range f.Values {
			observed = append(observed, v)
		}
	} else {
		counts, err := s.records.ValueCounts(dbc, cohort.Ref{Table: ref.Table}, spec.Name)
		if err != nil {
			return err
		}
		for _, c := range counts {
			observed = append(observed, c.Value)
		}
	}
	missing := spec.Uncovered(observed)
	if len(missing) == 0 {
		return nil
	}
	parts := make([]string, 0, len(missing))
	for _, v := range missing {
		parts = append(parts, cohort.FormatValue(v))
	}
	return apierr.BadRequest("incomplete_coverage",
		fmt.Errorf("bins for %s do not cover values: %s", spec.Name, strings.Join(parts, ", ")))
}

func (s *associationService) cacheGet(dbc dbctx.Context, key string) (*FeatureMatrix, bool) {
	if s.cache == nil {
		return nil, false
	}
	var m FeatureMatrix
	ok, err := s.cache.Get(ctxOf(dbc), key, &m)
	if err != nil {
		s.metrics.IncCacheError()
		s.log.Warn("association cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		s.metrics.IncCacheMiss()
		return nil, false
	}
	s.metrics.IncCacheHit()
	return &m, true
}

func (s *associationService) cacheSet(dbc dbctx.Context, key string, m *FeatureMatrix) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctxOf(dbc), key, m); err != nil {
		s.metrics.IncCacheError()
		s.log.Warn("association cache write failed", "error", err)
	}
}
