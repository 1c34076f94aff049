package cohorts

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/domain/cohort"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type ValueCount struct {
	Value any
	N     int
}

type PairCount struct {
	A any
	B any
	N int
}

// RecordRepo reads the clinical record tables. Every column name is checked
// against the catalog before it is quoted into SQL.
type RecordRepo interface {
	HasFeature(dbc dbctx.Context, table, feature string) (bool, error)
	Count(dbc dbctx.Context, ref cohort.Ref) (int, error)
	ValueCounts(dbc dbctx.Context, ref cohort.Ref, feature string) ([]ValueCount, error)
	PairCounts(dbc dbctx.Context, ref cohort.Ref, featureA, featureB string) ([]PairCount, error)
}

type recordRepo struct {
	db  *gorm.DB
	cat *catalog.Catalog
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, cat *catalog.Catalog, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{db: db, cat: cat, log: baseLog.With("repo", "RecordRepo")}
}

// HasFeature reports whether the record table carries a column for feature.
// A cataloged feature may be absent from a given deployment's data.
func (r *recordRepo) HasFeature(dbc dbctx.Context, table, feature string) (bool, error) {
	f, err := r.cat.Feature(table, feature)
	if err != nil {
		return false, err
	}
	m := dbc.DB(r.db).Migrator()
	if !m.HasTable(table) {
		return false, nil
	}
	return m.HasColumn(table, f.Name), nil
}

func (r *recordRepo) Count(dbc dbctx.Context, ref cohort.Ref) (int, error) {
	from, where, args, err := r.scope(ref)
	if err != nil {
		return 0, err
	}
	var n int64
	q := "SELECT COUNT(*) FROM " + from + where
	if err := dbc.DB(r.db).Raw(q, args...).Scan(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *recordRepo) ValueCounts(dbc dbctx.Context, ref cohort.Ref, feature string) ([]ValueCount, error) {
	col, err := r.cat.Column(ref.Table, feature)
	if err != nil {
		return nil, err
	}
	from, where, args, err := r.scope(ref)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s", col, from, where, col)
	rows, err := dbc.DB(r.db).Raw(q, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var v any
		var n int64
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		out = append(out, ValueCount{Value: normalize(v), N: int(n)})
	}
	return out, rows.Err()
}

func (r *recordRepo) PairCounts(dbc dbctx.Context, ref cohort.Ref, featureA, featureB string) ([]PairCount, error) {
	colA, err := r.cat.Column(ref.Table, featureA)
	if err != nil {
		return nil, err
	}
	colB, err := r.cat.Column(ref.Table, featureB)
	if err != nil {
		return nil, err
	}
	from, where, args, err := r.scope(ref)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s, %s, COUNT(*) FROM %s%s GROUP BY %s, %s", colA, colB, from, where, colA, colB)
	rows, err := dbc.DB(r.db).Raw(q, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PairCount
	for rows.Next() {
		var a, b any
		var n int64
		if err := rows.Scan(&a, &b, &n); err != nil {
			return nil, err
		}
		if a == nil || b == nil {
			continue
		}
		out = append(out, PairCount{A: normalize(a), B: normalize(b), N: int(n)})
	}
	return out, rows.Err()
}

// scope renders the FROM target and WHERE clause selecting a cohort's records.
func (r *recordRepo) scope(ref cohort.Ref) (string, string, []any, error) {
	if !r.cat.HasTable(ref.Table) {
		return "", "", nil, fmt.Errorf("%w: %s", catalog.ErrUnknownTable, ref.Table)
	}
	var clauses []string
	var args []any
	if ref.Year != nil {
		clauses = append(clauses, `"year" = ?`)
		args = append(args, *ref.Year)
	}
	for _, name := range ref.Features.Names() {
		f, err := r.cat.Feature(ref.Table, name)
		if err != nil {
			return "", "", nil, err
		}
		q := coerce(ref.Features[name], f.Type)
		frag, fragArgs := q.SQL(`"` + f.Name + `"`)
		clauses = append(clauses, frag)
		args = append(args, fragArgs...)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	return `"` + ref.Table + `"`, where, args, nil
}

// coerce converts qualifier values to the column's declared type so that
// comparisons behave the same on postgres and sqlite.
func coerce(q cohort.Qualifier, typ string) cohort.Qualifier {
	conv := func(v any) any {
		if v == nil {
			return nil
		}
		if typ == catalog.TypeInteger {
			if f, ok := cohort.AsFloat(v); ok && f == float64(int64(f)) {
				return int64(f)
			}
			return v
		}
		return cohort.FormatValue(v)
	}
	out := q
	out.Value = conv(q.Value)
	out.ValueA = conv(q.ValueA)
	out.ValueB = conv(q.ValueB)
	if len(q.Values) > 0 {
		out.Values = make([]any, len(q.Values))
		for i, v := range q.Values {
			out.Values[i] = conv(v)
		}
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	}
	return v
}
