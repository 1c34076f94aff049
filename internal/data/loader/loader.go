package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

const (
	defaultBatchSize = 500
	// maxBindVars stays below the bind variable limits of sqlite and postgres.
	maxBindVars = 30000
)

// Options controls how a record file is read.
type Options struct {
	// TypeRow means the second row gives the SQL type of every column.
	// Otherwise types come from the catalog.
	TypeRow bool
	// Replace drops an existing table first.
	Replace   bool
	BatchSize int
}

// Loader creates clinical record tables from CSV files.
type Loader struct {
	db  *gorm.DB
	cat *catalog.Catalog
	log *logger.Logger
}

func New(db *gorm.DB, cat *catalog.Catalog, baseLog *logger.Logger) *Loader {
	return &Loader{db: db, cat: cat, log: baseLog.With("service", "Loader")}
}

// Load creates table and inserts every record of r in batches within one
// transaction. The first row names the columns. Empty cells are stored as
// NULL. It returns the number of records inserted.
func (l *Loader) Load(dbc dbctx.Context, table string, r io.Reader, opts Options) (int, error) {
	table = strings.TrimSpace(table)
	if table == "" || strings.ContainsAny(table, `"`) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" || strings.ContainsAny(header[i], `"`) {
			return 0, fmt.Errorf("invalid column name %q", header[i])
		}
	}

	var types []string
	if opts.TypeRow {
		types, err = cr.Read()
		if err != nil {
			return 0, fmt.Errorf("read type row: %w", err)
		}
		if len(types) != len(header) {
			return 0, fmt.Errorf("header has %d columns, type row has %d", len(header), len(types))
		}
	} else {
		types = l.columnTypes(table, header)
	}

	cols := make([]string, len(header))
	defs := make([]string, len(header))
	for i, name := range header {
		cols[i] = `"` + name + `"`
		defs[i] = cols[i] + " " + types[i]
	}
	if limit := maxBindVars / len(cols); opts.BatchSize > limit {
		opts.BatchSize = max(limit, 1)
	}
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	insertHead := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES `, table, strings.Join(cols, ", "))

	total := 0
	err = dbc.DB(l.db).Transaction(func(tx *gorm.DB) error {
		if opts.Replace {
			if err := tx.Migrator().DropTable(table); err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
		if err := tx.Exec(fmt.Sprintf(`CREATE TABLE "%s" (%s)`, table, strings.Join(defs, ", "))).Error; err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}

		batch := make([]string, 0, opts.BatchSize)
		args := make([]any, 0, opts.BatchSize*len(cols))
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := tx.Exec(insertHead+strings.Join(batch, ", "), args...).Error; err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
			total += len(batch)
			batch, args = batch[:0], args[:0]
			return nil
		}

		for line := 2; ; line++ {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read record %d: %w", line, err)
			}
			for i, cell := range rec {
				args = append(args, CellValue(strings.TrimSpace(cell), types[i]))
			}
			batch = append(batch, placeholders)
			if len(batch) == opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("table loaded", "table", table, "records", total, "columns", len(cols))
	return total, nil
}

// columnTypes maps integer features to INTEGER and everything else to
// VARCHAR. The year column is always an integer.
func (l *Loader) columnTypes(table string, header []string) []string {
	out := make([]string, len(header))
	for i, name := range header {
		out[i] = "VARCHAR(255)"
		if strings.EqualFold(name, "year") {
			out[i] = "INTEGER"
			continue
		}
		if l.cat == nil {
			continue
		}
		if f, err := l.cat.Feature(table, name); err == nil && f.Type == catalog.TypeInteger {
			out[i] = "INTEGER"
		}
	}
	return out
}

// CellValue converts a CSV cell for a column of SQL type typ.
func CellValue(cell, typ string) any {
	if cell == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(typ), "int") {
		if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return n
		}
	}
	return cell
}
