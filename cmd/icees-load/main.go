package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/db"
	"github.com/icees-go/icees-api/internal/data/loader"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

func main() {
	var (
		table     string
		file      string
		replace   bool
		typeRow   bool
		batchSize int
	)
	flag.StringVar(&table, "table", "", "table to create (defaults to the configured default table)")
	flag.StringVar(&file, "file", "", "CSV file to load, - for stdin")
	flag.BoolVar(&replace, "replace", false, "drop the table first if it exists")
	flag.BoolVar(&typeRow, "type-row", false, "second CSV row gives the SQL type of every column")
	flag.IntVar(&batchSize, "batch-size", 0, "records per INSERT statement")
	flag.Parse()

	if strings.TrimSpace(file) == "" {
		fmt.Println("-file is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(table, file, loader.Options{TypeRow: typeRow, Replace: replace, BatchSize: batchSize}); err != nil {
		fmt.Printf("load: %v\n", err)
		os.Exit(1)
	}
}

func run(table, file string, opts loader.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if table == "" {
		table = cfg.Cohort.DefaultTable
	}
	cat, err := catalog.Load(cfg.Catalog.FeaturesPath)
	if err != nil {
		return err
	}
	dbs, err := db.Open(cfg.DB, log)
	if err != nil {
		return err
	}
	defer dbs.Close()

	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	n, err := loader.New(dbs.DB(), cat, log).Load(dbctx.Context{Ctx: context.Background()}, table, r, opts)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d records into %s\n", n, table)
	return nil
}
