package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/data/db"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	catOnce sync.Once
	cat     *catalog.Catalog
	catErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// Catalog returns the bundled feature catalog.
func Catalog(tb testing.TB) *catalog.Catalog {
	tb.Helper()
	catOnce.Do(func() {
		cat, catErr = catalog.Default()
	})
	if catErr != nil {
		tb.Fatalf("failed to load catalog: %v", catErr)
	}
	return cat
}

// DB opens a private in-memory sqlite database with the service tables
// migrated. It is closed when the test ends.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	svc, err := db.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	return svc.DB()
}
