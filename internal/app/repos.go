package app

import (
	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/catalog"
	"github.com/icees-go/icees-api/internal/data/repos"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type Repos = repos.Repos

func wireRepos(db *gorm.DB, cat *catalog.Catalog, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return repos.New(db, cat, log)
}
