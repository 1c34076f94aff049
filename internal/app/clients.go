package app

import (
	"github.com/icees-go/icees-api/internal/clients/redis"
	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

type Clients struct {
	AssociationCache redis.AssociationCache
}

// wireClients connects optional external clients. A redis that cannot be
// reached disables the cache instead of failing startup.
func wireClients(log *logger.Logger, cfg *config.Config) Clients {
	log.Info("Wiring clients...")

	var cache redis.AssociationCache
	if cfg.Redis.Addr != "" {
		c, err := redis.NewAssociationCache(cfg.Redis, log)
		if err != nil {
			log.Warn("association cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = c
		}
	}
	return Clients{AssociationCache: cache}
}

func (c Clients) Close(log *logger.Logger) {
	if c.AssociationCache != nil {
		if err := c.AssociationCache.Close(); err != nil && log != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
}
