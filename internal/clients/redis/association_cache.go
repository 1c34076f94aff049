package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/icees-go/icees-api/internal/config"
	"github.com/icees-go/icees-api/internal/platform/logger"
)

// AssociationCache stores computed association payloads keyed by a
// canonical description of the cohort and feature specs.
type AssociationCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Close() error
}

type associationCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

func NewAssociationCache(cfg config.RedisConfig, log *logger.Logger) (AssociationCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newAssociationCache(rdb, cfg, log), nil
}

func newAssociationCache(rdb *goredis.Client, cfg config.RedisConfig, log *logger.Logger) *associationCache {
	ttl := cfg.TTL.Duration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "icees:assoc:"
	}
	return &associationCache{
		log:    log.With("service", "RedisAssociationCache"),
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}
}

// CacheKey hashes the logical key so arbitrary feature names stay within
// redis key conventions.
func CacheKey(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(sum[:])
}

func (c *associationCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("redis cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, CacheKey(c.prefix, key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached association: %w", err)
	}
	return true, nil
}

func (c *associationCache) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis cache not initialized")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, CacheKey(c.prefix, key), raw, c.ttl).Err()
}

func (c *associationCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
