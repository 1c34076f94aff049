package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/icees-go/icees-api/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   10 << 20,
		},
		DB: DBConfig{
			Driver:        "sqlite",
			DSN:           "file:icees.db?cache=shared",
			SlowThreshold: Duration{Duration: time.Second},
		},
		Redis: RedisConfig{
			TTL:    Duration{Duration: 24 * time.Hour},
			Prefix: "icees:assoc:",
		},
		Auth: AuthConfig{
			APIKeyName: "api_key",
		},
		Catalog: CatalogConfig{
			FeaturesPath: "config/features.yml",
			BinsPath:     "config/bins.json",
		},
		Cohort: CohortConfig{
			DefaultTable: "patient",
			MinSize:      10,
			MaxParallel:  4,
		},
		Reasoner: ReasonerConfig{
			ToolVersion:  "ICEES 4.2.0",
			InforesCurie: "infores:icees",
			MaxPairs:     10000,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "icees-api",
			MetricsEnabled: true,
		},
	}
}

// Load reads ICEES_CONFIG_PATH (or ./config/config.json when present) over
// the defaults, applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	cfgPath := strings.TrimSpace(os.Getenv("ICEES_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so a partial file only overrides what it names.
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	if port := envutil.String("PORT", ""); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	cfg.HTTP.Addr = envutil.String("ICEES_HTTP_ADDR", cfg.HTTP.Addr)
	if origins := envutil.List("ICEES_ALLOW_ORIGINS"); len(origins) > 0 {
		cfg.HTTP.AllowOrigins = origins
	}
	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.DSN = envutil.String("DB_DSN", cfg.DB.DSN)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Auth.APIKey = envutil.String("API_KEY", cfg.Auth.APIKey)
	cfg.Auth.APIKeyName = envutil.String("API_KEY_NAME", cfg.Auth.APIKeyName)
	cfg.Catalog.FeaturesPath = envutil.String("ICEES_FEATURES_PATH", cfg.Catalog.FeaturesPath)
	cfg.Catalog.BinsPath = envutil.String("ICEES_BINS_PATH", cfg.Catalog.BinsPath)
	cfg.Cohort.DefaultTable = envutil.String("ICEES_DEFAULT_TABLE", cfg.Cohort.DefaultTable)
	cfg.Cohort.MinSize = envutil.Int("ICEES_MIN_COHORT_SIZE", cfg.Cohort.MinSize)
	cfg.Reasoner.InforesCurie = envutil.String("ICEES_INFORES_CURIE", cfg.Reasoner.InforesCurie)
	cfg.Reasoner.ToolVersion = envutil.String("ICEES_TOOL_VERSION", cfg.Reasoner.ToolVersion)
	cfg.Reasoner.MaxPairs = envutil.Int("ICEES_MAX_PAIRS", cfg.Reasoner.MaxPairs)
	cfg.Telemetry.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.Telemetry.MetricsEnabled)
}

func normalize(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 10 << 20
	}
	if cfg.Auth.APIKeyName == "" {
		cfg.Auth.APIKeyName = "api_key"
	}
	if cfg.Cohort.MaxParallel <= 0 {
		cfg.Cohort.MaxParallel = 1
	}
	if cfg.Reasoner.MaxPairs <= 0 {
		cfg.Reasoner.MaxPairs = 10000
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "icees-api"
	}
	if cfg.Telemetry.Version == "" {
		cfg.Telemetry.Version = cfg.Reasoner.ToolVersion
	}
}

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
