package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" validate:"required"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" validate:"gt=0"`

	// AllowOrigins restricts CORS. Empty allows any origin (credentials are
	// still permitted, the origin is echoed back).
	AllowOrigins []string `json:"allow_origins,omitempty"`
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `json:"driver" validate:"required,oneof=postgres sqlite"`
	DSN    string `json:"dsn" validate:"required"`

	MaxOpenConns int `json:"max_open_conns,omitempty" validate:"gte=0"`
	MaxIdleConns int `json:"max_idle_conns,omitempty" validate:"gte=0"`

	SlowThreshold Duration `json:"slow_threshold,omitempty"`
}

type RedisConfig struct {
	// Addr enables the association cache when non-empty.
	Addr     string   `json:"addr,omitempty"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db,omitempty" validate:"gte=0"`
	TTL      Duration `json:"ttl,omitempty"`
	Prefix   string   `json:"prefix,omitempty"`
}

type AuthConfig struct {
	// APIKey enables key checking when non-empty. The key is accepted from the
	// query string, a header or a cookie, all named APIKeyName.
	APIKey     string `json:"api_key,omitempty"`
	APIKeyName string `json:"api_key_name,omitempty"`
}

type CatalogConfig struct {
	FeaturesPath string `json:"features_path" validate:"required"`
	BinsPath     string `json:"bins_path,omitempty"`
}

type CohortConfig struct {
	DefaultTable string `json:"default_table" validate:"required"`
	// MinSize: cohorts with size <= MinSize are rejected.
	MinSize int `json:"min_size" validate:"gte=0"`
	// MaxParallel bounds the fan-out of associations_to_all_features.
	MaxParallel int `json:"max_parallel" validate:"gte=1"`
}

type ReasonerConfig struct {
	ToolVersion  string `json:"tool_version" validate:"required"`
	InforesCurie string `json:"infores_curie" validate:"required"`
	// MaxPairs caps the number of (subject, object) pairs evaluated for one query.
	MaxPairs int `json:"max_pairs" validate:"gte=1"`
}

type TelemetryConfig struct {
	ServiceName    string `json:"service_name,omitempty"`
	Version        string `json:"version,omitempty"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

type Config struct {
	Env       string          `json:"env"`
	HTTP      HTTPConfig      `json:"http"`
	DB        DBConfig        `json:"db"`
	Redis     RedisConfig     `json:"redis"`
	Auth      AuthConfig      `json:"auth"`
	Catalog   CatalogConfig   `json:"catalog"`
	Cohort    CohortConfig    `json:"cohort"`
	Reasoner  ReasonerConfig  `json:"reasoner"`
	Telemetry TelemetryConfig `json:"telemetry"`
}
