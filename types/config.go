package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	RateLimit   *RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Storage     *StorageConfig     `yaml:"storage" json:"storage"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
	TLS  *TLSConfig  `yaml:"tls" json:"tls"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodySize     int    `yaml:"max_body_size" json:"max_body_size"`
}

type TLSConfig struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	CertFile      string   `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile       string   `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	AutoCert      bool     `yaml:"auto_cert" json:"auto_cert"`
	Domains       []string `yaml:"domains,omitempty" json:"domains,omitempty"`
	Email         string   `yaml:"email,omitempty" json:"email,omitempty"`
	CacheDir      string   `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	ACMEDirectory string   `yaml:"acme_directory,omitempty" json:"acme_directory,omitempty"`
}

type LoggerConfig struct {
	Level  string      `yaml:"level" json:"level" validate:"required,oneof=debug info warn error"`
	Format string      `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string      `yaml:"output" json:"output" validate:"omitempty,oneof=stdout stderr file"`
	Mask   bool        `yaml:"mask" json:"mask"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled   bool                          `yaml:"enabled" json:"enabled"`
	Type      string                        `yaml:"type" json:"type" validate:"required_if=Enabled true,omitempty,oneof=memory redis"`
	Config    interface{}                   `yaml:"config" json:"config"`
	Instances map[string]*MemoryCacheConfig `yaml:"instances" json:"instances"`
}

type MemoryCacheConfig struct {
	MaxSize         int           `yaml:"max_size" json:"max_size" validate:"min=1"`
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" validate:"min=0"`
	EnableStats     bool          `yaml:"enable_stats" json:"enable_stats"`
}

type RateLimitConfig struct {
	Algorithm       string        `yaml:"algorithm" json:"algorithm" validate:"omitempty,oneof=fixed_window token_bucket"`
	DefaultLimit    int           `yaml:"default_limit" json:"default_limit" validate:"min=1"`
	DefaultWindow   time.Duration `yaml:"default_window" json:"default_window" validate:"min=0"`
	CleanupSchedule string        `yaml:"cleanup_schedule" json:"cleanup_schedule"`
}

type CronConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	Timezone           string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	CacheStatsSchedule string `yaml:"cache_stats_schedule" json:"cache_stats_schedule"`
}

type MiddlewaresConfig struct {
	Enabled       bool                  `yaml:"enabled" json:"enabled"`
	Metadata      *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	Logging       *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Errors        *MiddlewareItemConfig `yaml:"errors" json:"errors"`
	Recovery      *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	CORS          *MiddlewareItemConfig `yaml:"cors" json:"cors"`
	BodyLimit     *MiddlewareItemConfig `yaml:"body_limit" json:"body_limit"`
	RateLimit     *MiddlewareItemConfig `yaml:"rate_limit" json:"rate_limit"`
	Auth          *MiddlewareItemConfig `yaml:"auth" json:"auth"`
	EmailVerified *MiddlewareItemConfig `yaml:"email_verified" json:"email_verified"`
	Role          *MiddlewareItemConfig `yaml:"role" json:"role"`
	Compression   *MiddlewareItemConfig `yaml:"compression" json:"compression"`
	Cache         *MiddlewareItemConfig `yaml:"cache" json:"cache"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	Path      string            `yaml:"path" json:"path"`
}

type HealthConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type StorageConfig struct {
	Type   string               `yaml:"type" json:"type" validate:"required,oneof=clover mongo"`
	Clover *CloverStorageConfig `yaml:"clover" json:"clover"`
	Mongo  *MongoStorageConfig  `yaml:"mongo" json:"mongo"`
}

type CloverStorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MongoStorageConfig struct {
	URI            string        `yaml:"uri" json:"uri" validate:"omitempty,uri"`
	Database       string        `yaml:"database" json:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}
