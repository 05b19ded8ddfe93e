// Package config holds the qcache server's runtime configuration: CLI
// flags plus their environment-variable fallbacks, following the teacher's
// DefaultConfig()+getEnv*()+Validate() pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full server configuration, per spec.md §6's CLI flag
// list.
type Config struct {
	Server ServerConfig `json:"server"`
	Cache  CacheConfig  `json:"cache"`
}

// ServerConfig holds HTTP-listener configuration.
type ServerConfig struct {
	Port          int           `json:"port"`
	CertFile      string        `json:"cert_file"`
	CAFile        string        `json:"ca_file"`
	BasicAuthUser string        `json:"basic_auth_user"`
	BasicAuthPass string        `json:"-"`
	APIWorkers    int           `json:"api_workers"`
	Debug         bool          `json:"debug"`
	Timeout       time.Duration `json:"timeout"`
}

// CacheConfig holds cache-engine sizing.
type CacheConfig struct {
	Size                 int64         `json:"size"`
	Age                  time.Duration `json:"age"`
	StatisticsBufferSize int           `json:"statistics_buffer_size"`
	Shards               int           `json:"cache_shards"`
	L2Size               int64         `json:"l2_cache_size"`
}

// TLSEnabled reports whether a certificate was configured.
func (c *ServerConfig) TLSEnabled() bool { return c.CertFile != "" }

// DefaultConfig returns the default configuration, with flag-equivalent
// environment variable overrides applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnvInt("QCACHE_PORT", 8888),
			CertFile:      getEnv("QCACHE_CERT_FILE", ""),
			CAFile:        getEnv("QCACHE_CA_FILE", ""),
			BasicAuthUser: getEnv("QCACHE_BASIC_AUTH_USER", ""),
			BasicAuthPass: getEnv("QCACHE_BASIC_AUTH_PASS", ""),
			APIWorkers:    getEnvInt("QCACHE_API_WORKERS", 1),
			Debug:         getEnvBool("QCACHE_DEBUG", false),
			Timeout:       30 * time.Second,
		},
		Cache: CacheConfig{
			Size:                 getEnvInt64("QCACHE_SIZE", 1<<30),
			Age:                  time.Duration(getEnvInt("QCACHE_AGE", 0)) * time.Second,
			StatisticsBufferSize: getEnvInt("QCACHE_STATISTICS_BUFFER_SIZE", 1000),
			Shards:               getEnvInt("QCACHE_CACHE_SHARDS", 4),
			L2Size:               getEnvInt64("QCACHE_L2_CACHE_SIZE", 0),
		},
	}
}

// ParseBasicAuth splits a "USER:PASS" --basic-auth flag value.
func ParseBasicAuth(value string) (user, pass string, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid --basic-auth value %q, want USER:PASS", value)
	}
	return parts[0], parts[1], nil
}

// Validate checks the configuration for fatal errors, mirroring the
// teacher's pattern of validating after flag/env resolution rather than
// inline during parsing.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.Cache.Size)
	}
	if c.Cache.Shards <= 0 {
		return fmt.Errorf("cache-shards must be positive, got %d", c.Cache.Shards)
	}
	if c.Cache.L2Size < 0 {
		return fmt.Errorf("l2-cache-size must be >= 0, got %d", c.Cache.L2Size)
	}
	if (c.Server.BasicAuthUser != "") != (c.Server.BasicAuthPass != "") {
		return fmt.Errorf("basic auth requires both a user and a password")
	}
	if c.Server.BasicAuthUser != "" && !c.Server.TLSEnabled() {
		return fmt.Errorf("--basic-auth requires --cert-file (TLS)")
	}
	if c.Server.CAFile != "" && !c.Server.TLSEnabled() {
		return fmt.Errorf("--ca-file requires --cert-file (TLS)")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
