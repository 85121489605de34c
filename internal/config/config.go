// Package config loads the broker auth subsystem configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one authentication provider. Name selects the
// implementation; the remaining fields are per-provider parameters.
type ProviderConfig struct {
	Name string `yaml:"name"` // tls, basic, token

	// tls
	TrustCertsFile string `yaml:"trustCertsFile,omitempty"`

	// basic
	BasicAuthFile string `yaml:"basicAuthFile,omitempty"`

	// token
	TokenSecret string `yaml:"tokenSecret,omitempty"`
}

// CacheConfig selects and sizes the decision cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"` // memory or redis
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`

	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDB,omitempty"`
}

// StoreConfig selects the policy store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // memory or postgres
	PostgresDSN string `yaml:"postgresDSN,omitempty"`
}

// Config is the full configuration surface.
type Config struct {
	ClusterName string `yaml:"clusterName"`
	ListenAddr  string `yaml:"listenAddr"`

	AuthenticationEnabled   bool             `yaml:"authenticationEnabled"`
	AuthorizationEnabled    bool             `yaml:"authorizationEnabled"`
	SuperUserRoles          []string         `yaml:"superUserRoles"`
	AnonymousRole           string           `yaml:"anonymousRole"`
	AuthenticationProviders []ProviderConfig `yaml:"authenticationProviders"`

	Store StoreConfig `yaml:"store"`
	Cache CacheConfig `yaml:"cache"`

	// Server TLS material; mutual TLS is requested when trust certs are set
	// on a tls provider.
	TLSCertFile string `yaml:"tlsCertFile,omitempty"`
	TLSKeyFile  string `yaml:"tlsKeyFile,omitempty"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	LogFile   string `yaml:"logFile,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ClusterName: "standalone",
		ListenAddr:  ":8080",
		Store:       StoreConfig{Backend: "memory"},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			Size:    100000,
			TTL:     5 * time.Minute,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("clusterName is required")
	}

	seen := make(map[string]bool)
	for i, p := range c.AuthenticationProviders {
		switch p.Name {
		case "tls":
			if p.TrustCertsFile == "" {
				return fmt.Errorf("provider[%d]: tls provider requires trustCertsFile", i)
			}
		case "basic":
			if p.BasicAuthFile == "" {
				return fmt.Errorf("provider[%d]: basic provider requires basicAuthFile", i)
			}
		case "token":
			if p.TokenSecret == "" {
				return fmt.Errorf("provider[%d]: token provider requires tokenSecret", i)
			}
		default:
			return fmt.Errorf("provider[%d]: unknown provider %q", i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider[%d]: duplicate provider %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	if c.AuthenticationEnabled && len(c.AuthenticationProviders) == 0 && c.AnonymousRole == "" {
		return fmt.Errorf("authentication is enabled but no providers or anonymous role are configured")
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires postgresDSN")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
		case "redis":
			if c.Cache.RedisAddr == "" {
				return fmt.Errorf("redis cache requires redisAddr")
			}
		default:
			return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
		}
	}

	return nil
}
