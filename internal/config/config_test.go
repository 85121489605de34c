package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
clusterName: test
listenAddr: ":9090"
authenticationEnabled: true
authorizationEnabled: true
superUserRoles:
  - localhost
  - superUser
  - superUser2
anonymousRole: anonymousUser
authenticationProviders:
  - name: tls
    trustCertsFile: /etc/broker/cacert.pem
  - name: basic
    basicAuthFile: /etc/broker/.htpasswd
cache:
  enabled: true
  backend: memory
  size: 1000
  ttl: 1m
`
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.ClusterName)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.True(t, cfg.AuthenticationEnabled)
	assert.Equal(t, []string{"localhost", "superUser", "superUser2"}, cfg.SuperUserRoles)
	assert.Equal(t, "anonymousUser", cfg.AnonymousRole)
	require.Len(t, cfg.AuthenticationProviders, 2)
	assert.Equal(t, "tls", cfg.AuthenticationProviders[0].Name)
	// Defaults survive a partial file.
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name: "tls provider needs trust certs",
			mutate: func(c *Config) {
				c.AuthenticationProviders = []ProviderConfig{{Name: "tls"}}
			},
			wantErr: "trustCertsFile",
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.AuthenticationProviders = []ProviderConfig{{Name: "kerberos"}}
			},
			wantErr: "unknown provider",
		},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.AuthenticationProviders = []ProviderConfig{
					{Name: "token", TokenSecret: "a"},
					{Name: "token", TokenSecret: "b"},
				}
			},
			wantErr: "duplicate provider",
		},
		{
			name: "auth enabled with nothing configured",
			mutate: func(c *Config) {
				c.AuthenticationEnabled = true
			},
			wantErr: "no providers",
		},
		{
			name: "postgres store needs dsn",
			mutate: func(c *Config) {
				c.Store.Backend = "postgres"
			},
			wantErr: "postgresDSN",
		},
		{
			name: "redis cache needs addr",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
			},
			wantErr: "redisAddr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
