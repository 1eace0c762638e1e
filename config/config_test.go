package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Server.Upstream)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "us-east-1", cfg.Auth.Region)
	assert.Equal(t, "execute-api", cfg.Auth.Service)
	assert.Equal(t, sigv4gate.KSigning, cfg.Auth.SigningKeyKind)
	assert.Equal(t, sigv4gate.DefaultAllowedClockSkew, cfg.Auth.AllowedClockSkew)
	assert.Equal(t, sigv4gate.DefaultMaxBodySize, cfg.Auth.MaxBodySize)
	assert.True(t, cfg.Auth.Cache.Enabled)
	assert.Equal(t, 1024, cfg.Auth.Cache.Size)
	assert.Equal(t, time.Minute, cfg.Auth.Cache.TTL)
	assert.False(t, cfg.Auth.Keys.Database)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "sigv4gate.db", cfg.Database.DSN)
	assert.Equal(t, "sigv4gate_keys", cfg.Database.Tables.Keys)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Zero(t, cfg.Limits.RPS)
	assert.Zero(t, cfg.Breaker.Failures)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "dev", cfg.Env)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  port: 9000
  upstream: http://backend.internal:8081
  read_timeout: 5s
auth:
  region: eu-west-1
  service: s3
  signing_key_kind: date
  allowed_clock_skew: 2m
  max_body_size: 1024
  keys:
    database: true
    inline:
      - access_key: AKIATEST123
        secret_key: secretkey123
      - access_key: SVCKEY
        secret_key: secretkey456
        principal_type: service
        name: billing
        namespace: internal
  cache:
    enabled: false
database:
  type: postgres
  dsn: postgres://localhost/test
  tables:
    keys: custom_keys
  auto_migrate: false
limits:
  rps: 50
  burst: 100
breaker:
  failures: 5
  timeout: 10s
  half_open: 2
tracing:
  enabled: true
  service_name: edge
log:
  level: debug
env: prod
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://backend.internal:8081", cfg.Server.Upstream)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "eu-west-1", cfg.Auth.Region)
	assert.Equal(t, "s3", cfg.Auth.Service)
	assert.Equal(t, sigv4gate.KDate, cfg.Auth.SigningKeyKind)
	assert.Equal(t, 2*time.Minute, cfg.Auth.AllowedClockSkew)
	assert.Equal(t, int64(1024), cfg.Auth.MaxBodySize)
	assert.True(t, cfg.Auth.Keys.Database)
	require.Len(t, cfg.Auth.Keys.Inline, 2)
	assert.Equal(t, "AKIATEST123", cfg.Auth.Keys.Inline[0].AccessKey)
	assert.Equal(t, "service", cfg.Auth.Keys.Inline[1].PrincipalType)
	assert.Equal(t, "internal", cfg.Auth.Keys.Inline[1].Namespace)
	assert.False(t, cfg.Auth.Cache.Enabled)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "custom_keys", cfg.Database.Tables.Keys)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.InDelta(t, 50.0, cfg.Limits.RPS, 0.001)
	assert.Equal(t, 100, cfg.Limits.Burst)
	assert.Equal(t, uint32(5), cfg.Breaker.Failures)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, uint32(2), cfg.Breaker.HalfOpen)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "edge", cfg.Tracing.ServiceName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "prod", cfg.Env)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	basePath := writeConfig(t, "base.yaml", `
server:
  port: 8080
auth:
  region: us-east-1
  service: s3
log:
  level: info
`)
	overridePath := writeConfig(t, "override.yaml", `
server:
  port: 9000
auth:
  region: ap-south-1
`)

	cfg, err := config.Load([]string{basePath, overridePath}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "ap-south-1", cfg.Auth.Region)
	assert.Equal(t, "s3", cfg.Auth.Service)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid port", content: "server:\n  port: 99999\n"},
		{name: "invalid upstream", content: "server:\n  upstream: not a url\n"},
		{name: "empty region", content: "auth:\n  region: \"\"\n"},
		{name: "invalid signing key kind", content: "auth:\n  signing_key_kind: bogus\n"},
		{name: "negative body size", content: "auth:\n  max_body_size: -2\n"},
		{name: "invalid database type", content: "database:\n  type: mysql\n"},
		{name: "invalid table with database keys", content: "auth:\n  keys:\n    database: true\ndatabase:\n  tables:\n    keys: Bad-Name\n"},
		{name: "invalid log level", content: "log:\n  level: trace\n"},
		{name: "invalid env", content: "env: staging\n"},
		{name: "tracing without service name", content: "tracing:\n  enabled: true\n  service_name: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)

			_, err := config.Load([]string{path}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoad_WithCORS(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
cors:
  enabled: true
  allowed_origins:
    - https://example.com
    - https://app.example.com
  allowed_methods:
    - GET
    - PUT
  allowed_headers:
    - Authorization
    - X-Amz-Date
  max_age: 600
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"https://example.com", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "PUT"}, cfg.CORS.AllowedMethods)
	assert.Equal(t, []string{"Authorization", "X-Amz-Date"}, cfg.CORS.AllowedHeaders)
	assert.Equal(t, 600, cfg.CORS.MaxAge)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SIGV4GATE_SERVER_PORT", "9090")
	t.Setenv("SIGV4GATE_DATABASE_TYPE", "postgres")
	t.Setenv("SIGV4GATE_AUTH_REGION", "eu-central-1")
	t.Setenv("SIGV4GATE_AUTH_ALLOWED_CLOCK_SKEW", "30s")

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "eu-central-1", cfg.Auth.Region)
	assert.Equal(t, 30*time.Second, cfg.Auth.AllowedClockSkew)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("SIGV4GATE_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("upstream", "", "")
	flags.String("region", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "7000", "--upstream", "http://localhost:9999"}))

	cfg, err := config.Load(nil, flags)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port, "flags override env")
	assert.Equal(t, "http://localhost:9999", cfg.Server.Upstream)
	assert.Equal(t, "us-east-1", cfg.Auth.Region, "unchanged flags do not override defaults")
}

func TestContext(t *testing.T) {
	t.Parallel()

	_, err := config.FromContext(context.Background())
	require.Error(t, err)

	want := &config.Config{Env: "dev"}
	got, err := config.FromContext(config.WithContext(context.Background(), want))
	require.NoError(t, err)
	assert.Same(t, want, got)
}
