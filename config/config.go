package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/database"
	sigv4gatehttp "github.com/sagarc03/sigv4gate/http"
	"github.com/sagarc03/sigv4gate/keybackend"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for sigv4gate.
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Auth     AuthConfig               `mapstructure:"auth"`
	Database DatabaseConfig           `mapstructure:"database"`
	Limits   LimitsConfig             `mapstructure:"limits"`
	Breaker  BreakerConfig            `mapstructure:"breaker"`
	CORS     sigv4gatehttp.CORSConfig `mapstructure:"cors"`
	Tracing  TracingConfig            `mapstructure:"tracing"`
	Log      LogConfig                `mapstructure:"log"`
	Env      string                   `mapstructure:"env" validate:"required,oneof=dev prod"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
	// Upstream is the base URL authenticated requests are proxied to.
	// Empty mounts the whoami handler instead.
	Upstream        string        `mapstructure:"upstream" validate:"omitempty,http_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// AuthConfig holds the verifier settings plus where access keys come from.
type AuthConfig struct {
	sigv4gate.AuthConfig `mapstructure:",squash"`

	Keys  KeysConfig  `mapstructure:"keys"`
	Cache CacheConfig `mapstructure:"cache"`
}

// KeysConfig selects the key sources. Inline and file keys are consulted
// before the database.
type KeysConfig struct {
	keybackend.KeysConfig `mapstructure:",squash"`

	// Database enables lookups in the key table managed by `sigv4gate keys`.
	Database bool `mapstructure:"database"`
}

// CacheConfig configures the TTL cache in front of the key sources.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size" validate:"required_if=Enabled true,min=0"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min=0"`
}

// DatabaseConfig holds the key store connection settings.
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// LimitsConfig configures the token bucket in front of the interceptor.
// RPS of zero disables rate limiting.
type LimitsConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"min=0"`
	Burst int     `mapstructure:"burst" validate:"min=0"`
}

// BreakerConfig configures the circuit breaker around the upstream.
// Failures of zero disables the breaker.
type BreakerConfig struct {
	Failures uint32        `mapstructure:"failures"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=0"`
	HalfOpen uint32        `mapstructure:"half_open"`
}

// TracingConfig enables OpenTelemetry spans written to stdout.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"port":         "server.port",
	"upstream":     "server.upstream",
	"region":       "auth.region",
	"service":      "auth.service",
	"keys-file":    "auth.keys.file",
	"log-level":    "log.level",
	"auto-migrate": "database.auto_migrate",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upstream", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("auth.region", "us-east-1")
	v.SetDefault("auth.service", "execute-api")
	v.SetDefault("auth.signing_key_kind", string(sigv4gate.KSigning))
	v.SetDefault("auth.allowed_clock_skew", sigv4gate.DefaultAllowedClockSkew.String())
	v.SetDefault("auth.max_body_size", sigv4gate.DefaultMaxBodySize)
	v.SetDefault("auth.keys.file", "")
	v.SetDefault("auth.keys.database", false)
	v.SetDefault("auth.cache.enabled", true)
	v.SetDefault("auth.cache.size", 1024)
	v.SetDefault("auth.cache.ttl", "1m")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "sigv4gate.db")
	v.SetDefault("database.tables.keys", "sigv4gate_keys")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("limits.rps", 0)
	v.SetDefault("limits.burst", 0)

	v.SetDefault("breaker.failures", 0)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.half_open", 1)

	v.SetDefault("cors.enabled", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "sigv4gate")

	v.SetDefault("log.level", "info")
	v.SetDefault("env", "dev")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("SIGV4GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.Auth.AuthConfig.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Auth.Keys.Database {
		if err := cfg.Database.Tables.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}

	return &cfg, nil
}
