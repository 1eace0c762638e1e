// Package config provides configuration loading and validation for sigv4gate.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (SIGV4GATE_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = config.WithContext(ctx, cfg)
//
// # Environment Variables
//
// All config keys map to environment variables with SIGV4GATE_ prefix:
//   - server.upstream → SIGV4GATE_SERVER_UPSTREAM
//   - auth.region → SIGV4GATE_AUTH_REGION
//   - auth.allowed_clock_skew → SIGV4GATE_AUTH_ALLOWED_CLOCK_SKEW
//
// # Configuration Structure
//
//   - Server: port, upstream URL and HTTP timeouts
//   - Auth: region, service, signing key kind, clock skew, body cap, key sources and cache
//   - Database: type, DSN, table names and auto_migrate for the key store
//   - Limits: token bucket rate and burst
//   - Breaker: consecutive failures, open timeout and half-open probes
//   - CORS: cross-origin resource sharing settings
//   - Tracing: stdout span exporter
//   - Log and Env: level, and dev (tint) or prod (JSON) output
package config
