package goRefresh

import (
	"fmt"
	"time"
)

// Config defines a public type used by goRefresh APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token   TokenConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by goRefresh APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// TTL applies to every structure the engine writes: token records,
	// family sets, family status flags, and member indexes. Natural expiry
	// is the only passive garbage collection.
	TTL time.Duration

	// RedisPrefix namespaces all keys. Empty means no namespace, which
	// matches a single-tenant deployment.
	RedisPrefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by goRefresh APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by goRefresh APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const defaultTokenTTL = 30 * 24 * time.Hour

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL: defaultTokenTTL,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the production preset: 30-day TTL, metrics on,
// audit off until a sink is attached.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	// All fields are value types today; the clone exists so future
	// reference-typed fields cannot alias builder state into the engine.
	return cfg
}

// Validate checks the configuration for internal misconfiguration.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Token.TTL < time.Second {
		return fmt.Errorf("%w: ttl %v is below one second", ErrBadTTL, c.Token.TTL)
	}
	if c.Token.TTL != c.Token.TTL.Truncate(time.Second) {
		// Redis EXPIRE carries whole seconds; silently truncating would
		// desynchronize exp_sec from the actual key expiry.
		return fmt.Errorf("%w: ttl %v is not a whole number of seconds", ErrBadTTL, c.Token.TTL)
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit buffer size must be >= 0, got %d", c.Audit.BufferSize)
	}
	return nil
}
