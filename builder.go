package goRefresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/internal/audit"
	"github.com/MrEthical07/goRefresh/internal/flows"
	"github.com/MrEthical07/goRefresh/token"
)

// Builder assembles an [Engine]. Configuration errors accumulate across
// With* calls and surface together from [Builder.Build].
type Builder struct {
	cfg      Config
	redis    redis.UniversalClient
	sink     AuditSink
	now      func() time.Time
	buildErr []error
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		cfg: defaultConfig(),
		now: time.Now,
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing all token state. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if client == nil {
		b.buildErr = append(b.buildErr, errors.New("redis client is nil"))
		return b
	}
	b.redis = client
	return b
}

// WithTokenTTL overrides the token TTL from the active config.
func (b *Builder) WithTokenTTL(ttl time.Duration) *Builder {
	b.cfg.Token.TTL = ttl
	return b
}

// WithRedisPrefix namespaces every key the engine writes.
func (b *Builder) WithRedisPrefix(prefix string) *Builder {
	b.cfg.Token.RedisPrefix = prefix
	return b
}

// WithAuditSink enables audit dispatching into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink == nil {
		b.buildErr = append(b.buildErr, errors.New("audit sink is nil"))
		return b
	}
	b.sink = sink
	b.cfg.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.cfg.Metrics.Enabled = enabled
	return b
}

// withClock overrides the engine clock. Test hook.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, verifies Redis connectivity, and wires
// the engine. The returned engine owns its audit dispatcher; call
// [Engine.Close] on shutdown to drain it.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	errs := append([]error(nil), b.buildErr...)

	if err := b.cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if b.redis == nil {
		errs = append(errs, errors.New("redis client is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	store := token.NewStore(b.redis, b.cfg.Token.RedisPrefix)
	if _, err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	cfg := cloneConfig(b.cfg)
	ttl := func() time.Duration { return cfg.Token.TTL }

	e := &Engine{
		cfg:        cfg,
		store:      store,
		metrics:    newEngineMetrics(cfg.Metrics),
		dispatcher: audit.NewDispatcher(audit.Config(cfg.Audit), b.sink),
		ready:      true,
	}

	e.flows = flows.Deps{
		Issue: flows.IssueDeps{
			NewJTI: internal.NewJTI,
			Now:    b.now,
			TTL:    ttl,
			Warn:   warnf,
			Store:  store,
		},
		Rotate: flows.RotateDeps{
			NewJTI:   internal.NewJTI,
			Now:      b.now,
			TTL:      ttl,
			Warn:     warnf,
			RedisNil: redis.Nil,
			Store:    store,
		},
		Revoke: flows.RevokeDeps{
			Now:   b.now,
			TTL:   ttl,
			Warn:  warnf,
			Store: store,
		},
	}

	return e, nil
}
