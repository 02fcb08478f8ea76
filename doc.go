// Package goRefresh manages the lifecycle of opaque refresh tokens: issuance
// into token families, atomic single-use rotation with reuse detection, and
// cascading revocation by token, family, or member.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All token state lives in Redis with a fixed TTL; the engine
// holds no per-token state in process.
//
// # Architecture boundaries
//
// goRefresh is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types (RotationContext, TokenRecord, audit sinks,
// MetricsSnapshot). Flow orchestration and audit dispatch live under internal/
// and are never exported. The Redis record layout lives in the token package.
//
// # What this package must NOT do
//
//   - Encode, sign, or verify access tokens. Callers exchange a successful
//     rotation for an access token through their own identity layer.
//   - Parse OAuth2 provider responses or persist business entities.
//   - Resurrect a revoked or compromised family. Family status is monotone;
//     a new login must mint a new family.
//
// # Concurrency contract
//
// Rotation is the only synchronization point. Two callers redeeming the same
// token race through one Lua script: exactly one wins and mints a successor,
// the other observes the consumed status and is reported as reuse, which
// locks the whole family. Any replacement store must provide an equivalent
// run-to-completion multi-key transaction or this guarantee is lost.
package goRefresh
