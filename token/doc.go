// Package token implements the Redis persistence layer for refresh-token
// lifecycle state: per-token hash records, family membership sets, family
// status flags, and the per-member family index.
//
// # Design
//
// Every structure is TTL-bound and independently expirable; nothing is
// reaped in the background. The one piece of vendor-specific concurrency
// machinery is the rotation Lua script in rotate.go, which runs as a single
// critical section for the keys it touches. Any replacement backend must
// provide an equivalent atomic multi-key transaction — weakening it
// reintroduces the double-rotation race this layer exists to prevent.
//
// # What this package must NOT do
//
//   - Decide lifecycle policy. Status transitions beyond the rotation
//     script are driven by the flows layer.
//   - Import goRefresh or any sibling package.
package token
