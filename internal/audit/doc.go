// Package audit provides the internal audit event model and an asynchronous
// dispatcher that forwards token-lifecycle events to a caller-supplied sink.
//
// # What this package must NOT do
//
//   - Block engine request paths when the sink is slow (buffer or drop).
//   - Import goRefresh or any sibling package.
package audit
