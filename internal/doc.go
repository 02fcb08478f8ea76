// Package internal holds shared helpers for goRefresh that must not become
// public API surface.
package internal
