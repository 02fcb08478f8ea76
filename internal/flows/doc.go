// Package flows implements the token lifecycle protocols — issuance,
// rotation, and cascading revocation — as pure functions over narrow store
// interfaces. The root engine wires concrete dependencies once and maps
// flow failure kinds to its public error taxonomy.
//
// Keeping the protocol logic here, behind function-valued dependencies,
// lets flow tests run against an in-memory fake store with no Redis.
package flows
