package goRefresh

import (
	"io"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/internal/audit"
	"github.com/MrEthical07/goRefresh/token"
)

// TokenRecord is the stored state of one refresh token.
type TokenRecord = token.Record

// IssuedToken reports a freshly minted refresh token.
//
// IssuedToken instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IssuedToken struct {
	JTI        string
	FamilyID   string
	MemberID   int64
	Username   string
	ExpiresAt  int64 // epoch seconds
	TTLSeconds int64
}

// RotationContext reports the outcome of a successful rotation: the consumed
// jti, its ACTIVE successor, and the identity bound to the family.
//
// RotationContext instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RotationContext struct {
	MemberID   int64
	Username   string
	FamilyID   string
	OldJTI     string
	NewJTI     string
	ExpiresAt  int64 // epoch seconds
	TTLSeconds int64
}

// RevocationReport summarizes a cascading revocation pass.
type RevocationReport struct {
	FamilyID        string
	TokensRevoked   int
	FamiliesRevoked int
	// Missing is true when the addressed token, family, or member index was
	// already gone. Revocation is idempotent, so Missing is not an error.
	Missing bool
}

// AuditEvent defines a public type used by goRefresh APIs.
type AuditEvent = audit.Event

// AuditSink defines a public type used by goRefresh APIs.
type AuditSink = audit.Sink

// NoOpAuditSink defines a public type used by goRefresh APIs.
type NoOpAuditSink = audit.NoOpSink

// ChannelAuditSink defines a public type used by goRefresh APIs.
type ChannelAuditSink = audit.ChannelSink

// JSONWriterAuditSink defines a public type used by goRefresh APIs.
type JSONWriterAuditSink = audit.JSONWriterSink

// NewChannelAuditSink creates a sink that buffers events on a channel.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterAuditSink creates a sink that writes one JSON object per line.
func NewJSONWriterAuditSink(w io.Writer) *JSONWriterAuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewFamilyID mints a fresh family identifier. Callers create one family per
// login session and pass it to [Engine.Issue].
//
// NewFamilyID may return an error when input validation, dependency calls, or security checks fail.
func NewFamilyID() (string, error) {
	return internal.NewFamilyID()
}
