package goRefresh

import (
	"context"
	"time"

	"github.com/MrEthical07/goRefresh/internal/audit"
)

// Audit event types emitted by the engine. Events marked critical by the
// dispatcher ([AuditEvent.Critical]) are never dropped under backpressure.
const (
	// AuditIssueSuccess is an exported constant or variable used by the token lifecycle engine.
	AuditIssueSuccess = audit.EventIssueSuccess
	// AuditIssueBlocked is an exported constant or variable used by the token lifecycle engine.
	AuditIssueBlocked = audit.EventIssueBlocked
	// AuditIssueFailure is an exported constant or variable used by the token lifecycle engine.
	AuditIssueFailure = audit.EventIssueFailure
	// AuditRotateSuccess is an exported constant or variable used by the token lifecycle engine.
	AuditRotateSuccess = audit.EventRotateSuccess
	// AuditRotateNotFound is an exported constant or variable used by the token lifecycle engine.
	AuditRotateNotFound = audit.EventRotateNotFound
	// AuditReuseDetected marks the security-critical event: a consumed token
	// was presented again and its family has been locked.
	AuditReuseDetected = audit.EventReuseDetected
	// AuditRotateFamilyRevoked is an exported constant or variable used by the token lifecycle engine.
	AuditRotateFamilyRevoked = audit.EventRotateFamilyRevoked
	// AuditRotateFailure is an exported constant or variable used by the token lifecycle engine.
	AuditRotateFailure = audit.EventRotateFailure
	// AuditRevokeToken is an exported constant or variable used by the token lifecycle engine.
	AuditRevokeToken = audit.EventRevokeToken
	// AuditRevokeFamily is an exported constant or variable used by the token lifecycle engine.
	AuditRevokeFamily = audit.EventRevokeFamily
	// AuditRevokeMember is an exported constant or variable used by the token lifecycle engine.
	AuditRevokeMember = audit.EventRevokeMember
)

type auditEntry struct {
	eventType string
	memberID  int64
	familyID  string
	jti       string
	success   bool
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, entry auditEntry) {
	if e.dispatcher == nil {
		return
	}

	event := audit.Event{
		Timestamp: time.Now(),
		EventType: entry.eventType,
		MemberID:  entry.memberID,
		FamilyID:  entry.familyID,
		JTI:       entry.jti,
		IP:        clientIPFromContext(ctx),
		Success:   entry.success,
		Metadata:  entry.metadata,
	}
	if entry.err != nil {
		event.Error = entry.err.Error()
	}

	e.dispatcher.Emit(ctx, event)
}
