package goRefresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/internal/audit"
	"github.com/MrEthical07/goRefresh/internal/flows"
	"github.com/MrEthical07/goRefresh/token"
)

// Engine is the refresh-token lifecycle manager. Construct through
// [Builder.Build]; the zero value is not usable.
//
// All methods are safe for concurrent use.
type Engine struct {
	cfg        Config
	store      *token.Store
	flows      flows.Deps
	metrics    *engineMetrics
	dispatcher *audit.Dispatcher
	ready      bool
}

func warnf(format string, args ...any) {
	log.Printf("goRefresh: "+format, args...)
}

func (e *Engine) guard() error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	return nil
}

// mapStoreErr converts store-level failures to the public sentinel;
// everything else passes through untouched. A corrupt record is a store
// fault too: callers cannot act on a hash the store can no longer parse.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, token.ErrRedisUnavailable) || errors.Is(err, token.ErrCorruptRecord) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

/*
====================================
ISSUANCE
====================================
*/

// Issue mints a new ACTIVE refresh token bound to the member inside the
// given family. Use [NewFamilyID] to start a fresh family per login; issuing
// into an existing healthy family extends its chain.
//
// Returns [ErrFamilyRevoked] when the family has been revoked or flagged
// compromised. Dead families stay dead.
//
// The record write, family-set add, and member-index add are not one atomic
// unit. A crash mid-issue can leave a token invisible to family or member
// revocation until its TTL expires it.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
//
//	Performance: 1 Redis GET + 3 short transactions.
func (e *Engine) Issue(ctx context.Context, memberID int64, username, familyID string) (*IssuedToken, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := internal.ValidateID(familyID); err != nil {
		return nil, fmt.Errorf("invalid family id: %w", err)
	}

	res := flows.RunIssue(ctx, memberID, username, familyID, e.flows.Issue)
	switch res.Failure {
	case flows.IssueFailureNone:
		e.metrics.inc(MetricIssueSuccess)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditIssueSuccess,
			memberID:  memberID,
			familyID:  familyID,
			jti:       res.JTI,
			success:   true,
		})
		return &IssuedToken{
			JTI:        res.JTI,
			FamilyID:   familyID,
			MemberID:   memberID,
			Username:   username,
			ExpiresAt:  res.ExpiresAt,
			TTLSeconds: int64(e.cfg.Token.TTL / time.Second),
		}, nil

	case flows.IssueFailureFamilyRevoked:
		e.metrics.inc(MetricIssueBlocked)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditIssueBlocked,
			memberID:  memberID,
			familyID:  familyID,
			metadata:  map[string]string{"family_status": res.FamilyStatus},
		})
		return nil, fmt.Errorf("%w: family status %s", ErrFamilyRevoked, res.FamilyStatus)

	default:
		err := mapStoreErr(res.Err)
		e.metrics.inc(MetricIssueFailure)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditIssueFailure,
			memberID:  memberID,
			familyID:  familyID,
			jti:       res.JTI,
			err:       err,
		})
		return nil, err
	}
}

/*
====================================
ROTATION
====================================
*/

// Rotate redeems oldJTI for a fresh token in the same family. At most one
// concurrent call per jti succeeds; every other racer gets
// [ErrTokenReused], and a reuse verdict locks the entire family before the
// error is returned.
//
// Returns [ErrTokenNotFound] when the record is absent or expired, and
// [ErrFamilyRevoked] when the family is already locked.
//
// Rotate may return an error when input validation, dependency calls, or security checks fail.
//
//	Performance: 1 Redis HGETALL + 1 GET + 1 Lua EVALSHA.
func (e *Engine) Rotate(ctx context.Context, oldJTI string) (*RotationContext, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := internal.ValidateID(oldJTI); err != nil {
		return nil, fmt.Errorf("invalid jti: %w", err)
	}

	start := time.Now()
	res := flows.RunRotate(ctx, oldJTI, e.flows.Rotate)
	e.metrics.observeRotateLatency(time.Since(start))

	switch res.Failure {
	case flows.RotateFailureNone:
		rot := res.Rotation
		e.metrics.inc(MetricRotateSuccess)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditRotateSuccess,
			memberID:  rot.MemberID,
			familyID:  rot.FamilyID,
			jti:       rot.NewJTI,
			success:   true,
			metadata:  map[string]string{"old_jti": rot.OldJTI},
		})
		return &RotationContext{
			MemberID:   rot.MemberID,
			Username:   rot.Username,
			FamilyID:   rot.FamilyID,
			OldJTI:     rot.OldJTI,
			NewJTI:     rot.NewJTI,
			ExpiresAt:  rot.ExpiresAt,
			TTLSeconds: rot.TTLSeconds,
		}, nil

	case flows.RotateFailureNotFound:
		e.metrics.inc(MetricRotateNotFound)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditRotateNotFound,
			jti:       oldJTI,
		})
		return nil, ErrTokenNotFound

	case flows.RotateFailureReuse:
		e.metrics.inc(MetricRotateReuse)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditReuseDetected,
			jti:       oldJTI,
			metadata: map[string]string{
				"offending_status": res.OffendingStatus,
				"family_locked":    fmt.Sprintf("%t", res.FamilyLocked),
			},
		})
		return nil, fmt.Errorf("%w: token status %s", ErrTokenReused, res.OffendingStatus)

	case flows.RotateFailureFamilyRevoked:
		e.metrics.inc(MetricRotateFamilyRevoked)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditRotateFamilyRevoked,
			jti:       oldJTI,
			metadata:  map[string]string{"family_status": res.OffendingStatus},
		})
		return nil, fmt.Errorf("%w: family status %s", ErrFamilyRevoked, res.OffendingStatus)

	default:
		err := mapStoreErr(res.Err)
		e.metrics.inc(MetricRotateFailure)
		e.emitAudit(ctx, auditEntry{
			eventType: AuditRotateFailure,
			jti:       oldJTI,
			err:       err,
		})
		return nil, err
	}
}

/*
====================================
REVOCATION
====================================
*/

// RevokeToken cascades from the presented token to its whole family:
// presenting any token of a chain kills the chain, which is the correct
// logout semantic given that only one token of a family is ever ACTIVE.
// Revoking an absent token is a no-op reported via Missing.
//
// RevokeToken may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) RevokeToken(ctx context.Context, jti string) (*RevocationReport, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := internal.ValidateID(jti); err != nil {
		return nil, fmt.Errorf("invalid jti: %w", err)
	}

	res := flows.RunRevokeByToken(ctx, jti, e.flows.Revoke)
	if res.Failure != flows.RevokeFailureNone {
		return nil, mapStoreErr(res.Err)
	}

	e.metrics.inc(MetricRevokeToken)
	e.emitAudit(ctx, auditEntry{
		eventType: AuditRevokeToken,
		familyID:  res.FamilyID,
		jti:       jti,
		success:   true,
	})
	return &RevocationReport{
		FamilyID:        res.FamilyID,
		TokensRevoked:   res.TokensRevoked,
		FamiliesRevoked: res.FamiliesRevoked,
		Missing:         res.Missing,
	}, nil
}

// RevokeFamily locks the family and marks every tracked token REVOKED. The
// status flag is written first so rotation and issuance reject immediately
// even if the per-token pass is interrupted. Idempotent.
//
// RevokeFamily may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) (*RevocationReport, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := internal.ValidateID(familyID); err != nil {
		return nil, fmt.Errorf("invalid family id: %w", err)
	}

	res := flows.RunRevokeByFamily(ctx, familyID, e.flows.Revoke)
	if res.Failure != flows.RevokeFailureNone {
		return nil, mapStoreErr(res.Err)
	}

	e.metrics.inc(MetricRevokeFamily)
	e.emitAudit(ctx, auditEntry{
		eventType: AuditRevokeFamily,
		familyID:  familyID,
		success:   true,
		metadata:  map[string]string{"tokens_revoked": fmt.Sprintf("%d", res.TokensRevoked)},
	})
	return &RevocationReport{
		FamilyID:        familyID,
		TokensRevoked:   res.TokensRevoked,
		FamiliesRevoked: res.FamiliesRevoked,
		Missing:         res.Missing,
	}, nil
}

// RevokeMember revokes every family in the member's index and then drops
// the index. On partial failure the index is retained so a retry re-covers
// every family.
//
// RevokeMember may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) RevokeMember(ctx context.Context, memberID int64) (*RevocationReport, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	res := flows.RunRevokeByMember(ctx, memberID, e.flows.Revoke)
	if res.Failure != flows.RevokeFailureNone {
		return nil, mapStoreErr(res.Err)
	}

	e.metrics.inc(MetricRevokeMember)
	e.emitAudit(ctx, auditEntry{
		eventType: AuditRevokeMember,
		memberID:  memberID,
		success:   true,
		metadata: map[string]string{
			"families_revoked": fmt.Sprintf("%d", res.FamiliesRevoked),
			"tokens_revoked":   fmt.Sprintf("%d", res.TokensRevoked),
		},
	})
	return &RevocationReport{
		TokensRevoked:   res.TokensRevoked,
		FamiliesRevoked: res.FamiliesRevoked,
		Missing:         res.Missing,
	}, nil
}

/*
====================================
QUERIES & MAINTENANCE
====================================
*/

// Exists reports whether a token record is currently present. Presence says
// nothing about status; a USED or REVOKED record still exists until TTL.
func (e *Engine) Exists(ctx context.Context, jti string) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	ok, err := e.store.Exists(ctx, jti)
	return ok, mapStoreErr(err)
}

// Get returns the stored record for a jti, or nil when absent or expired.
func (e *Engine) Get(ctx context.Context, jti string) (*TokenRecord, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	rec, err := e.store.GetToken(ctx, jti)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, mapStoreErr(err)
	}
	return rec, nil
}

// Delete removes a token record outright, including its family-set
// membership. Unlike [Engine.RevokeToken] this leaves no evidence behind;
// prefer revocation in security-sensitive paths.
func (e *Engine) Delete(ctx context.Context, jti string) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	deleted, err := e.store.DeleteToken(ctx, jti)
	return deleted, mapStoreErr(err)
}

// FamilyStatus returns the family's status flag: "" (healthy), REVOKED, or
// COMPROMISED.
func (e *Engine) FamilyStatus(ctx context.Context, familyID string) (string, error) {
	if err := e.guard(); err != nil {
		return "", err
	}
	status, err := e.store.FamilyStatus(ctx, familyID)
	return status, mapStoreErr(err)
}

// FamilyHealthy reports whether the family can still issue and rotate.
func (e *Engine) FamilyHealthy(ctx context.Context, familyID string) (bool, error) {
	status, err := e.FamilyStatus(ctx, familyID)
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// Ping checks store connectivity and reports round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	d, err := e.store.Ping(ctx)
	return d, mapStoreErr(err)
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.snapshot()
}

// AuditDropped returns how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// Close drains and stops the audit dispatcher. The engine rejects calls
// afterwards only insofar as audit events are dropped; Redis operations do
// not go through Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}
