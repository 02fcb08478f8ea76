package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRefresh/token"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureNotFound
	RotateFailureFamilyRevoked
	RotateFailureReuse
	RotateFailureNewJTI
	RotateFailureStore
)

// RotateResult carries the committed rotation or failure metadata.
// OffendingStatus is the non-ACTIVE token status (Reuse) or the blocking
// family status (FamilyRevoked) the store observed.
type RotateResult struct {
	Failure         RotateFailureKind
	Err             error
	Rotation        *token.Rotation
	OffendingStatus string
	FamilyLocked    bool
}

// RotateStore is the slice of the token store rotation depends on.
type RotateStore interface {
	GetToken(ctx context.Context, jti string) (*token.Record, error)
	FamilyStatus(ctx context.Context, familyID string) (string, error)
	Rotate(ctx context.Context, oldJTI, newJTI string, memberID int64, username, familyID string, now time.Time, ttl time.Duration) (*token.Rotation, error)
	SetFamilyStatus(ctx context.Context, familyID, status string, ttl time.Duration) error
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	NewJTI func() (string, error)
	Now    func() time.Time
	TTL    func() time.Duration
	Warn   func(string, ...any)
	// RedisNil identifies the store's absent-key sentinel without this
	// package importing the Redis client.
	RedisNil error
	Store    RotateStore
}

// RunRotate exchanges a presented token for a fresh one. The flow does a
// cheap read-only pre-check (record lookup, family status) so the common
// rejection paths skip script execution, then delegates the decisive
// exchange to the store's atomic rotate. The pre-check is advisory only:
// every outcome it can produce is re-verified inside the script, so a
// racing writer between pre-check and script never yields a double spend.
//
// When the store reports reuse, the flow locks the family REVOKED before
// returning. A lock write failure is reported via Warn but the reuse
// verdict stands: the caller must reject the request either way.
func RunRotate(ctx context.Context, oldJTI string, deps RotateDeps) RotateResult {
	rec, err := deps.Store.GetToken(ctx, oldJTI)
	if err != nil {
		if deps.RedisNil != nil && errors.Is(err, deps.RedisNil) {
			return RotateResult{Failure: RotateFailureNotFound}
		}
		return RotateResult{Failure: RotateFailureStore, Err: err}
	}

	familyStatus, err := deps.Store.FamilyStatus(ctx, rec.FamilyID)
	if err != nil {
		return RotateResult{Failure: RotateFailureStore, Err: err}
	}
	if familyStatus == token.FamilyRevoked || familyStatus == token.FamilyCompromised {
		return RotateResult{
			Failure:         RotateFailureFamilyRevoked,
			OffendingStatus: familyStatus,
			FamilyLocked:    true,
		}
	}

	newJTI, err := deps.NewJTI()
	if err != nil {
		return RotateResult{Failure: RotateFailureNewJTI, Err: err}
	}

	rotation, err := deps.Store.Rotate(
		ctx,
		oldJTI,
		newJTI,
		rec.MemberID,
		rec.Username,
		rec.FamilyID,
		deps.Now(),
		deps.TTL(),
	)
	if err == nil {
		return RotateResult{Failure: RotateFailureNone, Rotation: rotation}
	}

	var reuse *token.ReuseError
	if errors.As(err, &reuse) {
		res := RotateResult{
			Failure:         RotateFailureReuse,
			OffendingStatus: reuse.Status,
		}
		lockErr := deps.Store.SetFamilyStatus(ctx, rec.FamilyID, token.FamilyRevoked, deps.TTL())
		if lockErr != nil {
			if deps.Warn != nil {
				deps.Warn("reuse detected but family lock write failed: family=%s err=%v", rec.FamilyID, lockErr)
			}
		} else {
			res.FamilyLocked = true
		}
		return res
	}

	var familyLocked *token.FamilyRevokedError
	if errors.As(err, &familyLocked) {
		return RotateResult{
			Failure:         RotateFailureFamilyRevoked,
			OffendingStatus: familyLocked.Status,
			FamilyLocked:    true,
		}
	}

	if errors.Is(err, token.ErrRotateTokenNotFound) {
		// Record expired or was deleted between pre-check and script.
		return RotateResult{Failure: RotateFailureNotFound}
	}

	return RotateResult{Failure: RotateFailureStore, Err: err}
}
