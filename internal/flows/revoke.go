package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRefresh/token"
)

// RevokeFailureKind classifies revocation failures for root-level mapping.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureStore
)

// RevokeResult reports the scope of a revocation pass. Missing is true when
// the addressed token or index was already gone; revocation stays
// idempotent, so callers usually treat Missing as success.
type RevokeResult struct {
	Failure         RevokeFailureKind
	Err             error
	FamilyID        string
	TokensRevoked   int
	FamiliesRevoked int
	Missing         bool
}

// RevokeStore is the slice of the token store revocation depends on.
type RevokeStore interface {
	GetToken(ctx context.Context, jti string) (*token.Record, error)
	MarkRevoked(ctx context.Context, jti string, revokedAtMS int64) (bool, error)
	SetFamilyStatus(ctx context.Context, familyID, status string, ttl time.Duration) error
	FamilyTokens(ctx context.Context, familyID string) ([]string, error)
	DeleteFamily(ctx context.Context, familyID string) (bool, error)
	MemberFamilies(ctx context.Context, memberID int64) ([]string, error)
	DeleteMemberIndex(ctx context.Context, memberID int64) (bool, error)
}

// RevokeDeps captures revocation flow dependencies.
type RevokeDeps struct {
	Now   func() time.Time
	TTL   func() time.Duration
	Warn  func(string, ...any)
	Store RevokeStore
}

// RunRevokeByToken cascades from one presented token to its entire family:
// the familyId is read off the record, then the whole family is revoked.
// Presenting any token of a chain kills the chain; anything less leaves the
// sibling ACTIVE token usable after a logout. A missing record is not an
// error: the token is already unusable.
func RunRevokeByToken(ctx context.Context, jti string, deps RevokeDeps) RevokeResult {
	rec, err := deps.Store.GetToken(ctx, jti)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrCorruptRecord):
		// The familyId is unreadable, so the cascade has nowhere to go.
		// Kill the record itself; its TTL bounds the rest.
		marked, markErr := deps.Store.MarkRevoked(ctx, jti, deps.Now().UnixMilli())
		if markErr != nil {
			return RevokeResult{Failure: RevokeFailureStore, Err: markErr}
		}
		if !marked {
			return RevokeResult{Missing: true}
		}
		return RevokeResult{TokensRevoked: 1}
	case errors.Is(err, token.ErrRedisUnavailable):
		return RevokeResult{Failure: RevokeFailureStore, Err: err}
	default:
		// redis.Nil: already gone.
		return RevokeResult{Missing: true}
	}

	res := RunRevokeByFamily(ctx, rec.FamilyID, deps)
	res.FamilyID = rec.FamilyID
	if res.Failure != RevokeFailureNone {
		return res
	}

	// Rotation prunes consumed jtis from the family set, so a USED record
	// presented here may not have been swept by the family pass. Finish it
	// off directly.
	if rec.Status != token.StatusRevoked {
		after, err := deps.Store.GetToken(ctx, jti)
		switch {
		case err == nil && after.Status != token.StatusRevoked:
			marked, markErr := deps.Store.MarkRevoked(ctx, jti, deps.Now().UnixMilli())
			if markErr != nil {
				res.Failure = RevokeFailureStore
				res.Err = markErr
				return res
			}
			if marked {
				res.TokensRevoked++
			}
		case err != nil && errors.Is(err, token.ErrRedisUnavailable):
			res.Failure = RevokeFailureStore
			res.Err = err
			return res
		}
	}

	res.Missing = false
	return res
}

// RunRevokeByFamily kills an entire family: the status flag goes REVOKED
// first so rotation and issuance lock out immediately, then every tracked
// record is marked REVOKED, then the membership set is deleted. The flag
// write leads on purpose — if the pass dies halfway, the family is already
// dead even though some records still read non-REVOKED.
func RunRevokeByFamily(ctx context.Context, familyID string, deps RevokeDeps) RevokeResult {
	if err := deps.Store.SetFamilyStatus(ctx, familyID, token.FamilyRevoked, deps.TTL()); err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err, FamilyID: familyID}
	}

	jtis, err := deps.Store.FamilyTokens(ctx, familyID)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err, FamilyID: familyID}
	}

	nowMS := deps.Now().UnixMilli()
	revoked := 0
	for _, jti := range jtis {
		marked, err := deps.Store.MarkRevoked(ctx, jti, nowMS)
		if err != nil {
			return RevokeResult{
				Failure:       RevokeFailureStore,
				Err:           err,
				FamilyID:      familyID,
				TokensRevoked: revoked,
			}
		}
		if marked {
			revoked++
		}
	}

	if _, err := deps.Store.DeleteFamily(ctx, familyID); err != nil {
		return RevokeResult{
			Failure:       RevokeFailureStore,
			Err:           err,
			FamilyID:      familyID,
			TokensRevoked: revoked,
		}
	}

	return RevokeResult{
		FamilyID:        familyID,
		TokensRevoked:   revoked,
		FamiliesRevoked: 1,
		Missing:         len(jtis) == 0,
	}
}

// RunRevokeByMember fans out family revocation across every family in the
// member's index, then drops the index. Families that fail are skipped
// rather than aborting the pass; the member deserves as much lockout as
// the store will give.
func RunRevokeByMember(ctx context.Context, memberID int64, deps RevokeDeps) RevokeResult {
	families, err := deps.Store.MemberFamilies(ctx, memberID)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureStore, Err: err}
	}
	if len(families) == 0 {
		return RevokeResult{Missing: true}
	}

	var (
		tokensRevoked   int
		familiesRevoked int
		firstErr        error
	)
	for _, familyID := range families {
		res := RunRevokeByFamily(ctx, familyID, deps)
		tokensRevoked += res.TokensRevoked
		familiesRevoked += res.FamiliesRevoked
		if res.Failure != RevokeFailureNone {
			if firstErr == nil {
				firstErr = res.Err
			}
			if deps.Warn != nil {
				deps.Warn("member revocation: family pass failed: member=%d family=%s err=%v", memberID, familyID, res.Err)
			}
		}
	}

	if firstErr == nil {
		if _, err := deps.Store.DeleteMemberIndex(ctx, memberID); err != nil {
			firstErr = err
		}
	}
	// On partial failure the index stays so a retry re-covers every family.

	if firstErr != nil {
		return RevokeResult{
			Failure:         RevokeFailureStore,
			Err:             firstErr,
			TokensRevoked:   tokensRevoked,
			FamiliesRevoked: familiesRevoked,
		}
	}
	return RevokeResult{
		TokensRevoked:   tokensRevoked,
		FamiliesRevoked: familiesRevoked,
	}
}
