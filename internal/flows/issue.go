package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goRefresh/token"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureFamilyRevoked
	IssueFailureNewJTI
	IssueFailureStore
)

// IssueResult carries either the issued jti or failure metadata.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	JTI          string
	FamilyStatus string
	ExpiresAt    int64
}

// IssueStore is the slice of the token store issuance depends on.
type IssueStore interface {
	FamilyStatus(ctx context.Context, familyID string) (string, error)
	PutToken(ctx context.Context, jti string, rec *token.Record, ttl time.Duration) error
	AddToFamily(ctx context.Context, familyID, jti string, ttl time.Duration) error
	AddMemberFamily(ctx context.Context, memberID int64, familyID string, ttl time.Duration) error
}

// IssueDeps captures issuance flow dependencies.
type IssueDeps struct {
	NewJTI func() (string, error)
	Now    func() time.Time
	TTL    func() time.Duration
	Warn   func(string, ...any)
	Store  IssueStore
}

// RunIssue creates a new ACTIVE token under the family. A REVOKED or
// COMPROMISED family blocks issuance permanently: families are never
// resurrected, a fresh login must mint a fresh family.
//
// The three writes (token record, family-set add, member-index add) are
// intentionally not one atomic unit. A crash between them can leave a
// readable token that is invisible to family/member revocation until its
// TTL clears it; rotation and the record's own expiry still bound the
// damage.
func RunIssue(ctx context.Context, memberID int64, username, familyID string, deps IssueDeps) IssueResult {
	status, err := deps.Store.FamilyStatus(ctx, familyID)
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}
	if status == token.FamilyRevoked || status == token.FamilyCompromised {
		return IssueResult{
			Failure:      IssueFailureFamilyRevoked,
			FamilyStatus: status,
		}
	}

	jti, err := deps.NewJTI()
	if err != nil {
		return IssueResult{Failure: IssueFailureNewJTI, Err: err}
	}

	now := deps.Now()
	ttl := deps.TTL()
	expiresAt := now.Unix() + int64(ttl/time.Second)

	rec := &token.Record{
		MemberID:   memberID,
		Username:   username,
		FamilyID:   familyID,
		Status:     token.StatusActive,
		IssuedAtMS: now.UnixMilli(),
		ExpiresAt:  expiresAt,
	}

	if err := deps.Store.PutToken(ctx, jti, rec, ttl); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, JTI: jti}
	}
	if err := deps.Store.AddToFamily(ctx, familyID, jti, ttl); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, JTI: jti}
	}
	if err := deps.Store.AddMemberFamily(ctx, memberID, familyID, ttl); err != nil {
		// The token is live and family-tracked; only member-wide fan-out
		// would miss this family. Surface the failure rather than hide it.
		return IssueResult{Failure: IssueFailureStore, Err: err, JTI: jti}
	}

	return IssueResult{
		Failure:   IssueFailureNone,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}
}
