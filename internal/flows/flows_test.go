package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goRefresh/token"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

const testTTL = 30 * 24 * time.Hour

func issueDeps(store *fakeStore, jtis ...string) IssueDeps {
	next := 0
	return IssueDeps{
		NewJTI: func() (string, error) {
			jti := jtis[next]
			next++
			return jti, nil
		},
		Now:   func() time.Time { return testNow },
		TTL:   func() time.Duration { return testTTL },
		Store: store,
	}
}

func rotateDeps(store *fakeStore, jtis ...string) RotateDeps {
	next := 0
	return RotateDeps{
		NewJTI: func() (string, error) {
			jti := jtis[next]
			next++
			return jti, nil
		},
		Now:      func() time.Time { return testNow },
		TTL:      func() time.Duration { return testTTL },
		RedisNil: errAbsent,
		Store:    store,
	}
}

func revokeDeps(store *fakeStore) RevokeDeps {
	return RevokeDeps{
		Now:   func() time.Time { return testNow },
		TTL:   func() time.Duration { return testTTL },
		Store: store,
	}
}

func seedActive(t *testing.T, store *fakeStore, jti string, memberID int64, username, familyID string) {
	t.Helper()
	ctx := context.Background()
	res := RunIssue(ctx, memberID, username, familyID, IssueDeps{
		NewJTI: func() (string, error) { return jti, nil },
		Now:    func() time.Time { return testNow },
		TTL:    func() time.Duration { return testTTL },
		Store:  store,
	})
	if res.Failure != IssueFailureNone {
		t.Fatalf("seed issue failed: kind=%d err=%v", res.Failure, res.Err)
	}
}

func TestRunIssueCreatesActiveToken(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	res := RunIssue(ctx, 42, "alice", "fam-1", issueDeps(store, "jti-1"))
	if res.Failure != IssueFailureNone {
		t.Fatalf("expected success, got kind=%d err=%v", res.Failure, res.Err)
	}
	if res.JTI != "jti-1" {
		t.Errorf("jti = %q, want jti-1", res.JTI)
	}
	wantExp := testNow.Unix() + int64(testTTL/time.Second)
	if res.ExpiresAt != wantExp {
		t.Errorf("expiresAt = %d, want %d", res.ExpiresAt, wantExp)
	}

	rec, err := store.GetToken(ctx, "jti-1")
	if err != nil {
		t.Fatalf("stored record missing: %v", err)
	}
	if rec.Status != token.StatusActive {
		t.Errorf("status = %q, want ACTIVE", rec.Status)
	}
	if rec.MemberID != 42 || rec.Username != "alice" || rec.FamilyID != "fam-1" {
		t.Errorf("record identity mismatch: %+v", rec)
	}
	if _, ok := store.families["fam-1"]["jti-1"]; !ok {
		t.Error("jti not tracked in family set")
	}
	if _, ok := store.memberFamilies[42]["fam-1"]; !ok {
		t.Error("family not tracked in member index")
	}
}

func TestRunIssueBlockedByDeadFamily(t *testing.T) {
	for _, status := range []string{token.FamilyRevoked, token.FamilyCompromised} {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			store.familyStatus["fam-1"] = status

			res := RunIssue(context.Background(), 42, "alice", "fam-1", issueDeps(store, "jti-1"))
			if res.Failure != IssueFailureFamilyRevoked {
				t.Fatalf("expected family block, got kind=%d err=%v", res.Failure, res.Err)
			}
			if res.FamilyStatus != status {
				t.Errorf("family status = %q, want %q", res.FamilyStatus, status)
			}
			if len(store.tokens) != 0 {
				t.Error("blocked issuance wrote a token record")
			}
		})
	}
}

func TestRunIssueStoreFailure(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("boom")
	store.failOn("PutToken", boom)

	res := RunIssue(context.Background(), 42, "alice", "fam-1", issueDeps(store, "jti-1"))
	if res.Failure != IssueFailureStore {
		t.Fatalf("expected store failure, got kind=%d", res.Failure)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("err = %v, want wrapped boom", res.Err)
	}
}

func TestRunRotateHappyPath(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-old", 42, "alice", "fam-1")
	ctx := context.Background()

	res := RunRotate(ctx, "jti-old", rotateDeps(store, "jti-new"))
	if res.Failure != RotateFailureNone {
		t.Fatalf("expected success, got kind=%d err=%v", res.Failure, res.Err)
	}
	if res.Rotation == nil || res.Rotation.NewJTI != "jti-new" {
		t.Fatalf("rotation = %+v", res.Rotation)
	}
	if res.Rotation.MemberID != 42 || res.Rotation.FamilyID != "fam-1" {
		t.Errorf("rotation identity mismatch: %+v", res.Rotation)
	}

	old, err := store.GetToken(ctx, "jti-old")
	if err != nil {
		t.Fatalf("old record gone: %v", err)
	}
	if old.Status != token.StatusUsed {
		t.Errorf("old status = %q, want USED", old.Status)
	}
	if old.LastUsedAtMS != testNow.UnixMilli() {
		t.Errorf("old last_used_at_ms = %d, want %d", old.LastUsedAtMS, testNow.UnixMilli())
	}

	fresh, err := store.GetToken(ctx, "jti-new")
	if err != nil {
		t.Fatalf("new record missing: %v", err)
	}
	if fresh.Status != token.StatusActive {
		t.Errorf("new status = %q, want ACTIVE", fresh.Status)
	}

	if _, ok := store.families["fam-1"]["jti-old"]; ok {
		t.Error("old jti still in family set")
	}
	if _, ok := store.families["fam-1"]["jti-new"]; !ok {
		t.Error("new jti not in family set")
	}
}

func TestRunRotateNotFound(t *testing.T) {
	store := newFakeStore()

	res := RunRotate(context.Background(), "nope", rotateDeps(store, "unused"))
	if res.Failure != RotateFailureNotFound {
		t.Fatalf("expected not-found, got kind=%d err=%v", res.Failure, res.Err)
	}
}

func TestRunRotateReuseLocksFamily(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-old", 42, "alice", "fam-1")
	ctx := context.Background()

	first := RunRotate(ctx, "jti-old", rotateDeps(store, "jti-new"))
	if first.Failure != RotateFailureNone {
		t.Fatalf("first rotation failed: kind=%d err=%v", first.Failure, first.Err)
	}

	second := RunRotate(ctx, "jti-old", rotateDeps(store, "jti-evil"))
	if second.Failure != RotateFailureReuse {
		t.Fatalf("expected reuse, got kind=%d err=%v", second.Failure, second.Err)
	}
	if second.OffendingStatus != token.StatusUsed {
		t.Errorf("offending status = %q, want USED", second.OffendingStatus)
	}
	if !second.FamilyLocked {
		t.Error("family not locked after reuse")
	}
	if store.familyStatus["fam-1"] != token.FamilyRevoked {
		t.Errorf("family status = %q, want REVOKED", store.familyStatus["fam-1"])
	}

	// The surviving token is collateral damage of the lockout.
	third := RunRotate(ctx, "jti-new", rotateDeps(store, "jti-next"))
	if third.Failure != RotateFailureFamilyRevoked {
		t.Fatalf("expected family block for survivor, got kind=%d", third.Failure)
	}
	if third.OffendingStatus != token.FamilyRevoked {
		t.Errorf("offending status = %q, want REVOKED", third.OffendingStatus)
	}
}

func TestRunRotateReuseSurvivesLockWriteFailure(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-old", 42, "alice", "fam-1")
	ctx := context.Background()

	if res := RunRotate(ctx, "jti-old", rotateDeps(store, "jti-new")); res.Failure != RotateFailureNone {
		t.Fatalf("first rotation failed: kind=%d err=%v", res.Failure, res.Err)
	}

	store.failOn("SetFamilyStatus", errors.New("write refused"))
	var warned bool
	deps := rotateDeps(store, "jti-evil")
	deps.Warn = func(string, ...any) { warned = true }

	res := RunRotate(ctx, "jti-old", deps)
	if res.Failure != RotateFailureReuse {
		t.Fatalf("expected reuse verdict, got kind=%d err=%v", res.Failure, res.Err)
	}
	if res.FamilyLocked {
		t.Error("FamilyLocked reported despite lock write failure")
	}
	if !warned {
		t.Error("lock write failure not surfaced via Warn")
	}
}

func TestRunRotateDeadFamilyFastPath(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-old", 42, "alice", "fam-1")
	store.familyStatus["fam-1"] = token.FamilyCompromised

	res := RunRotate(context.Background(), "jti-old", rotateDeps(store, "unused"))
	if res.Failure != RotateFailureFamilyRevoked {
		t.Fatalf("expected family block, got kind=%d err=%v", res.Failure, res.Err)
	}
	if res.OffendingStatus != token.FamilyCompromised {
		t.Errorf("offending status = %q, want COMPROMISED", res.OffendingStatus)
	}
}

func TestRunRevokeByTokenCascades(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-1", 42, "alice", "fam-1")
	seedActive(t, store, "jti-2", 42, "alice", "fam-1")
	ctx := context.Background()

	res := RunRevokeByToken(ctx, "jti-1", revokeDeps(store))
	if res.Failure != RevokeFailureNone {
		t.Fatalf("revoke = %+v", res)
	}
	if res.TokensRevoked != 2 || res.FamiliesRevoked != 1 {
		t.Errorf("revoke = %+v, want 2 tokens / 1 family", res)
	}
	if res.FamilyID != "fam-1" {
		t.Errorf("familyID = %q, want fam-1", res.FamilyID)
	}

	// One presented token kills the whole chain.
	if store.familyStatus["fam-1"] != token.FamilyRevoked {
		t.Errorf("family status = %q, want REVOKED", store.familyStatus["fam-1"])
	}
	for _, jti := range []string{"jti-1", "jti-2"} {
		rec, err := store.GetToken(ctx, jti)
		if err != nil {
			t.Fatalf("record %s gone: %v", jti, err)
		}
		if rec.Status != token.StatusRevoked {
			t.Errorf("%s status = %q, want REVOKED", jti, rec.Status)
		}
		if rec.RevokedAtMS != testNow.UnixMilli() {
			t.Errorf("%s revoked_at_ms = %d, want %d", jti, rec.RevokedAtMS, testNow.UnixMilli())
		}
	}
	if _, ok := store.families["fam-1"]; ok {
		t.Error("family set not deleted")
	}
}

func TestRunRevokeByTokenSweepsUntrackedRecord(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-old", 42, "alice", "fam-1")
	ctx := context.Background()

	if res := RunRotate(ctx, "jti-old", rotateDeps(store, "jti-new")); res.Failure != RotateFailureNone {
		t.Fatalf("rotate failed: %+v", res)
	}

	// jti-old is USED and out of the family set; the cascade must still
	// reach it.
	res := RunRevokeByToken(ctx, "jti-old", revokeDeps(store))
	if res.Failure != RevokeFailureNone {
		t.Fatalf("revoke = %+v", res)
	}
	if res.TokensRevoked != 2 || res.FamiliesRevoked != 1 {
		t.Errorf("revoke = %+v, want 2 tokens / 1 family", res)
	}
	for _, jti := range []string{"jti-old", "jti-new"} {
		rec, err := store.GetToken(ctx, jti)
		if err != nil {
			t.Fatalf("record %s gone: %v", jti, err)
		}
		if rec.Status != token.StatusRevoked {
			t.Errorf("%s status = %q, want REVOKED", jti, rec.Status)
		}
	}
}

func TestRunRevokeByTokenMissing(t *testing.T) {
	store := newFakeStore()

	res := RunRevokeByToken(context.Background(), "nope", revokeDeps(store))
	if res.Failure != RevokeFailureNone {
		t.Fatalf("missing token should not fail: %+v", res)
	}
	if !res.Missing || res.TokensRevoked != 0 {
		t.Errorf("revoke = %+v, want Missing with no revocations", res)
	}
}

func TestRunRevokeByFamily(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-1", 42, "alice", "fam-1")
	seedActive(t, store, "jti-2", 42, "alice", "fam-1")
	ctx := context.Background()

	res := RunRevokeByFamily(ctx, "fam-1", revokeDeps(store))
	if res.Failure != RevokeFailureNone {
		t.Fatalf("revoke failed: %+v", res)
	}
	if res.TokensRevoked != 2 || res.FamiliesRevoked != 1 {
		t.Errorf("revoke = %+v, want 2 tokens / 1 family", res)
	}

	if store.familyStatus["fam-1"] != token.FamilyRevoked {
		t.Errorf("family status = %q, want REVOKED", store.familyStatus["fam-1"])
	}
	for _, jti := range []string{"jti-1", "jti-2"} {
		rec, err := store.GetToken(ctx, jti)
		if err != nil {
			t.Fatalf("record %s gone: %v", jti, err)
		}
		if rec.Status != token.StatusRevoked {
			t.Errorf("%s status = %q, want REVOKED", jti, rec.Status)
		}
	}
	if _, ok := store.families["fam-1"]; ok {
		t.Error("family set not deleted")
	}

	// Re-running is harmless and keeps the flag set.
	again := RunRevokeByFamily(ctx, "fam-1", revokeDeps(store))
	if again.Failure != RevokeFailureNone || !again.Missing {
		t.Errorf("second pass = %+v, want clean Missing", again)
	}
}

func TestRunRevokeByMember(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-a1", 42, "alice", "fam-a")
	seedActive(t, store, "jti-b1", 42, "alice", "fam-b")
	seedActive(t, store, "jti-c1", 7, "bob", "fam-c")
	ctx := context.Background()

	res := RunRevokeByMember(ctx, 42, revokeDeps(store))
	if res.Failure != RevokeFailureNone {
		t.Fatalf("revoke failed: %+v", res)
	}
	if res.FamiliesRevoked != 2 || res.TokensRevoked != 2 {
		t.Errorf("revoke = %+v, want 2 families / 2 tokens", res)
	}

	for _, familyID := range []string{"fam-a", "fam-b"} {
		if store.familyStatus[familyID] != token.FamilyRevoked {
			t.Errorf("family %s status = %q, want REVOKED", familyID, store.familyStatus[familyID])
		}
	}
	if _, ok := store.memberFamilies[42]; ok {
		t.Error("member index not deleted")
	}

	// Unrelated member untouched.
	rec, err := store.GetToken(ctx, "jti-c1")
	if err != nil || rec.Status != token.StatusActive {
		t.Errorf("bystander token touched: rec=%+v err=%v", rec, err)
	}
}

func TestRunRevokeByMemberEmptyIndex(t *testing.T) {
	store := newFakeStore()

	res := RunRevokeByMember(context.Background(), 42, revokeDeps(store))
	if res.Failure != RevokeFailureNone || !res.Missing {
		t.Errorf("revoke = %+v, want clean Missing", res)
	}
}

func TestRunRevokeByMemberPartialFailureKeepsIndex(t *testing.T) {
	store := newFakeStore()
	seedActive(t, store, "jti-a1", 42, "alice", "fam-a")
	store.failOn("SetFamilyStatus", errors.New("write refused"))

	res := RunRevokeByMember(context.Background(), 42, revokeDeps(store))
	if res.Failure != RevokeFailureStore {
		t.Fatalf("expected store failure, got %+v", res)
	}
	if _, ok := store.memberFamilies[42]; !ok {
		t.Error("member index deleted despite partial failure")
	}
}
