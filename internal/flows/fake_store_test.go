package flows

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goRefresh/token"
)

// errAbsent stands in for the Redis absent-key sentinel in flow tests.
var errAbsent = errors.New("absent")

// fakeStore is an in-memory stand-in for the Redis token store. It mirrors
// the store's observable behavior closely enough for flow tests: absent
// records surface errAbsent, rotation follows the same status protocol,
// and revocation writes are existence-guarded.
type fakeStore struct {
	mu             sync.Mutex
	tokens         map[string]*token.Record
	families       map[string]map[string]struct{}
	familyStatus   map[string]string
	memberFamilies map[int64]map[string]struct{}

	failNext map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens:         map[string]*token.Record{},
		families:       map[string]map[string]struct{}{},
		familyStatus:   map[string]string{},
		memberFamilies: map[int64]map[string]struct{}{},
		failNext:       map[string]error{},
	}
}

func (f *fakeStore) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[op] = err
}

func (f *fakeStore) injected(op string) error {
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *fakeStore) GetToken(_ context.Context, jti string) (*token.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetToken"); err != nil {
		return nil, err
	}
	rec, ok := f.tokens[jti]
	if !ok {
		return nil, errAbsent
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) PutToken(_ context.Context, jti string, rec *token.Record, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("PutToken"); err != nil {
		return err
	}
	clone := *rec
	f.tokens[jti] = &clone
	return nil
}

func (f *fakeStore) MarkRevoked(_ context.Context, jti string, revokedAtMS int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("MarkRevoked"); err != nil {
		return false, err
	}
	rec, ok := f.tokens[jti]
	if !ok {
		return false, nil
	}
	rec.Status = token.StatusRevoked
	rec.RevokedAtMS = revokedAtMS
	return true, nil
}

func (f *fakeStore) FamilyStatus(_ context.Context, familyID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("FamilyStatus"); err != nil {
		return "", err
	}
	return f.familyStatus[familyID], nil
}

func (f *fakeStore) SetFamilyStatus(_ context.Context, familyID, status string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("SetFamilyStatus"); err != nil {
		return err
	}
	f.familyStatus[familyID] = status
	return nil
}

func (f *fakeStore) AddToFamily(_ context.Context, familyID, jti string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("AddToFamily"); err != nil {
		return err
	}
	if f.families[familyID] == nil {
		f.families[familyID] = map[string]struct{}{}
	}
	f.families[familyID][jti] = struct{}{}
	return nil
}

func (f *fakeStore) FamilyTokens(_ context.Context, familyID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("FamilyTokens"); err != nil {
		return nil, err
	}
	jtis := make([]string, 0, len(f.families[familyID]))
	for jti := range f.families[familyID] {
		jtis = append(jtis, jti)
	}
	return jtis, nil
}

func (f *fakeStore) DeleteFamily(_ context.Context, familyID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("DeleteFamily"); err != nil {
		return false, err
	}
	_, ok := f.families[familyID]
	delete(f.families, familyID)
	return ok, nil
}

func (f *fakeStore) AddMemberFamily(_ context.Context, memberID int64, familyID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("AddMemberFamily"); err != nil {
		return err
	}
	if f.memberFamilies[memberID] == nil {
		f.memberFamilies[memberID] = map[string]struct{}{}
	}
	f.memberFamilies[memberID][familyID] = struct{}{}
	return nil
}

func (f *fakeStore) MemberFamilies(_ context.Context, memberID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("MemberFamilies"); err != nil {
		return nil, err
	}
	families := make([]string, 0, len(f.memberFamilies[memberID]))
	for familyID := range f.memberFamilies[memberID] {
		families = append(families, familyID)
	}
	return families, nil
}

func (f *fakeStore) DeleteMemberIndex(_ context.Context, memberID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("DeleteMemberIndex"); err != nil {
		return false, err
	}
	_, ok := f.memberFamilies[memberID]
	delete(f.memberFamilies, memberID)
	return ok, nil
}

func (f *fakeStore) Rotate(
	_ context.Context,
	oldJTI, newJTI string,
	memberID int64,
	username, familyID string,
	now time.Time,
	ttl time.Duration,
) (*token.Rotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("Rotate"); err != nil {
		return nil, err
	}

	old, ok := f.tokens[oldJTI]
	if !ok {
		return nil, token.ErrRotateTokenNotFound
	}
	if old.Status != token.StatusActive {
		return nil, &token.ReuseError{Status: old.Status}
	}
	if s := f.familyStatus[familyID]; s == token.FamilyRevoked || s == token.FamilyCompromised {
		return nil, &token.FamilyRevokedError{Status: s}
	}

	ttlSeconds := int64(ttl / time.Second)
	expiresAt := now.Unix() + ttlSeconds

	old.Status = token.StatusUsed
	old.LastUsedAtMS = now.UnixMilli()

	f.tokens[newJTI] = &token.Record{
		MemberID:   memberID,
		Username:   username,
		FamilyID:   familyID,
		Status:     token.StatusActive,
		IssuedAtMS: now.UnixMilli(),
		ExpiresAt:  expiresAt,
	}
	if f.families[familyID] == nil {
		f.families[familyID] = map[string]struct{}{}
	}
	f.families[familyID][newJTI] = struct{}{}
	delete(f.families[familyID], oldJTI)

	return &token.Rotation{
		MemberID:   memberID,
		Username:   username,
		FamilyID:   familyID,
		OldJTI:     oldJTI,
		NewJTI:     newJTI,
		ExpiresAt:  expiresAt,
		TTLSeconds: ttlSeconds,
	}, nil
}
