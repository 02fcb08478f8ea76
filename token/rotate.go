package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRotateTokenNotFound is an exported constant or variable used by the token lifecycle engine.
var ErrRotateTokenNotFound = errors.New("rotate target token not found")

// ErrRotateReuse is an exported constant or variable used by the token lifecycle engine.
var ErrRotateReuse = errors.New("rotate target token already consumed")

// ErrRotateFamilyRevoked is an exported constant or variable used by the token lifecycle engine.
var ErrRotateFamilyRevoked = errors.New("rotate target family revoked")

// ReuseError reports the non-ACTIVE status the rotation script observed on
// the old token. Matches [ErrRotateReuse] under errors.Is.
type ReuseError struct {
	Status string
}

func (e *ReuseError) Error() string {
	return "rotate target token already consumed: status " + e.Status
}

func (e *ReuseError) Unwrap() error { return ErrRotateReuse }

// FamilyRevokedError reports the blocking family status (REVOKED or
// COMPROMISED) the rotation script observed. Matches
// [ErrRotateFamilyRevoked] under errors.Is.
type FamilyRevokedError struct {
	Status string
}

func (e *FamilyRevokedError) Error() string {
	return "rotate target family revoked: status " + e.Status
}

func (e *FamilyRevokedError) Unwrap() error { return ErrRotateFamilyRevoked }

const (
	rotateStatusNotFound     int64 = 0
	rotateStatusReused       int64 = 1
	rotateStatusFamilyLocked int64 = 2
	rotateStatusRotated      int64 = 3
)

// KEYS[1] old token record, KEYS[2] family set, KEYS[3] new token record,
// KEYS[4] family status flag.
// ARGV: new jti, member_id, username, family_id, now (ms), expiry (epoch
// sec), ttl (sec), old jti.
const rotateTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end

local status = redis.call("HGET", KEYS[1], "status")
if status ~= "ACTIVE" then
  return {1, status or "UNKNOWN"}
end

local family = redis.call("GET", KEYS[4])
if family == "REVOKED" or family == "COMPROMISED" then
  return {2, family}
end

redis.call("HSET", KEYS[1], "status", "USED")
redis.call("HSET", KEYS[1], "last_used_at_ms", ARGV[5])

redis.call("HSET", KEYS[3], "member_id", ARGV[2])
redis.call("HSET", KEYS[3], "username", ARGV[3])
redis.call("HSET", KEYS[3], "family_id", ARGV[4])
redis.call("HSET", KEYS[3], "status", "ACTIVE")
redis.call("HSET", KEYS[3], "issued_at_ms", ARGV[5])
redis.call("HSET", KEYS[3], "exp_sec", ARGV[6])
redis.call("EXPIRE", KEYS[3], ARGV[7])

redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SREM", KEYS[2], ARGV[8])
redis.call("EXPIRE", KEYS[2], ARGV[7])

return {3}
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

// Rotation carries the committed outcome of a successful rotation.
type Rotation struct {
	MemberID   int64
	Username   string
	FamilyID   string
	OldJTI     string
	NewJTI     string
	ExpiresAt  int64 // epoch seconds of the new token
	TTLSeconds int64
}

// Rotate atomically exchanges the old token for a new one. Inside a single
// Lua critical section it verifies existence and ACTIVE status of the old
// record, verifies family health, marks the old record USED (retained as
// reuse-detection evidence), creates the new ACTIVE record with a fresh
// TTL, and swaps the jtis in the family set.
//
// For a fixed old jti, at most one concurrent call returns a [Rotation];
// every other racer gets a [ReuseError]. This is the load-bearing
// correctness primitive of the subsystem.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Rotate(
	ctx context.Context,
	oldJTI, newJTI string,
	memberID int64,
	username, familyID string,
	now time.Time,
	ttl time.Duration,
) (*Rotation, error) {
	ttlSeconds := int64(ttl / time.Second)
	expiresAt := now.Unix() + ttlSeconds

	keys := []string{
		s.TokenKey(oldJTI),
		s.FamilyKey(familyID),
		s.TokenKey(newJTI),
		s.FamilyStatusKey(familyID),
	}
	argv := []any{
		newJTI,
		strconv.FormatInt(memberID, 10),
		username,
		familyID,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(expiresAt, 10),
		strconv.FormatInt(ttlSeconds, 10),
		oldJTI,
	}

	result, err := rotateTokenLua.Run(ctx, s.redis, keys, argv...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotation script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotation script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrRotateTokenNotFound)
	case rotateStatusReused:
		return nil, &ReuseError{Status: scriptString(parts, 1)}
	case rotateStatusFamilyLocked:
		return nil, &FamilyRevokedError{Status: scriptString(parts, 1)}
	case rotateStatusRotated:
		return &Rotation{
			MemberID:   memberID,
			Username:   username,
			FamilyID:   familyID,
			OldJTI:     oldJTI,
			NewJTI:     newJTI,
			ExpiresAt:  expiresAt,
			TTLSeconds: ttlSeconds,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotation script status %d", ErrRedisUnavailable, code)
	}
}

func scriptString(parts []interface{}, idx int) string {
	if idx >= len(parts) {
		return ""
	}
	switch v := parts[idx].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
