package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the token lifecycle engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorruptRecord is returned when a stored token hash fails to parse.
var ErrCorruptRecord = errors.New("corrupt token record")

const (
	tokenKeyPrefix        = "rt:"
	familyKeyPrefix       = "family:"
	familyStatusKeyPrefix = "family_status:"
	memberKeyPrefix       = "member:"
	memberKeySuffix       = ":families"
)

// Store is a Redis-backed token lifecycle store. It owns the key layout for
// token records, family sets, family status flags, and member indexes, and
// hosts the atomic rotation script.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a token [Store] backed by the given Redis client.
// prefix namespaces every key; empty means no namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(raw string) string {
	if s.prefix == "" {
		return raw
	}
	return s.prefix + ":" + raw
}

// TokenKey returns the Redis key of a token record.
func (s *Store) TokenKey(jti string) string {
	return s.key(tokenKeyPrefix + jti)
}

// FamilyKey returns the Redis key of a family's jti set.
func (s *Store) FamilyKey(familyID string) string {
	return s.key(familyKeyPrefix + familyID)
}

// FamilyStatusKey returns the Redis key of a family's status flag.
func (s *Store) FamilyStatusKey(familyID string) string {
	return s.key(familyStatusKeyPrefix + familyID)
}

// MemberKey returns the Redis key of a member's family index.
func (s *Store) MemberKey(memberID int64) string {
	return s.key(memberKeyPrefix + strconv.FormatInt(memberID, 10) + memberKeySuffix)
}

// GetToken retrieves a token record by jti. Returns redis.Nil when the
// record is absent or expired — the two cases are indistinguishable by
// design.
//
//	Performance: 1 Redis HGETALL.
func (s *Store) GetToken(ctx context.Context, jti string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.TokenKey(jti)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	rec, err := recordFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: jti %s: %v", ErrCorruptRecord, jti, err)
	}
	return rec, nil
}

// PutToken persists a token record with the given TTL.
//
//	Performance: 2 Redis commands (HSET + EXPIRE) in one transaction.
func (s *Store) PutToken(ctx context.Context, jti string, rec *Record, ttl time.Duration) error {
	key := s.TokenKey(jti)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.fields())
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether a token record is present.
func (s *Store) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.TokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// MarkRevoked flips a token record to REVOKED with a revocation timestamp.
// The write is existence-guarded so an expired key is never resurrected as
// a two-field stub; callers get false when the record was already gone.
func (s *Store) MarkRevoked(ctx context.Context, jti string, revokedAtMS int64) (bool, error) {
	key := s.TokenKey(jti)

	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldStatus, StatusRevoked)
		pipe.HSet(ctx, key, fieldRevokedAtMS, strconv.FormatInt(revokedAtMS, 10))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

// DeleteToken removes a token record and its family-set membership. When
// the removal empties the family set, the set key is deleted as well.
// Returns whether the record existed.
func (s *Store) DeleteToken(ctx context.Context, jti string) (bool, error) {
	var familyID string
	rec, err := s.GetToken(ctx, jti)
	switch {
	case err == nil:
		familyID = rec.FamilyID
	case errors.Is(err, redis.Nil), errors.Is(err, ErrCorruptRecord):
		// Still attempt the raw delete below.
	default:
		return false, err
	}

	deleted, err := s.redis.Del(ctx, s.TokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if deleted > 0 && familyID != "" {
		familyKey := s.FamilyKey(familyID)
		if err := s.redis.SRem(ctx, familyKey, jti).Err(); err != nil {
			return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		size, err := s.redis.SCard(ctx, familyKey).Result()
		if err != nil {
			return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if size == 0 {
			if err := s.redis.Del(ctx, familyKey).Err(); err != nil {
				return true, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
	}

	return deleted > 0, nil
}

// FamilyStatus returns the family's status flag, or "" when the family is
// healthy (flag absent).
func (s *Store) FamilyStatus(ctx context.Context, familyID string) (string, error) {
	status, err := s.redis.Get(ctx, s.FamilyStatusKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return status, nil
}

// SetFamilyStatus writes the family's status flag with the given TTL.
// Status is monotone by convention: callers only ever set REVOKED or
// COMPROMISED and never clear the flag.
func (s *Store) SetFamilyStatus(ctx context.Context, familyID, status string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.FamilyStatusKey(familyID), status, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AddToFamily adds a jti to the family set and refreshes the set's TTL.
func (s *Store) AddToFamily(ctx context.Context, familyID, jti string, ttl time.Duration) error {
	key := s.FamilyKey(familyID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, jti)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveFromFamily removes a jti from the family set.
func (s *Store) RemoveFromFamily(ctx context.Context, familyID, jti string) error {
	if err := s.redis.SRem(ctx, s.FamilyKey(familyID), jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FamilyTokens returns every jti tracked in the family set.
func (s *Store) FamilyTokens(ctx context.Context, familyID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.FamilyKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return members, nil
}

// FamilySize returns the cardinality of the family set.
func (s *Store) FamilySize(ctx context.Context, familyID string) (int64, error) {
	size, err := s.redis.SCard(ctx, s.FamilyKey(familyID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return size, nil
}

// DeleteFamily removes the family set key. The status flag is left in
// place: revocation must outlive the membership bookkeeping.
func (s *Store) DeleteFamily(ctx context.Context, familyID string) (bool, error) {
	deleted, err := s.redis.Del(ctx, s.FamilyKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted > 0, nil
}

// AddMemberFamily adds a familyID to the member's family index and
// refreshes the index TTL.
func (s *Store) AddMemberFamily(ctx context.Context, memberID int64, familyID string, ttl time.Duration) error {
	key := s.MemberKey(memberID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, familyID)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MemberFamilies returns every familyID ever indexed for the member that
// has not yet expired.
func (s *Store) MemberFamilies(ctx context.Context, memberID int64) ([]string, error) {
	families, err := s.redis.SMembers(ctx, s.MemberKey(memberID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return families, nil
}

// DeleteMemberIndex removes the member's family index key.
func (s *Store) DeleteMemberIndex(ctx context.Context, memberID int64) (bool, error) {
	deleted, err := s.redis.Del(ctx, s.MemberKey(memberID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted > 0, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
