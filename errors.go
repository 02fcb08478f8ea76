package goRefresh

import "errors"

var (
	// ErrTokenNotFound is an exported constant or variable used by the token lifecycle engine.
	// An expired token and a token that never existed are deliberately indistinguishable.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenReused is an exported constant or variable used by the token lifecycle engine.
	// It signals redemption of an already-consumed or revoked token, treated as theft evidence.
	ErrTokenReused = errors.New("refresh token reuse detected")
	// ErrFamilyRevoked is an exported constant or variable used by the token lifecycle engine.
	ErrFamilyRevoked = errors.New("token family revoked")
	// ErrBadTTL is an exported constant or variable used by the token lifecycle engine.
	ErrBadTTL = errors.New("invalid token ttl")
	// ErrStoreUnavailable is an exported constant or variable used by the token lifecycle engine.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the token lifecycle engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
