package internal

import (
	"errors"

	"github.com/google/uuid"
)

// NewJTI generates a fresh token identifier. Random UUIDv4: identifiers
// must be unguessable, not merely unique.
func NewJTI() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewFamilyID generates a fresh family identifier for a new login chain.
func NewFamilyID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidateID rejects identifiers that would produce empty or oversized
// Redis keys. Both jtis and familyIds pass through here.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("empty identifier")
	}
	if len(id) > 128 {
		return errors.New("identifier exceeds 128 bytes")
	}
	return nil
}
