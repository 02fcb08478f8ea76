package token

import "strconv"

// Token status values stored in the record's status field.
const (
	// StatusActive is an exported constant or variable used by the token lifecycle engine.
	StatusActive = "ACTIVE"
	// StatusUsed is an exported constant or variable used by the token lifecycle engine.
	StatusUsed = "USED"
	// StatusRevoked is an exported constant or variable used by the token lifecycle engine.
	StatusRevoked = "REVOKED"
)

// Family status values. An absent status means the family is healthy.
// Both values block issuance and rotation; neither is ever cleared.
const (
	// FamilyRevoked is an exported constant or variable used by the token lifecycle engine.
	FamilyRevoked = "REVOKED"
	// FamilyCompromised is an exported constant or variable used by the token
	// lifecycle engine. This module never sets it; it is exported so
	// operators can flag a family out-of-band through SetFamilyStatus.
	FamilyCompromised = "COMPROMISED"
)

// Redis hash field names of a token record.
const (
	fieldMemberID     = "member_id"
	fieldUsername     = "username"
	fieldFamilyID     = "family_id"
	fieldStatus       = "status"
	fieldIssuedAtMS   = "issued_at_ms"
	fieldExpSec       = "exp_sec"
	fieldLastUsedAtMS = "last_used_at_ms"
	fieldRevokedAtMS  = "revoked_at_ms"
)

// Record is one refresh-token record, keyed by jti.
type Record struct {
	MemberID     int64
	Username     string
	FamilyID     string
	Status       string
	IssuedAtMS   int64
	ExpiresAt    int64 // epoch seconds
	LastUsedAtMS int64 // zero until the token is consumed by rotation
	RevokedAtMS  int64 // zero unless explicitly revoked
}

// Active reports whether the record may still be exchanged by rotation.
func (r *Record) Active() bool {
	return r != nil && r.Status == StatusActive
}

func (r *Record) fields() map[string]any {
	f := map[string]any{
		fieldMemberID:   strconv.FormatInt(r.MemberID, 10),
		fieldUsername:   r.Username,
		fieldFamilyID:   r.FamilyID,
		fieldStatus:     r.Status,
		fieldIssuedAtMS: strconv.FormatInt(r.IssuedAtMS, 10),
		fieldExpSec:     strconv.FormatInt(r.ExpiresAt, 10),
	}
	if r.LastUsedAtMS > 0 {
		f[fieldLastUsedAtMS] = strconv.FormatInt(r.LastUsedAtMS, 10)
	}
	if r.RevokedAtMS > 0 {
		f[fieldRevokedAtMS] = strconv.FormatInt(r.RevokedAtMS, 10)
	}
	return f
}

func recordFromFields(fields map[string]string) (*Record, error) {
	rec := &Record{
		Username: fields[fieldUsername],
		FamilyID: fields[fieldFamilyID],
		Status:   fields[fieldStatus],
	}

	var err error
	if rec.MemberID, err = parseInt(fields[fieldMemberID]); err != nil {
		return nil, err
	}
	if rec.IssuedAtMS, err = parseInt(fields[fieldIssuedAtMS]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseInt(fields[fieldExpSec]); err != nil {
		return nil, err
	}
	if rec.LastUsedAtMS, err = parseInt(fields[fieldLastUsedAtMS]); err != nil {
		return nil, err
	}
	if rec.RevokedAtMS, err = parseInt(fields[fieldRevokedAtMS]); err != nil {
		return nil, err
	}

	return rec, nil
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
