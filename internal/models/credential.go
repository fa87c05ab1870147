package models

import "time"

// Credential is one issued token record in a rotation family. Records are
// never deleted, only flagged inactive, so replay detection keeps history.
type Credential struct {
	ID        string    `db:"id" json:"id"`
	Subject   string    `db:"subject" json:"subject"`
	Tenant    string    `db:"tenant" json:"tenant"`
	FamilyID  string    `db:"family_id" json:"family_id"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	Rotated   bool      `db:"rotated" json:"rotated"`
	UsedCount int       `db:"used_count" json:"used_count"`
	MaxUses   int       `db:"max_uses" json:"max_uses"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Valid reports whether the credential may still be presented.
func (c Credential) Valid(now time.Time) bool {
	return c.IsActive && now.Before(c.ExpiresAt) && c.UsedCount < c.MaxUses
}
