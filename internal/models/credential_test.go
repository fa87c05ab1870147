package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialValid(t *testing.T) {
	now := time.Now()
	base := Credential{
		IsActive:  true,
		UsedCount: 3,
		MaxUses:   10,
		ExpiresAt: now.Add(time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(c *Credential)
		want   bool
	}{
		{"active and fresh", func(c *Credential) {}, true},
		{"revoked", func(c *Credential) { c.IsActive = false }, false},
		{"expired", func(c *Credential) { c.ExpiresAt = now.Add(-time.Minute) }, false},
		{"expiring exactly now", func(c *Credential) { c.ExpiresAt = now }, false},
		{"spent", func(c *Credential) { c.UsedCount = c.MaxUses }, false},
		{"last use remaining", func(c *Credential) { c.UsedCount = c.MaxUses - 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := base
			tt.mutate(&cred)
			assert.Equal(t, tt.want, cred.Valid(now))
		})
	}
}
