package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"conversation-service/internal/models"
	"conversation-service/internal/repositories"
	"conversation-service/internal/telemetry"
)

var (
	// ErrInvalidCredential rejects a rotation attempt; the presented token's
	// whole family has been revoked by the time the caller sees this.
	ErrInvalidCredential = errors.New("invalid credential")

	ErrExpired      = errors.New("credential expired")
	ErrRevoked      = errors.New("credential revoked")
	ErrUsesExceeded = errors.New("credential uses exceeded")
)

// Config tunes credential issuance.
type Config struct {
	TTL     time.Duration
	MaxUses int
}

// IssuedCredential pairs the stored record with its plaintext token. The
// plaintext exists only in this return value; storage keeps the hash.
type IssuedCredential struct {
	Credential models.Credential
	Token      string
}

// Service issues, validates, and rotates session credentials in families.
type Service struct {
	repo  repositories.CredentialRepository
	audit *telemetry.AuditEmitter
	cfg   Config
	now   func() time.Time
}

// NewService constructs the credential service. The audit emitter may be nil.
func NewService(repo repositories.CredentialRepository, audit *telemetry.AuditEmitter, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 1000
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// Issue creates a fresh credential family for the subject and device.
func (s *Service) Issue(ctx context.Context, subject, tenant, deviceID string) (IssuedCredential, error) {
	return s.issue(ctx, subject, tenant, deviceID, uuid.NewString())
}

// Rotate exchanges a valid token for a successor in the same family. Any
// failure (expired, spent, already rotated or revoked) revokes the entire
// family: presenting a dead token is treated as evidence it was stolen.
func (s *Service) Rotate(ctx context.Context, token string) (IssuedCredential, error) {
	cred, err := s.repo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repositories.ErrCredentialNotFound) {
			return IssuedCredential{}, ErrInvalidCredential
		}
		return IssuedCredential{}, err
	}

	if reason := s.classify(cred); reason != nil {
		return IssuedCredential{}, s.revokeFamilyForReuse(ctx, cred, reason)
	}

	rotated, err := s.repo.MarkRotated(ctx, cred.ID)
	if err != nil {
		return IssuedCredential{}, err
	}
	if !rotated {
		// Lost a race against another rotation of the same token: that is
		// token reuse by definition.
		return IssuedCredential{}, s.revokeFamilyForReuse(ctx, cred, ErrRevoked)
	}

	return s.issue(ctx, cred.Subject, cred.Tenant, cred.DeviceID, cred.FamilyID)
}

// Validate resolves a presented token to its credential, spending one use.
// Failures are distinct taxonomy entries so callers can pick between
// re-authentication and silent rotation.
func (s *Service) Validate(ctx context.Context, token string) (models.Credential, error) {
	cred, err := s.repo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repositories.ErrCredentialNotFound) {
			return models.Credential{}, ErrInvalidCredential
		}
		return models.Credential{}, err
	}

	consumed, err := s.repo.ConsumeUse(ctx, cred.ID)
	if err != nil {
		return models.Credential{}, err
	}
	if consumed {
		cred.UsedCount++
		return cred, nil
	}

	// The conditional update refused; refetch for an accurate reason.
	cred, err = s.repo.GetByID(ctx, cred.ID)
	if err != nil {
		return models.Credential{}, err
	}
	if reason := s.classify(cred); reason != nil {
		return models.Credential{}, reason
	}
	return models.Credential{}, ErrInvalidCredential
}

// Revoke deactivates a single credential (logout). Revoking an inactive
// credential is a no-op success.
func (s *Service) Revoke(ctx context.Context, credentialID string) error {
	return s.repo.Revoke(ctx, credentialID)
}

// RevokeFamily deactivates every credential in a rotation chain.
func (s *Service) RevokeFamily(ctx context.Context, familyID string) error {
	return s.repo.RevokeFamily(ctx, familyID)
}

// RevokeAllForSubject is the global sign-out for a subject.
func (s *Service) RevokeAllForSubject(ctx context.Context, subject string) error {
	return s.repo.RevokeAllForSubject(ctx, subject)
}

func (s *Service) issue(ctx context.Context, subject, tenant, deviceID, familyID string) (IssuedCredential, error) {
	token, err := newToken()
	if err != nil {
		return IssuedCredential{}, err
	}
	now := s.now()
	cred := models.Credential{
		ID:        uuid.NewString(),
		Subject:   subject,
		Tenant:    tenant,
		FamilyID:  familyID,
		DeviceID:  deviceID,
		TokenHash: hashToken(token),
		IsActive:  true,
		MaxUses:   s.cfg.MaxUses,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.repo.Insert(ctx, cred); err != nil {
		return IssuedCredential{}, fmt.Errorf("insert credential: %w", err)
	}
	return IssuedCredential{Credential: cred, Token: token}, nil
}

func (s *Service) revokeFamilyForReuse(ctx context.Context, cred models.Credential, reason error) error {
	if err := s.repo.RevokeFamily(ctx, cred.FamilyID); err != nil {
		log.Printf("revoke family %s failed: %v", cred.FamilyID, err)
	}
	if s.audit != nil {
		subject := cred.Subject
		s.audit.Emit(ctx, "WARN", fmt.Sprintf("credential reuse detected, family %s revoked: %v", cred.FamilyID, reason), "", &subject)
	}
	return fmt.Errorf("%w: %v", ErrInvalidCredential, reason)
}

// classify maps a credential's stored state to the validation taxonomy.
// Expiry is detected lazily here, not stored as a transition.
func (s *Service) classify(cred models.Credential) error {
	if cred.Valid(s.now()) {
		return nil
	}
	switch {
	case !cred.IsActive:
		return ErrRevoked
	case !s.now().Before(cred.ExpiresAt):
		return ErrExpired
	default:
		return ErrUsesExceeded
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
