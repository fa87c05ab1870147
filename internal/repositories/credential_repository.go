package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"conversation-service/internal/models"
)

var ErrCredentialNotFound = errors.New("credential not found")

const credentialColumns = `id, subject, tenant, family_id, device_id, token_hash, is_active, rotated, used_count, max_uses, created_at, expires_at`

// CredentialRepository persists rotating session credentials. Rows are only
// ever flagged inactive, never deleted.
type CredentialRepository interface {
	Insert(ctx context.Context, cred models.Credential) error
	GetByTokenHash(ctx context.Context, tokenHash string) (models.Credential, error)
	GetByID(ctx context.Context, id string) (models.Credential, error)
	MarkRotated(ctx context.Context, id string) (bool, error)
	ConsumeUse(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAllForSubject(ctx context.Context, subject string) error
}

// CredentialRepo is a sqlx implementation of CredentialRepository.
type CredentialRepo struct {
	db *sqlx.DB
}

// NewCredentialRepo constructs a CredentialRepo.
func NewCredentialRepo(db *sqlx.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Insert stores a freshly issued credential.
func (r *CredentialRepo) Insert(ctx context.Context, cred models.Credential) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO credentials (id, subject, tenant, family_id, device_id, token_hash, is_active, rotated, used_count, max_uses, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cred.ID, cred.Subject, cred.Tenant, cred.FamilyID, cred.DeviceID, cred.TokenHash, cred.IsActive, cred.Rotated, cred.UsedCount, cred.MaxUses, cred.CreatedAt, cred.ExpiresAt)
	return err
}

// GetByTokenHash resolves a presented token to its credential record.
func (r *CredentialRepo) GetByTokenHash(ctx context.Context, tokenHash string) (models.Credential, error) {
	var cred models.Credential
	err := r.db.GetContext(ctx, &cred, `SELECT `+credentialColumns+` FROM credentials WHERE token_hash=$1`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credential{}, ErrCredentialNotFound
	}
	return cred, err
}

// GetByID fetches a credential by id.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (models.Credential, error) {
	var cred models.Credential
	err := r.db.GetContext(ctx, &cred, `SELECT `+credentialColumns+` FROM credentials WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credential{}, ErrCredentialNotFound
	}
	return cred, err
}

// MarkRotated flags the credential as replaced by a successor. The update is
// conditional on the credential still being active, so of two concurrent
// rotations presenting the same token exactly one observes true; the loser
// must treat the token as reused.
func (r *CredentialRepo) MarkRotated(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE credentials SET is_active=FALSE, rotated=TRUE WHERE id=$1 AND is_active=TRUE`, id)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// ConsumeUse atomically spends one use if the credential is still valid.
func (r *CredentialRepo) ConsumeUse(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE credentials SET used_count = used_count + 1
        WHERE id=$1 AND is_active=TRUE AND expires_at > NOW() AND used_count < max_uses`, id)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// Revoke deactivates a single credential. Revoking an inactive credential is
// a no-op success.
func (r *CredentialRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE credentials SET is_active=FALSE WHERE id=$1`, id)
	return err
}

// RevokeFamily deactivates every credential in a rotation family.
func (r *CredentialRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE credentials SET is_active=FALSE WHERE family_id=$1`, familyID)
	return err
}

// RevokeAllForSubject deactivates every credential a subject holds.
func (r *CredentialRepo) RevokeAllForSubject(ctx context.Context, subject string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE credentials SET is_active=FALSE WHERE subject=$1`, subject)
	return err
}
