package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"conversation-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `key, tenant, participant_a, participant_b, assignee, status, message_count, unread_count, last_message_at, created_at, updated_at`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetConversation(ctx context.Context, tenant, key, participantA, participantB string) (models.Conversation, bool, error)
	GetConversation(ctx context.Context, key string) (models.Conversation, error)
	ListConversations(ctx context.Context, tenant string) ([]models.Conversation, error)
	ListKeysForAssignee(ctx context.Context, subject string) ([]string, error)
	ApplyMessage(ctx context.Context, key string, inbound bool, at *time.Time) (models.Conversation, error)
	SetAssignee(ctx context.Context, key string, assignee *string) error
	SetStatus(ctx context.Context, key string, status models.ConversationStatus) error
	MarkRead(ctx context.Context, key string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetConversation inserts the conversation for the key if absent and
// reports whether this call created it. The insert races safely: the unique
// key makes a concurrent duplicate a no-op and the existing row is returned.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, tenant, key, participantA, participantB string) (models.Conversation, bool, error) {
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, `INSERT INTO conversations (key, tenant, participant_a, participant_b, status)
        VALUES ($1, $2, $3, $4, 'open')
        ON CONFLICT (key) DO NOTHING
        RETURNING `+conversationColumns, key, tenant, participantA, participantB).StructScan(&conv)
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	conv, err = r.GetConversation(ctx, key)
	return conv, false, err
}

// GetConversation fetches a conversation by key.
func (r *ConversationRepo) GetConversation(ctx context.Context, key string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListConversations returns a tenant's conversations, most recent first.
func (r *ConversationRepo) ListConversations(ctx context.Context, tenant string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations
        WHERE tenant=$1 ORDER BY last_message_at DESC NULLS LAST, created_at DESC`, tenant)
	return convs, err
}

// ListKeysForAssignee returns the keys of conversations assigned to a subject.
func (r *ConversationRepo) ListKeysForAssignee(ctx context.Context, subject string) ([]string, error) {
	var keys []string
	err := r.db.SelectContext(ctx, &keys, `SELECT key FROM conversations WHERE assignee=$1`, subject)
	return keys, err
}

// ApplyMessage bumps the message counter (and the unread counter for inbound
// messages), advances last_message_at, and returns the updated row.
func (r *ConversationRepo) ApplyMessage(ctx context.Context, key string, inbound bool, at *time.Time) (models.Conversation, error) {
	unreadDelta := 0
	if inbound {
		unreadDelta = 1
	}
	var conv models.Conversation
	err := r.db.QueryRowxContext(ctx, `UPDATE conversations
        SET message_count = message_count + 1,
            unread_count = unread_count + $2,
            last_message_at = COALESCE($3, NOW()),
            updated_at = NOW()
        WHERE key=$1
        RETURNING `+conversationColumns, key, unreadDelta, at).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// SetAssignee sets or clears the single owner of the conversation.
func (r *ConversationRepo) SetAssignee(ctx context.Context, key string, assignee *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET assignee=$2, updated_at=NOW() WHERE key=$1`, key, assignee)
	return checkAffected(res, err)
}

// SetStatus updates the conversation status. Transitions are free-form.
func (r *ConversationRepo) SetStatus(ctx context.Context, key string, status models.ConversationStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET status=$2, updated_at=NOW() WHERE key=$1`, key, status)
	return checkAffected(res, err)
}

// MarkRead resets the unread counter to zero.
func (r *ConversationRepo) MarkRead(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET unread_count=0, updated_at=NOW() WHERE key=$1`, key)
	return checkAffected(res, err)
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
