package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"conversation-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_key, sender, recipient, direction, type, content, media_refs, status, provider_time, created_at, updated_at`

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateIfAbsent(ctx context.Context, msg models.Message) (models.Message, bool, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	ListByConversation(ctx context.Context, conversationKey string) ([]models.Message, error)
	UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateIfAbsent stores the message unless its provider id already exists.
// The unique primary key makes this the idempotency point for replayed
// gateway deliveries: the second writer observes no returned row and gets
// the already-persisted record back with created=false.
func (r *MessageRepo) CreateIfAbsent(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	var stored models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_key, sender, recipient, direction, type, content, media_refs, status, provider_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING
        RETURNING `+messageColumns,
		msg.ID, msg.ConversationKey, msg.Sender, msg.Recipient, msg.Direction, msg.Type, msg.Content, msg.MediaRefs, msg.Status, msg.ProviderTime).StructScan(&stored)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, err
	}

	stored, err = r.GetMessage(ctx, msg.ID)
	return stored, false, err
}

// GetMessage retrieves a single message by provider id.
func (r *MessageRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListByConversation returns a conversation's messages in delivery order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationKey string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_key=$1 ORDER BY created_at ASC`, conversationKey)
	return msgs, err
}

// UpdateStatus applies a gateway delivery-status callback.
func (r *MessageRepo) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
