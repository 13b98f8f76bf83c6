package message

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a message store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const columns = `id, conversation_id, role, content, platform_message_id,
	sender_info, metadata, delivery_status, sent_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var platformMessageID *string
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &platformMessageID,
		&m.SenderInfo, &m.Metadata, &m.DeliveryStatus, &m.SentAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if platformMessageID != nil {
		m.PlatformMessageID = *platformMessageID
	}
	return &m, nil
}

// InsertUser stores an inbound user message. Delivery status is not
// applicable and stays at none.
func (s *PostgresStore) InsertUser(ctx context.Context, m *Message) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content, platform_message_id, sender_info, metadata)
		 VALUES ($1, 'user', $2, NULLIF($3, ''), $4, $5)
		 RETURNING `+columns,
		m.ConversationID, m.Content, m.PlatformMessageID, orEmpty(m.SenderInfo), orEmpty(m.Metadata))
	created, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert user message: %w", err)
	}
	return created, nil
}

// InsertAssistant stores an outbound reply awaiting delivery.
func (s *PostgresStore) InsertAssistant(ctx context.Context, m *Message) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content, metadata, delivery_status)
		 VALUES ($1, 'assistant', $2, $3, 'pending')
		 RETURNING `+columns,
		m.ConversationID, m.Content, orEmpty(m.Metadata))
	created, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert assistant message: %w", err)
	}
	return created, nil
}

// MarkSent records a successful delivery. Only pending messages transition;
// sent and failed are terminal.
func (s *PostgresStore) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages
		 SET delivery_status = 'sent', platform_message_id = NULLIF($2, ''), sent_at = $3
		 WHERE id = $1 AND delivery_status = 'pending'`,
		id, providerMessageID, at)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkFailed records a failed delivery with the failure reason in metadata.
func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages
		 SET delivery_status = 'failed',
		     metadata = metadata || jsonb_build_object('delivery_error', $2::text)
		 WHERE id = $1 AND delivery_status = 'pending'`,
		id, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ListByConversation returns the newest messages of a conversation in
// chronological order.
func (s *PostgresStore) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM (
		     SELECT `+columns+` FROM messages
		     WHERE conversation_id = $1
		     ORDER BY created_at DESC
		     LIMIT $2
		 ) recent ORDER BY created_at`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
