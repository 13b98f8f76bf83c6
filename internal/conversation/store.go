package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/db"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a conversation store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const columns = `id, tenant_id, platform, external_user_id, title, message_count, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var platform string
	err := row.Scan(&c.ID, &c.TenantID, &platform, &c.ExternalUserID,
		&c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Platform = channel.Platform(platform)
	return &c, nil
}

func (s *PostgresStore) Find(ctx context.Context, tenantID uuid.UUID, platform channel.Platform, externalUserID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM conversations
		 WHERE tenant_id = $1 AND platform = $2 AND external_user_id = $3`,
		tenantID, string(platform), externalUserID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *Conversation) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (tenant_id, platform, external_user_id, title)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+columns,
		c.TenantID, string(c.Platform), c.ExternalUserID, c.Title)
	created, err := scanConversation(row)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM conversations
		 WHERE tenant_id = $1 ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMessages(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET message_count = message_count + $2, updated_at = now()
		 WHERE id = $1`,
		id, delta)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
