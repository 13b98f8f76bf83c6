package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a knowledge store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, tenantID uuid.UUID, filename, content string) (*File, error) {
	var f File
	err := s.pool.QueryRow(ctx,
		`INSERT INTO knowledge_files (tenant_id, filename, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, tenant_id, filename, content, is_active, created_at`,
		tenantID, filename, content,
	).Scan(&f.ID, &f.TenantID, &f.Filename, &f.Content, &f.IsActive, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge file: %w", err)
	}
	return &f, nil
}

// List returns a tenant's files without their contents.
func (s *PostgresStore) List(ctx context.Context, tenantID uuid.UUID) ([]File, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, filename, is_active, created_at
		 FROM knowledge_files WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("select knowledge files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Filename, &f.IsActive, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE knowledge_files SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update knowledge file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM knowledge_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveContents(ctx context.Context, tenantID uuid.UUID) ([]File, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, filename, content, is_active, created_at
		 FROM knowledge_files
		 WHERE tenant_id = $1 AND is_active
		 ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("select active knowledge: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Filename, &f.Content, &f.IsActive, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
