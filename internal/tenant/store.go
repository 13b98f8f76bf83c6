package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botlinkhq/botlink/internal/channel"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a tenant store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateTenant(ctx context.Context, name, language string) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, language)
		 VALUES ($1, $2)
		 RETURNING id, name, language, is_active, created_at, updated_at`,
		name, language,
	).Scan(&t.ID, &t.Name, &t.Language, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, language, is_active, created_at, updated_at
		 FROM tenants WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.Language, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, language, is_active, created_at, updated_at
		 FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Language, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) SetTenantActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

const bindingColumns = `id, tenant_id, platform, display_name, credentials,
	is_active, healthy, last_checked_at, created_at, updated_at`

func scanBinding(row pgx.Row) (*Binding, error) {
	var b Binding
	var platform string
	var creds map[string]string
	err := row.Scan(&b.ID, &b.TenantID, &platform, &b.DisplayName, &creds,
		&b.IsActive, &b.Healthy, &b.LastCheckedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Platform = channel.Platform(platform)
	b.Credentials = creds
	return &b, nil
}

func (s *PostgresStore) CreateBinding(ctx context.Context, b *Binding) (*Binding, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO platform_bindings (tenant_id, platform, display_name, credentials, is_active, healthy)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+bindingColumns,
		b.TenantID, string(b.Platform), b.DisplayName, map[string]string(b.Credentials), b.IsActive, b.Healthy)
	created, err := scanBinding(row)
	if err != nil {
		return nil, fmt.Errorf("insert binding: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetBinding(ctx context.Context, id uuid.UUID) (*Binding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bindingColumns+` FROM platform_bindings WHERE id = $1`, id)
	b, err := scanBinding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select binding: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBindings(ctx context.Context, tenantID uuid.UUID) ([]Binding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bindingColumns+` FROM platform_bindings
		 WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("select bindings: %w", err)
	}
	defer rows.Close()
	return collectBindings(rows)
}

func (s *PostgresStore) ListActiveBindings(ctx context.Context, platform channel.Platform) ([]Binding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bindingColumns+` FROM platform_bindings
		 WHERE platform = $1 AND is_active ORDER BY created_at`, string(platform))
	if err != nil {
		return nil, fmt.Errorf("select active bindings: %w", err)
	}
	defer rows.Close()
	return collectBindings(rows)
}

func collectBindings(rows pgx.Rows) ([]Binding, error) {
	var bindings []Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

func (s *PostgresStore) SetBindingActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_bindings SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("update binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateBindingCredentials(ctx context.Context, id uuid.UUID, creds channel.Credentials) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_bindings SET credentials = $2, updated_at = now() WHERE id = $1`,
		id, map[string]string(creds))
	if err != nil {
		return fmt.Errorf("update binding credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (s *PostgresStore) RecordBindingHealth(ctx context.Context, id uuid.UUID, healthy bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_bindings SET healthy = $2, last_checked_at = $3 WHERE id = $1`,
		id, healthy, at)
	if err != nil {
		return fmt.Errorf("record binding health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}
