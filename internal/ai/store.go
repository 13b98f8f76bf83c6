package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botlinkhq/botlink/internal/vault"
)

// ConfigStore persists tenant AI configs with the API key encrypted.
type ConfigStore struct {
	pool  *pgxpool.Pool
	vault *vault.Vault
}

// NewConfigStore creates a config store on the given pool and vault.
func NewConfigStore(pool *pgxpool.Pool, v *vault.Vault) *ConfigStore {
	return &ConfigStore{pool: pool, vault: v}
}

// Get returns a tenant's AI config with the API key decrypted.
func (s *ConfigStore) Get(ctx context.Context, tenantID uuid.UUID) (*Config, error) {
	var c Config
	var encryptedKey *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, provider, model, encrypted_api_key, created_at, updated_at
		 FROM ai_configs WHERE tenant_id = $1`,
		tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Provider, &c.Model, &encryptedKey, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ai config: %w", err)
	}
	if encryptedKey != nil && *encryptedKey != "" {
		key, err := s.vault.Decrypt(*encryptedKey)
		if err != nil {
			return nil, fmt.Errorf("open api key for tenant %s: %w", tenantID, err)
		}
		c.APIKey = key
		c.HasAPIKey = true
	}
	return &c, nil
}

// Upsert creates or replaces a tenant's AI config, sealing the API key
// before it touches storage.
func (s *ConfigStore) Upsert(ctx context.Context, tenantID uuid.UUID, provider, model, apiKey string) (*Config, error) {
	if provider != ProviderGemini && provider != ProviderOpenAI {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	var sealed *string
	if apiKey != "" {
		enc, err := s.vault.Encrypt(apiKey)
		if err != nil {
			return nil, fmt.Errorf("seal api key: %w", err)
		}
		sealed = &enc
	}

	// An empty api_key means "keep whatever is stored", so a model or
	// provider switch never drops the tenant's key.
	var c Config
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ai_configs (tenant_id, provider, model, encrypted_api_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id) DO UPDATE
		 SET provider = EXCLUDED.provider,
		     model = EXCLUDED.model,
		     encrypted_api_key = COALESCE(EXCLUDED.encrypted_api_key, ai_configs.encrypted_api_key),
		     updated_at = now()
		 RETURNING id, tenant_id, provider, model,
		           encrypted_api_key IS NOT NULL, created_at, updated_at`,
		tenantID, provider, model, sealed,
	).Scan(&c.ID, &c.TenantID, &c.Provider, &c.Model, &c.HasAPIKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert ai config: %w", err)
	}
	c.APIKey = apiKey
	return &c, nil
}
