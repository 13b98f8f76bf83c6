// Package tenant manages tenants and their platform bindings, including
// the encrypted credential sets each binding carries.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/vault"
)

var (
	// ErrTenantNotFound is returned when a tenant id resolves to nothing.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrBindingNotFound is returned when a binding id resolves to nothing
	// or the platform does not match.
	ErrBindingNotFound = errors.New("platform binding not found")
	// ErrBindingInactive is returned for bindings that exist but are
	// switched off.
	ErrBindingInactive = errors.New("platform binding inactive")
)

// Tenant is a business using the gateway.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Binding connects a tenant to one messaging platform account.
// Credentials hold vault-encrypted values when read from storage.
type Binding struct {
	ID            uuid.UUID           `json:"id"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	Platform      channel.Platform    `json:"platform"`
	DisplayName   string              `json:"display_name"`
	Credentials   channel.Credentials `json:"-"`
	IsActive      bool                `json:"is_active"`
	Healthy       bool                `json:"healthy"`
	LastCheckedAt *time.Time          `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Service wraps the store with credential encryption. Bindings returned by
// the service always carry plaintext credentials.
type Service struct {
	store  Store
	vault  *vault.Vault
	logger *slog.Logger
}

// Store is the persistence surface the service needs.
type Store interface {
	CreateTenant(ctx context.Context, name, language string) (*Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	SetTenantActive(ctx context.Context, id uuid.UUID, active bool) error

	CreateBinding(ctx context.Context, b *Binding) (*Binding, error)
	GetBinding(ctx context.Context, id uuid.UUID) (*Binding, error)
	ListBindings(ctx context.Context, tenantID uuid.UUID) ([]Binding, error)
	ListActiveBindings(ctx context.Context, platform channel.Platform) ([]Binding, error)
	SetBindingActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateBindingCredentials(ctx context.Context, id uuid.UUID, creds channel.Credentials) error
	RecordBindingHealth(ctx context.Context, id uuid.UUID, healthy bool, at time.Time) error
}

// NewService creates a tenant service backed by the given store and vault.
func NewService(store Store, v *vault.Vault, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		vault:  v,
		logger: log.With(slog.String("service", "tenant")),
	}
}

// CreateTenant registers a new tenant. Language defaults to Uzbek.
func (s *Service) CreateTenant(ctx context.Context, name, language string) (*Tenant, error) {
	if language == "" {
		language = "uz"
	}
	return s.store.CreateTenant(ctx, name, language)
}

// GetTenant fetches one tenant by id.
func (s *Service) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// ListTenants returns all tenants.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.store.ListTenants(ctx)
}

// SetTenantActive toggles a tenant on or off.
func (s *Service) SetTenantActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.store.SetTenantActive(ctx, id, active)
}

// CreateBinding stores a new binding with its credentials encrypted.
// Bindings start inactive until explicitly activated.
func (s *Service) CreateBinding(ctx context.Context, tenantID uuid.UUID, platform channel.Platform, displayName string, creds channel.Credentials) (*Binding, error) {
	sealed, err := s.vault.EncryptAll(creds)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}
	created, err := s.store.CreateBinding(ctx, &Binding{
		TenantID:    tenantID,
		Platform:    platform,
		DisplayName: displayName,
		Credentials: sealed,
		Healthy:     true,
	})
	if err != nil {
		return nil, err
	}
	created.Credentials = creds
	s.logger.Info("binding created",
		slog.String("binding_id", created.ID.String()),
		slog.String("platform", string(platform)))
	return created, nil
}

// ResolveBinding loads a binding for webhook processing: it must exist,
// match the platform, be active, and belong to an active tenant. The
// returned credentials are decrypted.
func (s *Service) ResolveBinding(ctx context.Context, id uuid.UUID, platform channel.Platform) (*Binding, error) {
	b, err := s.store.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Platform != platform {
		return nil, ErrBindingNotFound
	}
	if !b.IsActive {
		return nil, ErrBindingInactive
	}
	t, err := s.store.GetTenant(ctx, b.TenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrBindingInactive
	}
	return s.openCredentials(b)
}

// GetBinding loads a binding with decrypted credentials regardless of its
// active flag. Used by management and health-sweep code paths.
func (s *Service) GetBinding(ctx context.Context, id uuid.UUID) (*Binding, error) {
	b, err := s.store.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.openCredentials(b)
}

// ListBindings returns a tenant's bindings without credentials.
func (s *Service) ListBindings(ctx context.Context, tenantID uuid.UUID) ([]Binding, error) {
	bindings, err := s.store.ListBindings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range bindings {
		bindings[i].Credentials = nil
	}
	return bindings, nil
}

// ListActiveBindings returns every active binding for a platform with
// decrypted credentials. Used by the health sweep.
func (s *Service) ListActiveBindings(ctx context.Context, platform channel.Platform) ([]Binding, error) {
	bindings, err := s.store.ListActiveBindings(ctx, platform)
	if err != nil {
		return nil, err
	}
	out := make([]Binding, 0, len(bindings))
	for i := range bindings {
		b, err := s.openCredentials(&bindings[i])
		if err != nil {
			s.logger.Error("skipping binding with unreadable credentials",
				slog.String("binding_id", bindings[i].ID.String()),
				slog.Any("error", err))
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

// SetBindingActive toggles a binding on or off.
func (s *Service) SetBindingActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.store.SetBindingActive(ctx, id, active)
}

// UpdateBindingCredentials replaces a binding's credential set.
func (s *Service) UpdateBindingCredentials(ctx context.Context, id uuid.UUID, creds channel.Credentials) error {
	sealed, err := s.vault.EncryptAll(creds)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	return s.store.UpdateBindingCredentials(ctx, id, sealed)
}

// RecordBindingHealth stores the outcome of a health probe.
func (s *Service) RecordBindingHealth(ctx context.Context, id uuid.UUID, healthy bool, at time.Time) error {
	return s.store.RecordBindingHealth(ctx, id, healthy, at)
}

func (s *Service) openCredentials(b *Binding) (*Binding, error) {
	plain, err := s.vault.DecryptAll(b.Credentials)
	if err != nil {
		return nil, fmt.Errorf("open credentials for binding %s: %w", b.ID, err)
	}
	b.Credentials = plain
	return b, nil
}
