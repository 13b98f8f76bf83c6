// Package knowledge stores the per-tenant documents the AI engine grounds
// its answers on.
package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a knowledge file id resolves to nothing.
var ErrNotFound = errors.New("knowledge file not found")

// File is one uploaded knowledge document.
type File struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists knowledge files.
type Store interface {
	Create(ctx context.Context, tenantID uuid.UUID, filename, content string) (*File, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]File, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	ActiveContents(ctx context.Context, tenantID uuid.UUID) ([]File, error)
}

// ContextProvider assembles the knowledge context string for a tenant.
type ContextProvider interface {
	Context(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Provider implements ContextProvider by concatenating the tenant's active
// files, each introduced by its filename.
type Provider struct {
	store Store
}

// NewProvider creates a context provider on the given store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// Context returns the concatenated active knowledge, or an empty string
// when the tenant has none.
func (p *Provider) Context(ctx context.Context, tenantID uuid.UUID) (string, error) {
	files, err := p.store.ActiveContents(ctx, tenantID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(f.Filename)
		sb.WriteString(":\n")
		sb.WriteString(f.Content)
	}
	return sb.String(), nil
}
