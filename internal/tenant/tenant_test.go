package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/vault"
)

type memStore struct {
	tenants  map[uuid.UUID]*Tenant
	bindings map[uuid.UUID]*Binding
}

func newMemStore() *memStore {
	return &memStore{
		tenants:  make(map[uuid.UUID]*Tenant),
		bindings: make(map[uuid.UUID]*Binding),
	}
}

func (m *memStore) CreateTenant(_ context.Context, name, language string) (*Tenant, error) {
	t := &Tenant{ID: uuid.New(), Name: name, Language: language, IsActive: true, CreatedAt: time.Now()}
	m.tenants[t.ID] = t
	return t, nil
}

func (m *memStore) GetTenant(_ context.Context, id uuid.UUID) (*Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ListTenants(_ context.Context) ([]Tenant, error) {
	var out []Tenant
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) SetTenantActive(_ context.Context, id uuid.UUID, active bool) error {
	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.IsActive = active
	return nil
}

func (m *memStore) CreateBinding(_ context.Context, b *Binding) (*Binding, error) {
	cp := *b
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	m.bindings[cp.ID] = &cp
	stored := cp
	return &stored, nil
}

func (m *memStore) GetBinding(_ context.Context, id uuid.UUID) (*Binding, error) {
	b, ok := m.bindings[id]
	if !ok {
		return nil, ErrBindingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBindings(_ context.Context, tenantID uuid.UUID) ([]Binding, error) {
	var out []Binding
	for _, b := range m.bindings {
		if b.TenantID == tenantID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveBindings(_ context.Context, platform channel.Platform) ([]Binding, error) {
	var out []Binding
	for _, b := range m.bindings {
		if b.Platform == platform && b.IsActive {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) SetBindingActive(_ context.Context, id uuid.UUID, active bool) error {
	b, ok := m.bindings[id]
	if !ok {
		return ErrBindingNotFound
	}
	b.IsActive = active
	return nil
}

func (m *memStore) UpdateBindingCredentials(_ context.Context, id uuid.UUID, creds channel.Credentials) error {
	b, ok := m.bindings[id]
	if !ok {
		return ErrBindingNotFound
	}
	b.Credentials = creds
	return nil
}

func (m *memStore) RecordBindingHealth(_ context.Context, id uuid.UUID, healthy bool, at time.Time) error {
	b, ok := m.bindings[id]
	if !ok {
		return ErrBindingNotFound
	}
	b.Healthy = healthy
	b.LastCheckedAt = &at
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(nil, key)
	require.NoError(t, err)
	store := newMemStore()
	return NewService(store, v, nil), store
}

func TestCreateBindingEncryptsCredentials(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	tn, err := svc.CreateTenant(ctx, "Shop", "uz")
	require.NoError(t, err)

	creds := channel.Credentials{"bot_token": "123:abc"}
	b, err := svc.CreateBinding(ctx, tn.ID, channel.PlatformTelegram, "main bot", creds)
	require.NoError(t, err)

	// Caller sees plaintext, storage does not.
	assert.Equal(t, "123:abc", b.Credentials.Get("bot_token"))
	stored := store.bindings[b.ID]
	assert.NotEqual(t, "123:abc", stored.Credentials["bot_token"])
	assert.False(t, stored.IsActive)
}

func TestResolveBinding(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	tn, err := svc.CreateTenant(ctx, "Shop", "uz")
	require.NoError(t, err)
	b, err := svc.CreateBinding(ctx, tn.ID, channel.PlatformTelegram, "main bot",
		channel.Credentials{"bot_token": "123:abc"})
	require.NoError(t, err)

	// Inactive until activated.
	_, err = svc.ResolveBinding(ctx, b.ID, channel.PlatformTelegram)
	assert.ErrorIs(t, err, ErrBindingInactive)

	require.NoError(t, svc.SetBindingActive(ctx, b.ID, true))
	got, err := svc.ResolveBinding(ctx, b.ID, channel.PlatformTelegram)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", got.Credentials.Get("bot_token"))

	// Platform mismatch reads as not found.
	_, err = svc.ResolveBinding(ctx, b.ID, channel.PlatformWhatsApp)
	assert.ErrorIs(t, err, ErrBindingNotFound)

	// Deactivated tenant blocks its bindings.
	require.NoError(t, svc.SetTenantActive(ctx, tn.ID, false))
	_, err = svc.ResolveBinding(ctx, b.ID, channel.PlatformTelegram)
	assert.ErrorIs(t, err, ErrBindingInactive)

	_, err = svc.ResolveBinding(ctx, uuid.New(), channel.PlatformTelegram)
	assert.ErrorIs(t, err, ErrBindingNotFound)
}

func TestListBindingsStripsCredentials(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	tn, err := svc.CreateTenant(ctx, "Shop", "uz")
	require.NoError(t, err)
	_, err = svc.CreateBinding(ctx, tn.ID, channel.PlatformWhatsApp, "wa",
		channel.Credentials{"app_secret": "s"})
	require.NoError(t, err)

	list, err := svc.ListBindings(ctx, tn.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Credentials)
}

func TestUpdateBindingCredentials(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	tn, err := svc.CreateTenant(ctx, "Shop", "uz")
	require.NoError(t, err)
	b, err := svc.CreateBinding(ctx, tn.ID, channel.PlatformTelegram, "bot",
		channel.Credentials{"bot_token": "old"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateBindingCredentials(ctx, b.ID, channel.Credentials{"bot_token": "new"}))
	assert.NotEqual(t, "new", store.bindings[b.ID].Credentials["bot_token"])

	got, err := svc.GetBinding(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Credentials.Get("bot_token"))
}
