package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlinkhq/botlink/internal/ai"
	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/conversation"
	"github.com/botlinkhq/botlink/internal/gateway"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/tenant"
	"github.com/botlinkhq/botlink/internal/vault"
)

type stubAdapter struct {
	secret   string
	subToken string
}

func (s *stubAdapter) Type() channel.Platform { return channel.PlatformTelegram }
func (s *stubAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: channel.PlatformTelegram, DisplayName: "Telegram"}
}

func (s *stubAdapter) VerifyWebhook(r *http.Request, _ []byte, _ channel.Credentials) error {
	if r.Header.Get("X-Secret") != s.secret {
		return channel.ErrVerificationFailed
	}
	return nil
}

func (s *stubAdapter) ParseEvents(body []byte) ([]channel.InboundEvent, error) {
	if strings.Contains(string(body), "ignore") {
		return nil, channel.ErrEventIgnored
	}
	return []channel.InboundEvent{{
		Platform:       channel.PlatformTelegram,
		ExternalUserID: "777",
		Text:           "salom",
	}}, nil
}

func (s *stubAdapter) Send(context.Context, channel.Credentials, string, string) (channel.DeliveryResult, error) {
	return channel.DeliveryResult{OK: true, ProviderMessageID: "out-1"}, nil
}

func (s *stubAdapter) VerifySubscription(_ channel.Credentials, verifyToken, challenge string) (string, error) {
	if verifyToken != s.subToken {
		return "", channel.ErrSubscriptionMismatch
	}
	return challenge, nil
}

type stubBindings struct {
	binding    *tenant.Binding
	tenant     *tenant.Tenant
	resolveErr error
}

func (s *stubBindings) ResolveBinding(_ context.Context, id uuid.UUID, platform channel.Platform) (*tenant.Binding, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	if s.binding == nil || s.binding.ID != id || s.binding.Platform != platform {
		return nil, tenant.ErrBindingNotFound
	}
	return s.binding, nil
}

func (s *stubBindings) GetTenant(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != id {
		return nil, tenant.ErrTenantNotFound
	}
	return s.tenant, nil
}

type stubConversations struct{}

func (stubConversations) Resolve(_ context.Context, tenantID uuid.UUID, event channel.InboundEvent) (*conversation.Conversation, bool, error) {
	return &conversation.Conversation{ID: uuid.New(), TenantID: tenantID}, false, nil
}

func (stubConversations) AddMessages(context.Context, uuid.UUID, int) error { return nil }

type stubMessages struct{}

func (stubMessages) InsertUser(_ context.Context, m *message.Message) (*message.Message, error) {
	cp := *m
	cp.ID = uuid.New()
	return &cp, nil
}

func (stubMessages) InsertAssistant(_ context.Context, m *message.Message) (*message.Message, error) {
	cp := *m
	cp.ID = uuid.New()
	return &cp, nil
}

func (stubMessages) MarkSent(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (stubMessages) MarkFailed(context.Context, uuid.UUID, string) error          { return nil }
func (stubMessages) ListByConversation(context.Context, uuid.UUID, int) ([]message.Message, error) {
	return nil, nil
}

type stubConfigs struct{}

func (stubConfigs) Get(context.Context, uuid.UUID) (*ai.Config, error) {
	return nil, ai.ErrConfigNotFound
}

type stubEngine struct{}

func (stubEngine) Generate(context.Context, *ai.Config, string, string, string) ai.Result {
	return ai.Result{Response: "javob", Success: true, Provider: ai.ProviderGemini}
}

type stubKnowledge struct{}

func (stubKnowledge) Context(context.Context, uuid.UUID) (string, error) { return "", nil }

func newWebhookFixture(t *testing.T) (*echo.Echo, uuid.UUID) {
	t.Helper()

	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{secret: "s3cr3t", subToken: "vt"}))

	tenantID := uuid.New()
	bindingID := uuid.New()
	bindings := &stubBindings{
		binding: &tenant.Binding{
			ID:          bindingID,
			TenantID:    tenantID,
			Platform:    channel.PlatformTelegram,
			Credentials: channel.Credentials{"bot_token": "t"},
			IsActive:    true,
		},
		tenant: &tenant.Tenant{ID: tenantID, Language: "uz", IsActive: true},
	}

	msgs := stubMessages{}
	dispatcher := gateway.NewDispatcher(registry, msgs, nil)
	gw := gateway.New(registry, bindings, stubConversations{}, msgs, stubConfigs{}, stubEngine{}, stubKnowledge{}, dispatcher, nil)

	e := echo.New()
	NewWebhookHandler(nil, gw, registry).Register(e)
	return e, bindingID
}

func TestReceiveWebhook(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+bindingID.String(), strings.NewReader(`{"update_id":1}`))
	req.Header.Set("X-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReceiveWebhookVerificationFailure(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+bindingID.String(), strings.NewReader(`{}`))
	req.Header.Set("X-Secret", "wrong")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceiveWebhookUnknownBinding(t *testing.T) {
	t.Parallel()

	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+uuid.NewString(), strings.NewReader(`{}`))
	req.Header.Set("X-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiveWebhookUnreadableCredentials(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{secret: "s3cr3t", subToken: "vt"}))

	bindings := &stubBindings{
		resolveErr: fmt.Errorf("open credentials: %w", vault.ErrCrypto),
	}
	msgs := stubMessages{}
	dispatcher := gateway.NewDispatcher(registry, msgs, nil)
	gw := gateway.New(registry, bindings, stubConversations{}, msgs, stubConfigs{}, stubEngine{}, stubKnowledge{}, dispatcher, nil)

	e := echo.New()
	NewWebhookHandler(nil, gw, registry).Register(e)

	// Redelivery would hit the same unreadable credentials; ack instead.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+uuid.NewString(), strings.NewReader(`{"update_id":1}`))
	req.Header.Set("X-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReceiveWebhookUnknownPlatform(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fax/"+bindingID.String(), strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiveWebhookIgnoredEvent(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram/"+bindingID.String(), strings.NewReader(`{"ignore":true}`))
	req.Header.Set("X-Secret", "s3cr3t")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubscribeHandshake(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	target := "/webhooks/telegram/" + bindingID.String() +
		"?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=12345"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestSubscribeHandshakeRejected(t *testing.T) {
	t.Parallel()

	e, bindingID := newWebhookFixture(t)

	target := "/webhooks/telegram/" + bindingID.String() +
		"?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type noHandshakeAdapter struct{}

func (noHandshakeAdapter) Type() channel.Platform { return channel.PlatformWhatsApp }
func (noHandshakeAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: channel.PlatformWhatsApp, DisplayName: "WhatsApp"}
}

func TestSubscribeWithoutHandshakeCapability(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(noHandshakeAdapter{}))

	e := echo.New()
	NewWebhookHandler(nil, nil, registry).Register(e)

	target := "/webhooks/whatsapp/" + uuid.NewString() +
		"?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=12345"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookStatus(t *testing.T) {
	t.Parallel()

	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telegram")
}
