package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botlinkhq/botlink/internal/ai"
	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/conversation"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/tenant"
)

// fakeAdapter is a full-capability telegram stand-in.
type fakeAdapter struct {
	verifyErr error
	parseErr  error
	events    []channel.InboundEvent
	sendErr   error
	sentTexts []string
	subToken  string
}

func (f *fakeAdapter) Type() channel.Platform { return channel.PlatformTelegram }
func (f *fakeAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: channel.PlatformTelegram}
}

func (f *fakeAdapter) VerifyWebhook(*http.Request, []byte, channel.Credentials) error {
	return f.verifyErr
}

func (f *fakeAdapter) ParseEvents([]byte) ([]channel.InboundEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.events, nil
}

func (f *fakeAdapter) Send(_ context.Context, _ channel.Credentials, _, text string) (channel.DeliveryResult, error) {
	if f.sendErr != nil {
		return channel.DeliveryResult{OK: false, Error: f.sendErr.Error()}, f.sendErr
	}
	f.sentTexts = append(f.sentTexts, text)
	return channel.DeliveryResult{OK: true, ProviderMessageID: "out-1"}, nil
}

func (f *fakeAdapter) VerifySubscription(_ channel.Credentials, verifyToken, challenge string) (string, error) {
	if verifyToken != f.subToken {
		return "", channel.ErrSubscriptionMismatch
	}
	return challenge, nil
}

type fakeBindings struct {
	binding *tenant.Binding
	tenant  *tenant.Tenant
}

func (f *fakeBindings) ResolveBinding(_ context.Context, id uuid.UUID, platform channel.Platform) (*tenant.Binding, error) {
	if f.binding == nil || f.binding.ID != id || f.binding.Platform != platform {
		return nil, tenant.ErrBindingNotFound
	}
	return f.binding, nil
}

func (f *fakeBindings) GetTenant(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if f.tenant == nil || f.tenant.ID != id {
		return nil, tenant.ErrTenantNotFound
	}
	return f.tenant, nil
}

type fakeConversations struct {
	conv   *conversation.Conversation
	counts map[uuid.UUID]int
}

func (f *fakeConversations) Resolve(_ context.Context, tenantID uuid.UUID, event channel.InboundEvent) (*conversation.Conversation, bool, error) {
	if f.conv == nil {
		f.conv = &conversation.Conversation{
			ID:             uuid.New(),
			TenantID:       tenantID,
			Platform:       event.Platform,
			ExternalUserID: event.ExternalUserID,
			Title:          event.ConversationTitle(),
		}
		return f.conv, true, nil
	}
	return f.conv, false, nil
}

func (f *fakeConversations) AddMessages(_ context.Context, id uuid.UUID, delta int) error {
	if f.counts == nil {
		f.counts = map[uuid.UUID]int{}
	}
	f.counts[id] += delta
	return nil
}

type fakeMessages struct {
	stored []*message.Message
}

func (f *fakeMessages) insert(m *message.Message, role, status string) (*message.Message, error) {
	cp := *m
	cp.ID = uuid.New()
	cp.Role = role
	cp.DeliveryStatus = status
	cp.CreatedAt = time.Now()
	f.stored = append(f.stored, &cp)
	return &cp, nil
}

func (f *fakeMessages) InsertUser(_ context.Context, m *message.Message) (*message.Message, error) {
	return f.insert(m, message.RoleUser, message.StatusNone)
}

func (f *fakeMessages) InsertAssistant(_ context.Context, m *message.Message) (*message.Message, error) {
	return f.insert(m, message.RoleAssistant, message.StatusPending)
}

func (f *fakeMessages) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string, at time.Time) error {
	for _, m := range f.stored {
		if m.ID == id && m.DeliveryStatus == message.StatusPending {
			m.DeliveryStatus = message.StatusSent
			m.PlatformMessageID = providerMessageID
			m.SentAt = &at
			return nil
		}
	}
	return message.ErrNotPending
}

func (f *fakeMessages) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	for _, m := range f.stored {
		if m.ID == id && m.DeliveryStatus == message.StatusPending {
			m.DeliveryStatus = message.StatusFailed
			if m.Metadata == nil {
				m.Metadata = map[string]string{}
			}
			m.Metadata["delivery_error"] = reason
			return nil
		}
	}
	return message.ErrNotPending
}

func (f *fakeMessages) ListByConversation(context.Context, uuid.UUID, int) ([]message.Message, error) {
	var out []message.Message
	for _, m := range f.stored {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMessages) byRole(role string) *message.Message {
	for _, m := range f.stored {
		if m.Role == role {
			return m
		}
	}
	return nil
}

type fakeConfigs struct{}

func (fakeConfigs) Get(context.Context, uuid.UUID) (*ai.Config, error) {
	return nil, ai.ErrConfigNotFound
}

type fakeEngine struct {
	fail bool
}

func (f *fakeEngine) Generate(_ context.Context, _ *ai.Config, _, knowledge, language string) ai.Result {
	if f.fail {
		return ai.Result{
			Response: ai.FallbackMessage(language),
			Success:  false,
			Provider: ai.ProviderGemini,
			Err:      errors.New("quota exceeded"),
		}
	}
	return ai.Result{Response: "reply: " + knowledge, Success: true, Provider: ai.ProviderGemini}
}

type fakeKnowledge struct{}

func (fakeKnowledge) Context(context.Context, uuid.UUID) (string, error) {
	return "menu", nil
}

type fixture struct {
	gw       *Gateway
	adapter  *fakeAdapter
	bindings *fakeBindings
	convs    *fakeConversations
	msgs     *fakeMessages
	engine   *fakeEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	adapter := &fakeAdapter{
		subToken: "vt",
		events: []channel.InboundEvent{{
			Platform:          channel.PlatformTelegram,
			ExternalUserID:    "777",
			ExternalMessageID: "42",
			Text:              "salom",
			Sender:            channel.Identity{DisplayName: "Aziz"},
		}},
	}
	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(adapter))

	tenantID := uuid.New()
	bindings := &fakeBindings{
		binding: &tenant.Binding{
			ID:          uuid.New(),
			TenantID:    tenantID,
			Platform:    channel.PlatformTelegram,
			Credentials: channel.Credentials{"bot_token": "t"},
			IsActive:    true,
		},
		tenant: &tenant.Tenant{ID: tenantID, Language: "en", IsActive: true},
	}
	convs := &fakeConversations{}
	msgs := &fakeMessages{}
	engine := &fakeEngine{}
	dispatcher := NewDispatcher(registry, msgs, nil)
	gw := New(registry, bindings, convs, msgs, fakeConfigs{}, engine, fakeKnowledge{}, dispatcher, nil)
	return &fixture{gw: gw, adapter: adapter, bindings: bindings, convs: convs, msgs: msgs, engine: engine}
}

func webhookRequest() *http.Request {
	return httptest.NewRequest("POST", "/webhooks/telegram/b1", nil)
}

func TestHandleWebhookDelivers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	outcome, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("{}"))
	require.NoError(t, err)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, StateDelivered, outcome.State)
	assert.True(t, outcome.Events[0].AISuccess)

	user := f.msgs.byRole(message.RoleUser)
	require.NotNil(t, user)
	assert.Equal(t, "salom", user.Content)
	assert.Equal(t, message.StatusNone, user.DeliveryStatus)

	assistant := f.msgs.byRole(message.RoleAssistant)
	require.NotNil(t, assistant)
	assert.Equal(t, message.StatusSent, assistant.DeliveryStatus)
	assert.Equal(t, "out-1", assistant.PlatformMessageID)
	assert.NotNil(t, assistant.SentAt)

	// Knowledge context reached the engine.
	assert.Equal(t, []string{"reply: menu"}, f.adapter.sentTexts)
	assert.Equal(t, 2, f.convs.counts[outcome.Events[0].ConversationID])
}

func TestHandleWebhookAIFailureStillReplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.engine.fail = true

	outcome, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, outcome.State)
	assert.False(t, outcome.Events[0].AISuccess)

	// The inbound message survives and the user gets the localized
	// fallback, delivered normally.
	require.NotNil(t, f.msgs.byRole(message.RoleUser))
	assistant := f.msgs.byRole(message.RoleAssistant)
	require.NotNil(t, assistant)
	assert.Equal(t, "Sorry, I can't respond right now. Please try again later.", assistant.Content)
	assert.Equal(t, "false", assistant.Metadata["ai_success"])
	assert.Equal(t, "quota exceeded", assistant.Metadata["ai_error"])
	assert.Equal(t, message.StatusSent, assistant.DeliveryStatus)
}

func TestHandleWebhookDeliveryFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.adapter.sendErr = errors.New("blocked by user")

	outcome, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, StateDeliveryFailed, outcome.State)

	assistant := f.msgs.byRole(message.RoleAssistant)
	require.NotNil(t, assistant)
	assert.Equal(t, message.StatusFailed, assistant.DeliveryStatus)
	assert.Equal(t, "blocked by user", assistant.Metadata["delivery_error"])
	// Inbound message is still durable.
	require.NotNil(t, f.msgs.byRole(message.RoleUser))
}

func TestHandleWebhookVerificationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.adapter.verifyErr = channel.ErrVerificationFailed

	_, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("{}"))
	assert.ErrorIs(t, err, channel.ErrVerificationFailed)
	assert.Empty(t, f.msgs.stored)
}

func TestHandleWebhookUnknownBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, uuid.New(), webhookRequest(), []byte("{}"))
	assert.ErrorIs(t, err, tenant.ErrBindingNotFound)
}

func TestHandleWebhookIgnoredAndRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.adapter.parseErr = channel.ErrEventIgnored
	outcome, err := f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, StateIgnored, outcome.State)

	f.adapter.parseErr = errors.New("garbage payload")
	outcome, err = f.gw.HandleWebhook(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, webhookRequest(), []byte("garbage"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, outcome.State)
	assert.Empty(t, f.msgs.stored)
}

func TestHandleSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	challenge, err := f.gw.HandleSubscription(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, "vt", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", challenge)

	_, err = f.gw.HandleSubscription(context.Background(), channel.PlatformTelegram, f.bindings.binding.ID, "bad", "12345")
	assert.ErrorIs(t, err, channel.ErrSubscriptionMismatch)

	_, err = f.gw.HandleSubscription(context.Background(), channel.PlatformTelegram, uuid.New(), "vt", "12345")
	assert.ErrorIs(t, err, tenant.ErrBindingNotFound)
}
