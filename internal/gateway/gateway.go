// Package gateway orchestrates the inbound webhook pipeline: verify,
// parse, persist, generate, and dispatch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/botlinkhq/botlink/internal/ai"
	"github.com/botlinkhq/botlink/internal/channel"
	"github.com/botlinkhq/botlink/internal/conversation"
	"github.com/botlinkhq/botlink/internal/message"
	"github.com/botlinkhq/botlink/internal/tenant"
)

// Processing states reported per webhook and per event.
type State string

const (
	StateIgnored        State = "ignored"
	StateRejected       State = "rejected"
	StateDelivered      State = "delivered"
	StateDeliveryFailed State = "delivery_failed"
)

// EventResult describes what happened to one inbound event.
type EventResult struct {
	ConversationID     uuid.UUID `json:"conversation_id"`
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
	State              State     `json:"state"`
	AISuccess          bool      `json:"ai_success"`
}

// Outcome summarizes one webhook delivery.
type Outcome struct {
	State  State         `json:"state"`
	Events []EventResult `json:"events,omitempty"`
}

// Bindings resolves webhook targets and their tenants.
type Bindings interface {
	ResolveBinding(ctx context.Context, id uuid.UUID, platform channel.Platform) (*tenant.Binding, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
}

// Conversations finds or creates conversation rows.
type Conversations interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, event channel.InboundEvent) (*conversation.Conversation, bool, error)
	AddMessages(ctx context.Context, id uuid.UUID, delta int) error
}

// AIConfigs loads tenant provider selections.
type AIConfigs interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*ai.Config, error)
}

// Generator produces assistant replies.
type Generator interface {
	Generate(ctx context.Context, cfg *ai.Config, message, knowledge, language string) ai.Result
}

// KnowledgeProvider assembles the tenant's grounding context.
type KnowledgeProvider interface {
	Context(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Gateway drives an inbound event from raw webhook body to delivered reply.
type Gateway struct {
	registry      *channel.Registry
	bindings      Bindings
	conversations Conversations
	messages      message.Store
	aiConfigs     AIConfigs
	engine        Generator
	knowledge     KnowledgeProvider
	dispatcher    *Dispatcher
	logger        *slog.Logger
}

// New assembles a gateway.
func New(
	registry *channel.Registry,
	bindings Bindings,
	conversations Conversations,
	messages message.Store,
	aiConfigs AIConfigs,
	engine Generator,
	knowledgeProvider KnowledgeProvider,
	dispatcher *Dispatcher,
	log *slog.Logger,
) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		registry:      registry,
		bindings:      bindings,
		conversations: conversations,
		messages:      messages,
		aiConfigs:     aiConfigs,
		engine:        engine,
		knowledge:     knowledgeProvider,
		dispatcher:    dispatcher,
		logger:        log.With(slog.String("service", "gateway")),
	}
}

// HandleSubscription answers a platform's GET verification handshake and
// returns the challenge to echo back.
func (g *Gateway) HandleSubscription(ctx context.Context, platform channel.Platform, bindingID uuid.UUID, verifyToken, challenge string) (string, error) {
	binding, err := g.bindings.ResolveBinding(ctx, bindingID, platform)
	if err != nil {
		return "", err
	}
	verifier, err := g.registry.GetSubscriptionVerifier(platform)
	if err != nil {
		return "", err
	}
	return verifier.VerifySubscription(binding.Credentials, verifyToken, challenge)
}

// HandleWebhook runs the full pipeline for one webhook delivery. The raw
// body must be the exact bytes received; signature schemes cover them.
//
// Errors are returned only for conditions the HTTP layer maps to non-200
// responses: unknown or inactive bindings and verification failures.
// Everything past verification resolves to an Outcome so the platform is
// never asked to redeliver a payload we have already accepted.
func (g *Gateway) HandleWebhook(ctx context.Context, platform channel.Platform, bindingID uuid.UUID, r *http.Request, body []byte) (*Outcome, error) {
	binding, err := g.bindings.ResolveBinding(ctx, bindingID, platform)
	if err != nil {
		return nil, err
	}

	verifier, err := g.registry.GetVerifier(platform)
	if err != nil {
		return nil, err
	}
	if err := verifier.VerifyWebhook(r, body, binding.Credentials); err != nil {
		g.logger.Warn("webhook verification failed",
			slog.String("platform", string(platform)),
			slog.String("binding_id", bindingID.String()))
		return nil, err
	}

	parser, err := g.registry.GetParser(platform)
	if err != nil {
		return nil, err
	}
	events, err := parser.ParseEvents(body)
	if errors.Is(err, channel.ErrEventIgnored) {
		return &Outcome{State: StateIgnored}, nil
	}
	if err != nil {
		g.logger.Warn("unparseable webhook payload",
			slog.String("platform", string(platform)),
			slog.String("binding_id", bindingID.String()),
			slog.Any("error", err))
		return &Outcome{State: StateRejected}, nil
	}

	outcome := &Outcome{State: StateDelivered}
	for _, event := range events {
		res := g.processEvent(ctx, binding, event)
		outcome.Events = append(outcome.Events, res)
		if res.State == StateDeliveryFailed {
			outcome.State = StateDeliveryFailed
		}
	}
	return outcome, nil
}

// processEvent persists the inbound message, generates a reply, and
// dispatches it. The user message is durable before generation starts; AI
// or delivery failures never lose it.
func (g *Gateway) processEvent(ctx context.Context, binding *tenant.Binding, event channel.InboundEvent) EventResult {
	res := EventResult{State: StateRejected}
	log := g.logger.With(
		slog.String("platform", string(event.Platform)),
		slog.String("binding_id", binding.ID.String()))

	conv, created, err := g.conversations.Resolve(ctx, binding.TenantID, event)
	if err != nil {
		log.Error("conversation resolution failed", slog.Any("error", err))
		return res
	}
	res.ConversationID = conv.ID
	if created {
		log.Info("new conversation", slog.String("conversation_id", conv.ID.String()))
	}

	userMsg, err := g.messages.InsertUser(ctx, &message.Message{
		ConversationID:    conv.ID,
		Content:           event.Text,
		PlatformMessageID: event.ExternalMessageID,
		SenderInfo:        event.Sender.Attributes,
	})
	if err != nil {
		log.Error("persist user message failed", slog.Any("error", err))
		return res
	}
	res.UserMessageID = userMsg.ID

	reply := g.generateReply(ctx, binding.TenantID, event.Text)
	res.AISuccess = reply.Success

	metadata := map[string]string{
		"ai_provider": reply.Provider,
		"ai_success":  fmt.Sprintf("%t", reply.Success),
	}
	if !reply.Success && reply.Err != nil {
		metadata["ai_error"] = reply.Err.Error()
	}
	assistantMsg, err := g.messages.InsertAssistant(ctx, &message.Message{
		ConversationID: conv.ID,
		Content:        reply.Response,
		Metadata:       metadata,
	})
	if err != nil {
		log.Error("persist assistant message failed", slog.Any("error", err))
		return res
	}
	res.AssistantMessageID = assistantMsg.ID

	if err := g.conversations.AddMessages(ctx, conv.ID, 2); err != nil {
		log.Error("bump message count failed", slog.Any("error", err))
	}

	if _, err := g.dispatcher.Dispatch(ctx, binding, assistantMsg.ID, event.ExternalUserID, reply.Response); err != nil {
		res.State = StateDeliveryFailed
		return res
	}
	res.State = StateDelivered
	return res
}

// generateReply loads the tenant's language, knowledge, and AI config and
// runs generation. Config and knowledge lookups are soft failures; the
// engine falls back to its defaults.
func (g *Gateway) generateReply(ctx context.Context, tenantID uuid.UUID, text string) ai.Result {
	language := ai.LangUzbek
	if t, err := g.bindings.GetTenant(ctx, tenantID); err == nil {
		language = t.Language
	}

	knowledgeCtx := ""
	if g.knowledge != nil {
		kc, err := g.knowledge.Context(ctx, tenantID)
		if err != nil {
			g.logger.Error("knowledge lookup failed",
				slog.String("tenant_id", tenantID.String()),
				slog.Any("error", err))
		} else {
			knowledgeCtx = kc
		}
	}

	cfg, err := g.aiConfigs.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, ai.ErrConfigNotFound) {
		g.logger.Error("ai config lookup failed",
			slog.String("tenant_id", tenantID.String()),
			slog.Any("error", err))
	}
	return g.engine.Generate(ctx, cfg, text, knowledgeCtx, language)
}
