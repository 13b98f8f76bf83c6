// Package conversation resolves inbound events to durable conversations.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/botlinkhq/botlink/internal/channel"
)

// ErrNotFound is returned when a conversation id resolves to nothing.
var ErrNotFound = errors.New("conversation not found")

// ErrDuplicate is returned by stores when an insert collides with the
// (tenant, platform, external user) uniqueness constraint.
var ErrDuplicate = errors.New("conversation already exists")

// Conversation is one external user's thread with a tenant on one platform.
type Conversation struct {
	ID             uuid.UUID        `json:"id"`
	TenantID       uuid.UUID        `json:"tenant_id"`
	Platform       channel.Platform `json:"platform"`
	ExternalUserID string           `json:"external_user_id"`
	Title          string           `json:"title"`
	MessageCount   int              `json:"message_count"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Store is the persistence surface the resolver needs.
type Store interface {
	Find(ctx context.Context, tenantID uuid.UUID, platform channel.Platform, externalUserID string) (*Conversation, error)
	Insert(ctx context.Context, c *Conversation) (*Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Conversation, error)
	AddMessages(ctx context.Context, id uuid.UUID, delta int) error
}

// Resolver finds or creates the conversation for an inbound event. Two
// concurrent first messages from the same user race on the insert; the
// loser re-reads the winner's row, so both paths return the same
// conversation.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a resolver on the given store.
func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, logger: log.With(slog.String("service", "conversation"))}
}

// Resolve returns the conversation for the event, creating it on first
// contact. The second return reports whether the conversation is new.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, event channel.InboundEvent) (*Conversation, bool, error) {
	existing, err := r.store.Find(ctx, tenantID, event.Platform, event.ExternalUserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	created, err := r.store.Insert(ctx, &Conversation{
		TenantID:       tenantID,
		Platform:       event.Platform,
		ExternalUserID: event.ExternalUserID,
		Title:          event.ConversationTitle(),
	})
	if err == nil {
		r.logger.Info("conversation created",
			slog.String("conversation_id", created.ID.String()),
			slog.String("platform", string(event.Platform)))
		return created, true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}

	// Lost the insert race; the row exists now.
	winner, err := r.store.Find(ctx, tenantID, event.Platform, event.ExternalUserID)
	if err != nil {
		return nil, false, fmt.Errorf("re-read conversation after duplicate: %w", err)
	}
	return winner, false, nil
}

// Get fetches one conversation by id.
func (r *Resolver) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.store.Get(ctx, id)
}

// ListByTenant returns a tenant's conversations, most recently active first.
func (r *Resolver) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Conversation, error) {
	return r.store.ListByTenant(ctx, tenantID)
}

// AddMessages bumps the conversation's message counter and activity time.
func (r *Resolver) AddMessages(ctx context.Context, id uuid.UUID, delta int) error {
	return r.store.AddMessages(ctx, id, delta)
}
