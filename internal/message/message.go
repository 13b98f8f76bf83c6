// Package message persists conversation messages and tracks outbound
// delivery status.
package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Delivery status values for assistant messages. Inbound user messages
// stay at StatusNone. Sent and failed are terminal.
const (
	StatusNone    = "none"
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ErrNotFound is returned when a message id resolves to nothing.
var ErrNotFound = errors.New("message not found")

// ErrNotPending is returned when a delivery transition is attempted on a
// message that is not awaiting delivery.
var ErrNotPending = errors.New("message is not pending delivery")

// Message is one stored conversation turn.
type Message struct {
	ID                uuid.UUID         `json:"id"`
	ConversationID    uuid.UUID         `json:"conversation_id"`
	Role              string            `json:"role"`
	Content           string            `json:"content"`
	PlatformMessageID string            `json:"platform_message_id,omitempty"`
	SenderInfo        map[string]string `json:"sender_info,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	DeliveryStatus    string            `json:"delivery_status"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Store persists messages.
type Store interface {
	InsertUser(ctx context.Context, m *Message) (*Message, error)
	InsertAssistant(ctx context.Context, m *Message) (*Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
}
